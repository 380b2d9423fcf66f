package store

// Stores bundles the per-domain stores behind one value for callers that
// drive the whole pipeline (orchestrator, validator, monitor).
type Stores struct {
	*BatchStore
	*RecordStore
	*FileStore
}

// NewStores creates all stores over a shared Base.
func NewStores(base Base) *Stores {
	return &Stores{
		BatchStore:  NewBatchStore(base),
		RecordStore: NewRecordStore(base),
		FileStore:   NewFileStore(base),
	}
}
