package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/list-cutter/cutover/client"
	"github.com/list-cutter/cutover/internal/models"
)

// memStore is an in-memory StateStore with the same claim, retry, and
// rollup semantics as the SQL implementation.
type memStore struct {
	mu       sync.Mutex
	seq      int
	batches  map[string]*models.Batch
	records  map[string]map[string]*models.FileRecord
	files    map[string]models.FileEntity
	eligible []models.FileEntity
}

func newMemStore() *memStore {
	return &memStore{
		batches: make(map[string]*models.Batch),
		records: make(map[string]map[string]*models.FileRecord),
		files:   make(map[string]models.FileEntity),
	}
}

func (m *memStore) addFile(f models.FileEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[f.FileID] = f
	m.eligible = append(m.eligible, f)
}

func (m *memStore) CreateBatch(_ context.Context, files []models.Candidate) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range files {
		for bid, recs := range m.records {
			if _, ok := recs[c.FileID]; ok && !m.batches[bid].Status.Terminal() {
				return "", &models.ConflictError{FileIDs: []string{c.FileID}}
			}
		}
	}

	m.seq++
	batchID := fmt.Sprintf("batch-%d", m.seq)
	m.batches[batchID] = &models.Batch{
		ID:         batchID,
		TotalFiles: len(files),
		Status:     models.BatchPending,
		CreatedAt:  time.Now(),
	}
	m.records[batchID] = make(map[string]*models.FileRecord)
	for _, c := range files {
		m.records[batchID][c.FileID] = &models.FileRecord{
			BatchID:    batchID,
			FileID:     c.FileID,
			SourcePath: c.SourcePath,
			FileSize:   c.FileSize,
			Status:     models.RecordPending,
		}
	}

	return batchID, nil
}

func (m *memStore) GetBatch(_ context.Context, batchID string) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return nil, models.ErrBatchNotFound
	}
	cp := *b

	return &cp, nil
}

func (m *memStore) Progress(_ context.Context, batchID string) (*models.BatchProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[batchID]
	if !ok {
		return nil, models.ErrBatchNotFound
	}

	counts := make(map[models.RecordStatus]int)
	for _, r := range m.records[batchID] {
		counts[r.Status]++
	}

	return &models.BatchProgress{Batch: *b, StatusCounts: counts}, nil
}

func (m *memStore) StartBatch(_ context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.batches[batchID]
	b.Status = models.BatchProcessing
	if b.StartedAt == nil {
		now := time.Now()
		b.StartedAt = &now
	}

	return nil
}

func (m *memStore) MarkRolledBack(_ context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batchID].Status = models.BatchRolledBack

	return nil
}

func (m *memStore) DeleteDestinationRefs(_ context.Context, batchID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared := 0
	for _, r := range m.records[batchID] {
		if r.DestinationRef != nil {
			r.DestinationRef = nil
			r.DestChecksum = nil
			cleared++
		}
	}

	return cleared, nil
}

func (m *memStore) ClaimNextPending(_ context.Context, batchID string) (*models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, r := range m.records[batchID] {
		if r.Status != models.RecordPending {
			continue
		}
		if r.NextAttemptAt != nil && r.NextAttemptAt.After(now) {
			continue
		}

		r.Status = models.RecordProcessing
		if r.StartedAt == nil {
			r.StartedAt = &now
		}
		cp := *r

		return &cp, nil
	}

	return nil, nil
}

func (m *memStore) RecordOutcome(_ context.Context, batchID, fileID string, out models.Outcome, maxRetries int, retryBase time.Duration) (models.RecordStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[batchID][fileID]
	if !ok {
		return "", models.ErrRecordNotFound
	}

	r.Attempts++

	switch out.Kind {
	case models.OutcomeCompleted:
		now := time.Now()
		r.Status = models.RecordCompleted
		r.DestinationRef = &out.DestinationRef
		r.SourceChecksum = &out.SourceChecksum
		r.DestChecksum = &out.DestChecksum
		r.ErrorMessage = nil
		r.CompletedAt = &now
	case models.OutcomeTransientFailure:
		msg := out.ErrorMessage
		r.ErrorMessage = &msg
		if r.Attempts <= maxRetries {
			next := time.Now().Add(retryBase << (r.Attempts - 1))
			r.Status = models.RecordPending
			r.NextAttemptAt = &next
		} else {
			r.Status = models.RecordFailed
		}
	default:
		msg := out.ErrorMessage
		r.ErrorMessage = &msg
		r.Status = models.RecordFailed
	}

	m.rollup(batchID)

	return r.Status, nil
}

func (m *memStore) MarkVerified(_ context.Context, batchID, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[batchID][fileID]
	if !ok || r.Status != models.RecordCompleted {
		return models.ErrRecordNotFound
	}
	r.Status = models.RecordVerified
	m.rollup(batchID)

	return nil
}

func (m *memStore) ResetStuckProcessing(_ context.Context, batchID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.records[batchID] {
		if r.Status == models.RecordProcessing {
			r.Status = models.RecordPending
			r.NextAttemptAt = nil
			n++
		}
	}

	return n, nil
}

func (m *memStore) ListRecords(_ context.Context, batchID string, status models.RecordStatus) ([]models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.FileRecord
	for _, r := range m.records[batchID] {
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}

	return out, nil
}

func (m *memStore) ListRecordsWithRefs(_ context.Context, batchID string) ([]models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.FileRecord
	for _, r := range m.records[batchID] {
		if r.DestinationRef != nil && *r.DestinationRef != "" {
			out = append(out, *r)
		}
	}

	return out, nil
}

func (m *memStore) ListEligible(_ context.Context, limit int) ([]models.FileEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.eligible
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return append([]models.FileEntity(nil), out...), nil
}

func (m *memStore) GetFile(_ context.Context, fileID string) (*models.FileEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[fileID]
	if !ok {
		return nil, models.ErrRecordNotFound
	}

	return &f, nil
}

// record returns a copy of one record for assertions.
func (m *memStore) record(batchID, fileID string) models.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	return *m.records[batchID][fileID]
}

// rollup mirrors the SQL aggregate: flip the batch terminal once no
// record is pending or processing.
func (m *memStore) rollup(batchID string) {
	b := m.batches[batchID]
	if b.Status.Terminal() {
		return
	}

	var completed, failed, verified, open int
	for _, r := range m.records[batchID] {
		switch r.Status {
		case models.RecordCompleted, models.RecordVerified:
			completed++
			if r.Status == models.RecordVerified {
				verified++
			}
		case models.RecordFailed:
			failed++
		default:
			open++
		}
	}

	b.CompletedFiles = completed
	b.FailedFiles = failed
	b.VerifiedFiles = verified

	if open == 0 {
		now := time.Now()
		b.CompletedAt = &now
		if failed == 0 {
			b.Status = models.BatchCompleted
		} else {
			b.Status = models.BatchFailed
		}
	}
}

// fakeTransfer scripts destination behavior per file ref.
type fakeTransfer struct {
	mu        sync.Mutex
	healthy   bool
	checksums map[string]string // ref -> digest of uploaded bytes
	sizes     map[string]int64
	deleted   []string

	// uploadErr, when set for a file ID, fails every upload for it.
	uploadErr map[string]error
	// mismatchOnce holds file refs whose first confirm reports a bogus
	// checksum.
	mismatchOnce map[string]bool
	// confirmCalls counts probes per ref.
	confirmCalls map[string]int

	deleteErr map[string]error
}

func newFakeTransfer() *fakeTransfer {
	return &fakeTransfer{
		healthy:      true,
		checksums:    make(map[string]string),
		sizes:        make(map[string]int64),
		uploadErr:    make(map[string]error),
		mismatchOnce: make(map[string]bool),
		confirmCalls: make(map[string]int),
		deleteErr:    make(map[string]error),
	}
}

func (f *fakeTransfer) Upload(_ context.Context, fileID string, r io.Reader, meta client.UploadMetadata) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.uploadErr[fileID]; err != nil {
		return "", err
	}

	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", err
	}

	ref := "migrated/" + meta.UserID + "/" + fileID + "/" + meta.FileName
	f.checksums[ref] = hex.EncodeToString(h.Sum(nil))
	f.sizes[ref] = n

	return ref, nil
}

func (f *fakeTransfer) ConfirmAccessible(_ context.Context, ref string) (client.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.confirmCalls[ref]++

	sum, ok := f.checksums[ref]
	if !ok {
		return client.ProbeResult{Exists: false}, nil
	}

	if f.mismatchOnce[ref] {
		f.mismatchOnce[ref] = false

		return client.ProbeResult{Exists: true, Size: f.sizes[ref], Checksum: "0000"}, nil
	}

	return client.ProbeResult{Exists: true, Size: f.sizes[ref], Checksum: sum}, nil
}

func (f *fakeTransfer) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.deleteErr[ref]; err != nil {
		return err
	}

	delete(f.checksums, ref)
	f.deleted = append(f.deleted, ref)

	return nil
}

func (f *fakeTransfer) HealthCheck(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.healthy
}
