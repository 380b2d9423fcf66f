package lineage

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/list-cutter/cutover/internal/models"
)

// relationshipSchema creates the destination edge table. Idempotent so
// repeated exports land on the same table.
const relationshipSchema = `
CREATE TABLE IF NOT EXISTS file_relationships (
    source_file_id    TEXT NOT NULL,
    target_file_id    TEXT NOT NULL,
    relationship_type TEXT NOT NULL,
    metadata          TEXT NOT NULL DEFAULT '{}',
    verified          INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (source_file_id, target_file_id, relationship_type)
)`

const upsertEdge = `
INSERT OR REPLACE INTO file_relationships
    (source_file_id, target_file_id, relationship_type, metadata, verified)
VALUES (?, ?, ?, ?, ?)`

// Report summarizes one export run.
type Report struct {
	Read    int `json:"read"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

// Writer persists lineage edges into the destination SQLite database.
type Writer struct {
	db *sql.DB
}

// NewWriter opens (creating if needed) the destination database and
// ensures the edge table exists.
func NewWriter(ctx context.Context, path string) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening lineage database: %w", err)
	}

	if _, err := db.ExecContext(ctx, relationshipSchema); err != nil {
		db.Close() //nolint:errcheck

		return nil, fmt.Errorf("creating file_relationships table: %w", err)
	}

	return &Writer{db: db}, nil
}

// Close closes the underlying database.
func (w *Writer) Close() error {
	return w.db.Close()
}

// WriteEdges upserts all edges in one transaction. Booleans become 0/1
// and metadata becomes a JSON document here, at the persistence edge only.
func (w *Writer) WriteEdges(ctx context.Context, edges []models.LineageEdge) (int, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning lineage transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, upsertEdge)
	if err != nil {
		return 0, fmt.Errorf("preparing edge upsert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	written := 0
	for _, e := range edges {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			meta = []byte("{}")
		}

		verified := 0
		if e.Verified {
			verified = 1
		}

		if _, err := stmt.ExecContext(ctx, e.SourceFileID, e.TargetFileID, e.RelationshipType, string(meta), verified); err != nil {
			return 0, fmt.Errorf("writing edge %s -> %s: %w", e.SourceFileID, e.TargetFileID, err)
		}

		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing lineage transaction: %w", err)
	}

	return written, nil
}

// CountEdges returns the number of persisted edges.
func (w *Writer) CountEdges(ctx context.Context) (int, error) {
	var n int
	if err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_relationships`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting edges: %w", err)
	}

	return n, nil
}

// WriteCSV renders edges in the flat interchange form, one row per edge.
func WriteCSV(w io.Writer, edges []models.LineageEdge) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"source_file_id", "target_file_id", "relationship_type", "metadata", "verified"}); err != nil {
		return err
	}

	for _, e := range edges {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			meta = []byte("{}")
		}

		verified := 0
		if e.Verified {
			verified = 1
		}

		row := []string{e.SourceFileID, e.TargetFileID, e.RelationshipType, string(meta), strconv.Itoa(verified)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}
