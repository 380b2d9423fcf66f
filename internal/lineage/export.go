package lineage

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/internal/models"
)

// EdgeSource is anything that can enumerate lineage edges. Implemented
// by GraphSource; mocked in tests.
type EdgeSource interface {
	Edges(ctx context.Context) ([]models.LineageEdge, int, error)
}

// Export reads every edge from src and persists it through w, returning
// the run report.
func Export(ctx context.Context, src EdgeSource, w *Writer, log *logrus.Logger) (*Report, error) {
	edges, skipped, err := src.Edges(ctx)
	if err != nil {
		return nil, err
	}

	written, err := w.WriteEdges(ctx, edges)
	if err != nil {
		return nil, err
	}

	report := &Report{Read: len(edges) + skipped, Written: written, Skipped: skipped}

	log.WithFields(logrus.Fields{
		"read":    report.Read,
		"written": report.Written,
		"skipped": report.Skipped,
	}).Info("lineage export finished")

	return report, nil
}
