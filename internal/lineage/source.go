// Package lineage exports file-derivation edges from the source graph
// store into the destination's embedded relational database. Edges are
// consumed as flat adjacency rows; no graph structure is built in memory.
package lineage

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/internal/models"
)

// edgeQuery flattens every derivation relationship between file nodes
// into one row per edge.
const edgeQuery = `
MATCH (a:File)-[r:CUT_FROM|CUT_TO]->(b:File)
RETURN a.file_id AS source_file_id,
       b.file_id AS target_file_id,
       type(r) AS relationship_type,
       properties(r) AS metadata
ORDER BY source_file_id, target_file_id`

// GraphSource reads lineage edges from Neo4j.
type GraphSource struct {
	driver neo4j.DriverWithContext
	log    *logrus.Logger
}

// NewGraphSource connects to the graph store with basic auth.
func NewGraphSource(uri, user, password string, log *logrus.Logger) (*GraphSource, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("connecting to graph store: %w", err)
	}

	return &GraphSource{driver: driver, log: log}, nil
}

// Close releases the underlying driver.
func (g *GraphSource) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// Edges reads every lineage edge as a flat row. Edges with a missing
// endpoint id are skipped and counted, not fatal.
func (g *GraphSource) Edges(ctx context.Context) ([]models.LineageEdge, int, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx) //nolint:errcheck

	result, err := session.Run(ctx, edgeQuery, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("querying lineage edges: %w", err)
	}

	var (
		edges   []models.LineageEdge
		skipped int
	)

	for result.Next(ctx) {
		rec := result.Record()

		edge, ok := edgeFromRecord(rec)
		if !ok {
			skipped++

			continue
		}

		edges = append(edges, edge)
	}

	if err := result.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading lineage edges: %w", err)
	}

	g.log.WithFields(logrus.Fields{"edges": len(edges), "skipped": skipped}).Info("lineage edges exported")

	return edges, skipped, nil
}

// edgeFromRecord converts one result row, rejecting rows without both
// endpoint ids.
func edgeFromRecord(rec *neo4j.Record) (models.LineageEdge, bool) {
	src, _ := rec.Get("source_file_id")
	dst, _ := rec.Get("target_file_id")
	kind, _ := rec.Get("relationship_type")

	srcID, ok1 := src.(string)
	dstID, ok2 := dst.(string)
	if !ok1 || !ok2 || srcID == "" || dstID == "" {
		return models.LineageEdge{}, false
	}

	edge := models.LineageEdge{
		SourceFileID:     srcID,
		TargetFileID:     dstID,
		RelationshipType: "derived-from",
	}
	if k, ok := kind.(string); ok && k != "" {
		edge.RelationshipType = k
	}

	if meta, ok := rec.Get("metadata"); ok {
		if m, ok := meta.(map[string]any); ok {
			if v, ok := m["verified"].(bool); ok {
				edge.Verified = v
				delete(m, "verified")
			}
			edge.Metadata = m
		}
	}

	if edge.Metadata == nil {
		edge.Metadata = map[string]any{}
	}

	return edge, true
}
