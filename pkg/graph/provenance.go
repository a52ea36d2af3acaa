package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Statement is a single parameterized Cypher statement
type Statement struct {
	Cypher string
	Params map[string]any
}

const upsertTestCase = `
	MERGE (t:TestCase {id: $id, project_id: $project_id})
	SET t.title = $title, t.version = $version, t.updated_at = $updated_at`

const linkSource = `
	MERGE (s:SourceRecord {id: $source_id, project_id: $project_id})
	WITH s
	MATCH (t:TestCase {id: $id, project_id: $project_id})
	MERGE (s)-[r:MERGED_INTO]->(t)
	SET r.batch_id = $batch_id, r.conflict_id = $conflict_id`

const linkKeptAlongside = `
	MATCH (t:TestCase {id: $id, project_id: $project_id})
	MERGE (e:TestCase {id: $existing_id, project_id: $project_id})
	MERGE (t)-[r:KEPT_ALONGSIDE]->(e)
	SET r.batch_id = $batch_id, r.conflict_id = $conflict_id`

// ProvenanceStatements builds the statements recording which source records went into which
// test case, and which test cases a reviewer kept side by side
func ProvenanceStatements(projectID, batchID string, changes []models.PoolChange, conflicts []models.MergeConflict) []Statement {
	keptWith := make(map[string]string)
	for _, c := range conflicts {
		if c.Status == models.ConflictStatusKeptBoth {
			keptWith[c.ID] = c.Existing.ID
		}
	}

	var stmts []Statement
	for _, change := range changes {
		rec := change.Record
		stmts = append(stmts, Statement{Cypher: upsertTestCase, Params: map[string]any{
			"id":         rec.ID,
			"project_id": projectID,
			"title":      rec.Title,
			"version":    int64(rec.Version),
			"updated_at": rec.UpdatedAt.UTC().Format(time.RFC3339),
		}})

		for _, sourceID := range rec.Provenance.SourceIDs {
			if sourceID == rec.ID {
				continue
			}
			stmts = append(stmts, Statement{Cypher: linkSource, Params: map[string]any{
				"id":          rec.ID,
				"project_id":  projectID,
				"source_id":   sourceID,
				"batch_id":    batchID,
				"conflict_id": rec.Provenance.ConflictID,
			}})
		}

		if existingID, ok := keptWith[rec.Provenance.ConflictID]; ok && change.Action == models.PoolChangeCreated {
			stmts = append(stmts, Statement{Cypher: linkKeptAlongside, Params: map[string]any{
				"id":          rec.ID,
				"project_id":  projectID,
				"existing_id": existingID,
				"batch_id":    batchID,
				"conflict_id": rec.Provenance.ConflictID,
			}})
		}
	}
	return stmts
}

// ProvenanceWriter writes provenance statements in a single write transaction
type ProvenanceWriter struct {
	client *Client
	logger ectologger.Logger
}

// NewProvenanceWriter creates a new provenance writer
func NewProvenanceWriter(client *Client, logger ectologger.Logger) *ProvenanceWriter {
	return &ProvenanceWriter{
		client: client,
		logger: logger,
	}
}

// Write records the provenance of a set of pool changes
func (w *ProvenanceWriter) Write(ctx context.Context, projectID, batchID string, changes []models.PoolChange, conflicts []models.MergeConflict) error {
	ctx, span := tracing.StartSpan(ctx, "graph.ProvenanceWriter.Write")
	defer span.End()

	stmts := ProvenanceStatements(projectID, batchID, changes, conflicts)
	if len(stmts) == 0 {
		return nil
	}

	_, err := w.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range stmts {
			if _, err := tx.Run(ctx, stmt.Cypher, stmt.Params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		w.logger.WithContext(ctx).WithError(err).Error("Failed to write provenance")
		return fmt.Errorf("failed to write provenance for batch %s: %w", batchID, err)
	}

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   batchID,
		"statements": len(stmts),
	}).Debug("Wrote provenance")
	return nil
}
