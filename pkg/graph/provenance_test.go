package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestProvenanceStatements(t *testing.T) {
	changes := []models.PoolChange{
		{Action: models.PoolChangeUpdated, RecordID: "e1", Record: models.Record{
			ID: "e1", Title: "Login", Version: 2,
			Provenance: models.Provenance{SourceIDs: []string{"in-1", "in-2"}},
		}},
		{Action: models.PoolChangeCreated, RecordID: "k1", Record: models.Record{
			ID: "k1", Title: "Login again", Version: 1,
			Provenance: models.Provenance{SourceIDs: []string{"in-3"}, ConflictID: "c1"},
		}},
		{Action: models.PoolChangeCreated, RecordID: "n1", Record: models.Record{ID: "n1", Title: "Fresh", Version: 1}},
	}
	conflicts := []models.MergeConflict{
		{ID: "c1", Existing: models.Record{ID: "e9"}, Status: models.ConflictStatusKeptBoth},
		{ID: "c2", Existing: models.Record{ID: "e8"}, Status: models.ConflictStatusPending},
	}

	stmts := ProvenanceStatements("p1", "b1", changes, conflicts)
	require.Len(t, stmts, 7)

	t.Run("merged record links every source", func(t *testing.T) {
		assert.Equal(t, upsertTestCase, stmts[0].Cypher)
		assert.Equal(t, int64(2), stmts[0].Params["version"])
		assert.Equal(t, linkSource, stmts[1].Cypher)
		assert.Equal(t, "in-1", stmts[1].Params["source_id"])
		assert.Equal(t, "in-2", stmts[2].Params["source_id"])
		assert.Equal(t, "b1", stmts[2].Params["batch_id"])
	})

	t.Run("kept record links the existing one", func(t *testing.T) {
		assert.Equal(t, upsertTestCase, stmts[3].Cypher)
		assert.Equal(t, linkSource, stmts[4].Cypher)
		assert.Equal(t, linkKeptAlongside, stmts[5].Cypher)
		assert.Equal(t, "e9", stmts[5].Params["existing_id"])
		assert.Equal(t, "c1", stmts[5].Params["conflict_id"])
	})

	t.Run("new record without sources is a bare node", func(t *testing.T) {
		assert.Equal(t, upsertTestCase, stmts[6].Cypher)
		assert.Equal(t, "n1", stmts[6].Params["id"])
	})

	for _, s := range stmts {
		assert.Equal(t, "p1", s.Params["project_id"])
	}
}

func TestProvenanceStatements_Empty(t *testing.T) {
	assert.Empty(t, ProvenanceStatements("p1", "b1", nil, nil))
}
