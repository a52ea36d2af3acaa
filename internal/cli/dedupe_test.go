package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
)

const loginJSON = `{
	"testCase": "Login with valid credentials",
	"module": "Authentication",
	"steps": [
		{"step": "Open the login page"},
		{"step": "Enter a valid username and password"},
		{"step": "Press the sign in button", "expectedResult": "The dashboard is shown"}
	],
	"labels": ["auth", "smoke"]
}`

const reportJSON = `{
	"title": "Export monthly report as PDF",
	"category": "Reporting",
	"steps": ["Open reports", "Click export"],
	"tags": ["regression"]
}`

const poolYAML = `records:
  - id: tc-1
    title: Login with valid credentials
    category: Authentication
    version: 3
    steps:
      - description: Open the login page
      - description: Enter a valid username and password
      - description: Press the sign in button
        expected: The dashboard is shown
    tags: [auth, smoke]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func dedupeRun(t *testing.T, opts *DedupeOptions) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := runDedupe(context.Background(), dedupe.DefaultConfig(), opts, &out, logging.Nop())
	return out.String(), err
}

func TestDedupe(t *testing.T) {
	t.Run("exact duplicate against the pool", func(t *testing.T) {
		opts := &DedupeOptions{
			BatchPath: writeFile(t, "batch.json", "["+loginJSON+","+reportJSON+"]"),
			PoolPath:  writeFile(t, "pool.yaml", poolYAML),
			Mode:      "smart",
			Output:    "json",
			ProjectID: "proj-1",
		}

		out, err := dedupeRun(t, opts)
		require.NoError(t, err)

		var run models.BatchRun
		require.NoError(t, json.Unmarshal([]byte(out), &run))
		assert.Equal(t, "proj-1", run.ProjectID)
		assert.Equal(t, models.ModeSmart, run.Mode)
		assert.Equal(t, 1, run.Result.ExactDuplicateCount)
		assert.Equal(t, 1, run.Result.SavedCount)
		require.Len(t, run.Pool, 2)
		assert.Equal(t, "tc-1", run.Pool[0].ID)
		assert.Equal(t, 3, run.Pool[0].Version)
		assert.Equal(t, "Export monthly report as PDF", run.Pool[1].Title)
		assert.NotEmpty(t, run.Pool[1].ID)
	})

	t.Run("category change is listed for review", func(t *testing.T) {
		changed := `[{"title": "Login with valid credentials", "category": "Auth",
			"steps": [{"description": "Open the login page"}, {"description": "Enter a valid username and password"},
				{"description": "Press the sign in button", "expected": "The dashboard is shown"}],
			"tags": ["auth", "smoke"]}]`
		opts := &DedupeOptions{
			BatchPath: writeFile(t, "batch.json", changed),
			PoolPath:  writeFile(t, "pool.yml", poolYAML),
			Mode:      "smart",
			Output:    "table",
		}

		out, err := dedupeRun(t, opts)
		require.NoError(t, err)
		assert.Contains(t, out, "review required")
		assert.Contains(t, out, "Pending review")
		assert.Contains(t, out, "0.900")
	})

	t.Run("strict mode without a pool", func(t *testing.T) {
		opts := &DedupeOptions{
			BatchPath: writeFile(t, "batch.json", `{"records": [`+loginJSON+`,`+reportJSON+`]}`),
			Mode:      "strict",
			Output:    "yaml",
		}

		out, err := dedupeRun(t, opts)
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
		result, ok := doc["result"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 2, result["saved_count"])
		assert.Equal(t, "strict", doc["mode"])
	})

	t.Run("records without a title are reported", func(t *testing.T) {
		opts := &DedupeOptions{
			BatchPath: writeFile(t, "batch.json", `[{"category": "Reporting"}, `+reportJSON+`]`),
			Mode:      "smart",
			Output:    "table",
		}

		out, err := dedupeRun(t, opts)
		require.NoError(t, err)
		assert.Contains(t, out, "Rejected records")
	})
}

func TestDedupe_Errors(t *testing.T) {
	batch := writeFile(t, "batch.json", "["+reportJSON+"]")

	tests := []struct {
		name string
		opts *DedupeOptions
	}{
		{"invalid output", &DedupeOptions{BatchPath: batch, Output: "xml"}},
		{"invalid mode", &DedupeOptions{BatchPath: batch, Mode: "fuzzy", Output: "table"}},
		{"missing batch file", &DedupeOptions{BatchPath: filepath.Join(t.TempDir(), "nope.json"), Output: "table"}},
		{"batch is not a list", &DedupeOptions{BatchPath: writeFile(t, "obj.json", `{"title": "x"}`), Output: "table"}},
		{"record is not an object", &DedupeOptions{BatchPath: writeFile(t, "bad.json", `["x"]`), Output: "table"}},
		{"malformed yaml", &DedupeOptions{BatchPath: writeFile(t, "bad.yaml", "records: [\n"), Output: "table"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dedupeRun(t, tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestRootCommand(t *testing.T) {
	t.Run("dedupe requires a batch", func(t *testing.T) {
		cmd := NewRootCommand("test")
		cmd.SetArgs([]string{"dedupe"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})

		err := cmd.ExecuteContext(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch")
	})

	t.Run("registers commands", func(t *testing.T) {
		cmd := NewRootCommand("test")
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		assert.Contains(t, names, "serve")
		assert.Contains(t, names, "dedupe")
	})
}
