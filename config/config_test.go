package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.97, cfg.Dedupe.Thresholds.AutoMerge)
	assert.Equal(t, 0.88, cfg.Dedupe.Thresholds.Review)
	assert.Equal(t, "smart", cfg.Import.DefaultMode)
	assert.Equal(t, 24*time.Hour, cfg.Import.StagingTTL())
	assert.Equal(t, "host=localhost port=5432 user= password= dbname=clover sslmode=disable", cfg.Database.DSN())
}

func TestLoad(t *testing.T) {
	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "clover.toml")
		content := `
port = 8080

[database]
host = "db.internal"

[dedupe.thresholds]
exact = 1.0
auto_merge = 0.99
review = 0.9
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, "5432", cfg.Database.Port)
		assert.Equal(t, 0.99, cfg.Dedupe.Thresholds.AutoMerge)
		assert.Equal(t, 0.5, cfg.Dedupe.Weights.Title)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "clover.toml")
		require.NoError(t, os.WriteFile(path, []byte("port = 8080\n\n[redis]\nhost = \"cache.internal\"\n"), 0o600))
		t.Setenv("CLOVER_PORT", "9090")
		t.Setenv("CLOVER_KAFKA_BROKERS", "k1:9092,k2:9092")
		t.Setenv("CLOVER_GRAPH_ENABLED", "true")
		t.Setenv("CLOVER_DEDUPE_AUTO_MERGE_THRESHOLD", "0.98")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Port)
		assert.Equal(t, "cache.internal", cfg.Redis.Host)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		assert.True(t, cfg.Graph.Enabled)
		assert.Equal(t, 0.98, cfg.Dedupe.Thresholds.AutoMerge)
	})

	t.Run("unset variables keep file and default values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "clover.toml")
		require.NoError(t, os.WriteFile(path, []byte("[import]\nmax_batch_size = 42\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 42, cfg.Import.MaxBatchSize)
		assert.Equal(t, 3004, cfg.Port)
		assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("malformed environment value", func(t *testing.T) {
		t.Setenv("CLOVER_PORT", "eighty")
		_, err := Load("")
		assert.ErrorContains(t, err, "failed to bind environment")
		assert.ErrorContains(t, err, "eighty")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		assert.Error(t, err)
	})

	t.Run("invalid thresholds", func(t *testing.T) {
		t.Setenv("CLOVER_DEDUPE_REVIEW_THRESHOLD", "0.99")
		_, err := Load("")
		assert.ErrorContains(t, err, "dedupe")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"unknown default mode", func(c *Config) { c.Import.DefaultMode = "fuzzy" }},
		{"empty batch limit", func(c *Config) { c.Import.MaxBatchSize = 0 }},
		{"no staging ttl", func(c *Config) { c.Import.StagingTTLSeconds = 0 }},
		{"sample ratio out of range", func(c *Config) { c.Tracing.SampleRatio = 2 }},
		{"weights off", func(c *Config) { c.Dedupe.Weights.Tags = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTracingOptions(t *testing.T) {
	cfg := Default()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Protocol = "http"

	opts := cfg.TracingOptions()
	assert.True(t, opts.Enabled)
	assert.Equal(t, "clover-api", opts.ServiceName)
	assert.Equal(t, "http", opts.Exporter.Protocol)
	assert.Equal(t, 10*time.Second, opts.Exporter.Timeout)
}
