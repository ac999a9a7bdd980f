package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.DocStore.Backend)
	assert.Equal(t, 10000, cfg.Indexer.MemtableCapacity)
	assert.Equal(t, 2, cfg.Indexer.MergeWidth)
	assert.Equal(t, "catalog.db", cfg.Indexer.CatalogFile)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
indexer:
  dataDir: /tmp/idx
  memtableCapacity: 2
  compactionThreshold: 3
  compactionInterval: 5s
  mergeWidth: 3
docstore:
  backend: redis
logging:
  level: debug
  format: text
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("IS_INDEXER_MEMTABLE_CAPACITY", "64")
	t.Setenv("IS_LOGGING_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/idx", cfg.Indexer.DataDir)
	assert.Equal(t, 64, cfg.Indexer.MemtableCapacity)
	assert.Equal(t, 3, cfg.Indexer.CompactionThreshold)
	assert.Equal(t, 5*time.Second, cfg.Indexer.CompactionInterval)
	assert.Equal(t, 3, cfg.Indexer.MergeWidth)
	assert.Equal(t, BackendRedis, cfg.DocStore.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	// untouched sections keep defaults
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.Indexer.MemtableCapacity = 0 }},
		{"merge width one", func(c *Config) { c.Indexer.MergeWidth = 1 }},
		{"zero threshold", func(c *Config) { c.Indexer.CompactionThreshold = 0 }},
		{"empty data dir", func(c *Config) { c.Indexer.DataDir = "" }},
		{"negative grace", func(c *Config) { c.Indexer.DeleteGracePeriod = -time.Second }},
		{"unknown backend", func(c *Config) { c.DocStore.Backend = "sqlite" }},
		{"kafka without topic", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.IngestTopic = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
