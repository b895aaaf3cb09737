package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, "stock_analysis", cfg.Qdrant.Collection)
	assert.Equal(t, 768, cfg.Embedding.VectorSize)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, "台積電", cfg.Securities["2330"])
	assert.Len(t, cfg.Securities, 15)
	assert.Equal(t, DefaultSystemPrompt, cfg.SystemPrompt)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
qdrant:
  host: qdrant.internal
  port: 7001
rag:
  top_k: 3
  score_threshold: 0.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7001, cfg.Qdrant.Port)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, 0.5, cfg.RAG.ScoreThreshold)
	// Untouched sections keep their defaults.
	assert.Equal(t, "stock_analysis", cfg.Qdrant.Collection)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
}

func TestLoadReplacesSecurityUniverse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
securities:
  "1101": 台泥
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// A file that lists securities defines the whole universe; the default
	// list must not leak in alongside it.
	require.Len(t, cfg.Securities, 1)
	assert.Equal(t, "台泥", cfg.Securities["1101"])
	assert.NotContains(t, cfg.Securities, "2330")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qdrant: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"zero top_k", func(c *Config) { c.RAG.TopK = 0 }, "top_k"},
		{"negative threshold", func(c *Config) { c.RAG.ScoreThreshold = -0.1 }, "score_threshold"},
		{"threshold above one", func(c *Config) { c.RAG.ScoreThreshold = 1.5 }, "score_threshold"},
		{"zero vector size", func(c *Config) { c.Embedding.VectorSize = 0 }, "vector_size"},
		{"zero workers", func(c *Config) { c.Sync.Workers = 0 }, "workers"},
		{"zero max attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }, "max_attempts"},
		{"zero fetch rate", func(c *Config) { c.Sync.FetchRatePerSec = 0 }, "fetch_rate_per_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestProviderToken(t *testing.T) {
	cfg := Default()
	cfg.Provider.TokenEnv = "TEST_FINMIND_TOKEN"

	t.Setenv("TEST_FINMIND_TOKEN", "abc123")
	assert.Equal(t, "abc123", cfg.ProviderToken())

	cfg.Provider.TokenEnv = ""
	assert.Equal(t, "", cfg.ProviderToken())
}
