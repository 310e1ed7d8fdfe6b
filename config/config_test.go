package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, OverrideSourcePostgres, cfg.OverrideSource)
	assert.Equal(t, ProviderOpenAI, cfg.DocumentsLLM.Provider)
	assert.Equal(t, 90*time.Second, cfg.ConditionsLLM.Timeout)
	assert.InDelta(t, 0.5, cfg.SuggestLLM.RequestsPerSecond, 1e-9)
	assert.InDelta(t, 2, cfg.DocumentsLLM.RequestsPerSecond, 1e-9)
	assert.InDelta(t, 0.3, cfg.Orchestrator.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 15, cfg.Orchestrator.RetrievalLimit)
	assert.Equal(t, 5*time.Second, cfg.Suggest.Cooldown)
	assert.Equal(t, 3, cfg.Suggest.Count)
	assert.Equal(t, 10, cfg.PostgresMaxConns)
	assert.Equal(t, 50, cfg.Neo4jMaxConns)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestEmbeddingDefaultsFollowProvider(t *testing.T) {
	cfg := Config{Embeddings: EmbeddingConfig{Provider: ProviderOllama}}
	ApplyDefaults(&cfg)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 768, cfg.Embeddings.Dimension)

	cfg = Config{}
	ApplyDefaults(&cfg)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, 1536, cfg.Embeddings.Dimension)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
listen_addr: ":9000"
override_source: neo4j
documents_llm:
  provider: ollama
  timeout: 30s
orchestrator:
  always_both: true
  confidence_threshold: 0.4
suggest:
  cooldown: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("LISTEN_ADDR", ":9100")
	t.Setenv("CONDITIONS_API_KEY", "sk-conditions")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, OverrideSourceNeo4j, cfg.OverrideSource)
	assert.Equal(t, ProviderOllama, cfg.DocumentsLLM.Provider)
	assert.Equal(t, "llama3.1:8b", cfg.DocumentsLLM.Model)
	assert.Equal(t, 30*time.Second, cfg.DocumentsLLM.Timeout)
	assert.Equal(t, "sk-conditions", cfg.ConditionsLLM.APIKey)
	assert.True(t, cfg.Orchestrator.AlwaysBoth)
	assert.InDelta(t, 0.4, cfg.Orchestrator.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Suggest.Cooldown)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [unclosed"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestMalformedEnvironmentKeepsFallback(t *testing.T) {
	t.Setenv("RETRIEVAL_LIMIT", "many")
	t.Setenv("SUGGEST_COOLDOWN", "soon")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Orchestrator.RetrievalLimit)
	assert.Equal(t, 5*time.Second, cfg.Suggest.Cooldown)
}
