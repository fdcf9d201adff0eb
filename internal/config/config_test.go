package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meos/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATA_PATH", "VECTOR_DB_PATH", "MODEL", "EMBEDDING_MODEL", "MEOS_TOP_K"} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./data", cfg.DataRoot)
	assert.Equal(t, domain.DefaultCategories(), cfg.Categories)
	assert.Equal(t, ".md", cfg.Extension)
	assert.Equal(t, VectorStoreConfig{Type: "gob", Path: "./data/vectorstore/index.gob"}, cfg.VectorStore)
	assert.Equal(t, ChunkerConfig{ChunkSize: 500, ChunkOverlap: 100}, cfg.Chunker)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, 60*time.Second, cfg.Retrieval.CallTimeout)
	assert.False(t, cfg.Retrieval.RebuildOnChange)
	assert.Equal(t, "ollama", cfg.Embedder.Type)
	assert.Equal(t, "all-minilm", cfg.Embedder.Model)
	assert.Equal(t, "mistral", cfg.Generator.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Generator.BaseURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_PartialFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "meos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_root: /notes
vector_store:
  type: sqlite
chunker:
  chunk_size: 300
  chunk_overlap: 0
retrieval:
  top_k: 6
  call_timeout: 15s
  rebuild_on_change: true
embedder:
  type: openai
generator:
  model: llama3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/notes", cfg.DataRoot)
	assert.Equal(t, "./data/vectorstore/index.db", cfg.VectorStore.Path)
	assert.Equal(t, ChunkerConfig{ChunkSize: 300, ChunkOverlap: 0}, cfg.Chunker)
	assert.Equal(t, RetrievalConfig{TopK: 6, CallTimeout: 15 * time.Second, RebuildOnChange: true}, cfg.Retrieval)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.APIKeyEnv)
	assert.Equal(t, "llama3", cfg.Generator.Model)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitZeros(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "meos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunker:
  chunk_overlap: 0
retrieval:
  call_timeout: 0s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ChunkerConfig{ChunkSize: 500, ChunkOverlap: 0}, cfg.Chunker)
	assert.Zero(t, cfg.Retrieval.CallTimeout)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_UnsetKeepsDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "meos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_root: /notes
chunker:
  chunk_size: 300
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ChunkerConfig{ChunkSize: 300, ChunkOverlap: 0}, cfg.Chunker)
	assert.Equal(t, 60*time.Second, cfg.Retrieval.CallTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meos.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_PATH", "/srv/life")
	t.Setenv("VECTOR_DB_PATH", "/var/lib/meos/index.sqlite")
	t.Setenv("MODEL", "phi3")
	t.Setenv("EMBEDDING_MODEL", "nomic-embed-text")
	t.Setenv("MEOS_TOP_K", "8")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/srv/life", cfg.DataRoot)
	assert.Equal(t, VectorStoreConfig{Type: "sqlite", Path: "/var/lib/meos/index.sqlite"}, cfg.VectorStore)
	assert.Equal(t, "phi3", cfg.Generator.Model)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
	assert.Zero(t, cfg.Embedder.Dimension)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
}

func TestLoad_BadTopKEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEOS_TOP_K", "many")

	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"overlap equals size", func(c *AppConfig) { c.Chunker.ChunkOverlap = c.Chunker.ChunkSize }, "chunk_overlap"},
		{"negative overlap", func(c *AppConfig) { c.Chunker.ChunkOverlap = -1 }, "chunk_overlap"},
		{"zero chunk size", func(c *AppConfig) { c.Chunker.ChunkSize = 0; c.Chunker.ChunkOverlap = 0 }, "chunk_size"},
		{"top k", func(c *AppConfig) { c.Retrieval.TopK = -2 }, "top_k"},
		{"store type", func(c *AppConfig) { c.VectorStore.Type = "faiss" }, "vector_store.type"},
		{"embedder type", func(c *AppConfig) { c.Embedder.Type = "minilm" }, "embedder.type"},
		{"generator model", func(c *AppConfig) { c.Generator.Model = "" }, "generator.model"},
		{"timeout", func(c *AppConfig) { c.Retrieval.CallTimeout = -time.Second }, "call_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Retrieval.RebuildOnChange = true
	cfg.Embedder.Type = "hashing"
	cfg.Embedder.Dimension = 128

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
