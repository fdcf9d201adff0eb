package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"meos/internal/domain"
)

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string `yaml:"type"` // ollama, openai or hashing
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Dimension   int    `yaml:"dimension"`
	Concurrency int    `yaml:"concurrency"`
	BatchSize   int    `yaml:"batch_size"`
}

// GeneratorConfig configures the OpenAI-compatible chat model.
type GeneratorConfig struct {
	Type        string  `yaml:"type"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float32 `yaml:"temperature"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects where the index is persisted.
type VectorStoreConfig struct {
	Type string `yaml:"type"` // gob or sqlite
	Path string `yaml:"path"`
}

// RetrievalConfig configures query-time behavior.
type RetrievalConfig struct {
	TopK            int           `yaml:"top_k"`
	CallTimeout     time.Duration `yaml:"call_timeout"` // 0 disables the per-call timeout
	RebuildOnChange bool          `yaml:"rebuild_on_change"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataRoot    string            `yaml:"data_root"`
	Categories  []domain.Category `yaml:"categories"`
	Extension   string            `yaml:"extension"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			return cfg, applyEnv(cfg)
		}
		return nil, err
	}

	cfg := unsetConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, applyEnv(cfg)
}

// LoadDefault tries ./meos.yaml first, then ~/.config/meos/config.yaml.
// If neither exists it returns the defaults without writing anything.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "meos.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	return cfg, "", applyEnv(cfg)
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can run with.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.DataRoot == "" {
		errs = append(errs, errors.New("data_root must be set"))
	}
	if c.Chunker.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize))
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.chunk_overlap must be in [0, chunk_size), got %d", c.Chunker.ChunkOverlap))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.CallTimeout < 0 {
		errs = append(errs, errors.New("retrieval.call_timeout must not be negative"))
	}
	switch c.VectorStore.Type {
	case "gob", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown vector_store.type %q", c.VectorStore.Type))
	}
	if c.VectorStore.Path == "" {
		errs = append(errs, errors.New("vector_store.path must be set"))
	}
	switch c.Embedder.Type {
	case "ollama", "openai", "hashing":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder.type %q", c.Embedder.Type))
	}
	if c.Embedder.Dimension < 0 {
		errs = append(errs, errors.New("embedder.dimension must not be negative"))
	}
	if c.Generator.Type != "openai" {
		errs = append(errs, fmt.Errorf("unknown generator.type %q", c.Generator.Type))
	}
	if c.Generator.Model == "" {
		errs = append(errs, errors.New("generator.model must be set"))
	}
	if c.Summarizer.Type != "frequency" {
		errs = append(errs, fmt.Errorf("unknown summarizer.type %q", c.Summarizer.Type))
	}

	return errors.Join(errs...)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "meos", "config.yaml"), nil
}

// Default returns the built-in configuration: local Ollama models and a gob
// index under ./data.
func Default() *AppConfig {
	cfg := unsetConfig()
	applyConfigDefaults(cfg)
	return cfg
}

// unsetOverlap marks a chunk_overlap the file did not mention.
const unsetOverlap = math.MinInt

// unsetConfig is the value a config file is decoded into. Settings where an
// explicit zero is meaningful start at their default or a marker, so the
// decoder overwrites them only when the key is present.
func unsetConfig() *AppConfig {
	return &AppConfig{
		Chunker:   ChunkerConfig{ChunkOverlap: unsetOverlap},
		Retrieval: RetrievalConfig{CallTimeout: 60 * time.Second},
	}
}

// applyConfigDefaults fills every setting a partial file leaves empty.
// Embedder defaults depend on the selected type.
func applyConfigDefaults(cfg *AppConfig) {
	if cfg.DataRoot == "" {
		cfg.DataRoot = "./data"
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = domain.DefaultCategories()
	}
	if cfg.Extension == "" {
		cfg.Extension = ".md"
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "gob"
	}
	if cfg.VectorStore.Path == "" {
		if cfg.VectorStore.Type == "sqlite" {
			cfg.VectorStore.Path = "./data/vectorstore/index.db"
		} else {
			cfg.VectorStore.Path = "./data/vectorstore/index.gob"
		}
	}

	if cfg.Chunker.ChunkOverlap == unsetOverlap {
		cfg.Chunker.ChunkOverlap = 0
		if cfg.Chunker.ChunkSize == 0 {
			cfg.Chunker.ChunkOverlap = 100
		}
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "ollama"
	}
	switch cfg.Embedder.Type {
	case "ollama":
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "all-minilm"
		}
	case "openai":
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.APIKeyEnv == "" {
			cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 4
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "openai"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "mistral"
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
}

// applyEnv lets the environment (and .env, loaded by the caller) override
// file settings.
func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv("DATA_PATH"); v != "" {
		cfg.DataRoot = v
	}
	if v := os.Getenv("VECTOR_DB_PATH"); v != "" {
		cfg.VectorStore.Path = v
		switch strings.ToLower(filepath.Ext(v)) {
		case ".db", ".sqlite", ".sqlite3":
			cfg.VectorStore.Type = "sqlite"
		}
	}
	if v := os.Getenv("MODEL"); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" && v != cfg.Embedder.Model {
		cfg.Embedder.Model = v
		// dimension is looked up for the new model unless set explicitly
		cfg.Embedder.Dimension = 0
	}
	if v := os.Getenv("MEOS_TOP_K"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEOS_TOP_K: %w", err)
		}
		cfg.Retrieval.TopK = k
	}
	return nil
}
