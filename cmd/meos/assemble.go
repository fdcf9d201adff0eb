package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"meos/internal/chunker"
	"meos/internal/config"
	"meos/internal/domain"
	"meos/internal/embedding/hashing"
	"meos/internal/embedding/ollama"
	"meos/internal/embedding/openai"
	"meos/internal/loader"
	"meos/internal/persistence/gobfile"
	"meos/internal/persistence/sqlite"
	"meos/internal/service"
	"meos/internal/summarizer"
	"meos/internal/vectorstore"

	genopenai "meos/internal/generation/openai"
)

type app struct {
	cfg *config.AppConfig
	svc service.Service
	log *zap.Logger
}

func setup(cmd *cli.Command) (*app, error) {
	_ = godotenv.Load()

	log, err := newLogger(cmd.Bool("json-logs"), cmd.Bool("verbose"))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	svc, err := newService(cfg)
	if err != nil {
		return nil, err
	}

	svc = service.LoggingMiddleware(log)(svc)

	return &app{cfg: cfg, svc: svc, log: log}, nil
}

func newLogger(jsonLogs, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if jsonLogs {
		cfg = zap.NewProductionConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func loadConfig(cmd *cli.Command) (*config.AppConfig, error) {
	var (
		cfg  *config.AppConfig
		path = cmd.String("config")
		err  error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if v := cmd.String("data"); v != "" {
		cfg.DataRoot = v
	}
	if v := cmd.String("store"); v != "" {
		cfg.VectorStore.Path = v
	}
	if k := cmd.Int("top-k"); k != 0 {
		cfg.Retrieval.TopK = int(k)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	zap.L().Debug("config loaded", zap.String("path", path), zap.String("data_root", cfg.DataRoot))
	return cfg, nil
}

func newService(cfg *config.AppConfig) (service.Service, error) {
	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("embedder init failed: %w", err)
	}

	gen, err := newGenerator(cfg.Generator)
	if err != nil {
		return nil, fmt.Errorf("generator init failed: %w", err)
	}

	ch, err := chunker.NewRecursiveChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		sum = summarizer.NewFrequencySummarizer()
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	src := loader.NewDir(cfg.DataRoot, cfg.Categories, cfg.Extension)

	return service.NewService(service.Config{
		TopK:            cfg.Retrieval.TopK,
		CallTimeout:     cfg.Retrieval.CallTimeout,
		RebuildOnChange: cfg.Retrieval.RebuildOnChange,
	}, src, ch, emb, gen, newStore(cfg.VectorStore), sum), nil
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "ollama", "":
		return ollama.NewEmbedder(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Dimension:   cfg.Dimension,
			Concurrency: cfg.Concurrency,
		})
	case "openai":
		return openai.NewClient(openai.Config{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Dimension:   cfg.Dimension,
			BatchSize:   cfg.BatchSize,
			Concurrency: cfg.Concurrency,
		})
	case "hashing":
		return hashing.NewEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "openai", "":
		return genopenai.NewClient(genopenai.Config{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

func newStore(cfg config.VectorStoreConfig) vectorstore.Store {
	switch cfg.Type {
	case "sqlite":
		return sqlite.New(cfg.Path)
	default:
		return gobfile.New(cfg.Path)
	}
}
