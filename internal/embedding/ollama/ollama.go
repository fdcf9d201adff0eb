package ollama

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"

	"meos/internal/domain"
	"meos/internal/embedding"
)

var _ domain.Embedder = (*Embedder)(nil)

// DefaultModel is the Ollama build of all-MiniLM-L6-v2.
const DefaultModel = "all-minilm"

var knownDimensions = map[string]int{
	"all-minilm":        384,
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
}

// Config configures the Ollama embedder.
type Config struct {
	BaseURL     string // e.g. http://localhost:11434/api; empty uses the Ollama default
	Model       string
	Dimension   int
	Concurrency int
}

// Embedder calls Ollama's embeddings API one text at a time through
// chromem-go's embedding function.
type Embedder struct {
	embed       chromem.EmbeddingFunc
	model       string
	dimension   int
	concurrency int
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	dim := cfg.Dimension
	if dim <= 0 {
		known, ok := knownDimensions[cfg.Model]
		if !ok {
			return nil, fmt.Errorf("embedding dimension must be configured for model %q", cfg.Model)
		}
		dim = known
	}

	return newEmbedder(chromem.NewEmbeddingFuncOllama(cfg.Model, cfg.BaseURL), cfg.Model, dim, cfg.Concurrency), nil
}

func newEmbedder(fn chromem.EmbeddingFunc, model string, dim, concurrency int) *Embedder {
	return &Embedder{
		embed:       fn,
		model:       model,
		dimension:   dim,
		concurrency: concurrency,
	}
}

func (e *Embedder) Name() string { return "ollama:" + e.model }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings failed: %w", err)
	}

	// chromem normalizes without a zero-norm guard, so a zero embedding
	// arrives here as NaN.
	if err := embedding.CheckVector("ollama.embed", vec, e.dimension); err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedding.FanOut(ctx, texts, e.concurrency, e.Embed)
}
