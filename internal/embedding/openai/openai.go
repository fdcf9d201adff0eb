package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"meos/internal/domain"
	"meos/internal/embedding"
)

var _ domain.Embedder = (*Client)(nil)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Dimension   int
	BatchSize   int
	Concurrency int
}

// Client embeds texts through an OpenAI-compatible /embeddings endpoint.
type Client struct {
	client      *openai.Client
	model       string
	dimension   int
	request     int // dimensions sent with each request, 0 to omit
	batchSize   int
	concurrency int
}

var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// NewClient creates a new embeddings client using the provided configuration.
// A missing API key is only accepted for a custom base URL (local servers).
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}

	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	c := &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
	}

	known, ok := knownDimensions[cfg.Model]
	switch {
	case cfg.Dimension > 0:
		c.dimension = cfg.Dimension
		if ok && cfg.Dimension != known && strings.HasPrefix(cfg.Model, "text-embedding-3") {
			c.request = cfg.Dimension
		}
	case ok:
		c.dimension = known
	default:
		return nil, fmt.Errorf("embedding dimension must be configured for model %q", cfg.Model)
	}

	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in batches of BatchSize, several batches at a time.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var batches [][]string
	for i := 0; i < len(texts); i += c.batchSize {
		batches = append(batches, texts[i:min(i+c.batchSize, len(texts))])
	}

	results := make([][][]float32, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			vecs, err := c.embed(ctx, batch)
			if err != nil {
				return err
			}
			results[i] = vecs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for _, vecs := range results {
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.model),
		Input:      texts,
		Dimensions: c.request,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai embeddings failed (%d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}

	if err := embedding.CheckDimensions("openai.embed", out, c.dimension); err != nil {
		return nil, err
	}
	return out, nil
}
