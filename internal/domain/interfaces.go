package domain

import "context"

// Embedder maps text to a fixed-dimension vector. Implementations must be
// deterministic for a given model: same text, same vector.
type Embedder interface {
	// Name returns the model identifier recorded alongside a persisted index.
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a natural-language answer from a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer condenses text to a handful of representative sentences.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
