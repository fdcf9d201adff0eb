package embedding

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"meos/internal/domain"
)

// Func embeds a single text.
type Func func(ctx context.Context, text string) ([]float32, error)

// FanOut embeds texts with at most limit calls in flight and returns the
// vectors in input order. The first failure cancels the remaining calls.
func FanOut(ctx context.Context, texts []string, limit int, embed Func) ([][]float32, error) {
	if limit <= 0 {
		limit = 1
	}

	out := make([][]float32, len(texts))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}

			mu.Lock()
			out[i] = vec
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckDimensions verifies that every vector has length dim and only finite
// components. Non-finite vectors are reported as domain.ErrProvider.
func CheckDimensions(op string, vectors [][]float32, dim int) error {
	for _, v := range vectors {
		if err := CheckVector(op, v, dim); err != nil {
			return err
		}
	}
	return nil
}

// CheckVector is CheckDimensions for a single vector.
func CheckVector(op string, v []float32, dim int) error {
	if len(v) != dim {
		return domain.DimensionError(op, dim, len(v))
	}
	if err := domain.VectorError(op, v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}
	return nil
}
