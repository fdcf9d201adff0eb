package memory

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"meos/internal/domain"
)

// Index is an in-memory vector index using brute-force cosine similarity.
// It is immutable once built, so concurrent searches need no locking.
type Index struct {
	dimension int
	entries   []domain.IndexEntry
	norms     []float64
}

// Build validates entries and returns an index over them. Every vector must
// have length dimension and finite components, and chunk ids must be unique.
// The entries are copied.
func Build(dimension int, entries []domain.IndexEntry) (*Index, error) {
	const op = "memory.build"

	if dimension <= 0 {
		return nil, domain.WrapError(op, fmt.Errorf("%w: invalid dimension %d", domain.ErrDimensionMismatch, dimension))
	}

	seen := make(map[domain.ChunkID]struct{}, len(entries))
	norms := make([]float64, len(entries))

	for i, e := range entries {
		if len(e.Vector) != dimension {
			return nil, domain.DimensionError(fmt.Sprintf("%s: entry %s", op, e.Chunk.ID), dimension, len(e.Vector))
		}
		if err := domain.VectorError(fmt.Sprintf("%s: entry %s", op, e.Chunk.ID), e.Vector); err != nil {
			return nil, err
		}
		if _, dup := seen[e.Chunk.ID]; dup {
			return nil, domain.WrapError(op, fmt.Errorf("%w: %s", domain.ErrDuplicateChunk, e.Chunk.ID))
		}
		seen[e.Chunk.ID] = struct{}{}
		norms[i] = norm(e.Vector)
	}

	return &Index{
		dimension: dimension,
		entries:   slices.Clone(entries),
		norms:     norms,
	}, nil
}

func (ix *Index) Dimension() int { return ix.dimension }

func (ix *Index) Len() int { return len(ix.entries) }

// Entries returns a copy of the entries in build order.
func (ix *Index) Entries() []domain.IndexEntry {
	return slices.Clone(ix.entries)
}

// Search returns the topK entries most similar to query, highest score
// first, ties broken by ascending chunk id.
func (ix *Index) Search(query []float32, topK int) ([]domain.SearchResult, error) {
	if len(query) != ix.dimension {
		return nil, domain.DimensionError("memory.search", ix.dimension, len(query))
	}
	if err := domain.VectorError("memory.search", query); err != nil {
		return nil, err
	}
	if topK <= 0 || len(ix.entries) == 0 {
		return []domain.SearchResult{}, nil
	}

	qn := norm(query)

	results := make([]domain.SearchResult, len(ix.entries))
	for i, e := range ix.entries {
		results[i] = domain.SearchResult{
			Chunk: e.Chunk,
			Score: cosine(query, e.Vector, qn, ix.norms[i]),
		}
	}

	slices.SortFunc(results, func(a, b domain.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return a.Chunk.ID.Compare(b.Chunk.ID)
	})

	return results[:min(topK, len(results))], nil
}

// cosine is defined as 0 when either vector is zero.
func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}

	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	s := dot / (na * nb)
	// clamp rounding drift
	return max(-1, min(1, s))
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
