package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"meos/internal/domain"
	"meos/internal/vectorstore/memory"
)

// FormatVersion is written into every persisted snapshot.
const FormatVersion = 1

// Snapshot is the persisted form of a vector index.
type Snapshot struct {
	Version   int
	Dimension int
	Model     string            // embedder name the vectors were produced with
	BuiltAt   time.Time
	Sources   map[string]string // document id -> content fingerprint
	Entries   []domain.IndexEntry
}

// Store persists snapshots. Load returns (nil, nil) when nothing has been
// saved yet. Save must replace the previous snapshot atomically.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Path() string
}

// NewSnapshot captures an index for persistence.
func NewSnapshot(ix *memory.Index, model string, sources map[string]string) *Snapshot {
	return &Snapshot{
		Version:   FormatVersion,
		Dimension: ix.Dimension(),
		Model:     model,
		BuiltAt:   time.Now().UTC(),
		Sources:   sources,
		Entries:   ix.Entries(),
	}
}

// Check verifies the structure of a decoded snapshot. Failures wrap
// domain.ErrCorruptIndex.
func (s *Snapshot) Check() error {
	corrupt := func(format string, args ...any) error {
		return domain.WrapError("snapshot.check", fmt.Errorf("%w: "+format, append([]any{domain.ErrCorruptIndex}, args...)...))
	}

	if s.Version != FormatVersion {
		return corrupt("unsupported format version %d", s.Version)
	}
	if s.Dimension <= 0 {
		return corrupt("invalid dimension %d", s.Dimension)
	}

	for i, e := range s.Entries {
		if len(e.Vector) != s.Dimension {
			return corrupt("entry %d (%s) has %d components, want %d", i, e.Chunk.ID, len(e.Vector), s.Dimension)
		}
		if err := domain.VectorError(e.Chunk.ID.String(), e.Vector); err != nil {
			return corrupt("entry %d: %w", i, err)
		}
		if e.Chunk.ID.DocumentID == "" || e.Chunk.ID.Seq < 0 {
			return corrupt("entry %d has invalid chunk id %q", i, e.Chunk.ID)
		}
		if e.Chunk.Start < 0 || e.Chunk.End < e.Chunk.Start {
			return corrupt("entry %d (%s) has invalid offsets [%d,%d)", i, e.Chunk.ID, e.Chunk.Start, e.Chunk.End)
		}
	}
	return nil
}

// Open loads the snapshot from store and rebuilds the in-memory index.
// It returns (nil, nil, nil) when the store is absent. A snapshot built with
// another dimension or embedding model fails with domain.ErrConfigMismatch;
// vectors are never padded or truncated.
func Open(ctx context.Context, store Store, dimension int, model string) (*memory.Index, *Snapshot, error) {
	const op = "vectorstore.open"

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, nil, domain.WrapError(op, err)
	}
	if snap == nil {
		return nil, nil, nil
	}

	if err := snap.Check(); err != nil {
		return nil, nil, domain.WrapError(op, err)
	}

	if snap.Dimension != dimension {
		return nil, nil, domain.WrapError(op, fmt.Errorf("%w: %s has dimension %d, embedder produces %d",
			domain.ErrConfigMismatch, store.Path(), snap.Dimension, dimension))
	}
	if model != "" && snap.Model != "" && snap.Model != model {
		return nil, nil, domain.WrapError(op, fmt.Errorf("%w: %s was built with %q, embedder is %q",
			domain.ErrConfigMismatch, store.Path(), snap.Model, model))
	}

	ix, err := memory.Build(snap.Dimension, snap.Entries)
	if err != nil {
		// duplicate ids or bad vectors in a persisted store
		return nil, nil, domain.WrapError(op, fmt.Errorf("%w: %w", domain.ErrCorruptIndex, err))
	}
	return ix, snap, nil
}

// Stale reports the document ids whose fingerprint differs between the
// snapshot and current, including added and removed documents, sorted.
func (s *Snapshot) Stale(current map[string]string) []string {
	var out []string
	for id, h := range current {
		if s.Sources[id] != h {
			out = append(out, id)
		}
	}
	for id := range s.Sources {
		if _, ok := current[id]; !ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
