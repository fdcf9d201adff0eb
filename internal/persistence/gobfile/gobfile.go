package gobfile

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"meos/internal/domain"
	"meos/internal/persistence"
	"meos/internal/vectorstore"
)

var _ vectorstore.Store = (*Store)(nil)

// Store keeps the snapshot in a single gob-encoded file.
type Store struct {
	path string
}

func New(path string) *Store { return &Store{path: path} }

func (s *Store) Path() string { return s.path }

func (s *Store) Save(ctx context.Context, snap *vectorstore.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := persistence.ReplaceFile(s.path, func(tmp string) error {
		f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}

		w := bufio.NewWriter(f)
		if err := gob.NewEncoder(w).Encode(snap); err != nil {
			f.Close()
			return fmt.Errorf("failed to encode index: %w", err)
		}
		if err := w.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return domain.WrapError("gobfile.save", fmt.Errorf("%w: %w", domain.ErrIO, err))
	}
	return nil
}

// Load returns (nil, nil) if the file does not exist.
func (s *Store) Load(ctx context.Context) (*vectorstore.Snapshot, error) {
	const op = "gobfile.load"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(op, fmt.Errorf("%w: %w", domain.ErrIO, err))
	}
	defer f.Close()

	var snap vectorstore.Snapshot
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&snap); err != nil {
		return nil, domain.WrapError(op, fmt.Errorf("%w: %s: %w", domain.ErrCorruptIndex, s.path, err))
	}
	return &snap, nil
}
