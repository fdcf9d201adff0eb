package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"meos/internal/domain"
	"meos/internal/persistence"
	"meos/internal/vectorstore"
)

var _ vectorstore.Store = (*Store)(nil)

const schema = `
	CREATE TABLE meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		dimension INTEGER NOT NULL,
		model TEXT NOT NULL,
		built_at INTEGER NOT NULL
	);
	CREATE TABLE entries (
		pos INTEGER PRIMARY KEY,
		document_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		category TEXT NOT NULL,
		text TEXT NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		UNIQUE (document_id, seq)
	);
	CREATE TABLE sources (
		document_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL
	);
`

// Store keeps the snapshot in a single SQLite database file. Every save
// writes a fresh database next to the target and renames it into place.
type Store struct {
	path string
}

func New(path string) *Store { return &Store{path: path} }

func (s *Store) Path() string { return s.path }

func (s *Store) Save(ctx context.Context, snap *vectorstore.Snapshot) error {
	err := persistence.ReplaceFile(s.path, func(tmp string) error {
		return write(ctx, tmp, snap)
	})
	if err != nil {
		return domain.WrapError("sqlite.save", fmt.Errorf("%w: %w", domain.ErrIO, err))
	}
	return nil
}

func write(ctx context.Context, path string, snap *vectorstore.Snapshot) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pragmas := []string{
		"PRAGMA journal_mode=DELETE",
		"PRAGMA synchronous=FULL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("pragma failed: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO meta (id, version, dimension, model, built_at) VALUES (1, ?, ?, ?, ?)",
		snap.Version, snap.Dimension, snap.Model, snap.BuiltAt.UnixNano()); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (pos, document_id, seq, category, text, start_offset, end_offset, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range snap.Entries {
		c := e.Chunk
		if _, err := stmt.ExecContext(ctx, i, c.ID.DocumentID, c.ID.Seq, string(c.Category), c.Text, c.Start, c.End,
			encodeFloat32Slice(e.Vector)); err != nil {
			return fmt.Errorf("insert %s: %w", c.ID, err)
		}
	}

	for id, fp := range snap.Sources {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sources (document_id, fingerprint) VALUES (?, ?)", id, fp); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return db.Close()
}

// Load returns (nil, nil) if the database file does not exist. A file that
// is not a readable snapshot database fails with domain.ErrCorruptIndex.
func (s *Store) Load(ctx context.Context) (*vectorstore.Snapshot, error) {
	const op = "sqlite.load"

	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, domain.WrapError(op, fmt.Errorf("%w: %w", domain.ErrIO, err))
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, domain.WrapError(op, fmt.Errorf("%w: %w", domain.ErrIO, err))
	}
	defer db.Close()

	snap, err := read(ctx, db)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.WrapError(op, fmt.Errorf("%w: %s: %w", domain.ErrCorruptIndex, s.path, err))
	}
	return snap, nil
}

func read(ctx context.Context, db *sql.DB) (*vectorstore.Snapshot, error) {
	var (
		snap    vectorstore.Snapshot
		builtAt int64
	)
	err := db.QueryRowContext(ctx,
		"SELECT version, dimension, model, built_at FROM meta WHERE id = 1").
		Scan(&snap.Version, &snap.Dimension, &snap.Model, &builtAt)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	snap.BuiltAt = time.Unix(0, builtAt).UTC()

	rows, err := db.QueryContext(ctx,
		`SELECT document_id, seq, category, text, start_offset, end_offset, embedding
		 FROM entries ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e        domain.IndexEntry
			category string
			embBytes []byte
		)
		if err := rows.Scan(&e.Chunk.ID.DocumentID, &e.Chunk.ID.Seq, &category, &e.Chunk.Text,
			&e.Chunk.Start, &e.Chunk.End, &embBytes); err != nil {
			return nil, err
		}
		if len(embBytes)%4 != 0 {
			return nil, fmt.Errorf("entry %s: embedding blob has %d bytes", e.Chunk.ID, len(embBytes))
		}
		e.Chunk.Category = domain.Category(category)
		e.Vector = decodeFloat32Slice(embBytes)
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srcRows, err := db.QueryContext(ctx, "SELECT document_id, fingerprint FROM sources")
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	defer srcRows.Close()

	snap.Sources = make(map[string]string)
	for srcRows.Next() {
		var id, fp string
		if err := srcRows.Scan(&id, &fp); err != nil {
			return nil, err
		}
		snap.Sources[id] = fp
	}
	return &snap, srcRows.Err()
}

func encodeFloat32Slice(f []float32) []byte {
	buf := make([]byte, len(f)*4)
	for i, v := range f {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32Slice(b []byte) []float32 {
	f := make([]float32, len(b)/4)
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return f
}
