package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"meos/internal/domain"
)

// ErrInvalidUTF8 is reported for files that are not valid UTF-8 text.
var ErrInvalidUTF8 = errors.New("file is not valid UTF-8")

// Skipped records a source that could not be loaded.
type Skipped struct {
	Path string
	Err  error
}

// Result is the outcome of a scan: loaded documents in id order plus
// everything that was skipped.
type Result struct {
	Documents []domain.Document
	Skipped   []Skipped
}

// Loader reads the category folders of a data root into documents.
type Loader struct {
	fsys       fs.FS
	categories []domain.Category
	ext        string
	log        *zap.Logger
}

// New creates a loader over fsys. An empty category list selects the
// default journal, goals and notes folders; an empty ext selects ".md".
func New(fsys fs.FS, categories []domain.Category, ext string) *Loader {
	if len(categories) == 0 {
		categories = domain.DefaultCategories()
	}
	if ext == "" {
		ext = ".md"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Loader{
		fsys:       fsys,
		categories: categories,
		ext:        ext,
		log:        zap.L().With(zap.String("component", "loader")),
	}
}

// NewDir creates a loader rooted at a directory on disk.
func NewDir(root string, categories []domain.Category, ext string) *Loader {
	return New(os.DirFS(root), categories, ext)
}

// Load walks every category folder. Missing folders contribute no
// documents; unreadable or non-UTF-8 files are skipped and reported.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	var res Result

	for _, cat := range l.categories {
		root := string(cat)

		if _, err := fs.Stat(l.fsys, root); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				l.log.Debug("category folder missing", zap.String("category", root))
				continue
			}
			res.Skipped = append(res.Skipped, l.skip(root, err))
			continue
		}

		err := fs.WalkDir(l.fsys, root, func(p string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if err != nil {
				res.Skipped = append(res.Skipped, l.skip(p, err))
				return nil
			}

			if d.IsDir() || !strings.EqualFold(path.Ext(p), l.ext) {
				return nil
			}

			doc, err := l.read(p, cat)
			if err != nil {
				res.Skipped = append(res.Skipped, l.skip(p, err))
				return nil
			}

			res.Documents = append(res.Documents, doc)
			return nil
		})
		if err != nil {
			return Result{}, err
		}
	}

	sort.Slice(res.Documents, func(i, j int) bool {
		return res.Documents[i].ID < res.Documents[j].ID
	})

	l.log.Info("documents loaded",
		zap.Int("count", len(res.Documents)),
		zap.Int("skipped", len(res.Skipped)),
	)

	return res, nil
}

func (l *Loader) read(p string, cat domain.Category) (domain.Document, error) {
	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return domain.Document{}, err
	}

	if !utf8.Valid(data) {
		return domain.Document{}, ErrInvalidUTF8
	}

	return domain.Document{
		ID:       p,
		Category: cat,
		Text:     string(data),
		Hash:     Fingerprint(string(data)),
	}, nil
}

func (l *Loader) skip(p string, err error) Skipped {
	err = fmt.Errorf("%w: %s: %w", domain.ErrIO, p, err)
	l.log.Warn("skipping source", zap.String("path", p), zap.Error(err))
	return Skipped{Path: p, Err: err}
}

// Fingerprint returns the hex SHA-256 of a document's text.
func Fingerprint(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Fingerprints maps document ids to their content hashes.
func Fingerprints(docs []domain.Document) map[string]string {
	out := make(map[string]string, len(docs))
	for _, d := range docs {
		out[d.ID] = d.Hash
	}
	return out
}
