package loader

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meos/internal/domain"
)

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	fsys := fstest.MapFS{
		"journal/2024-01-02.md":     {Data: []byte("Second day.")},
		"journal/2024-01-01.md":     {Data: []byte("First day.")},
		"journal/nested/trip.md":    {Data: []byte("Hiking trip.")},
		"journal/ignored.txt":       {Data: []byte("not markdown")},
		"notes/ideas.MD":            {Data: []byte("Ideas.")},
		"notes/broken.md":           {Data: []byte{0xff, 0xfe, 0xfd}},
		"outside/not-a-category.md": {Data: []byte("ignored")},
	}

	res, err := New(fsys, nil, "").Load(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(res.Documents))
	for i, d := range res.Documents {
		ids[i] = d.ID
	}

	assert.Equal([]string{
		"journal/2024-01-01.md",
		"journal/2024-01-02.md",
		"journal/nested/trip.md",
		"notes/ideas.MD",
	}, ids)

	assert.Equal(domain.CategoryJournal, res.Documents[0].Category)
	assert.Equal("First day.", res.Documents[0].Text)
	assert.Equal(Fingerprint("First day."), res.Documents[0].Hash)
	assert.Equal(domain.CategoryNotes, res.Documents[3].Category)

	require.Len(t, res.Skipped, 1)
	assert.Equal("notes/broken.md", res.Skipped[0].Path)
	assert.True(errors.Is(res.Skipped[0].Err, ErrInvalidUTF8))
	assert.True(errors.Is(res.Skipped[0].Err, domain.ErrIO))
}

func TestLoad_MissingCategories(t *testing.T) {
	res, err := New(fstest.MapFS{}, nil, ".md").Load(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Documents)
	assert.Empty(t, res.Skipped)
}

func TestLoad_Deterministic(t *testing.T) {
	fsys := fstest.MapFS{
		"goals/b.md":   {Data: []byte("Run a marathon this year.")},
		"journal/a.md": {Data: []byte("I love hiking in the mountains.")},
	}

	l := New(fsys, nil, "md")

	first, err := l.Load(context.Background())
	require.NoError(t, err)

	second, err := l.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "goals/b.md", first.Documents[0].ID)
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fsys := fstest.MapFS{"journal/a.md": {Data: []byte("x")}}

	_, err := New(fsys, nil, "").Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
