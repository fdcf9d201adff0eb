package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meos/internal/domain"
)

func TestNewEmbedder_KnownModels(t *testing.T) {
	e, err := NewEmbedder(Config{})
	require.NoError(t, err)
	assert.Equal(t, 384, e.Dimension())
	assert.Equal(t, "ollama:all-minilm", e.Name())

	e, err = NewEmbedder(Config{Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimension())

	_, err = NewEmbedder(Config{Model: "something-else"})
	assert.Error(t, err)

	e, err = NewEmbedder(Config{Model: "something-else", Dimension: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, e.Dimension())
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	e := newEmbedder(func(context.Context, string) ([]float32, error) {
		return []float32{1, 0}, nil
	}, "test", 3, 1)

	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEmbed_NonFiniteVector(t *testing.T) {
	nan := float32(math.NaN())
	e := newEmbedder(func(context.Context, string) ([]float32, error) {
		return []float32{nan, nan, nan}, nil
	}, "test", 3, 1)

	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.ErrorIs(t, err, domain.ErrInvalidVector)

	_, err = e.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrInvalidVector)
}

func TestEmbed_ZeroEmbeddingFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0, 0, 0}})
	}))
	defer srv.Close()

	e, err := NewEmbedder(Config{BaseURL: srv.URL + "/api", Model: "tiny", Dimension: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "empty")
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestEmbed_ProviderError(t *testing.T) {
	boom := errors.New("connection refused")
	e := newEmbedder(func(context.Context, string) ([]float32, error) {
		return nil, boom
	}, "test", 3, 1)

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, boom)
}

func TestEmbedBatch_OllamaServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		vec := []float32{0, 0, 0}
		vec[len(req.Prompt)%3] = 1

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
	defer srv.Close()

	e, err := NewEmbedder(Config{BaseURL: srv.URL + "/api", Model: "tiny", Dimension: 3, Concurrency: 2})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"abc", "a", "ab"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, vecs)
}
