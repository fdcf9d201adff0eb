package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  got.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "  You went hiking.\n"},
			}},
		})
	}))
	defer srv.Close()

	t.Setenv("TEST_GEN_KEY", "")
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "TEST_GEN_KEY", Model: "mistral"})
	require.NoError(t, err)
	assert.Equal(t, "mistral", c.Name())

	out, err := c.Generate(context.Background(), "What did I do?")
	require.NoError(t, err)
	assert.Equal(t, "You went hiking.", out)

	assert.Equal(t, "mistral", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "What did I do?", got.Messages[1].Content)
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Model: "mistral"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi")
	assert.Error(t, err)
}

func TestGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"model \"mistral\" not found","type":"api_error"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Model: "mistral"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://localhost:11434/v1"})
	assert.Error(t, err)

	t.Setenv("TEST_GEN_KEY", "")
	_, err = NewClient(Config{APIKeyEnv: "TEST_GEN_KEY", Model: "gpt-4o-mini"})
	assert.Error(t, err)
}
