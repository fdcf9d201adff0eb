package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"meos/internal/domain"
)

var _ domain.Generator = (*Client)(nil)

// Config configures the chat completion client. Ollama serves the same API
// under http://localhost:11434/v1.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float32
	MaxTokens   int
	System      string
}

const defaultSystem = "You are Lumo, a personal assistant that answers questions about the user's own journal, goals and notes."

// Client produces answers with a single chat completion request per prompt.
type Client struct {
	client *openai.Client
	cfg    Config
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Model == "" {
		return nil, errors.New("generation model must be set")
	}
	if cfg.System == "" {
		cfg.System = defaultSystem
	}

	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		// local servers ignore the key but the client always sends one
		key = "ollama"
	}

	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Client{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

func (c *Client) Name() string { return c.cfg.Model }

// Generate sends prompt as the user message and returns the first choice.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.cfg.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat completion failed (%d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
