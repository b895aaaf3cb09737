// Package embedding generates fixed-length vectors for document and query
// text through an OpenAI-compatible embeddings endpoint.
package embedding

import (
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client wraps the OpenAI-compatible API client used for embeddings.
type Client struct {
	client *openai.Client
}

// NewClient creates a client against the given base URL. apiKeyEnv names the
// environment variable holding the key; local servers (Ollama and friends)
// accept any non-empty key, so an unset variable falls back to a placeholder.
func NewClient(baseURL, apiKeyEnv string) *Client {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		apiKey = "local"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client}
}

// Client returns the underlying API client for reuse by other packages.
func (c *Client) Client() *openai.Client {
	return c.client
}
