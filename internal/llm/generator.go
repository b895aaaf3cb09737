// Package llm invokes the generative model backend through an
// OpenAI-compatible chat completions endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrUnavailable means the model backend could not be reached or did not
// produce a completion. Surfaced to the caller after one bounded retry;
// never retried indefinitely, so an outage stays visible.
var ErrUnavailable = errors.New("generation backend unavailable")

// Generator sends prompts to a fixed chat model with a per-call timeout.
type Generator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewGenerator creates a Generator against the given base URL. apiKey may be
// empty for local servers.
func NewGenerator(baseURL, apiKey, model string, timeout time.Duration) *Generator {
	if apiKey == "" {
		apiKey = "local"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	// The HTTP client retries 429/5xx on its own by default; disable that
	// so Complete's single bounded retry is the whole policy.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &Generator{client: &client, model: model, timeout: timeout}
}

// Complete sends a system instruction and user prompt and returns the raw
// answer text. Exactly one retry on failure, then ErrUnavailable.
func (g *Generator) Complete(ctx context.Context, system, user string) (string, error) {
	attempt := func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			Model: g.model,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("completion returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	}

	answer, err := backoff.RetryWithData(attempt, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 1), ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return answer, nil
}
