// Package llmclient wraps the OpenAI-compatible chat endpoint used for the
// two one-shot JSON-mode calls the ingestion pipeline needs: LLM-driven
// chunking and per-chunk entity extraction.
//
// Grounded on the teacher's openai-go/v2 client construction
// (sdk.NewClient with option.WithAPIKey/WithBaseURL/WithHTTPClient and
// Chat.Completions.New), pared down to the single non-streaming,
// non-tool-calling call shape this service needs.
package llmclient

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ragservice/internal/apperr"
)

// Client issues one-shot JSON-mode chat completions.
type Client struct {
	sdk     openai.Client
	model   string
	timeout time.Duration
}

// Config configures the underlying chat endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// New builds a Client; a zero Timeout defaults to 60s.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	return &Client{
		sdk:     openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// CompleteJSON sends a system+user prompt pair in JSON-object response
// mode and returns the raw assistant content. Callers are responsible for
// strictly decoding and rejecting malformed shapes, per the ingestion
// pipeline's "reject responses that do not parse" contract.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", apperr.Wrap(apperr.KindDependencyTransient, "chat completion", err)
	}
	if len(completion.Choices) == 0 {
		return "", apperr.New(apperr.KindMalformedUpstream, "chat completion returned no choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", apperr.New(apperr.KindMalformedUpstream, "chat completion returned empty content")
	}
	return content, nil
}
