// Package openai adapts the OpenAI API (and compatible servers) to the
// Completer and Embedder ports.
package openai

import (
	"context"
	"net/http"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = go_openai.SmallEmbedding3
)

// Options configures the OpenAI adapters.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel go_openai.EmbeddingModel
	Temperature    float32
	MaxTokens      int
	System         string
}

// Client implements ports.Completer and ports.Embedder.
type Client struct {
	client *go_openai.Client
	opts   Options
}

// New creates a client from options.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:          DefaultModel,
		EmbeddingModel: DefaultEmbeddingModel,
		Temperature:    0.2,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	config := go_openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	return &Client{client: go_openai.NewClientWithConfig(config), opts: opts}
}

// Complete sends the history followed by the prompt as the user turn.
func (c *Client) Complete(ctx context.Context, prompt string, history []domain.Message) (string, error) {
	messages := make([]go_openai.ChatCompletionMessage, 0, len(history)+2)
	if c.opts.System != "" {
		messages = append(messages, go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleSystem, Content: c.opts.System})
	}
	for _, m := range history {
		messages = append(messages, go_openai.ChatCompletionMessage{Role: role(m.Role), Content: m.Content})
	}
	messages = append(messages, go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		return "", classify("openai chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed returns one vector per text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.CreateEmbeddings(ctx, go_openai.EmbeddingRequest{
		Input: texts,
		Model: c.opts.EmbeddingModel,
	})
	if err != nil {
		return nil, classify("openai embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errors.Errorf("openai returned embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func role(r domain.Role) string {
	switch r {
	case domain.RoleAssistant:
		return go_openai.ChatMessageRoleAssistant
	case domain.RoleSystem:
		return go_openai.ChatMessageRoleSystem
	default:
		return go_openai.ChatMessageRoleUser
	}
}

// classify marks rate limits, server errors and timeouts as transient.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	status := 0
	var apiErr *go_openai.APIError
	var reqErr *go_openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError ||
		errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(op, err)
	}
	return errors.Wrap(err, op)
}
