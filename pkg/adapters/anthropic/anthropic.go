// Package anthropic adapts the Anthropic Messages API to the Completer port.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/pkg/errors"
)

// Options configures the Anthropic adapter.
type Options struct {
	Model          anthropic.Model
	Temperature    float64
	MaxTokens      int64
	APIKey         string
	System         string
	RequestOptions []option.RequestOption
}

// Completer implements ports.Completer.
type Completer struct {
	client *anthropic.Client
	opts   Options
}

// New creates a Completer using the official client.
func New(optFns ...func(o *Options)) *Completer {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   2048,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := append([]option.RequestOption(nil), opts.RequestOptions...)
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Completer{client: &client, opts: opts}
}

// Complete sends the history followed by the prompt as the final user turn.
// System messages in the history are lifted into the system prompt.
func (c *Completer) Complete(ctx context.Context, prompt string, history []domain.Message) (string, error) {
	var system []anthropic.TextBlockParam
	if c.opts.System != "" {
		system = append(system, anthropic.TextBlockParam{Text: c.opts.System})
	}

	var turns []turn
	for _, m := range history {
		if m.Role == domain.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
			continue
		}
		turns = appendTurn(turns, m.Role, m.Content)
	}
	turns = appendTurn(turns, domain.RoleUser, prompt)

	// The API requires the conversation to open with a user turn.
	if turns[0].role != domain.RoleUser {
		turns = append([]turn{{role: domain.RoleUser, text: "(conversation continues)"}}, turns...)
	}

	messages := make([]anthropic.MessageParam, len(turns))
	for i, t := range turns {
		if t.role == domain.RoleAssistant {
			messages[i] = anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.text))
		} else {
			messages[i] = anthropic.NewUserMessage(anthropic.NewTextBlock(t.text))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		Messages:    messages,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

type turn struct {
	role domain.Role
	text string
}

// appendTurn merges consecutive messages of one role.
func appendTurn(turns []turn, role domain.Role, text string) []turn {
	if n := len(turns); n > 0 && turns[n-1].role == role {
		turns[n-1].text += "\n\n" + text
		return turns
	}
	return append(turns, turn{role: role, text: text})
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError {
			return domain.Transient("anthropic messages", err)
		}
		return errors.Wrap(err, "anthropic messages")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient("anthropic messages", err)
	}
	return errors.Wrap(err, "anthropic messages")
}
