// Package memory keeps conversation history bounded.
//
// Once a thread grows past a threshold, everything except the most recent
// messages is folded into a running summary carried as a single system
// message at the head of the history.
package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/pkg/errors"
)

const (
	DefaultThreshold  = 10
	DefaultKeepRecent = 2
)

// Compactor summarizes old messages. It is safe for concurrent use.
type Compactor struct {
	completer  ports.Completer
	threshold  int
	keepRecent int
	logger     *slog.Logger
}

// Option configures the Compactor.
type Option func(*Compactor)

// WithThreshold sets the message count above which compaction triggers. The
// trigger counts stored messages (summary included), not turns: a thread with
// the default threshold compacts on the sixth answered turn.
func WithThreshold(n int) Option {
	return func(c *Compactor) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithKeepRecent sets how many recent messages are kept verbatim.
func WithKeepRecent(n int) Option {
	return func(c *Compactor) {
		if n >= 0 {
			c.keepRecent = n
		}
	}
}

// WithLogger configures a logger for the Compactor.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compactor) {
		c.logger = logger
	}
}

// New creates a Compactor.
func New(completer ports.Completer, opts ...Option) *Compactor {
	c := &Compactor{
		completer:  completer,
		threshold:  DefaultThreshold,
		keepRecent: DefaultKeepRecent,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.keepRecent >= c.threshold {
		c.keepRecent = c.threshold - 1
	}
	return c
}

// ShouldCompact reports whether the history holds more than threshold
// messages and the turn has been answered.
func (c *Compactor) ShouldCompact(state *domain.ConversationState) bool {
	last, ok := state.LastMessage()
	return ok && len(state.Messages) > c.threshold && last.Role == domain.RoleAssistant
}

// Compact replaces all but the most recent messages with one summary
// message, extending the prior summary. Histories at or below the threshold
// are returned unchanged, which makes compaction idempotent.
func (c *Compactor) Compact(ctx context.Context, messages []domain.Message, summary string) ([]domain.Message, string, error) {
	if len(messages) <= c.threshold {
		return messages, summary, nil
	}

	split := len(messages) - c.keepRecent
	var older []domain.Message
	for _, m := range messages[:split] {
		if isSummary(m) {
			continue
		}
		older = append(older, m)
	}
	if len(older) == 0 {
		return messages, summary, nil
	}

	prompt := "Create a summary of the conversation above:"
	if summary != "" {
		prompt = "This is summary of the conversation to date: " + summary +
			"\n\nExtend the summary by taking into account the new messages above:"
	}
	out, err := c.completer.Complete(ctx, prompt, older)
	if err != nil {
		return nil, "", errors.Wrap(err, "summarizing conversation")
	}
	next := strings.TrimSpace(out)

	compacted := make([]domain.Message, 0, c.keepRecent+1)
	compacted = append(compacted, domain.NewMessage(domain.RoleSystem, domain.ConversationSummaryPrefix+next))
	compacted = append(compacted, messages[split:]...)
	return compacted, next, nil
}

// Node returns the graph node function.
func (c *Compactor) Node() domain.NodeFunc {
	return func(ctx context.Context, state *domain.ConversationState) (domain.Delta, error) {
		messages, summary, err := c.Compact(ctx, state.Messages, state.ConversationSummary)
		if err != nil {
			return domain.Delta{}, err
		}
		c.logger.Debug("conversation compacted",
			"thread_id", state.CheckpointID,
			"before", len(state.Messages),
			"after", len(messages),
		)
		return domain.Delta{Set: domain.FieldHistory, Messages: messages, ConversationSummary: summary}, nil
	}
}

// Next routes to the compaction node when it is due, else ends the turn.
func (c *Compactor) Next(state *domain.ConversationState) string {
	if c.ShouldCompact(state) {
		return domain.NodeCompact
	}
	return domain.NodeEnd
}

func isSummary(m domain.Message) bool {
	return m.Role == domain.RoleSystem && strings.HasPrefix(m.Content, domain.ConversationSummaryPrefix)
}
