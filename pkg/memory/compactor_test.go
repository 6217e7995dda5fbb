package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summarizerStub struct {
	calls   int
	prompts []string
	seen    [][]domain.Message
}

func (s *summarizerStub) Complete(ctx context.Context, prompt string, history []domain.Message) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.seen = append(s.seen, history)
	return fmt.Sprintf("summary #%d of %d messages", s.calls, len(history)), nil
}

func conversation(turns int) *domain.ConversationState {
	s := domain.NewConversationState("t")
	for i := 0; i < turns; i++ {
		s.BeginTurn(domain.NewMessage(domain.RoleUser, fmt.Sprintf("question %d", i)))
		s.Apply(domain.Delta{Set: domain.FieldAnswer, FinalAnswer: fmt.Sprintf("answer %d", i)})
	}
	return s
}

func TestShouldCompact(t *testing.T) {
	c := New(&summarizerStub{})

	assert.False(t, c.ShouldCompact(conversation(5)), "10 messages is not over the threshold")
	assert.True(t, c.ShouldCompact(conversation(6)))

	pending := conversation(6)
	pending.BeginTurn(domain.NewMessage(domain.RoleUser, "unanswered"))
	assert.False(t, c.ShouldCompact(pending), "only answered turns compact")

	assert.Equal(t, domain.NodeCompact, c.Next(conversation(6)))
	assert.Equal(t, domain.NodeEnd, c.Next(conversation(2)))
}

func TestShouldCompact_CountsMessagesNotTurns(t *testing.T) {
	c := New(&summarizerStub{}, WithThreshold(4))

	compacted := conversation(2)
	compacted.TurnCount = 50
	assert.False(t, c.ShouldCompact(compacted), "turn count alone does not trigger")

	long := conversation(3)
	long.TurnCount = 1
	assert.True(t, c.ShouldCompact(long), "six messages exceed a threshold of four")
}

func TestCompact(t *testing.T) {
	stub := &summarizerStub{}
	c := New(stub)
	state := conversation(6)

	messages, summary, err := c.Compact(context.Background(), state.Messages, "")
	require.NoError(t, err)

	require.Len(t, messages, 3)
	assert.Equal(t, domain.RoleSystem, messages[0].Role)
	assert.Equal(t, domain.ConversationSummaryPrefix+"summary #1 of 10 messages", messages[0].Content)
	assert.Equal(t, state.Messages[10:], messages[1:], "recent messages are kept verbatim")
	assert.Equal(t, "summary #1 of 10 messages", summary)
	assert.Equal(t, "Create a summary of the conversation above:", stub.prompts[0])
}

func TestCompact_Idempotent(t *testing.T) {
	stub := &summarizerStub{}
	c := New(stub)

	once, summary, err := c.Compact(context.Background(), conversation(6).Messages, "")
	require.NoError(t, err)
	twice, summary2, err := c.Compact(context.Background(), once, summary)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, summary, summary2)
	assert.Equal(t, 1, stub.calls)
}

func TestCompact_ExtendsPriorSummary(t *testing.T) {
	stub := &summarizerStub{}
	c := New(stub, WithThreshold(4), WithKeepRecent(2))

	state := conversation(3)
	messages, summary, err := c.Compact(context.Background(), state.Messages, "")
	require.NoError(t, err)
	require.Len(t, messages, 3)

	for i := 0; i < 2; i++ {
		messages = append(messages,
			domain.NewMessage(domain.RoleUser, "more"),
			domain.NewMessage(domain.RoleAssistant, "reply"),
		)
	}
	messages, summary, err = c.Compact(context.Background(), messages, summary)
	require.NoError(t, err)

	assert.Contains(t, stub.prompts[1], "This is summary of the conversation to date: summary #1 of 4 messages")
	for _, m := range stub.seen[1] {
		assert.NotEqual(t, domain.RoleSystem, m.Role, "the previous summary message is not re-summarized")
	}
	assert.Len(t, stub.seen[1], 4)
	assert.Equal(t, "summary #2 of 4 messages", summary)
	assert.Len(t, messages, 3)
}

func TestCompact_Failure(t *testing.T) {
	c := New(ports.CompleterFunc(func(ctx context.Context, p string, h []domain.Message) (string, error) {
		return "", errors.New("down")
	}))
	_, _, err := c.Compact(context.Background(), conversation(6).Messages, "")
	assert.Error(t, err)
}

func TestNode(t *testing.T) {
	c := New(&summarizerStub{})
	delta, err := c.Node()(context.Background(), conversation(6))
	require.NoError(t, err)
	assert.Equal(t, domain.FieldHistory, delta.Set)
	assert.Len(t, delta.Messages, 3)
	assert.NotEmpty(t, delta.ConversationSummary)
}

func TestNew_KeepRecentBelowThreshold(t *testing.T) {
	c := New(&summarizerStub{}, WithThreshold(2), WithKeepRecent(5))
	assert.Equal(t, 1, c.keepRecent)
}
