package synthesizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	prompt  string
	history []domain.Message
}

func replying(reply string, err error, c *captured) ports.Completer {
	return ports.CompleterFunc(func(ctx context.Context, prompt string, history []domain.Message) (string, error) {
		if c != nil {
			c.prompt = prompt
			c.history = history
		}
		return reply, err
	})
}

func turn(msg string) *domain.ConversationState {
	s := domain.NewConversationState("t")
	s.BeginTurn(domain.NewMessage(domain.RoleUser, msg))
	return s
}

func TestSynthesize_Cited(t *testing.T) {
	state := turn("what is relay?")
	state.Query = "relay definition"
	state.KnowledgeAttempted = true
	state.RetrievedDocuments = []domain.Document{
		{Content: "relay is a graph engine", Source: "intro.md", SourceType: domain.SourceInternal, Score: 0.9},
		{Content: "relay on the web", Source: "https://relay.dev", Title: "Relay", SourceType: domain.SourceExternal, Score: 0.7},
	}
	var c captured
	s := New(replying("Relay is a graph engine [1].", nil, &c))

	answer, err := s.Synthesize(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, KindCited, Branch(state))
	assert.Contains(t, c.prompt, "Source 1 [Internal - intro.md]: relay is a graph engine")
	assert.Contains(t, c.prompt, "Question: relay definition")
	assert.Equal(t, "Relay is a graph engine [1].\n\nSources:\n[1] Internal - intro.md\n[2] Web - Relay (https://relay.dev)", answer)
}

func TestSynthesize_Summary(t *testing.T) {
	state := turn(domain.SummarizePrefix + " ...")
	state.Summary = "  the gist  "
	s := New(replying("", errors.New("must not be called"), nil))

	answer, err := s.Synthesize(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "the gist", answer)
}

func TestSynthesize_DirectUsesMemory(t *testing.T) {
	state := turn("earlier question")
	state.Apply(domain.Delta{Set: domain.FieldAnswer, FinalAnswer: "earlier answer"})
	state.ConversationSummary = "user likes Go"
	state.BeginTurn(domain.NewMessage(domain.RoleUser, "hello again"))

	var c captured
	answer, err := New(replying(" hi! ", nil, &c)).Synthesize(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, "hi!", answer)
	assert.Contains(t, c.prompt, "hello again")
	require.Len(t, c.history, 3)
	assert.Equal(t, domain.RoleSystem, c.history[0].Role)
	assert.Equal(t, domain.ConversationSummaryPrefix+"user likes Go", c.history[0].Content)
}

func TestSynthesize_NoResultsNote(t *testing.T) {
	state := turn("obscure question?")
	state.KnowledgeAttempted = true

	answer, err := New(replying("best guess", nil, nil)).Synthesize(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(answer, noResultsNote))
	assert.True(t, strings.HasSuffix(answer, "best guess"))
}

func TestSynthesize_DegradedNote(t *testing.T) {
	state := turn("q")
	state.MarkDegraded("knowledge: web search: down")

	answer, err := New(replying("partial answer", nil, nil)).Synthesize(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "partial answer\n\n"+DegradedNote, answer)
}

func TestSynthesize_TransientErrorIsReturned(t *testing.T) {
	s := New(replying("", domain.Transient("llm", errors.New("503")), nil))
	answer, err := s.Synthesize(context.Background(), turn("q"))
	assert.Empty(t, answer)
	assert.True(t, domain.IsTransient(err))
}

func TestSynthesize_PermanentErrorFallsBack(t *testing.T) {
	state := turn("q")
	state.RetrievedDocuments = []domain.Document{
		{Content: strings.Repeat("long content ", 50), Source: "a.md", SourceType: domain.SourceInternal},
	}
	s := New(replying("", errors.New("invalid api key"), nil))

	answer, err := s.Synthesize(context.Background(), state)
	assert.True(t, domain.IsPartial(err))
	assert.Contains(t, answer, "[1] Internal - a.md: long content")
	assert.Contains(t, answer, "...")
	assert.True(t, strings.HasSuffix(answer, DegradedNote))
	assert.False(t, state.Degraded, "the caller's state is not modified")

	delta, err := s.Node()(context.Background(), state)
	assert.True(t, domain.IsPartial(err))
	assert.Equal(t, domain.FieldAnswer, delta.Set)
}

func TestFallback_Direct(t *testing.T) {
	assert.Equal(t, apology, Fallback(turn("q")))
}
