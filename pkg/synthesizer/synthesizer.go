// Package synthesizer turns whatever the turn produced into the final answer.
//
// The branch taken is a deterministic function of the populated state
// fields: retrieved documents produce a cited answer, a document summary is
// returned as is, and otherwise the model answers from the conversation.
package synthesizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/knowledge"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/pkg/errors"
)

const (
	// DegradedNote is appended to answers of degraded turns.
	DegradedNote = "Note: some information sources were unavailable while answering, so this response may be incomplete."

	noResultsNote = "I couldn't find relevant information in the knowledge base, so this answer is based on general knowledge."
	apology       = "I'm sorry, I could not generate an answer right now. Please try again."
	maxFallback   = 3
)

// Kind names the synthesis branch.
type Kind string

const (
	KindCited   Kind = "cited"
	KindSummary Kind = "summary"
	KindDirect  Kind = "direct"
)

// Synthesizer produces final answers. It is safe for concurrent use.
type Synthesizer struct {
	completer ports.Completer
	logger    *slog.Logger
}

// Option configures the Synthesizer.
type Option func(*Synthesizer)

// WithLogger configures a logger for the Synthesizer.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

// New creates a Synthesizer.
func New(c ports.Completer, opts ...Option) *Synthesizer {
	s := &Synthesizer{completer: c, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Branch returns the synthesis branch the state selects.
func Branch(state *domain.ConversationState) Kind {
	switch {
	case len(state.RetrievedDocuments) > 0:
		return KindCited
	case strings.TrimSpace(state.Summary) != "":
		return KindSummary
	default:
		return KindDirect
	}
}

// Synthesize builds the answer. Transient completer failures are returned
// for the engine to retry; any other failure yields the deterministic
// fallback answer together with a PartialFailure.
func (s *Synthesizer) Synthesize(ctx context.Context, state *domain.ConversationState) (string, error) {
	var (
		answer string
		err    error
	)
	switch Branch(state) {
	case KindCited:
		answer, err = s.cited(ctx, state)
	case KindSummary:
		answer = strings.TrimSpace(state.Summary)
	default:
		answer, err = s.direct(ctx, state)
	}

	if err != nil {
		if domain.IsTransient(err) {
			return "", err
		}
		s.logger.Warn("synthesis failed, using fallback answer", "thread_id", state.CheckpointID, "err", err)
		fallback := state.Clone()
		fallback.MarkDegraded("")
		return Fallback(fallback), domain.Partial(domain.NodeSynthesize, err)
	}
	return decorate(answer, state), nil
}

// Fallback composes an answer without calling the model, from whatever
// the turn produced.
func Fallback(state *domain.ConversationState) string {
	var answer string
	switch Branch(state) {
	case KindCited:
		var b strings.Builder
		b.WriteString("I could not compose a full answer, but these sources look relevant:\n")
		for i, d := range state.RetrievedDocuments {
			if i == maxFallback {
				break
			}
			fmt.Fprintf(&b, "\n[%d] %s: %s", i+1, knowledge.Label(d), excerpt(d.Content, 280))
		}
		answer = b.String()
	case KindSummary:
		answer = strings.TrimSpace(state.Summary)
	default:
		answer = apology
	}
	return decorate(answer, state)
}

// Node returns the graph node function.
func (s *Synthesizer) Node() domain.NodeFunc {
	return func(ctx context.Context, state *domain.ConversationState) (domain.Delta, error) {
		answer, err := s.Synthesize(ctx, state)
		if answer == "" {
			return domain.Delta{}, err
		}
		return domain.Delta{Set: domain.FieldAnswer, FinalAnswer: answer}, err
	}
}

const citedPrompt = `Answer the question using only the numbered sources below. Cite the
sources you use inline as [1], [2], ... If the sources do not contain the answer, say so.

%s

Question: %s`

func (s *Synthesizer) cited(ctx context.Context, state *domain.ConversationState) (string, error) {
	question := state.Query
	if question == "" {
		question = state.LastUserMessage()
	}
	prompt := fmt.Sprintf(citedPrompt, knowledge.FormatContext(state.RetrievedDocuments), question)
	out, err := s.completer.Complete(ctx, prompt, memory(state))
	if err != nil {
		return "", errors.Wrap(err, "composing cited answer")
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(out))
	b.WriteString("\n\n" + domain.SourcesHeading)
	for i, d := range state.RetrievedDocuments {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, knowledge.Label(d))
	}
	return b.String(), nil
}

const directPrompt = `Reply to the user's latest message. Be concise and helpful.

Message: %s`

func (s *Synthesizer) direct(ctx context.Context, state *domain.ConversationState) (string, error) {
	out, err := s.completer.Complete(ctx, fmt.Sprintf(directPrompt, state.LastUserMessage()), memory(state))
	if err != nil {
		return "", errors.Wrap(err, "composing direct answer")
	}
	return strings.TrimSpace(out), nil
}

// memory is the context passed to the model: the running conversation
// summary followed by the history before the latest message.
func memory(state *domain.ConversationState) []domain.Message {
	history := state.Messages
	if len(history) > 0 {
		history = history[:len(history)-1]
	}
	if state.ConversationSummary == "" || hasSummaryMessage(history) {
		return history
	}
	out := make([]domain.Message, 0, len(history)+1)
	out = append(out, domain.NewMessage(domain.RoleSystem, domain.ConversationSummaryPrefix+state.ConversationSummary))
	return append(out, history...)
}

func hasSummaryMessage(history []domain.Message) bool {
	return len(history) > 0 && history[0].Role == domain.RoleSystem &&
		strings.HasPrefix(history[0].Content, domain.ConversationSummaryPrefix)
}

func decorate(answer string, state *domain.ConversationState) string {
	if state.KnowledgeAttempted && len(state.RetrievedDocuments) == 0 && !state.Degraded {
		answer = noResultsNote + "\n\n" + answer
	}
	if state.Degraded {
		answer += "\n\n" + DegradedNote
	}
	return answer
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndex(s[:n], " ")
	if cut <= 0 {
		cut = n
	}
	return s[:cut] + "..."
}
