package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// Mask replaces every match of a PII pattern.
const Mask = "***"

// DefaultPIIPatterns match e-mail addresses, card-like digit runs and
// phone numbers.
var DefaultPIIPatterns = []string{
	`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	`\b(?:\d[ -]?){13,16}\b`,
	`\+?\d{1,3}[ .-]?\(?\d{2,4}\)?[ .-]?\d{3,4}[ .-]?\d{4}\b`,
}

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks text matching the
// patterns before it reaches the store. Masking is one way: loaded states
// keep the mask. The caller's in-memory state is never modified.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, threadID string, state *domain.ConversationState) error {
	masked := state.Clone()
	for i := range masked.Messages {
		masked.Messages[i].Content = m.mask(masked.Messages[i].Content)
	}
	masked.Query = m.mask(masked.Query)
	masked.DocumentContent = m.mask(masked.DocumentContent)
	masked.Summary = m.mask(masked.Summary)
	masked.ConversationSummary = m.mask(masked.ConversationSummary)
	masked.FinalAnswer = m.mask(masked.FinalAnswer)
	return m.next.Save(ctx, threadID, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	return m.next.Load(ctx, threadID)
}

func (m *piiMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}
