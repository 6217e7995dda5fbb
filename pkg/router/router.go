// Package router selects the processing path for a turn.
//
// Routing is a pure function of the conversation state: it performs no I/O and
// always produces exactly one route, so every turn is deterministic and
// replayable from a checkpoint.
package router

import (
	"context"
	"strings"
	"unicode"

	"github.com/aretw0/relay/pkg/domain"
)

var (
	defaultSummarizeKeywords = []string{
		"summarize", "summarise", "summary of", "sum up", "tl;dr", "tldr", "condense",
	}
	defaultKnowledgeKeywords = []string{
		"according to", "source", "cite", "citation", "document", "docs", "reference",
		"explain", "look up", "lookup", "search", "find", "latest", "research",
		"in the file", "in the paper", "knowledge base",
	}
	defaultSmallTalk = []string{
		"hi", "hello", "hey", "thanks", "thank you", "ok", "okay", "bye", "goodbye",
		"good morning", "good evening", "good night", "how are you", "who are you",
	}
	// followUpWords refer back to the previous answer.
	followUpWords = []string{
		"that", "this", "it", "its", "those", "these", "them", "they", "more", "elaborate",
		"expand", "further", "details", "detail", "else", "also", "again", "example",
	}
	interrogatives = []string{"what", "who", "when", "where", "why", "how", "which", "is", "are", "does", "do", "can"}
)

// Decision is the outcome of routing a turn.
type Decision struct {
	Route    domain.Route
	Reason   string
	Document string
}

// Router is a rule-based router. It is safe for concurrent use.
type Router struct {
	summarizeKeywords []string
	knowledgeKeywords []string
	smallTalk         []string
	minDocumentLength int
	tieBreak          domain.Route
}

// Option configures the Router.
type Option func(*Router)

// WithTieBreak sets the route chosen when summarization intent and knowledge
// signals are both present but no document was supplied.
func WithTieBreak(r domain.Route) Option {
	return func(rt *Router) {
		if r == domain.RouteKnowledge || r == domain.RouteQuickAnswer {
			rt.tieBreak = r
		}
	}
}

// WithKnowledgeKeywords replaces the phrases that signal a sourced-facts request.
func WithKnowledgeKeywords(words ...string) Option {
	return func(rt *Router) {
		rt.knowledgeKeywords = lowerAll(words)
	}
}

// WithSummarizeKeywords replaces the phrases that signal summarization intent.
func WithSummarizeKeywords(words ...string) Option {
	return func(rt *Router) {
		rt.summarizeKeywords = lowerAll(words)
	}
}

// WithMinDocumentLength sets how long an inline payload must be to count as a
// document when no explicit prefix is used.
func WithMinDocumentLength(n int) Option {
	return func(rt *Router) {
		if n > 0 {
			rt.minDocumentLength = n
		}
	}
}

// New creates a Router with the default rules.
func New(opts ...Option) *Router {
	r := &Router{
		summarizeKeywords: defaultSummarizeKeywords,
		knowledgeKeywords: defaultKnowledgeKeywords,
		smallTalk:         defaultSmallTalk,
		minDocumentLength: 200,
		tieBreak:          domain.RouteKnowledge,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Routes lists every route Decide can return.
func (r *Router) Routes() []domain.Route {
	return []domain.Route{domain.RouteKnowledge, domain.RouteSummarize, domain.RouteQuickAnswer}
}

// Decide routes the latest user message in the context of the conversation.
// Precedence: explicit summarization with a document, then knowledge signals
// (including follow-ups to a cited answer), then a quick answer.
func (r *Router) Decide(state *domain.ConversationState) Decision {
	msg := strings.TrimSpace(state.LastUserMessage())
	if msg == "" {
		return Decision{Route: domain.RouteKnowledge, Reason: "empty history defaults to knowledge"}
	}

	if rest, ok := cutPrefixFold(msg, domain.SummarizePrefix); ok {
		if doc := strings.TrimSpace(rest); doc != "" {
			return Decision{Route: domain.RouteSummarize, Reason: "explicit summarize prefix", Document: doc}
		}
	}

	lower := strings.ToLower(msg)
	wantsSummary := containsAny(lower, r.summarizeKeywords)
	if wantsSummary {
		if doc := r.inlineDocument(msg); doc != "" {
			return Decision{Route: domain.RouteSummarize, Reason: "summarize request with inline document", Document: doc}
		}
	}

	reason := r.knowledgeSignal(lower, state)
	knowledge := reason != ""
	switch {
	case wantsSummary && knowledge:
		return Decision{Route: r.tieBreak, Reason: "ambiguous summarize request without document, tie-break"}
	case knowledge:
		return Decision{Route: domain.RouteKnowledge, Reason: reason}
	case wantsSummary:
		return Decision{Route: domain.RouteQuickAnswer, Reason: "summarize request answerable from conversation"}
	}
	return Decision{Route: domain.RouteQuickAnswer, Reason: "conversational message"}
}

// Node returns the graph node function: it records the decision in the state.
func (r *Router) Node() domain.NodeFunc {
	return func(ctx context.Context, state *domain.ConversationState) (domain.Delta, error) {
		d := r.Decide(state)
		return domain.Delta{
			Set:             domain.FieldRoute | domain.FieldDocument,
			Route:           d.Route,
			RoutingReason:   d.Reason,
			DocumentContent: d.Document,
		}, nil
	}
}

// Next is the routing function of the router node.
func (r *Router) Next(state *domain.ConversationState) string {
	return state.Route.Node()
}

// Targets lists the nodes Next may return.
func (r *Router) Targets() []string {
	routes := r.Routes()
	targets := make([]string, len(routes))
	for i, rt := range routes {
		targets[i] = rt.Node()
	}
	return targets
}

// knowledgeSignal explains why the message needs retrieval, or returns "".
func (r *Router) knowledgeSignal(lower string, state *domain.ConversationState) string {
	switch {
	case isSmallTalk(lower, r.smallTalk):
		return ""
	case containsAny(lower, r.knowledgeKeywords), isQuestion(lower):
		return "request for sourced information"
	case followsSourcedAnswer(state) && containsAny(lower, followUpWords):
		return "follow-up to a sourced answer"
	}
	return ""
}

// followsSourcedAnswer reports whether the reply preceding the latest user
// message cited sources.
func followsSourcedAnswer(state *domain.ConversationState) bool {
	last := -1
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == domain.RoleUser {
			last = i
			break
		}
	}
	if last < 1 {
		return false
	}
	prev := state.Messages[last-1]
	return prev.Role == domain.RoleAssistant && strings.Contains(prev.Content, "\n"+domain.SourcesHeading)
}

// inlineDocument extracts the payload following the first colon or line break
// when it is long enough to be a document.
func (r *Router) inlineDocument(msg string) string {
	idx := strings.IndexAny(msg, ":\n")
	if idx < 0 {
		return ""
	}
	doc := strings.TrimSpace(msg[idx+1:])
	if len(doc) < r.minDocumentLength {
		return ""
	}
	return doc
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if containsWord(s, w) {
			return true
		}
	}
	return false
}

// containsWord matches w in s on word boundaries.
func containsWord(s, w string) bool {
	for start := 0; ; {
		i := strings.Index(s[start:], w)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(w)
		before := i == 0 || !isWordRune(rune(s[i-1]))
		after := end == len(s) || !isWordRune(rune(s[end]))
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isSmallTalk(lower string, phrases []string) bool {
	trimmed := strings.TrimFunc(lower, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSpace(r) })
	for _, p := range phrases {
		if trimmed == p {
			return true
		}
		if strings.HasPrefix(trimmed, p+" ") && len(strings.Fields(trimmed)) <= len(strings.Fields(p))+2 {
			return true
		}
	}
	return false
}

func isQuestion(lower string) bool {
	if strings.HasSuffix(strings.TrimSpace(lower), "?") && len(strings.Fields(lower)) >= 3 {
		return true
	}
	fields := strings.Fields(lower)
	if len(fields) < 3 {
		return false
	}
	first := strings.TrimFunc(fields[0], unicode.IsPunct)
	for _, q := range interrogatives {
		if first == q {
			return true
		}
	}
	return false
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}
