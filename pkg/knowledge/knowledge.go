// Package knowledge implements the retrieval path: it queries the internal
// document index, grades what comes back and, only when too little of it is
// relevant, falls back to a single external web search.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/pkg/errors"
)

const (
	DefaultTopK        = 5
	DefaultMinRelevant = 1
	DefaultMinScore    = 0.5
)

// Result is the outcome of one lookup.
type Result struct {
	Query            string
	Documents        []domain.Document
	ExternalSearches int
}

// Retriever runs lookups. It is safe for concurrent use.
type Retriever struct {
	index    ports.DocumentIndex
	searcher ports.WebSearcher
	grader   Grader
	refiner  ports.Completer

	topK        int
	minRelevant int
	logger      *slog.Logger
}

// Option configures the Retriever.
type Option func(*Retriever)

// WithWebSearch enables the external fallback.
func WithWebSearch(s ports.WebSearcher) Option {
	return func(r *Retriever) {
		r.searcher = s
	}
}

// WithGrader replaces the default score threshold grader.
func WithGrader(g Grader) Option {
	return func(r *Retriever) {
		if g != nil {
			r.grader = g
		}
	}
}

// WithQueryRefinement rewrites the user message into a retrieval query
// using the conversation context before searching.
func WithQueryRefinement(c ports.Completer) Option {
	return func(r *Retriever) {
		r.refiner = c
	}
}

// WithTopK sets how many documents are requested from the index.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithMinRelevant sets how many relevant internal documents avoid the web fallback.
func WithMinRelevant(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.minRelevant = n
		}
	}
}

// WithLogger configures a logger for the Retriever.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// New creates a Retriever over the given index.
func New(index ports.DocumentIndex, opts ...Option) *Retriever {
	r := &Retriever{
		index:       index,
		grader:      ScoreGrader{MinScore: DefaultMinScore},
		topK:        DefaultTopK,
		minRelevant: DefaultMinRelevant,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve queries the internal index. Index failures are transient.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	docs, err := r.index.Query(ctx, query, r.topK)
	if err != nil {
		if domain.IsTransient(err) {
			return nil, err
		}
		return nil, domain.Transient("document index", err)
	}
	for i := range docs {
		if docs[i].SourceType == "" {
			docs[i].SourceType = domain.SourceInternal
		}
	}
	return docs, nil
}

// Grade keeps the documents relevant to query.
func (r *Retriever) Grade(ctx context.Context, docs []domain.Document, query string) ([]domain.Document, error) {
	return r.grader.Grade(ctx, query, docs)
}

// Lookup performs the whole retrieval for the state's latest message.
//
// At most one web search is issued. Everything that may fail transiently
// happens before it, so a retried lookup never repeats a search. A failed
// search yields the internal results together with a PartialFailure.
func (r *Retriever) Lookup(ctx context.Context, state *domain.ConversationState) (Result, error) {
	query := r.refine(ctx, state)
	res := Result{Query: query}

	internal, err := r.Retrieve(ctx, query)
	if err != nil {
		return res, err
	}
	relevant, err := r.Grade(ctx, internal, query)
	if err != nil {
		return res, domain.Transient("grading", err)
	}
	SortByScore(relevant)
	res.Documents = relevant

	if len(relevant) >= r.minRelevant || r.searcher == nil {
		return res, nil
	}

	r.logger.Debug("internal results insufficient, searching the web",
		"thread_id", state.CheckpointID,
		"relevant", len(relevant),
		"required", r.minRelevant,
	)
	res.ExternalSearches = 1
	external, err := r.searcher.Search(ctx, query)
	if err != nil {
		return res, domain.Partial(domain.NodeKnowledge, errors.Wrap(err, "web search"))
	}

	now := time.Now().UTC()
	merged := append([]domain.Document(nil), relevant...)
	for _, d := range external {
		d.SourceType = domain.SourceExternal
		if d.Timestamp.IsZero() {
			d.Timestamp = now
		}
		merged = append(merged, d)
	}

	regraded, err := r.Grade(ctx, merged, query)
	if err != nil {
		r.logger.Warn("re-grading after web search failed, keeping all results",
			"thread_id", state.CheckpointID,
			"err", err,
		)
		regraded = merged
	}
	SortByScore(regraded)
	res.Documents = regraded
	return res, nil
}

// Node returns the graph node function for the knowledge path.
func (r *Retriever) Node() domain.NodeFunc {
	return func(ctx context.Context, state *domain.ConversationState) (domain.Delta, error) {
		res, err := r.Lookup(ctx, state)
		if err != nil && !domain.IsPartial(err) {
			return domain.Delta{}, err
		}
		return domain.Delta{
			Set:                domain.FieldQuery | domain.FieldRetrieved,
			Query:              res.Query,
			RetrievedDocuments: res.Documents,
			KnowledgeAttempted: true,
			ExternalSearches:   res.ExternalSearches,
		}, err
	}
}

const refinePrompt = `Rewrite the user's latest message as a standalone search query for a
knowledge base. Resolve pronouns using the conversation. Reply with the query only.

Latest message: %s`

func (r *Retriever) refine(ctx context.Context, state *domain.ConversationState) string {
	raw := strings.TrimSpace(state.LastUserMessage())
	if r.refiner == nil || raw == "" {
		return raw
	}
	history := state.Messages
	if len(history) > 0 {
		history = history[:len(history)-1]
	}
	out, err := r.refiner.Complete(ctx, fmt.Sprintf(refinePrompt, raw), history)
	if err != nil {
		r.logger.Warn("query refinement failed, using raw query", "thread_id", state.CheckpointID, "err", err)
		return raw
	}
	if q := strings.TrimSpace(out); q != "" {
		return q
	}
	return raw
}
