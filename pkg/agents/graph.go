// Package agents wires the router, the processing paths, the synthesizer and
// the memory compactor into the orchestration graph.
//
//	router ─┬─ knowledge ──────────────────────────────────────┐
//	        ├─ summarize ─ summarize_map ─ summarize_reduce ───┼─ synthesize ─┬─ compact ─ end
//	        └─ quick_answer ───────────────────────────────────┘              └─ end
package agents

import (
	"context"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/dsl"
	"github.com/aretw0/relay/pkg/knowledge"
	"github.com/aretw0/relay/pkg/memory"
	"github.com/aretw0/relay/pkg/router"
	"github.com/aretw0/relay/pkg/summarizer"
	"github.com/aretw0/relay/pkg/synthesizer"
	"github.com/pkg/errors"
)

// Agents holds the node implementations of the graph.
type Agents struct {
	Router      *router.Router
	Retriever   *knowledge.Retriever
	Summarizer  *summarizer.Summarizer
	Synthesizer *synthesizer.Synthesizer
	Compactor   *memory.Compactor

	// Concurrency bounds the summarize_map fan-out. Zero uses the engine default.
	Concurrency int

	// Retry overrides the engine policy for the map tasks when set.
	MapRetry *domain.RetryPolicy
}

// NewGraph builds and validates the orchestration graph.
func NewGraph(a Agents) (*domain.Graph, error) {
	switch {
	case a.Router == nil:
		return nil, &domain.ConfigurationError{Node: domain.NodeRouter, Reason: "router is required"}
	case a.Retriever == nil:
		return nil, &domain.ConfigurationError{Node: domain.NodeKnowledge, Reason: "retriever is required"}
	case a.Summarizer == nil:
		return nil, &domain.ConfigurationError{Node: domain.NodeSummarize, Reason: "summarizer is required"}
	case a.Synthesizer == nil:
		return nil, &domain.ConfigurationError{Node: domain.NodeSynthesize, Reason: "synthesizer is required"}
	case a.Compactor == nil:
		return nil, &domain.ConfigurationError{Node: domain.NodeCompact, Reason: "compactor is required"}
	}

	b := dsl.New().Entry(domain.NodeRouter).Fallback(domain.NodeSynthesize)

	b.Add(domain.NodeRouter).
		Describe("Select the processing path for the latest message").
		Do(a.Router.Node()).
		Writes(domain.FieldRoute, domain.FieldDocument).
		Route(a.Router.Next, a.Router.Targets()...)

	b.Add(domain.NodeKnowledge).
		Describe("Query the knowledge base, grade, search the web once if needed").
		Do(a.Retriever.Node()).
		Writes(domain.FieldQuery, domain.FieldRetrieved).
		Go(domain.NodeSynthesize)

	b.Add(domain.NodeSummarize).
		Describe("Split the document into chunks").
		Do(a.Summarizer.SplitNode()).
		Writes(domain.FieldChunks).
		Go(domain.NodeSummarizeMap)

	mapNode := b.Add(domain.NodeSummarizeMap).
		Describe("Summarize every chunk in parallel").
		FanOut(a.Summarizer.MapFunc(), a.Concurrency).
		Go(domain.NodeSummarizeReduce)
	if a.MapRetry != nil {
		mapNode.Retry(*a.MapRetry)
	}

	b.Add(domain.NodeSummarizeReduce).
		Describe("Merge partial summaries in chunk order").
		Do(a.Summarizer.ReduceNode()).
		Writes(domain.FieldSummary).
		Go(domain.NodeSynthesize)

	b.Add(domain.NodeQuickAnswer).
		Describe("Answer from the conversation alone").
		Do(QuickAnswerNode()).
		Writes(domain.FieldQuery).
		Go(domain.NodeSynthesize)

	b.Add(domain.NodeSynthesize).
		Describe("Merge path outputs into the final answer").
		Do(a.Synthesizer.Node()).
		Writes(domain.FieldAnswer).
		Checkpoint().
		Finalizer().
		Route(a.Compactor.Next, domain.NodeCompact, domain.NodeEnd)

	b.Add(domain.NodeCompact).
		Describe("Fold old messages into the running summary").
		Do(a.Compactor.Node()).
		Writes(domain.FieldHistory).
		Checkpoint().
		Finalizer().
		Terminal()

	g, err := b.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building orchestration graph")
	}
	for _, rt := range a.Router.Routes() {
		if _, ok := g.Nodes[rt.Node()]; !ok {
			return nil, &domain.ConfigurationError{Node: domain.NodeRouter, Reason: "route " + string(rt) + " has no node"}
		}
	}
	return g, nil
}

// QuickAnswerNode records the message as the turn's query and defers the
// answer to the synthesizer.
func QuickAnswerNode() domain.NodeFunc {
	return func(ctx context.Context, state *domain.ConversationState) (domain.Delta, error) {
		return domain.Delta{
			Set:   domain.FieldQuery,
			Query: strings.TrimSpace(state.LastUserMessage()),
		}, nil
	}
}
