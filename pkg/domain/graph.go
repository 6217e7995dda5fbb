package domain

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// NodeFunc is the unit of work of a node. It receives a private copy of the
// state and returns the writes it proposes. Returning a PartialFailure together
// with a non-empty delta contributes partial results.
type NodeFunc func(ctx context.Context, state *ConversationState) (Delta, error)

// MapFunc processes one fan-out task. Each call receives its own chunk.
type MapFunc func(ctx context.Context, chunk Chunk) (PartialSummary, error)

// RouteFunc picks the next node from the updated state. It must be pure.
type RouteFunc func(state *ConversationState) string

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	MaxRetries    int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBase   time.Duration `json:"backoff_base" yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor" mapstructure:"backoff_factor"`
	MaxBackoff    time.Duration `json:"max_backoff" yaml:"max_backoff" mapstructure:"max_backoff"`
}

// DefaultRetryPolicy retries three times starting at 200ms, doubling up to 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BackoffBase:   200 * time.Millisecond,
		BackoffFactor: 2,
		MaxBackoff:    5 * time.Second,
	}
}

// NoRetry disables retries.
func NoRetry() RetryPolicy { return RetryPolicy{} }

// Backoff returns the wait before retry number attempt (zero based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BackoffBase) * math.Pow(factor, float64(attempt))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// FanOut declares a parallel region: the engine runs Map once per pending
// chunk and stores the results as partial summaries, ordered by chunk index.
type FanOut struct {
	Map         MapFunc
	Concurrency int
}

// Node is a named step of the orchestration graph.
type Node struct {
	Name        string
	Description string

	// Exactly one of Run and FanOut is set.
	Run    NodeFunc
	FanOut *FanOut

	// Writes is the node's write contract.
	Writes Field

	// Retry overrides the engine's default policy when set.
	Retry *RetryPolicy

	// Checkpoint persists the state after the node's delta is applied.
	Checkpoint bool

	// Finalizer nodes still run after the turn deadline has passed.
	Finalizer bool

	// Exactly one of Next and Route is set. Targets lists every node Route may return.
	Next    string
	Route   RouteFunc
	Targets []string
}

// Graph is a validated set of nodes with an entry point.
type Graph struct {
	Entry string

	// Fallback receives control when a node fails hard. Usually the synthesizer.
	Fallback string

	Nodes map[string]*Node
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// Names returns the node names in lexical order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Edges returns every possible transition out of a node.
func (n *Node) Edges() []string {
	if n.Route != nil {
		return append([]string(nil), n.Targets...)
	}
	if n.Next != "" {
		return []string{n.Next}
	}
	return nil
}

func (g *Graph) exists(name string) bool {
	if name == NodeEnd {
		return true
	}
	_, ok := g.Nodes[name]
	return ok
}

// Validate checks that every edge resolves to a registered node and that each
// node is well formed. All failures are ConfigurationErrors.
func (g *Graph) Validate() error {
	if g.Entry == "" {
		return &ConfigurationError{Reason: "graph has no entry node"}
	}
	if _, ok := g.Nodes[g.Entry]; !ok {
		return &ConfigurationError{Node: g.Entry, Reason: "entry node is not registered"}
	}
	if g.Fallback != "" {
		if _, ok := g.Nodes[g.Fallback]; !ok {
			return &ConfigurationError{Node: g.Fallback, Reason: "fallback node is not registered"}
		}
	}

	for _, name := range g.Names() {
		n := g.Nodes[name]
		if n.Name != name {
			return &ConfigurationError{Node: name, Reason: fmt.Sprintf("registered under mismatching name %q", n.Name)}
		}
		if name == NodeEnd {
			return &ConfigurationError{Node: name, Reason: "the terminal marker cannot be a node"}
		}
		switch {
		case n.Run != nil && n.FanOut != nil:
			return &ConfigurationError{Node: name, Reason: "node declares both a function and a fan-out"}
		case n.Run == nil && n.FanOut == nil:
			return &ConfigurationError{Node: name, Reason: "node has no function"}
		case n.FanOut != nil && n.FanOut.Map == nil:
			return &ConfigurationError{Node: name, Reason: "fan-out has no map function"}
		case n.FanOut != nil && !n.Writes.Has(FieldPartials):
			return &ConfigurationError{Node: name, Reason: "fan-out node must own partial_summaries"}
		}

		switch {
		case n.Route != nil && n.Next != "":
			return &ConfigurationError{Node: name, Reason: "node declares both a static edge and a routing function"}
		case n.Route == nil && n.Next == "":
			return &ConfigurationError{Node: name, Reason: "node has no outgoing edge"}
		case n.Route != nil && len(n.Targets) == 0:
			return &ConfigurationError{Node: name, Reason: "routing function has no declared targets"}
		}
		for _, target := range n.Edges() {
			if !g.exists(target) {
				return &ConfigurationError{Node: name, Reason: fmt.Sprintf("edge to unknown node %q", target)}
			}
		}
	}
	return nil
}
