package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/pkg/errors"
)

const (
	// DefaultMaxSteps guards against cycles in a turn.
	DefaultMaxSteps = 32

	// DefaultConcurrency bounds fan-out regions that do not set their own limit.
	DefaultConcurrency = 8
)

// FallbackAnswerFunc produces the answer used when the fallback node itself fails.
type FallbackAnswerFunc func(state *domain.ConversationState) string

// Engine runs one turn at a time over a validated graph.
// It is safe for concurrent use by turns of different threads.
type Engine struct {
	graph *domain.Graph
	store ports.CheckpointStore

	retry          domain.RetryPolicy
	turnTimeout    time.Duration
	maxSteps       int
	fallbackAnswer FallbackAnswerFunc

	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithStore sets the checkpoint store used at checkpoint boundaries.
func WithStore(store ports.CheckpointStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithRetryPolicy sets the default retry policy for nodes without their own.
func WithRetryPolicy(p domain.RetryPolicy) Option {
	return func(e *Engine) {
		e.retry = p
	}
}

// WithTurnTimeout bounds the wall time of path nodes. Finalizer nodes are exempt.
func WithTurnTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.turnTimeout = d
	}
}

// WithMaxSteps bounds the number of nodes executed per turn.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithFallbackAnswer sets the answer used when the fallback node fails hard.
func WithFallbackAnswer(fn FallbackAnswerFunc) Option {
	return func(e *Engine) {
		e.fallbackAnswer = fn
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger configures a logger for the Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine validates the graph and creates an engine for it.
func NewEngine(graph *domain.Graph, opts ...Option) (*Engine, error) {
	if graph == nil {
		return nil, &domain.ConfigurationError{Reason: "nil graph"}
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		graph:          graph,
		retry:          domain.DefaultRetryPolicy(),
		maxSteps:       DefaultMaxSteps,
		fallbackAnswer: DefaultFallbackAnswer,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Graph returns the graph the engine runs.
func (e *Engine) Graph() *domain.Graph {
	return e.graph
}

// DefaultFallbackAnswer is used when even the fallback node cannot answer.
func DefaultFallbackAnswer(state *domain.ConversationState) string {
	return "I'm sorry, I could not complete your request right now. Please try again."
}

// Run executes one turn starting at entry (the graph entry when empty).
// The caller must have appended the user message with BeginTurn.
// It returns the updated state and the final answer. A ValidationError or
// ConfigurationError aborts the turn; every other failure degrades it.
func (e *Engine) Run(ctx context.Context, state *domain.ConversationState, entry string) (*domain.ConversationState, string, error) {
	if entry == "" {
		entry = e.graph.Entry
	}
	started := time.Now()

	turnCtx := ctx
	if e.turnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, e.turnTimeout)
		defer cancel()
	}

	steps, saved, err := e.loop(ctx, turnCtx, state, entry)
	if err == nil {
		err = e.finish(ctx, state, saved)
	}

	e.emitTurnComplete(ctx, state, steps, time.Since(started), err)
	if err != nil {
		e.logger.Error("turn aborted", "thread_id", state.CheckpointID, "turn", state.TurnCount, "err", err)
		return state, "", err
	}
	e.logger.Debug("turn complete",
		"thread_id", state.CheckpointID,
		"turn", state.TurnCount,
		"route", state.Route,
		"degraded", state.Degraded,
		"steps", steps,
	)
	return state, state.FinalAnswer, nil
}

// loop runs nodes until the end sentinel. saved reports whether the last
// node checkpointed the state it left behind.
func (e *Engine) loop(ctx, turnCtx context.Context, state *domain.ConversationState, current string) (steps int, saved bool, err error) {
	for current != domain.NodeEnd {
		if steps >= e.maxSteps {
			return steps, false, &domain.ConfigurationError{Node: current, Reason: fmt.Sprintf("turn exceeded %d steps", e.maxSteps)}
		}
		steps++

		node, ok := e.graph.Nodes[current]
		if !ok {
			return steps, false, &domain.ConfigurationError{Node: current, Reason: "node is not registered"}
		}

		nodeCtx := turnCtx
		if node.Finalizer {
			nodeCtx = ctx
		}

		state.Trace = append(state.Trace, node.Name)
		var next string
		next, saved, err = e.step(nodeCtx, state, node)
		if err != nil {
			return steps, false, err
		}
		current = next
	}
	return steps, saved, nil
}

// step runs one node and returns the name of the next one, and whether the
// node's checkpoint was written.
func (e *Engine) step(ctx context.Context, state *domain.ConversationState, node *domain.Node) (string, bool, error) {
	if err := ctx.Err(); err != nil && !node.Finalizer {
		next, err := e.degrade(ctx, state, node, errors.Wrap(err, "turn deadline reached before node started"))
		return next, false, err
	}

	e.emitNodeEnter(ctx, state, node)
	started := time.Now()

	var (
		delta domain.Delta
		err   error
	)
	if node.FanOut != nil {
		delta, err = e.fanOut(ctx, state, node)
	} else {
		delta, err = e.runNode(ctx, state, node)
	}
	e.emitNodeLeave(ctx, state, node, time.Since(started), err)

	switch {
	case err == nil:
	case domain.IsValidation(err), domain.IsConfiguration(err):
		return "", false, err
	case domain.IsPartial(err) && !delta.Empty():
		e.logger.Warn("node returned partial results", "thread_id", state.CheckpointID, "node", node.Name, "err", err)
		recordFailure(state, node, err)
	default:
		next, err := e.degrade(ctx, state, node, err)
		return next, false, err
	}

	if err := e.apply(state, node, delta); err != nil {
		return "", false, err
	}
	if node.Checkpoint {
		if err := e.checkpoint(context.WithoutCancel(ctx), state, node.Name); err != nil {
			return "", false, err
		}
	}
	next, err := e.next(state, node)
	return next, node.Checkpoint, err
}

// degrade records a hard failure and transfers control to the fallback node.
// Once an answer exists, or when the fallback node itself failed, the node's
// normal edge is followed instead.
func (e *Engine) degrade(ctx context.Context, state *domain.ConversationState, node *domain.Node, cause error) (string, error) {
	if state.FinalAnswer != "" {
		e.logger.Warn("node failed after the answer was set", "thread_id", state.CheckpointID, "node", node.Name, "err", cause)
	} else {
		e.logger.Warn("node failed, degrading turn", "thread_id", state.CheckpointID, "node", node.Name, "err", cause)
	}
	recordFailure(state, node, cause)
	state.PendingChunks = nil
	state.PartialSummaries = nil

	if node.Name == e.graph.Fallback && state.FinalAnswer == "" {
		// Written on behalf of the fallback node, which owns the answer.
		if err := e.apply(state, node, domain.Delta{Set: domain.FieldAnswer, FinalAnswer: e.fallbackAnswer(state)}); err != nil {
			return "", err
		}
	}

	if state.FinalAnswer != "" || e.graph.Fallback == "" || node.Name == e.graph.Fallback {
		if node.Route != nil {
			return e.next(state, node)
		}
		return node.Next, nil
	}
	return e.graph.Fallback, nil
}

// apply merges a delta after enforcing the node's write contract and the
// single-writer invariants of the state.
func (e *Engine) apply(state *domain.ConversationState, node *domain.Node, d domain.Delta) error {
	if extra := d.Set.Outside(node.Writes); extra != domain.FieldNone {
		return &domain.ValidationError{
			Node:   node.Name,
			Reason: fmt.Sprintf("delta writes %s outside the node's contract (%s)", extra, node.Writes),
		}
	}
	if d.Set.Has(domain.FieldRoute) {
		if state.Route != domain.RouteNone {
			return &domain.ValidationError{Node: node.Name, Reason: "route already decided for this turn"}
		}
		if !d.Route.Valid() {
			return &domain.ValidationError{Node: node.Name, Reason: fmt.Sprintf("unknown route %q", d.Route)}
		}
	}
	if d.Set.Has(domain.FieldAnswer) && state.FinalAnswer != "" {
		return &domain.ValidationError{Node: node.Name, Reason: "final answer already set for this turn"}
	}
	if d.Set.Has(domain.FieldSummary) && len(state.PartialSummaries) != len(state.PendingChunks) {
		return &domain.ValidationError{
			Node:   node.Name,
			Reason: fmt.Sprintf("reduce with %d partial summaries for %d chunks", len(state.PartialSummaries), len(state.PendingChunks)),
		}
	}
	state.Apply(d)
	return nil
}

func (e *Engine) next(state *domain.ConversationState, node *domain.Node) (string, error) {
	if node.Route == nil {
		return node.Next, nil
	}
	target := node.Route(state)
	for _, t := range node.Targets {
		if t == target {
			return target, nil
		}
	}
	return "", &domain.ConfigurationError{Node: node.Name, Reason: fmt.Sprintf("routing function returned undeclared target %q", target)}
}

// finish enforces end-of-turn invariants and writes the final checkpoint,
// unless the last node already saved the same state.
func (e *Engine) finish(ctx context.Context, state *domain.ConversationState, saved bool) error {
	if len(state.PendingChunks) > 0 || len(state.PartialSummaries) > 0 {
		return &domain.ValidationError{Reason: "map-reduce scratch left at end of turn"}
	}
	if saved {
		return nil
	}
	return e.checkpoint(context.WithoutCancel(ctx), state, domain.NodeEnd)
}

func (e *Engine) checkpoint(ctx context.Context, state *domain.ConversationState, at string) error {
	state.UpdatedAt = time.Now().UTC()
	if e.store == nil {
		return nil
	}
	if err := e.store.Save(ctx, state.CheckpointID, state); err != nil {
		return errors.Wrapf(err, "checkpoint after %s", at)
	}
	e.emitCheckpoint(ctx, state, at)
	return nil
}

func failureNote(node *domain.Node, err error) string {
	return fmt.Sprintf("%s: %v", node.Name, err)
}

// recordFailure notes a node failure on the turn. Failures after the answer
// was set leave it marked whole, since its text can no longer carry the
// degraded note.
func recordFailure(state *domain.ConversationState, node *domain.Node, err error) {
	if state.FinalAnswer != "" {
		state.Failures = append(state.Failures, failureNote(node, err))
		return
	}
	state.MarkDegraded(failureNote(node, err))
}
