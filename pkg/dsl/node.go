package dsl

import "github.com/aretw0/relay/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// Describe sets a human readable description, shown by graph renderers.
func (n *NodeBuilder) Describe(text string) *NodeBuilder {
	n.node.Description = text
	return n
}

// Do sets the node's function.
func (n *NodeBuilder) Do(fn domain.NodeFunc) *NodeBuilder {
	n.node.Run = fn
	return n
}

// FanOut makes the node a parallel region running fn once per pending chunk.
// It implies ownership of the partial summaries.
func (n *NodeBuilder) FanOut(fn domain.MapFunc, concurrency int) *NodeBuilder {
	n.node.FanOut = &domain.FanOut{Map: fn, Concurrency: concurrency}
	n.node.Writes |= domain.FieldPartials
	return n
}

// Writes declares the fields the node may write.
func (n *NodeBuilder) Writes(fields ...domain.Field) *NodeBuilder {
	for _, f := range fields {
		n.node.Writes |= f
	}
	return n
}

// Retry overrides the engine's retry policy for this node.
func (n *NodeBuilder) Retry(policy domain.RetryPolicy) *NodeBuilder {
	n.node.Retry = &policy
	return n
}

// Checkpoint persists the state after this node.
func (n *NodeBuilder) Checkpoint() *NodeBuilder {
	n.node.Checkpoint = true
	return n
}

// Finalizer lets the node run after the turn deadline has passed.
func (n *NodeBuilder) Finalizer() *NodeBuilder {
	n.node.Finalizer = true
	return n
}

// Go adds an unconditional transition to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.node.Next = target
	return n
}

// Route adds a conditional transition. Every node fn may return must be listed.
func (n *NodeBuilder) Route(fn domain.RouteFunc, targets ...string) *NodeBuilder {
	n.node.Route = fn
	n.node.Targets = append(n.node.Targets, targets...)
	return n
}

// Terminal marks the node as the last of the turn.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.node.Next = domain.NodeEnd
	return n
}

// Build returns the underlying domain.Node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}
