package dsl

import (
	"github.com/aretw0/relay/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	nodes    map[string]*NodeBuilder
	order    []string
	entry    string
	fallback string
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
// The first node added is the entry point unless Entry is called.
func (b *Builder) Add(name string) *NodeBuilder {
	if nb, ok := b.nodes[name]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{Name: name},
		builder: b,
	}
	b.nodes[name] = nb
	b.order = append(b.order, name)
	return nb
}

// Entry sets the node each turn starts at.
func (b *Builder) Entry(name string) *Builder {
	b.entry = name
	return b
}

// Fallback sets the node that receives control after a hard failure.
func (b *Builder) Fallback(name string) *Builder {
	b.fallback = name
	return b
}

// Build assembles and validates the graph.
// Structural problems are reported as domain.ConfigurationError.
func (b *Builder) Build() (*domain.Graph, error) {
	g := domain.NewGraph()
	g.Entry = b.entry
	if g.Entry == "" && len(b.order) > 0 {
		g.Entry = b.order[0]
	}
	g.Fallback = b.fallback

	for _, name := range b.order {
		node := b.nodes[name].Build()
		g.Nodes[name] = &node
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
