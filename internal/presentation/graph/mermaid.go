package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
)

// Overlay contains the trace of a turn to highlight on the graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromState highlights the nodes visited by the last turn of state.
func OverlayFromState(state *domain.ConversationState) *Overlay {
	if state == nil || len(state.Trace) == 0 {
		return nil
	}
	return &Overlay{
		VisitedNodes: state.Trace,
		CurrentNode:  state.Trace[len(state.Trace)-1],
	}
}

// GenerateMermaid produces a Mermaid flowchart for the graph.
// It applies semantic styling:
// - Entry: ((Circle))
// - Fan-out: [[Subroutine]]
// - Routing: {Rhombus}
// - Default: [Rectangle]
// Checkpoint nodes are annotated, conditional edges are dotted and the
// fallback edge is labelled. Overlay styles are applied when provided.
func GenerateMermaid(g *domain.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, name := range g.Names() {
		node := g.Nodes[name]
		safeID := sanitizeMermaidID(name)

		opener, closer := "[", "]"
		switch {
		case name == g.Entry:
			opener, closer = "((", "))"
		case node.FanOut != nil:
			opener, closer = "[[", "]]"
		case node.Route != nil:
			opener, closer = "{", "}"
		}

		label := name
		if node.Checkpoint {
			label += " <br/> 💾"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		arrow := "-->"
		if node.Route != nil {
			arrow = "-.->"
		}
		for _, to := range node.Edges() {
			fmt.Fprintf(&sb, "    %s %s %s\n", safeID, arrow, sanitizeMermaidID(to))
		}
	}
	fmt.Fprintf(&sb, "    %s((\"%s\"))\n", sanitizeMermaidID(domain.NodeEnd), domain.NodeEnd)

	if g.Fallback != "" {
		sb.WriteString("\n    %% Degraded turns jump to the fallback node\n")
		fmt.Fprintf(&sb, "    failure>\"failure\"] -. fallback .-> %s\n", sanitizeMermaidID(g.Fallback))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

// sanitizeMermaidID also renames "end", a reserved word in flowcharts.
func sanitizeMermaidID(id string) string {
	if id == domain.NodeEnd {
		return "turn_end"
	}
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
