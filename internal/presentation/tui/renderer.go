package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/relay"
	"github.com/charmbracelet/glamour"
)

// Renderer turns markdown answers into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer that adapts to the terminal
// background. Without a terminal it returns the markdown unchanged.
func NewRenderer(tty bool, width int) Renderer {
	if !tty {
		return func(markdown string) (string, error) { return markdown + "\n", nil }
	}
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return func(markdown string) (string, error) { return markdown + "\n", nil }
	}
	return r.Render
}

// FormatAnswer renders the answer with a footer naming the route taken.
func FormatAnswer(render Renderer, a relay.Answer) (string, error) {
	body, err := render(a.Text)
	if err != nil {
		return "", err
	}
	footer := fmt.Sprintf("route: %s", a.Route)
	if len(a.Sources) > 0 {
		footer += fmt.Sprintf(" · sources: %d", len(a.Sources))
	}
	if a.Degraded {
		footer += " · degraded"
	}
	return strings.TrimRight(body, "\n") + "\n" + Dim(footer) + "\n", nil
}
