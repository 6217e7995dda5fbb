package tui_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/presentation/tui"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAnswer_Plain(t *testing.T) {
	out, err := tui.FormatAnswer(tui.NewRenderer(false, 0), relay.Answer{
		Text:     "Refunds take **30 days**.",
		Route:    domain.RouteKnowledge,
		Degraded: true,
		Sources:  []domain.Document{{Source: "policy.md"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Refunds take **30 days**.")
	assert.Contains(t, out, "route: knowledge")
	assert.Contains(t, out, "sources: 1")
	assert.Contains(t, out, "degraded")
}

func TestFormatAnswer_Markdown(t *testing.T) {
	out, err := tui.FormatAnswer(tui.NewRenderer(true, 80), relay.Answer{Text: "# Title", Route: domain.RouteQuickAnswer})
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf)
	assert.NotEmpty(t, buf.String())
}
