package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	base := errors.New("rate limited")

	assert.True(t, IsTransient(Transient("complete", base)))
	assert.True(t, IsTransient(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(base))
	assert.Nil(t, Transient("op", nil))

	pf := Partial(NodeKnowledge, base)
	assert.True(t, IsPartial(pf))
	assert.ErrorIs(t, pf, base)
	assert.Contains(t, pf.Error(), `"knowledge"`)

	assert.True(t, IsValidation(fmt.Errorf("wrapped: %w", &ValidationError{Reason: "x"})))
	assert.True(t, IsConfiguration(&ConfigurationError{Node: "router", Reason: "unknown target"}))
	assert.False(t, IsConfiguration(base))
}

func TestRoute(t *testing.T) {
	assert.True(t, RouteSummarize.Valid())
	assert.False(t, Route("other").Valid())
	assert.Equal(t, NodeQuickAnswer, RouteQuickAnswer.Node())
	assert.Equal(t, NodeEnd, RouteEnd.Node())
}
