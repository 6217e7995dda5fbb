package ports_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slow(ctx context.Context, prompt string, history []domain.Message) (string, error) {
	select {
	case <-time.After(time.Second):
		return "late", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestCompleterTimeout_IsTransient(t *testing.T) {
	c := ports.WithCompleterTimeout(ports.CompleterFunc(slow), 10*time.Millisecond)
	_, err := c.Complete(context.Background(), "p", nil)
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestCompleterTimeout_CallerCancellationPassesThrough(t *testing.T) {
	c := ports.WithCompleterTimeout(ports.CompleterFunc(slow), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Complete(ctx, "p", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, domain.IsTransient(err))
}

func TestCompleterTimeout_Zero(t *testing.T) {
	fast := ports.CompleterFunc(func(ctx context.Context, p string, h []domain.Message) (string, error) {
		_, has := ctx.Deadline()
		assert.False(t, has)
		return "ok", nil
	})
	out, err := ports.WithCompleterTimeout(fast, 0).Complete(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestSearchTimeout(t *testing.T) {
	s := ports.WithSearchTimeout(ports.WebSearcherFunc(func(ctx context.Context, q string) ([]domain.Document, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 10*time.Millisecond)
	_, err := s.Search(context.Background(), "q")
	assert.True(t, domain.IsTransient(err))
}
