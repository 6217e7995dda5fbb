package ports

import (
	"context"
	"time"

	"github.com/aretw0/relay/pkg/domain"
)

// callWithTimeout runs fn under a per-call deadline. A call that overruns
// its own deadline (while the caller's context is still live) is reported as
// a transient failure.
func callWithTimeout[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	out, err := fn(callCtx)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		var zero T
		return zero, domain.Transient(op+" timed out", err)
	}
	return out, err
}

type timedCompleter struct {
	next Completer
	d    time.Duration
}

// WithCompleterTimeout bounds every Complete call by d.
func WithCompleterTimeout(c Completer, d time.Duration) Completer {
	return &timedCompleter{next: c, d: d}
}

func (t *timedCompleter) Complete(ctx context.Context, prompt string, history []domain.Message) (string, error) {
	return callWithTimeout(ctx, t.d, "completion", func(ctx context.Context) (string, error) {
		return t.next.Complete(ctx, prompt, history)
	})
}

type timedIndex struct {
	next DocumentIndex
	d    time.Duration
}

// WithIndexTimeout bounds every Query and Upsert call by d.
func WithIndexTimeout(i DocumentIndex, d time.Duration) DocumentIndex {
	return &timedIndex{next: i, d: d}
}

func (t *timedIndex) Query(ctx context.Context, text string, k int) ([]domain.Document, error) {
	return callWithTimeout(ctx, t.d, "index query", func(ctx context.Context) ([]domain.Document, error) {
		return t.next.Query(ctx, text, k)
	})
}

func (t *timedIndex) Upsert(ctx context.Context, doc domain.Document) error {
	_, err := callWithTimeout(ctx, t.d, "index upsert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.next.Upsert(ctx, doc)
	})
	return err
}

// WithSearchTimeout bounds every Search call by d.
func WithSearchTimeout(s WebSearcher, d time.Duration) WebSearcher {
	return WebSearcherFunc(func(ctx context.Context, query string) ([]domain.Document, error) {
		return callWithTimeout(ctx, d, "web search", func(ctx context.Context) ([]domain.Document, error) {
			return s.Search(ctx, query)
		})
	})
}
