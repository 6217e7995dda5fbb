package runtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// fanOut dispatches one task per pending chunk and joins their results.
// Every task sees only its own chunk. Results are merged by chunk index, so
// completion order never affects the outcome. The first failure cancels the
// remaining tasks and discards every partial result.
func (e *Engine) fanOut(ctx context.Context, state *domain.ConversationState, node *domain.Node) (domain.Delta, error) {
	chunks := append([]domain.Chunk(nil), state.PendingChunks...)
	limit := node.FanOut.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	started := time.Now()
	results := make([]domain.PartialSummary, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, chunk := range chunks {
		g.Go(func() error {
			return e.withRetry(gctx, state, node, func(ctx context.Context) error {
				partial, err := node.FanOut.Map(ctx, chunk)
				if err != nil {
					return err
				}
				if partial.Index != chunk.Index {
					return &domain.ValidationError{
						Node:   node.Name,
						Reason: fmt.Sprintf("task for chunk %d returned index %d", chunk.Index, partial.Index),
					}
				}
				results[i] = partial
				return nil
			})
		})
	}
	err := g.Wait()
	e.emitFanOut(ctx, state, node, len(chunks), time.Since(started), err)
	if err != nil {
		return domain.Delta{}, errors.Wrapf(err, "fan-out over %d chunks", len(chunks))
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	return domain.Delta{Set: domain.FieldPartials, PartialSummaries: results}, nil
}
