package runtime

import (
	"context"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/pkg/errors"
)

func (e *Engine) policy(node *domain.Node) domain.RetryPolicy {
	if node.Retry != nil {
		return *node.Retry
	}
	return e.retry
}

// withRetry calls fn until it succeeds, fails permanently or exhausts the
// node's retry policy. Only transient errors are retried, and never once ctx
// itself is done.
func (e *Engine) withRetry(ctx context.Context, state *domain.ConversationState, node *domain.Node, fn func(context.Context) error) error {
	policy := e.policy(node)
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || domain.IsPartial(err) || !domain.IsTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return errors.Wrap(err, "turn deadline reached")
		}
		if attempt >= policy.MaxRetries {
			return errors.Wrapf(err, "gave up after %d attempts", attempt+1)
		}

		backoff := policy.Backoff(attempt)
		e.logger.Debug("retrying transient failure",
			"thread_id", state.CheckpointID,
			"node", node.Name,
			"attempt", attempt+1,
			"backoff", backoff,
			"err", err,
		)
		e.emitRetry(ctx, state, node, attempt+1, backoff, err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(err, "turn deadline reached while backing off")
		case <-timer.C:
		}
	}
}

// runNode executes a plain node on a private copy of the state.
func (e *Engine) runNode(ctx context.Context, state *domain.ConversationState, node *domain.Node) (domain.Delta, error) {
	var delta domain.Delta
	err := e.withRetry(ctx, state, node, func(ctx context.Context) error {
		var err error
		delta, err = node.Run(ctx, state.Clone())
		return err
	})
	return delta, err
}
