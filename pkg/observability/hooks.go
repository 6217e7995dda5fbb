package observability

import (
	"context"

	"github.com/aretw0/relay/pkg/domain"
)

// Compose returns hooks that call each of the given hooks in order.
func Compose(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range all {
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chain(out.OnNodeLeave, h.OnNodeLeave)
		out.OnRetry = chain(out.OnRetry, h.OnRetry)
		out.OnFanOut = chain(out.OnFanOut, h.OnFanOut)
		out.OnCheckpoint = chain(out.OnCheckpoint, h.OnCheckpoint)
		out.OnTurnComplete = chain(out.OnTurnComplete, h.OnTurnComplete)
	}
	return out
}

func chain[E any](first, second func(context.Context, E)) func(context.Context, E) {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	}
	return func(ctx context.Context, e E) {
		first(ctx, e)
		second(ctx, e)
	}
}
