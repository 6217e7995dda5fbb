package runtime

import (
	"context"
	"time"

	"github.com/aretw0/relay/pkg/domain"
)

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (e *Engine) emitNodeEnter(ctx context.Context, state *domain.ConversationState, node *domain.Node) {
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase: domain.NewEventBase(domain.EventNodeEnter, state.CheckpointID),
		Node:      node.Name,
	})
}

func (e *Engine) emitNodeLeave(ctx context.Context, state *domain.ConversationState, node *domain.Node, d time.Duration, err error) {
	if e.hooks.OnNodeLeave == nil {
		return
	}
	e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase: domain.NewEventBase(domain.EventNodeLeave, state.CheckpointID),
		Node:      node.Name,
		Duration:  d,
		Error:     errString(err),
	})
}

func (e *Engine) emitRetry(ctx context.Context, state *domain.ConversationState, node *domain.Node, attempt int, backoff time.Duration, err error) {
	if e.hooks.OnRetry == nil {
		return
	}
	e.hooks.OnRetry(ctx, &domain.RetryEvent{
		EventBase: domain.NewEventBase(domain.EventRetry, state.CheckpointID),
		Node:      node.Name,
		Attempt:   attempt,
		Backoff:   backoff,
		Error:     errString(err),
	})
}

func (e *Engine) emitFanOut(ctx context.Context, state *domain.ConversationState, node *domain.Node, tasks int, d time.Duration, err error) {
	if e.hooks.OnFanOut == nil {
		return
	}
	e.hooks.OnFanOut(ctx, &domain.FanOutEvent{
		EventBase: domain.NewEventBase(domain.EventFanOut, state.CheckpointID),
		Node:      node.Name,
		Tasks:     tasks,
		Failed:    err != nil,
		Duration:  d,
	})
}

func (e *Engine) emitCheckpoint(ctx context.Context, state *domain.ConversationState, at string) {
	if e.hooks.OnCheckpoint == nil {
		return
	}
	e.hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{
		EventBase: domain.NewEventBase(domain.EventCheckpoint, state.CheckpointID),
		Node:      at,
		TurnCount: state.TurnCount,
	})
}

func (e *Engine) emitTurnComplete(ctx context.Context, state *domain.ConversationState, steps int, d time.Duration, err error) {
	if e.hooks.OnTurnComplete == nil {
		return
	}
	e.hooks.OnTurnComplete(ctx, &domain.TurnEvent{
		EventBase: domain.NewEventBase(domain.EventTurnComplete, state.CheckpointID),
		Route:     state.Route,
		Degraded:  state.Degraded,
		Steps:     steps,
		Duration:  d,
		Error:     errString(err),
	})
}
