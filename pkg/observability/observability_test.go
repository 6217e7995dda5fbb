package observability_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	var order []string
	a := domain.LifecycleHooks{OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) { order = append(order, "a") }}
	b := domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) { order = append(order, "b") },
		OnRetry:     func(ctx context.Context, e *domain.RetryEvent) { order = append(order, "retry") },
	}

	h := observability.Compose(a, domain.LifecycleHooks{}, b)
	h.OnNodeEnter(context.Background(), &domain.NodeEvent{})
	h.OnRetry(context.Background(), &domain.RetryEvent{})

	assert.Equal(t, []string{"a", "b", "retry"}, order)
	assert.Nil(t, h.OnCheckpoint)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	h := m.Hooks()
	ctx := context.Background()

	h.OnNodeEnter(ctx, &domain.NodeEvent{Node: "router"})
	h.OnNodeEnter(ctx, &domain.NodeEvent{Node: "knowledge"})
	h.OnNodeLeave(ctx, &domain.NodeEvent{Node: "knowledge", Duration: time.Millisecond, Error: "boom"})
	h.OnRetry(ctx, &domain.RetryEvent{Node: "knowledge"})
	h.OnFanOut(ctx, &domain.FanOutEvent{Node: "summarize_map", Tasks: 20})
	h.OnCheckpoint(ctx, &domain.CheckpointEvent{Node: "synthesize"})
	h.OnTurnComplete(ctx, &domain.TurnEvent{Route: domain.RouteKnowledge, Degraded: true})

	assert.Equal(t, 2.0, counterValue(t, reg, "relay_node_visits_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "relay_node_errors_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "relay_retries_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "relay_checkpoints_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "relay_turns_total"))

	_, err = observability.NewMetrics(reg)
	assert.Error(t, err, "collectors register once per registry")
}

func TestEventBus(t *testing.T) {
	bus := observability.NewEventBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := bus.Subscribe(ctx, "t1")
	require.NoError(t, err)

	h := bus.Hooks()
	h.OnNodeEnter(ctx, &domain.NodeEvent{EventBase: domain.NewEventBase(domain.EventNodeEnter, "t1"), Node: "router"})
	h.OnNodeEnter(ctx, &domain.NodeEvent{EventBase: domain.NewEventBase(domain.EventNodeEnter, "other"), Node: "router"})

	select {
	case msg := <-messages:
		assert.Equal(t, string(domain.EventNodeEnter), msg.Metadata.Get(observability.MetaEventType))
		assert.Equal(t, "t1", msg.Metadata.Get(observability.MetaThreadID))
		var e domain.NodeEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &e))
		assert.Equal(t, "router", e.Node)
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	select {
	case msg := <-messages:
		t.Fatalf("received event for another thread: %s", msg.Metadata.Get(observability.MetaThreadID))
	case <-time.After(50 * time.Millisecond):
	}
}
