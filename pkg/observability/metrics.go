package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by the engine hooks.
type Metrics struct {
	turns       *prometheus.CounterVec
	turnSeconds *prometheus.HistogramVec
	nodeVisits  *prometheus.CounterVec
	nodeSeconds *prometheus.HistogramVec
	nodeErrors  *prometheus.CounterVec
	retries     *prometheus.CounterVec
	fanOutTasks *prometheus.HistogramVec
	checkpoints *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_turns_total",
			Help: "Turns completed, by route and outcome.",
		}, []string{"route", "degraded", "aborted"}),
		turnSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_turn_duration_seconds",
			Help:    "Wall time of a turn.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"route"}),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_node_visits_total",
			Help: "Total number of node visits.",
		}, []string{"node"}),
		nodeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_node_duration_seconds",
			Help:    "Duration of node executions, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_node_errors_total",
			Help: "Node executions that returned an error.",
		}, []string{"node"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_retries_total",
			Help: "Transient failures retried.",
		}, []string{"node"}),
		fanOutTasks: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_fanout_tasks",
			Help:    "Tasks dispatched per fan-out region.",
			Buckets: prometheus.LinearBuckets(1, 4, 10),
		}, []string{"node"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_checkpoints_total",
			Help: "Checkpoints written, by boundary.",
		}, []string{"node"}),
	}

	for _, c := range []prometheus.Collector{
		m.turns, m.turnSeconds, m.nodeVisits, m.nodeSeconds, m.nodeErrors, m.retries, m.fanOutTasks, m.checkpoints,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(e.Node).Inc()
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			m.nodeSeconds.WithLabelValues(e.Node).Observe(e.Duration.Seconds())
			if e.Error != "" {
				m.nodeErrors.WithLabelValues(e.Node).Inc()
			}
		},
		OnRetry: func(ctx context.Context, e *domain.RetryEvent) {
			m.retries.WithLabelValues(e.Node).Inc()
		},
		OnFanOut: func(ctx context.Context, e *domain.FanOutEvent) {
			m.fanOutTasks.WithLabelValues(e.Node).Observe(float64(e.Tasks))
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			m.checkpoints.WithLabelValues(e.Node).Inc()
		},
		OnTurnComplete: func(ctx context.Context, e *domain.TurnEvent) {
			route := string(e.Route)
			if route == "" {
				route = "none"
			}
			m.turns.WithLabelValues(route, strconv.FormatBool(e.Degraded), strconv.FormatBool(e.Error != "")).Inc()
			m.turnSeconds.WithLabelValues(route).Observe(e.Duration.Seconds())
		},
	}
}
