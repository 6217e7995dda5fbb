package observability

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
)

// TopicPrefix is prepended to the thread id to form the per-thread topic.
const TopicPrefix = "relay.thread."

// Metadata keys set on every published message.
const (
	MetaEventType = "event_type"
	MetaThreadID  = "thread_id"
)

// EventBus publishes engine events as JSON messages, one topic per thread.
type EventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

// EventBusOption configures the EventBus.
type EventBusOption func(*EventBus)

// WithPubSub replaces the in-process channel with another watermill backend.
func WithPubSub(pub message.Publisher, sub message.Subscriber) EventBusOption {
	return func(b *EventBus) {
		b.publisher = pub
		b.subscriber = sub
	}
}

// WithEventLogger configures a logger for publish failures.
func WithEventLogger(logger *slog.Logger) EventBusOption {
	return func(b *EventBus) {
		b.logger = logger
	}
}

// NewEventBus creates a bus backed by an in-process go channel. Publishing
// never waits for subscribers, and events for threads nobody watches are
// dropped.
func NewEventBus(opts ...EventBusOption) *EventBus {
	b := &EventBus{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	if b.publisher == nil || b.subscriber == nil {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
		b.publisher = ch
		b.subscriber = ch
	}
	return b
}

// Topic returns the topic events of a thread are published on.
func Topic(threadID string) string {
	return TopicPrefix + threadID
}

// Subscribe streams the events of one thread until ctx is done.
func (b *EventBus) Subscribe(ctx context.Context, threadID string) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, Topic(threadID))
}

// Publish sends one event. Failures are logged, never returned, so that
// observability cannot fail a turn.
func (b *EventBus) Publish(eventType domain.EventType, threadID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("failed to encode event", "type", eventType, "err", err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetaEventType, string(eventType))
	msg.Metadata.Set(MetaThreadID, threadID)
	if err := b.publisher.Publish(Topic(threadID), msg); err != nil {
		b.logger.Warn("failed to publish event", "type", eventType, "thread_id", threadID, "err", err)
	}
}

// Hooks returns lifecycle hooks that publish every engine event.
func (b *EventBus) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			b.Publish(e.Type, e.ThreadID, e)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			b.Publish(e.Type, e.ThreadID, e)
		},
		OnRetry: func(ctx context.Context, e *domain.RetryEvent) {
			b.Publish(e.Type, e.ThreadID, e)
		},
		OnFanOut: func(ctx context.Context, e *domain.FanOutEvent) {
			b.Publish(e.Type, e.ThreadID, e)
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			b.Publish(e.Type, e.ThreadID, e)
		},
		OnTurnComplete: func(ctx context.Context, e *domain.TurnEvent) {
			b.Publish(e.Type, e.ThreadID, e)
		},
	}
}

// Close releases the underlying publisher and subscriber.
func (b *EventBus) Close() error {
	err := b.publisher.Close()
	if any(b.subscriber) != any(b.publisher) {
		if serr := b.subscriber.Close(); err == nil {
			err = serr
		}
	}
	return err
}
