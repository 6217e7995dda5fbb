package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter    EventType = "node_enter"
	EventNodeLeave    EventType = "node_leave"
	EventRetry        EventType = "retry"
	EventFanOut       EventType = "fan_out"
	EventCheckpoint   EventType = "checkpoint"
	EventTurnComplete EventType = "turn_complete"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ThreadID  string    `json:"thread_id"`
}

// NodeEvent represents entry into or exit from a node.
// Duration and Error are only populated on leave.
type NodeEvent struct {
	EventBase
	Node     string        `json:"node"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// RetryEvent is emitted before a transient failure is retried.
type RetryEvent struct {
	EventBase
	Node    string        `json:"node"`
	Attempt int           `json:"attempt"`
	Backoff time.Duration `json:"backoff"`
	Error   string        `json:"error"`
}

// FanOutEvent is emitted when a fan-out region completes.
type FanOutEvent struct {
	EventBase
	Node     string        `json:"node"`
	Tasks    int           `json:"tasks"`
	Failed   bool          `json:"failed,omitempty"`
	Duration time.Duration `json:"duration"`
}

// CheckpointEvent is emitted after state is persisted.
type CheckpointEvent struct {
	EventBase
	Node      string `json:"node"`
	TurnCount int    `json:"turn_count"`
}

// TurnEvent is emitted when a turn finishes, successfully or not.
type TurnEvent struct {
	EventBase
	Route    Route         `json:"route"`
	Degraded bool          `json:"degraded"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Every hook is optional.
type LifecycleHooks struct {
	OnNodeEnter    func(context.Context, *NodeEvent)
	OnNodeLeave    func(context.Context, *NodeEvent)
	OnRetry        func(context.Context, *RetryEvent)
	OnFanOut       func(context.Context, *FanOutEvent)
	OnCheckpoint   func(context.Context, *CheckpointEvent)
	OnTurnComplete func(context.Context, *TurnEvent)
}

// NewEventBase stamps an event header.
func NewEventBase(t EventType, threadID string) EventBase {
	return EventBase{Timestamp: time.Now().UTC(), Type: t, ThreadID: threadID}
}
