package controller

import (
	"context"
	"time"

	"github.com/nerrad567/icu-core/internal/environment"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/protocol"
	"github.com/nerrad567/icu-core/internal/timing"
)

// EventType names an outbound report. The values double as WebSocket
// channel names.
type EventType string

const (
	EventLifecycleChanged   EventType = "lifecycle.changed"
	EventPerceptionMessage  EventType = "perception.message"
	EventEnvironmentReading EventType = "environment.reading"
	EventStartupFailed      EventType = "startup.failed"
)

// Event is one outbound report produced by the control loop. Only the
// fields relevant to Type are set.
type Event struct {
	Type   EventType
	BootID string
	Time   time.Time
	Uptime timing.Millis

	// EventLifecycleChanged
	State     lifecycle.State
	Previous  lifecycle.State
	DemoPhase string

	// EventPerceptionMessage
	Message protocol.Message

	// EventEnvironmentReading
	Reading environment.Reading

	// EventStartupFailed
	Peripheral string
	Err        string
}

// Sink receives events from the dispatcher goroutine, never from the
// control loop.
type Sink interface {
	Handle(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Handle calls f.
func (f SinkFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
