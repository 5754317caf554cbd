package report

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/icu-core/internal/controller"
	"github.com/nerrad567/icu-core/internal/environment"
	"github.com/nerrad567/icu-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/protocol"
)

// JournalWriter is the subset of *journal.Journal used here.
type JournalWriter interface {
	RecordTransition(ctx context.Context, bootID string, state, previous lifecycle.State, demoPhase string, uptimeMS uint32, at time.Time) error
	RecordMessage(ctx context.Context, bootID string, msg protocol.Message, at time.Time) error
}

// Publisher is the subset of *mqtt.Client used here.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	Topics() mqtt.Topics
}

// PointWriter is the subset of *influxdb.Client used here.
type PointWriter interface {
	WriteTransition(bootID string, state lifecycle.State, demoPhase string, uptimeMS uint32, at time.Time)
	WritePerception(bootID string, msg protocol.Message, at time.Time)
	WriteEnvironment(r environment.Reading)
}

// ErrorCounter receives the sink name on every failed delivery.
type ErrorCounter interface {
	SinkError(sink string)
}

// Journal persists lifecycle transitions and perception messages.
func Journal(j JournalWriter) controller.Sink {
	return controller.SinkFunc(func(ctx context.Context, ev controller.Event) error {
		switch ev.Type {
		case controller.EventLifecycleChanged:
			return j.RecordTransition(ctx, ev.BootID, ev.State, ev.Previous, ev.DemoPhase, uint32(ev.Uptime), ev.Time)
		case controller.EventPerceptionMessage:
			return j.RecordMessage(ctx, ev.BootID, ev.Message, ev.Time)
		}
		return nil
	})
}

// Influx writes every event type that has a measurement.
func Influx(w PointWriter) controller.Sink {
	return controller.SinkFunc(func(_ context.Context, ev controller.Event) error {
		switch ev.Type {
		case controller.EventLifecycleChanged:
			w.WriteTransition(ev.BootID, ev.State, ev.DemoPhase, uint32(ev.Uptime), ev.Time)
		case controller.EventPerceptionMessage:
			w.WritePerception(ev.BootID, ev.Message, ev.Time)
		case controller.EventEnvironmentReading:
			w.WriteEnvironment(ev.Reading)
		}
		return nil
	})
}

// LifecyclePayload is published retained on the lifecycle topic.
type LifecyclePayload struct {
	State     lifecycle.State `json:"state"`
	Previous  lifecycle.State `json:"previous"`
	DemoPhase string          `json:"demo_phase,omitempty"`
	BootID    string          `json:"boot_id"`
	UptimeMS  uint32          `json:"uptime_ms"`
	Timestamp time.Time       `json:"timestamp"`
}

// PerceptionPayload is published on the per-kind perception topic.
type PerceptionPayload struct {
	Kind      protocol.EventKind    `json:"kind"`
	Payload   string                `json:"payload"`
	Box       *protocol.BoundingBox `json:"bbox,omitempty"`
	BootID    string                `json:"boot_id"`
	Timestamp time.Time             `json:"timestamp"`
}

// EnvironmentPayload holds only the fields the sensor produced.
type EnvironmentPayload struct {
	Fields    map[string]float64 `json:"fields"`
	Timestamp time.Time          `json:"timestamp"`
}

// StartupFailurePayload reports a peripheral that failed bring-up.
type StartupFailurePayload struct {
	Peripheral string    `json:"peripheral"`
	Error      string    `json:"error"`
	BootID     string    `json:"boot_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Payload returns the JSON body reported for ev, or false when ev has
// nothing to report (an all-NaN reading or an unknown type).
func Payload(ev controller.Event) (any, bool) {
	switch ev.Type {
	case controller.EventLifecycleChanged:
		return LifecyclePayload{
			State:     ev.State,
			Previous:  ev.Previous,
			DemoPhase: ev.DemoPhase,
			BootID:    ev.BootID,
			UptimeMS:  uint32(ev.Uptime),
			Timestamp: ev.Time,
		}, true

	case controller.EventPerceptionMessage:
		out := PerceptionPayload{
			Kind:      ev.Message.Kind,
			Payload:   ev.Message.Payload,
			BootID:    ev.BootID,
			Timestamp: ev.Time,
		}
		if ev.Message.Kind == protocol.Detection {
			if box, err := protocol.ParseBoundingBox(ev.Message.Payload); err == nil {
				out.Box = &box
			}
		}
		return out, true

	case controller.EventEnvironmentReading:
		fields := ev.Reading.Fields()
		if len(fields) == 0 {
			return nil, false
		}
		return EnvironmentPayload{Fields: fields, Timestamp: ev.Reading.At}, true

	case controller.EventStartupFailed:
		return StartupFailurePayload{
			Peripheral: ev.Peripheral,
			Error:      ev.Err,
			BootID:     ev.BootID,
			Timestamp:  ev.Time,
		}, true
	}
	return nil, false
}

// MQTT publishes events under the client's topic prefix. Only the
// lifecycle state is retained.
func MQTT(p Publisher) controller.Sink {
	return controller.SinkFunc(func(_ context.Context, ev controller.Event) error {
		payload, ok := Payload(ev)
		if !ok {
			return nil
		}
		topics := p.Topics()
		switch ev.Type {
		case controller.EventLifecycleChanged:
			return p.PublishJSON(topics.Lifecycle(), payload, true)
		case controller.EventPerceptionMessage:
			return p.PublishJSON(topics.Perception(ev.Message.Kind.String()), payload, false)
		case controller.EventEnvironmentReading:
			return p.PublishJSON(topics.Environment(), payload, false)
		case controller.EventStartupFailed:
			return p.PublishJSON(topics.StartupFailure(), payload, false)
		}
		return nil
	})
}

// Counted reports failures of sink to counter under name. The error is
// still returned so the dispatcher logs it.
func Counted(name string, sink controller.Sink, counter ErrorCounter) controller.Sink {
	return controller.SinkFunc(func(ctx context.Context, ev controller.Event) error {
		if err := sink.Handle(ctx, ev); err != nil {
			if counter != nil {
				counter.SinkError(name)
			}
			return fmt.Errorf("%s sink: %w", name, err)
		}
		return nil
	})
}
