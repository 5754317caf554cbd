package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/icu-core/internal/environment"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/protocol"
)

// Measurement names.
const (
	MeasurementLifecycle   = "icu_lifecycle"
	MeasurementPerception  = "icu_perception"
	MeasurementEnvironment = "icu_environment"
)

// WriteTransition records a lifecycle state entry.
func (c *Client) WriteTransition(bootID string, state lifecycle.State, demoPhase string, uptimeMS uint32, at time.Time) {
	c.write(TransitionPoint(c.deviceID, bootID, state, demoPhase, uptimeMS, at))
}

// WritePerception records one decoded perception message.
func (c *Client) WritePerception(bootID string, msg protocol.Message, at time.Time) {
	c.write(PerceptionPoint(c.deviceID, bootID, msg, at))
}

// WriteEnvironment records a climate reading. Readings with no valid
// field are skipped.
func (c *Client) WriteEnvironment(r environment.Reading) {
	c.write(EnvironmentPoint(c.deviceID, r))
}

func (c *Client) write(p *write.Point) {
	if p == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

// TransitionPoint builds the point for a lifecycle transition. The state
// is a tag so dashboards can group by it; the numeric state code is kept
// as a field for step charts.
func TransitionPoint(deviceID, bootID string, state lifecycle.State, demoPhase string, uptimeMS uint32, at time.Time) *write.Point {
	tags := map[string]string{
		"device":  deviceID,
		"boot_id": bootID,
		"state":   state.String(),
	}
	if demoPhase != "" {
		tags["phase"] = demoPhase
	}
	return write.NewPoint(MeasurementLifecycle, tags, map[string]any{
		"code":      int64(state),
		"uptime_ms": int64(uptimeMS),
	}, at)
}

// PerceptionPoint builds the point for a perception message. Detection
// boxes are expanded into numeric fields when they parse.
func PerceptionPoint(deviceID, bootID string, msg protocol.Message, at time.Time) *write.Point {
	if msg.Empty() {
		return nil
	}
	fields := map[string]any{"count": int64(1)}
	if msg.Kind == protocol.Detection {
		if box, err := protocol.ParseBoundingBox(msg.Payload); err == nil {
			x, y := box.Center()
			fields["x"], fields["y"] = int64(box.X), int64(box.Y)
			fields["w"], fields["h"] = int64(box.W), int64(box.H)
			fields["center_x"], fields["center_y"] = int64(x), int64(y)
		}
	}
	return write.NewPoint(MeasurementPerception, map[string]string{
		"device":  deviceID,
		"boot_id": bootID,
		"kind":    msg.Kind.String(),
	}, fields, at)
}

// EnvironmentPoint builds the point for a climate reading, or nil when
// every field is NaN.
func EnvironmentPoint(deviceID string, r environment.Reading) *write.Point {
	vals := r.Fields()
	if len(vals) == 0 {
		return nil
	}
	fields := make(map[string]any, len(vals))
	for k, v := range vals {
		fields[k] = v
	}
	return write.NewPoint(MeasurementEnvironment, map[string]string{"device": deviceID}, fields, r.At)
}
