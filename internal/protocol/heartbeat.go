package protocol

import "github.com/nerrad567/icu-core/internal/timing"

// DefaultHeartbeatInterval is how often the perception node says it is alive.
const DefaultHeartbeatInterval timing.Millis = 30000

// HeartbeatTimer schedules liveness messages on the sending side.
type HeartbeatTimer struct {
	iv timing.Interval
}

// NewHeartbeatTimer returns a timer first due one interval after start.
func NewHeartbeatTimer(start, every timing.Millis) *HeartbeatTimer {
	if every == 0 {
		every = DefaultHeartbeatInterval
	}
	h := &HeartbeatTimer{}
	h.iv.Reset(start, every)
	return h
}

// Due reports whether a heartbeat should be sent at now. When it returns
// true the timer re-arms from now.
func (h *HeartbeatTimer) Due(now timing.Millis) bool {
	if !h.iv.Due(now) {
		return false
	}
	h.iv.Reset(now, h.iv.Every())
	return true
}
