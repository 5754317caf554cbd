package controller

import (
	"fmt"
	"maps"
	"sync"
	"time"
)

// Driver is whichever sequencer currently owns the lifecycle.
type Driver int

const (
	DriverStartup Driver = iota
	DriverDemo
	DriverHalted
)

func (d Driver) String() string {
	switch d {
	case DriverStartup:
		return "startup"
	case DriverDemo:
		return "demo"
	case DriverHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// MarshalText renders the driver by name.
func (d Driver) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a driver name.
func (d *Driver) UnmarshalText(b []byte) error {
	for _, v := range []Driver{DriverStartup, DriverDemo, DriverHalted} {
		if v.String() == string(b) {
			*d = v
			return nil
		}
	}
	return fmt.Errorf("unknown driver %q", b)
}

// MessageRecord is the last perception message seen.
type MessageRecord struct {
	Kind    string    `json:"kind"`
	Payload string    `json:"payload"`
	At      time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of controller status.
type Snapshot struct {
	BootID        string             `json:"boot_id"`
	StartedAt     time.Time          `json:"started_at"`
	State         string             `json:"state"`
	StateSince    time.Time          `json:"state_since"`
	Driver        Driver             `json:"driver"`
	StartupStep   string             `json:"startup_step"`
	Initialized   []string           `json:"initialized"`
	Failure       string             `json:"failure,omitempty"`
	DemoPhase     string             `json:"demo_phase,omitempty"`
	DemoCycles    int                `json:"demo_cycles"`
	LastMessage   *MessageRecord     `json:"last_message,omitempty"`
	LastHeartbeat *time.Time         `json:"last_heartbeat,omitempty"`
	Messages      map[string]uint64  `json:"messages"`
	Environment   map[string]float64 `json:"environment,omitempty"`
	Passes        uint64             `json:"passes"`
	EventsDropped uint64             `json:"events_dropped"`
}

// status is written by the control loop and read by the API.
type status struct {
	mu   sync.RWMutex
	snap Snapshot
}

func (s *status) update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.mu.Unlock()
}

func (s *status) copy() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.snap
	out.Initialized = append([]string(nil), s.snap.Initialized...)
	out.Messages = maps.Clone(s.snap.Messages)
	out.Environment = maps.Clone(s.snap.Environment)
	if s.snap.LastMessage != nil {
		m := *s.snap.LastMessage
		out.LastMessage = &m
	}
	if s.snap.LastHeartbeat != nil {
		t := *s.snap.LastHeartbeat
		out.LastHeartbeat = &t
	}
	return out
}
