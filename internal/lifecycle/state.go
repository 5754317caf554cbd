package lifecycle

import (
	"fmt"
	"strings"
)

// State is the device-wide behavioural mode.
type State int

// Lifecycle states. The numeric order matches the indicator command codes
// (WakeUp is command 1).
const (
	WakeUp State = iota
	Scanning
	Detection
	Napping
	FullAsleep
	Error
)

var stateNames = [...]string{
	WakeUp:     "WAKE_UP",
	Scanning:   "SCANNING",
	Detection:  "DETECTION",
	Napping:    "NAPPING",
	FullAsleep: "FULL_ASLEEP",
	Error:      "ERROR",
}

// States returns every lifecycle state in declaration order.
func States() []State {
	return []State{WakeUp, Scanning, Detection, Napping, FullAsleep, Error}
}

// String returns the upper-case wire name of the state.
func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return s >= WakeUp && s <= Error
}

// ParseState converts a state name into a State. Matching is case-insensitive
// and accepts '-' in place of '_'.
func ParseState(name string) (State, error) {
	n := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "_")
	for i, s := range stateNames {
		if s == n {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownState, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
