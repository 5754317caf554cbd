package demo

import "errors"

var (
	// ErrNoPhases is returned when no phase in the schedule is enabled.
	ErrNoPhases = errors.New("demo: no enabled phases")

	// ErrZeroDuration is returned for an enabled phase with no duration.
	ErrZeroDuration = errors.New("demo: phase duration must be positive")
)
