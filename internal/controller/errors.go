package controller

import "errors"

var (
	// ErrMissingPeripheral is returned when a required renderer is nil.
	ErrMissingPeripheral = errors.New("controller: missing peripheral")

	// ErrMissingClock is returned when Deps.Clock is nil.
	ErrMissingClock = errors.New("controller: missing clock")
)
