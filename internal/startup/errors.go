package startup

import "errors"

var (
	// ErrNoPeripherals is returned when the bring-up plan would be empty.
	ErrNoPeripherals = errors.New("startup: no peripherals")

	// ErrNotGated is returned when an entry asks to await readiness but the
	// peripheral does not implement peripheral.ReadinessGate.
	ErrNotGated = errors.New("startup: peripheral has no readiness gate")
)
