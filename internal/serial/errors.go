package serial

import "errors"

var (
	// ErrNoLine is returned by ReadLine when nothing is buffered.
	ErrNoLine = errors.New("serial: no line available")

	// ErrPortUnavailable is returned when the UART cannot be opened.
	ErrPortUnavailable = errors.New("serial: port unavailable")
)
