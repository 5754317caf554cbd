package journal

import "errors"

var (
	// ErrMissingBootID is returned when a record has no boot identifier.
	ErrMissingBootID = errors.New("journal: boot id is required")

	// ErrInvalidRetention is returned by Prune for a non-positive window.
	ErrInvalidRetention = errors.New("journal: retention must be positive")
)
