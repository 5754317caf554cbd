package lifecycle

import "errors"

// ErrUnknownState is returned when a name or value does not identify a State.
var ErrUnknownState = errors.New("lifecycle: unknown state")
