package protocol

import "errors"

// ErrInvalidBoundingBox is returned for a detection payload that is not
// four comma-separated integers.
var ErrInvalidBoundingBox = errors.New("protocol: invalid bounding box")
