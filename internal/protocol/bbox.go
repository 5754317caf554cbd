package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// BoundingBox is a detection rectangle in camera pixels.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// BoxFromCorners builds a box from its top-left and bottom-right corners.
func BoxFromCorners(x1, y1, x2, y2 int) BoundingBox {
	return BoundingBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// String renders the detection payload "x,y,w,h".
func (b BoundingBox) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", b.X, b.Y, b.W, b.H)
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (x, y int) {
	return b.X + b.W/2, b.Y + b.H/2
}

// ParseBoundingBox parses a detection payload.
func ParseBoundingBox(s string) (BoundingBox, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("%w: %q", ErrInvalidBoundingBox, s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return BoundingBox{}, fmt.Errorf("%w: %q", ErrInvalidBoundingBox, s)
		}
		v[i] = n
	}
	if v[2] < 0 || v[3] < 0 {
		return BoundingBox{}, fmt.Errorf("%w: negative size in %q", ErrInvalidBoundingBox, s)
	}
	return BoundingBox{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}
