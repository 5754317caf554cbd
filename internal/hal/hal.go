package hal

import "time"

// Screen is a round colour display addressed in pixels.
//
// Implementations are not required to be safe for concurrent use; only
// the control loop draws.
type Screen interface {
	Begin() error
	Width() int
	Height() int
	FillScreen(c Color)
	DrawCircle(x, y, r int, c Color)
	// DrawText renders a single line with its top-left corner at (x, y).
	DrawText(x, y int, text string, size int, c Color)
	// TextBounds returns the rendered width and height of a single line.
	TextBounds(text string, size int) (w, h int)
}

// PWM is a multi-channel pulse-width driver such as a servo board.
// Pulse values are expressed in driver ticks.
type PWM interface {
	Begin() error
	SetFrequency(hz int) error
	SetPulse(channel int, ticks uint16) error
}

// OutputPin is a single digital output line.
type OutputPin interface {
	ConfigureOutput() error
	Write(high bool)
}

// Preemption masks and unmasks whatever can interrupt a timing-critical
// section on the current platform.
type Preemption interface {
	Disable()
	Enable()
}

// Waiter blocks the caller for a precise duration.
type Waiter interface {
	Wait(d time.Duration)
}

// Tachometer measures a fan's speed signal. PulseWidth returns the width
// of one high pulse, or zero when no pulse arrived before the read timed
// out.
type Tachometer interface {
	PulseWidth() time.Duration
}
