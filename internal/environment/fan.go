package environment

import (
	"fmt"
	"time"

	"github.com/nerrad567/icu-core/internal/hal"
	"github.com/nerrad567/icu-core/internal/peripheral"
)

// DutyCycle maps a 0..100 percentage onto an 8-bit duty cycle.
// Out-of-range input is clamped.
func DutyCycle(percent int) uint16 {
	percent = max(0, min(100, percent))
	return uint16(percent * 255 / 100)
}

// RPM converts one tachometer high-pulse width into fan speed. The fan
// emits two pulses per revolution; a zero pulse means the read timed out
// and the fan is stopped.
func RPM(pulse time.Duration) int {
	us := pulse.Microseconds()
	if us <= 0 {
		return 0
	}
	return int(1_000_000/us) * 60 / 2
}

// Fan drives a 4-pin PWM fan on one channel.
type Fan struct {
	pwm     hal.PWM
	channel int
	last    peripheral.Dedup[uint16]
	percent int
}

// NewFan returns a fan on channel of pwm.
func NewFan(pwm hal.PWM, channel int) *Fan {
	return &Fan{pwm: pwm, channel: channel}
}

// SetSpeed applies a percentage. Repeating the current duty is a no-op.
func (f *Fan) SetSpeed(percent int) error {
	duty := DutyCycle(percent)
	if _, err := f.last.Issue(duty, func(v uint16) error {
		return f.pwm.SetPulse(f.channel, v)
	}); err != nil {
		return fmt.Errorf("fan speed: %w", err)
	}
	f.percent = max(0, min(100, percent))
	return nil
}

// Speed returns the last applied percentage.
func (f *Fan) Speed() int { return f.percent }
