package actuator

import "github.com/nerrad567/icu-core/internal/timing"

// Channels maps each servo to its PWM output.
type Channels struct {
	Eyelid int
	EyeX   int
	EyeY   int
}

// Pulses holds the calibrated pulse widths in driver ticks.
type Pulses struct {
	EyelidOpen   uint16
	EyelidClosed uint16
	EyeXMiddle   uint16
	EyeXLeft     uint16
	EyeXRight    uint16
	EyeYMiddle   uint16
	EyeYUp       uint16
	EyeYDown     uint16
}

// Config holds servo calibration and animation timing.
type Config struct {
	FrequencyHz int
	Channels    Channels
	Pulses      Pulses

	BlinkMin  timing.Millis
	BlinkMax  timing.Millis
	GazeMin   timing.Millis
	GazeMax   timing.Millis
	BlinkShut timing.Millis
	// OpenStep and CloseStep are the time per one-tick eyelid movement
	// during a slow sweep.
	OpenStep  timing.Millis
	CloseStep timing.Millis

	// Seed fixes the blink/gaze random source. Zero seeds from the runtime.
	Seed uint64
}

// DefaultConfig returns the calibration of the stock rig.
func DefaultConfig() Config {
	return Config{
		FrequencyHz: 50,
		Channels:    Channels{Eyelid: 0, EyeX: 1, EyeY: 2},
		Pulses: Pulses{
			EyelidOpen:   mapRange(2390, 0, 4095, 150, 600),
			EyelidClosed: mapRange(3500, 0, 4095, 150, 600),
			EyeXMiddle:   370,
			EyeXLeft:     420,
			EyeXRight:    350,
			EyeYMiddle:   370,
			EyeYUp:       383,
			EyeYDown:     315,
		},
		BlinkMin:  500,
		BlinkMax:  5000,
		GazeMin:   800,
		GazeMax:   3000,
		BlinkShut: 190,
		OpenStep:  5,
		CloseStep: 10,
	}
}

// mapRange rescales v from [inLo, inHi] to [outLo, outHi] with integer
// truncation, the way the servo calibration sheet was produced.
func mapRange(v, inLo, inHi, outLo, outHi int) uint16 {
	return uint16((v-inLo)*(outHi-outLo)/(inHi-inLo) + outLo)
}
