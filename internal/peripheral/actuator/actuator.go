package actuator

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nerrad567/icu-core/internal/hal"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/peripheral"
	"github.com/nerrad567/icu-core/internal/timing"
)

// Name identifies the actuator in logs and startup steps.
const Name = "actuator"

// sweep moves the eyelid one tick per step interval toward a target.
type sweep struct {
	active bool
	from   uint16
	to     uint16
	start  timing.Millis
	step   timing.Millis
}

func (s *sweep) position(now timing.Millis) (uint16, bool) {
	steps := int(timing.Elapsed(now, s.start) / s.step)
	dist := int(s.to) - int(s.from)
	if dist < 0 {
		if steps >= -dist {
			return s.to, true
		}
		return uint16(int(s.from) - steps), false
	}
	if steps >= dist {
		return s.to, true
	}
	return uint16(int(s.from) + steps), false
}

// Actuator drives the eyelid and two-axis eye servos.
type Actuator struct {
	pwm    hal.PWM
	cfg    Config
	logger peripheral.Logger
	rng    *rand.Rand

	initialized bool
	state       lifecycle.State

	channels [3]int
	last     [3]peripheral.Dedup[uint16]

	lid sweep

	blinking      bool
	blinkMark     timing.Millis
	blinkInterval timing.Millis

	gazeMark     timing.Millis
	gazeInterval timing.Millis
}

const (
	lidIdx = iota
	xIdx
	yIdx
)

// New returns an Actuator on pwm. A nil logger discards output.
func New(pwm hal.PWM, cfg Config, logger peripheral.Logger) *Actuator {
	if logger == nil {
		logger = peripheral.NopLogger()
	}
	if cfg.OpenStep == 0 {
		cfg.OpenStep = 1
	}
	if cfg.CloseStep == 0 {
		cfg.CloseStep = 1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Actuator{
		pwm:      pwm,
		cfg:      cfg,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		state:    lifecycle.WakeUp,
		channels: [3]int{cfg.Channels.Eyelid, cfg.Channels.EyeX, cfg.Channels.EyeY},
	}
}

func (a *Actuator) Name() string { return Name }

// Begin brings up the PWM board and parks the rig asleep: eyelid closed,
// eye centred horizontally and looking down.
func (a *Actuator) Begin() error {
	if err := a.pwm.Begin(); err != nil {
		a.initialized = false
		a.logger.Error("actuator initialisation failed", "error", err)
		return fmt.Errorf("actuator begin: %w", err)
	}
	if err := a.pwm.SetFrequency(a.cfg.FrequencyHz); err != nil {
		a.initialized = false
		return fmt.Errorf("actuator frequency: %w", err)
	}

	for i := range a.last {
		a.last[i].Reset()
	}
	a.lid = sweep{}
	a.blinking = false

	p := a.cfg.Pulses
	a.set(lidIdx, p.EyelidClosed)
	a.set(xIdx, p.EyeXMiddle)
	a.set(yIdx, p.EyeYDown)

	a.initialized = true
	a.logger.Info("actuator initialised", "frequency_hz", a.cfg.FrequencyHz)
	return nil
}

func (a *Actuator) Initialized() bool { return a.initialized }

// OnLifecycleChange performs the entry pose for state. Any eyelid sweep
// still running from the previous state is completed first.
func (a *Actuator) OnLifecycleChange(state lifecycle.State, now timing.Millis) {
	if !a.initialized {
		return
	}
	a.finishSweep()
	if a.blinking {
		a.blinking = false
		a.set(lidIdx, a.cfg.Pulses.EyelidOpen)
	}
	a.state = state
	a.logger.Debug("actuator state", "state", state)

	p := a.cfg.Pulses
	switch state {
	case lifecycle.WakeUp:
		a.startSweep(p.EyelidOpen, a.cfg.OpenStep, now)
		a.moveEye(p.EyeXMiddle, p.EyeYMiddle)
	case lifecycle.Scanning:
		a.blinkMark = now
		a.blinkInterval = a.between(a.cfg.BlinkMin, a.cfg.BlinkMax)
		a.gazeMark = now
		a.gazeInterval = a.between(a.cfg.GazeMin, a.cfg.GazeMax)
	case lifecycle.Detection:
		a.set(lidIdx, p.EyelidOpen)
		a.moveEye(p.EyeXMiddle, p.EyeYMiddle)
	case lifecycle.Napping, lifecycle.FullAsleep:
		a.startSweep(p.EyelidClosed, a.cfg.CloseStep, now)
		a.moveEye(p.EyeXMiddle, p.EyeYDown)
	}
}

// Tick advances eyelid sweeps and, while scanning, blinks and gaze moves.
func (a *Actuator) Tick(now timing.Millis) {
	if !a.initialized {
		return
	}

	if a.lid.active {
		pos, done := a.lid.position(now)
		a.set(lidIdx, pos)
		if done {
			a.lid.active = false
		}
	}

	if a.state != lifecycle.Scanning {
		return
	}

	p := a.cfg.Pulses
	if a.blinking {
		if timing.Elapsed(now, a.blinkMark) >= a.cfg.BlinkShut {
			a.set(lidIdx, p.EyelidOpen)
			a.blinking = false
			a.blinkMark = now
			a.blinkInterval = a.between(a.cfg.BlinkMin, a.cfg.BlinkMax)
		}
	} else if timing.Elapsed(now, a.blinkMark) >= a.blinkInterval {
		a.set(lidIdx, p.EyelidClosed)
		a.blinking = true
		a.blinkMark = now
	}

	if timing.Elapsed(now, a.gazeMark) >= a.gazeInterval {
		x := uint16(a.between(timing.Millis(p.EyeXRight), timing.Millis(p.EyeXLeft)))
		y := uint16(a.between(timing.Millis(p.EyeYDown), timing.Millis(p.EyeYUp)))
		a.moveEye(x, y)
		a.gazeMark = now
		a.gazeInterval = a.between(a.cfg.GazeMin, a.cfg.GazeMax)
	}
}

// Position returns the last pulse sent on each channel.
func (a *Actuator) Position() (lid, x, y uint16) {
	lid, _ = a.last[lidIdx].Last()
	x, _ = a.last[xIdx].Last()
	y, _ = a.last[yIdx].Last()
	return lid, x, y
}

// Sweeping reports whether a slow eyelid movement is in progress.
func (a *Actuator) Sweeping() bool { return a.lid.active }

// Blinking reports whether the eyelid is shut for a blink.
func (a *Actuator) Blinking() bool { return a.blinking }

func (a *Actuator) startSweep(to uint16, step timing.Millis, now timing.Millis) {
	from, ok := a.last[lidIdx].Last()
	if !ok || from == to {
		a.set(lidIdx, to)
		a.lid.active = false
		return
	}
	a.lid = sweep{active: true, from: from, to: to, start: now, step: step}
}

func (a *Actuator) finishSweep() {
	if a.lid.active {
		a.set(lidIdx, a.lid.to)
		a.lid.active = false
	}
}

func (a *Actuator) moveEye(x, y uint16) {
	a.set(xIdx, x)
	a.set(yIdx, y)
}

func (a *Actuator) set(idx int, ticks uint16) {
	ch := a.channels[idx]
	if _, err := a.last[idx].Issue(ticks, func(v uint16) error {
		return a.pwm.SetPulse(ch, v)
	}); err != nil {
		a.logger.Warn("servo write failed", "channel", ch, "pulse", ticks, "error", err)
	}
}

// between returns a value in [lo, hi), or lo when the range is empty.
func (a *Actuator) between(lo, hi timing.Millis) timing.Millis {
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi == lo {
		return lo
	}
	return lo + timing.Millis(a.rng.UintN(uint(hi-lo)))
}

var _ peripheral.Peripheral = (*Actuator)(nil)
