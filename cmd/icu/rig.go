package main

import (
	"fmt"
	"time"

	"github.com/nerrad567/icu-core/internal/controller"
	"github.com/nerrad567/icu-core/internal/demo"
	"github.com/nerrad567/icu-core/internal/environment"
	"github.com/nerrad567/icu-core/internal/hal"
	"github.com/nerrad567/icu-core/internal/hal/sim"
	"github.com/nerrad567/icu-core/internal/infrastructure/config"
	"github.com/nerrad567/icu-core/internal/infrastructure/logging"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/peripheral/actuator"
	"github.com/nerrad567/icu-core/internal/peripheral/display"
	"github.com/nerrad567/icu-core/internal/peripheral/indicator"
	"github.com/nerrad567/icu-core/internal/serial"
	"github.com/nerrad567/icu-core/internal/timing"
)

// simHistory caps what each simulated device remembers.
const simHistory = 1024

// simFanMaxRPM is what the simulated tachometer reads at 100% duty.
const simFanMaxRPM = 5000

// rig is the simulated hardware plus the peripherals driving it.
type rig struct {
	clock     timing.Clock
	display   *display.Display
	actuator  *actuator.Actuator
	indicator *indicator.Indicator
	climate   *environment.Monitor
	fan       *environment.Fan
	tach      *sim.Tachometer
	sample    timing.Millis
}

func buildRig(cfg *config.Config, log *logging.Logger) (*rig, error) {
	screen := sim.NewScreen(cfg.Display.Width, cfg.Display.Height)
	screen.SetHistoryLimit(simHistory)

	// Servos and the fan share one PWM board.
	pwm := sim.NewPWM()
	pwm.SetHistoryLimit(simHistory)

	timeline := &sim.Timeline{}
	pin := sim.NewPin(timeline)
	pin.SetHistoryLimit(simHistory)

	preempt, waiter := pulseTiming(cfg.Indicator, timeline)

	r := &rig{
		clock:     timing.NewSystemClock(),
		display:   display.New(screen, displayConfig(cfg.Display), log.Component("display")),
		actuator:  actuator.New(pwm, actuatorConfig(cfg.Actuator), log.Component("actuator")),
		indicator: indicator.New(pin, preempt, waiter, indicatorConfig(cfg.Indicator), log.Component("indicator")),
		fan:       environment.NewFan(pwm, cfg.Fan.Channel),
		tach:      &sim.Tachometer{},
	}

	if cfg.Environment.Enabled {
		r.climate = environment.NewMonitor(&sim.ClimateSensor{Celsius: 22, RelHumidity: 45, Pascal: 101325})
		if err := r.climate.Begin(); err != nil {
			log.Warn("climate sensor not found; readings will be empty", "error", err)
		}
		if cfg.Environment.SampleIntervalMS <= 0 {
			return nil, fmt.Errorf("environment.sample_interval_ms must be positive")
		}
		r.sample = timing.Millis(cfg.Environment.SampleIntervalMS)
		if cfg.Fan.Enabled {
			r.climate.SetTachometer(r.tach)
		}
	}
	return r, nil
}

// pulseTiming picks how indicator pulse trains are timed. Real-time trains
// pin the loop's OS thread and spin for each pulse; otherwise they run on
// a virtual timeline and return at once.
func pulseTiming(c config.IndicatorConfig, timeline *sim.Timeline) (hal.Preemption, hal.Waiter) {
	if c.Realtime {
		return &hal.RuntimePreemption{}, hal.BusyWaiter{}
	}
	return &sim.Preemption{}, sim.Waiter{Timeline: timeline}
}

// setFanSpeed drives the fan and lets the simulated tachometer follow it.
func (r *rig) setFanSpeed(percent int) error {
	if err := r.fan.SetSpeed(percent); err != nil {
		return err
	}
	r.tach.SpinAt(r.fan.Speed() * simFanMaxRPM / 100)
	return nil
}

func (r *rig) deps() controller.Deps {
	return controller.Deps{
		Clock:          r.clock,
		Display:        r.display,
		Actuator:       r.actuator,
		Indicator:      r.indicator,
		Climate:        r.climate,
		SampleInterval: r.sample,
	}
}

func displayConfig(c config.DisplayConfig) display.Config {
	return display.Config{
		WakeUpDuration:    timing.Millis(c.WakeUpDurationMS),
		ScanningText:      timing.Millis(c.ScanningTextMS),
		ScanningAnimation: timing.Millis(c.ScanningAnimationMS),
		DetectionText:     timing.Millis(c.DetectionTextMS),
		RingWidth:         c.RingWidth,
		ScanningMessages:  c.ScanningMessages,
		DetectionMessages: c.DetectionMessages,
	}
}

// actuatorConfig converts pulse widths to the 12-bit tick type the driver takes.
func actuatorConfig(c config.ActuatorConfig) actuator.Config {
	return actuator.Config{
		FrequencyHz: c.FrequencyHz,
		Channels:    actuator.Channels{Eyelid: c.Channels.Eyelid, EyeX: c.Channels.EyeX, EyeY: c.Channels.EyeY},
		Pulses: actuator.Pulses{
			EyelidOpen:   uint16(c.Pulses.EyelidOpen),
			EyelidClosed: uint16(c.Pulses.EyelidClosed),
			EyeXMiddle:   uint16(c.Pulses.EyeXMiddle),
			EyeXLeft:     uint16(c.Pulses.EyeXLeft),
			EyeXRight:    uint16(c.Pulses.EyeXRight),
			EyeYMiddle:   uint16(c.Pulses.EyeYMiddle),
			EyeYUp:       uint16(c.Pulses.EyeYUp),
			EyeYDown:     uint16(c.Pulses.EyeYDown),
		},
		BlinkMin:  timing.Millis(c.BlinkMinMS),
		BlinkMax:  timing.Millis(c.BlinkMaxMS),
		GazeMin:   timing.Millis(c.GazeMinMS),
		GazeMax:   timing.Millis(c.GazeMaxMS),
		BlinkShut: timing.Millis(c.BlinkShutMS),
		OpenStep:  timing.Millis(c.OpenStepMS),
		CloseStep: timing.Millis(c.CloseStepMS),
		Seed:      c.Seed,
	}
}

func indicatorConfig(c config.IndicatorConfig) indicator.Config {
	return indicator.Config{
		EmitPulses:   c.EmitPulses,
		PulseWidth:   msDuration(c.PulseWidthMS),
		PulseSpacing: msDuration(c.PulseSpacingMS),
	}
}

func serialConfig(c config.SerialConfig) serial.Config {
	return serial.Config{
		Port:            c.Port,
		BaudRate:        c.BaudRate,
		InitialInterval: msDuration(c.Reopen.InitialIntervalMS),
		MaxInterval:     msDuration(c.Reopen.MaxIntervalMS),
		MaxElapsed:      msDuration(c.Reopen.MaxElapsedMS),
	}
}

// demoPhases converts the configured schedule. Disabled rows are kept so
// the table reads the same as the file.
func demoPhases(c config.DemoConfig) ([]demo.Phase, error) {
	phases := make([]demo.Phase, 0, len(c.Phases))
	for _, p := range c.Phases {
		state, err := lifecycle.ParseState(p.State)
		if err != nil {
			return nil, fmt.Errorf("phase %q: %w", p.Name, err)
		}
		phases = append(phases, demo.Phase{
			Name:     p.Name,
			State:    state,
			Duration: timing.Millis(p.DurationMS),
			Enabled:  p.Enabled,
		})
	}
	return phases, nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
