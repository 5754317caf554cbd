package indicator

import (
	"fmt"
	"time"

	"github.com/nerrad567/icu-core/internal/hal"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/peripheral"
	"github.com/nerrad567/icu-core/internal/timing"
)

// Name identifies the indicator in logs and startup steps.
const Name = "indicator"

// Command is the pulse count understood by the LED ring co-processor.
type Command int

// CommandFor maps a lifecycle state onto its 1-based command number.
func CommandFor(s lifecycle.State) Command {
	if !s.Valid() {
		return 0
	}
	return Command(s) + 1
}

// Config holds pulse-train timing.
type Config struct {
	// EmitPulses gates the wire. With it off, commands are still tracked
	// and deduplicated but nothing is driven on the pin.
	EmitPulses   bool
	PulseWidth   time.Duration
	PulseSpacing time.Duration
}

// DefaultConfig returns the timing the co-processor firmware expects.
func DefaultConfig() Config {
	return Config{
		EmitPulses:   true,
		PulseWidth:   20 * time.Millisecond,
		PulseSpacing: 50 * time.Millisecond,
	}
}

// Indicator signals the lifecycle state to the LED ring by pulse count.
type Indicator struct {
	pin     hal.OutputPin
	preempt hal.Preemption
	waiter  hal.Waiter
	cfg     Config
	logger  peripheral.Logger

	initialized bool
	last        peripheral.Dedup[Command]
	sent        int
}

// New returns an Indicator driving pin. A nil logger discards output.
func New(pin hal.OutputPin, preempt hal.Preemption, waiter hal.Waiter, cfg Config, logger peripheral.Logger) *Indicator {
	if logger == nil {
		logger = peripheral.NopLogger()
	}
	return &Indicator{
		pin:     pin,
		preempt: preempt,
		waiter:  waiter,
		cfg:     cfg,
		logger:  logger,
	}
}

func (i *Indicator) Name() string { return Name }

// Begin configures the signal line as an output and idles it high.
func (i *Indicator) Begin() error {
	if err := i.pin.ConfigureOutput(); err != nil {
		i.initialized = false
		i.logger.Error("indicator initialisation failed", "error", err)
		return fmt.Errorf("indicator begin: %w", err)
	}
	i.pin.Write(true)
	i.initialized = true
	i.logger.Info("indicator initialised", "emit_pulses", i.cfg.EmitPulses)
	return nil
}

func (i *Indicator) Initialized() bool { return i.initialized }

// OnLifecycleChange sends the command for state unless it equals the last
// one sent. This is the only blocking call in the control loop.
func (i *Indicator) OnLifecycleChange(state lifecycle.State, _ timing.Millis) {
	if !i.initialized {
		return
	}
	cmd := CommandFor(state)
	if cmd == 0 {
		return
	}
	sent, err := i.last.Issue(cmd, i.send)
	if err != nil {
		i.logger.Warn("indicator command failed", "command", int(cmd), "error", err)
		return
	}
	if !sent {
		i.logger.Debug("indicator command unchanged", "command", int(cmd))
		return
	}
	i.logger.Debug("indicator command sent", "command", int(cmd), "state", state)
}

// Tick does nothing; the ring animates itself.
func (i *Indicator) Tick(timing.Millis) {}

// Last returns the last command issued.
func (i *Indicator) Last() (Command, bool) {
	return i.last.Last()
}

// Sent returns how many pulse trains have been driven on the wire.
func (i *Indicator) Sent() int { return i.sent }

func (i *Indicator) send(cmd Command) error {
	if !i.cfg.EmitPulses {
		return nil
	}
	err := hal.CriticalSection(i.preempt, func() error {
		for n := range int(cmd) {
			i.pin.Write(false)
			i.waiter.Wait(i.cfg.PulseWidth)
			i.pin.Write(true)
			if n < int(cmd)-1 {
				i.waiter.Wait(i.cfg.PulseSpacing)
			}
		}
		return nil
	})
	if err == nil {
		i.sent++
	}
	return err
}

var _ peripheral.Peripheral = (*Indicator)(nil)
