package demo

import (
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/peripheral"
	"github.com/nerrad567/icu-core/internal/timing"
)

// Phase is one row of the demonstration schedule.
type Phase struct {
	Name     string
	State    lifecycle.State
	Duration timing.Millis
	Enabled  bool
}

// DefaultPhases returns the stock schedule. The nap cycle is kept in the
// table but disabled.
func DefaultPhases() []Phase {
	return []Phase{
		{Name: "scan_1", State: lifecycle.Scanning, Duration: 20000, Enabled: true},
		{Name: "nap", State: lifecycle.Napping, Duration: 8000},
		{Name: "wake_from_nap", State: lifecycle.WakeUp, Duration: 5000},
		{Name: "scan_2", State: lifecycle.Scanning, Duration: 15000},
		{Name: "detect", State: lifecycle.Detection, Duration: 7000, Enabled: true},
		{Name: "scan_3", State: lifecycle.Scanning, Duration: 20000, Enabled: true},
		{Name: "sleep", State: lifecycle.FullAsleep, Duration: 15000, Enabled: true},
	}
}

// StateSetter is the part of the lifecycle machine the sequencer drives.
type StateSetter interface {
	Set(state lifecycle.State)
}

// Sequencer steps through the enabled phases on a timer.
//
// It is not safe for concurrent use; only the control loop calls it.
type Sequencer struct {
	machine StateSetter
	phases  []Phase
	logger  peripheral.Logger
	onWrap  func(now timing.Millis)

	idx     int
	entered timing.Millis
	running bool
	cycles  int
}

// New returns a sequencer over the enabled rows of phases.
func New(machine StateSetter, phases []Phase, logger peripheral.Logger) (*Sequencer, error) {
	var active []Phase
	for _, p := range phases {
		if !p.Enabled {
			continue
		}
		if p.Duration == 0 {
			return nil, ErrZeroDuration
		}
		active = append(active, p)
	}
	if len(active) == 0 {
		return nil, ErrNoPhases
	}
	if logger == nil {
		logger = peripheral.NopLogger()
	}
	return &Sequencer{machine: machine, phases: active, logger: logger}, nil
}

// OnWrap registers a hook that runs instead of re-arming the first phase
// when the last phase expires. The hook owns what happens next; the
// sequencer stops itself before calling it.
func (s *Sequencer) OnWrap(fn func(now timing.Millis)) {
	s.onWrap = fn
}

// Start arms the first phase at now and issues its state.
func (s *Sequencer) Start(now timing.Millis) {
	s.running = true
	s.enter(0, now)
}

// Stop disarms the sequencer.
func (s *Sequencer) Stop() {
	s.running = false
}

// Step advances to the next phase once the current one has run for
// strictly longer than its duration. At most one phase advances per call.
func (s *Sequencer) Step(now timing.Millis) {
	if !s.running {
		return
	}
	cur := s.phases[s.idx]
	if timing.Elapsed(now, s.entered) <= cur.Duration {
		return
	}

	next := s.idx + 1
	if next < len(s.phases) {
		s.enter(next, now)
		return
	}

	s.cycles++
	if s.onWrap != nil {
		s.logger.Info("demo cycle complete", "cycles", s.cycles)
		s.running = false
		s.onWrap(now)
		return
	}
	s.enter(0, now)
}

func (s *Sequencer) enter(idx int, now timing.Millis) {
	s.idx = idx
	s.entered = now
	p := s.phases[idx]
	s.logger.Info("demo phase", "phase", p.Name, "state", p.State, "duration_ms", uint32(p.Duration))
	s.machine.Set(p.State)
}

// Current returns the active phase.
func (s *Sequencer) Current() Phase {
	return s.phases[s.idx]
}

// Running reports whether the sequencer is armed.
func (s *Sequencer) Running() bool { return s.running }

// EnteredAt returns when the active phase started.
func (s *Sequencer) EnteredAt() timing.Millis { return s.entered }

// Cycles returns how many times the schedule has run to the end.
func (s *Sequencer) Cycles() int { return s.cycles }

// Phases returns the enabled phases in order.
func (s *Sequencer) Phases() []Phase {
	return append([]Phase(nil), s.phases...)
}
