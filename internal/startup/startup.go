package startup

import (
	"fmt"

	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/peripheral"
	"github.com/nerrad567/icu-core/internal/timing"
)

// StateSetter is the part of the lifecycle machine the sequencer drives.
type StateSetter interface {
	Set(state lifecycle.State)
}

// Entry is one peripheral in bring-up order.
type Entry struct {
	Peripheral peripheral.Peripheral
	// AwaitReady holds the sequence until the peripheral reports ready.
	// The peripheral must implement peripheral.ReadinessGate.
	AwaitReady bool
}

// StepKind is what a step does.
type StepKind int

const (
	KindInitialize StepKind = iota
	KindAwaitReady
	KindComplete
)

// Step is one entry in the generated plan.
type Step struct {
	Kind       StepKind
	Peripheral peripheral.Peripheral
}

// String renders the step as "initialize:display", "await_ready:display"
// or "complete".
func (s Step) String() string {
	switch s.Kind {
	case KindInitialize:
		return "initialize:" + s.Peripheral.Name()
	case KindAwaitReady:
		return "await_ready:" + s.Peripheral.Name()
	default:
		return "complete"
	}
}

// Failure describes the peripheral that stopped the sequence.
type Failure struct {
	Peripheral string
	Err        error
}

// Logger is the logging surface of the sequencer.
type Logger = peripheral.Logger

// Sequencer brings peripherals up one step per control-loop pass.
//
// It is not safe for concurrent use; only the control loop calls it.
type Sequencer struct {
	machine    StateSetter
	steps      []Step
	logger     Logger
	onComplete func(now timing.Millis)

	idx         int
	halted      bool
	complete    bool
	failure     *Failure
	initialized []string
}

// New builds the plan from entries. Each entry yields an initialise step,
// followed by an await step when AwaitReady is set; a final complete step
// hands control to whoever registered with OnComplete.
func New(machine StateSetter, entries []Entry, logger Logger) (*Sequencer, error) {
	if len(entries) == 0 {
		return nil, ErrNoPeripherals
	}
	if logger == nil {
		logger = peripheral.NopLogger()
	}

	steps := make([]Step, 0, 2*len(entries)+1)
	for _, e := range entries {
		steps = append(steps, Step{Kind: KindInitialize, Peripheral: e.Peripheral})
		if e.AwaitReady {
			if _, ok := e.Peripheral.(peripheral.ReadinessGate); !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotGated, e.Peripheral.Name())
			}
			steps = append(steps, Step{Kind: KindAwaitReady, Peripheral: e.Peripheral})
		}
	}
	steps = append(steps, Step{Kind: KindComplete})

	return &Sequencer{
		machine: machine,
		steps:   steps,
		logger:  logger,
	}, nil
}

// OnComplete registers the hand-off called once when the complete step runs.
func (s *Sequencer) OnComplete(fn func(now timing.Millis)) {
	s.onComplete = fn
}

// Step executes the current step once.
//
// Initialise steps call Begin; on success the peripheral gets a WAKE_UP
// entry on its own and the plan advances. On failure the lifecycle is
// forced to ERROR and the sequencer halts for good. Await steps advance
// once the peripheral is ready.
func (s *Sequencer) Step(now timing.Millis) {
	if s.halted || s.complete {
		return
	}

	step := s.steps[s.idx]
	switch step.Kind {
	case KindInitialize:
		p := step.Peripheral
		if err := p.Begin(); err != nil {
			s.halted = true
			s.failure = &Failure{Peripheral: p.Name(), Err: err}
			s.logger.Error("startup failed", "step", step.String(), "error", err)
			s.machine.Set(lifecycle.Error)
			return
		}
		p.OnLifecycleChange(lifecycle.WakeUp, now)
		s.initialized = append(s.initialized, p.Name())
		s.logger.Info("startup step complete", "step", step.String())
		s.idx++

	case KindAwaitReady:
		if step.Peripheral.(peripheral.ReadinessGate).Ready() {
			s.logger.Info("startup step complete", "step", step.String())
			s.idx++
		}

	case KindComplete:
		s.complete = true
		s.logger.Info("startup complete", "peripherals", s.initialized)
		if s.onComplete != nil {
			s.onComplete(now)
		}
	}
}

// Reset returns the sequencer to its first step. Peripherals are expected
// to tolerate Begin being called again.
func (s *Sequencer) Reset() {
	s.idx = 0
	s.halted = false
	s.complete = false
	s.failure = nil
	s.initialized = nil
}

// Current returns the step that will run next.
func (s *Sequencer) Current() Step {
	return s.steps[s.idx]
}

// Steps returns the full plan.
func (s *Sequencer) Steps() []Step {
	return append([]Step(nil), s.steps...)
}

// Halted reports whether a peripheral failed to initialise.
func (s *Sequencer) Halted() bool { return s.halted }

// Complete reports whether the complete step has run.
func (s *Sequencer) Complete() bool { return s.complete }

// Failure returns what stopped the sequence, or nil.
func (s *Sequencer) Failure() *Failure { return s.failure }

// Initialized returns the peripherals brought up in the current run.
func (s *Sequencer) Initialized() []string {
	return append([]string(nil), s.initialized...)
}
