package peripheral

import (
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/timing"
)

// Peripheral is an output device that renders the lifecycle state.
//
// OnLifecycleChange resets local sub-state and performs a one-shot entry
// action. Tick animates continuous behaviour and must never block. Both
// are no-ops until Begin has succeeded.
type Peripheral interface {
	lifecycle.Observer
	Name() string
	Begin() error
	Initialized() bool
	Tick(now timing.Millis)
}

// ReadinessGate is implemented by peripherals the startup sequencer must
// wait on after initialisation.
type ReadinessGate interface {
	Ready() bool
}

// Dedup remembers the last low-level command issued to a device and
// suppresses an identical repeat.
type Dedup[T comparable] struct {
	last T
	set  bool
}

// Issue calls send when v differs from the last issued value and records v
// if send succeeds. It reports whether send was called.
func (d *Dedup[T]) Issue(v T, send func(T) error) (bool, error) {
	if d.set && d.last == v {
		return false, nil
	}
	if err := send(v); err != nil {
		return true, err
	}
	d.last = v
	d.set = true
	return true, nil
}

// Last returns the last issued value and whether anything was issued.
func (d *Dedup[T]) Last() (T, bool) {
	return d.last, d.set
}

// Reset forgets the last value so the next Issue always sends.
func (d *Dedup[T]) Reset() {
	var zero T
	d.last = zero
	d.set = false
}
