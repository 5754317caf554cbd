package lifecycle

import (
	"sync"

	"github.com/nerrad567/icu-core/internal/timing"
)

// Observer is notified synchronously of every lifecycle transition.
type Observer interface {
	OnLifecycleChange(state State, at timing.Millis)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(state State, at timing.Millis)

// OnLifecycleChange calls f(state, at).
func (f ObserverFunc) OnLifecycleChange(state State, at timing.Millis) {
	f(state, at)
}

// Machine holds the current lifecycle state and broadcasts changes.
//
// Set never validates the transition. Callers own sequencing; the only
// rule enforced elsewhere is that nothing calls Set after ERROR.
//
// Thread Safety:
//   - Set must be called from the control loop only.
//   - State, EnteredAt and InState may be read from any goroutine.
type Machine struct {
	clock timing.Clock

	mu        sync.RWMutex
	state     State
	enteredAt timing.Millis
	observers []Observer
}

// NewMachine returns a Machine in WAKE_UP with the given observers
// registered in broadcast order.
func NewMachine(clock timing.Clock, observers ...Observer) *Machine {
	return &Machine{
		clock:     clock,
		state:     WakeUp,
		enteredAt: clock.Now(),
		observers: append([]Observer(nil), observers...),
	}
}

// Register appends an observer to the end of the broadcast order.
func (m *Machine) Register(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// Set assigns state, records the entry time and notifies each observer
// in registration order before returning. Setting the current state
// again is not suppressed.
func (m *Machine) Set(state State) {
	now := m.clock.Now()

	m.mu.Lock()
	m.state = state
	m.enteredAt = now
	observers := m.observers
	m.mu.Unlock()

	for _, o := range observers {
		o.OnLifecycleChange(state, now)
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// EnteredAt returns the clock reading at which the current state was set.
func (m *Machine) EnteredAt() timing.Millis {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enteredAt
}

// InState returns how long the machine has been in its current state.
func (m *Machine) InState(now timing.Millis) timing.Millis {
	return timing.Elapsed(now, m.EnteredAt())
}
