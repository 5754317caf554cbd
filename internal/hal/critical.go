package hal

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CriticalSection runs fn with preemption masked.
//
// Preemption is restored on every exit path, including an error return or
// a panic inside fn.
func CriticalSection(p Preemption, fn func() error) error {
	p.Disable()
	defer p.Enable()
	return fn()
}

// RuntimePreemption pins the calling goroutine to its OS thread and pauses
// the garbage collector for the duration of a critical section.
//
// It is the closest a hosted Go process gets to masking interrupts.
type RuntimePreemption struct {
	mu      sync.Mutex
	prevGC  int
	entered bool
}

// Disable locks the OS thread and turns off GC.
func (p *RuntimePreemption) Disable() {
	p.mu.Lock()
	runtime.LockOSThread()
	p.prevGC = debug.SetGCPercent(-1)
	p.entered = true
}

// Enable restores the GC setting and unlocks the OS thread.
func (p *RuntimePreemption) Enable() {
	if !p.entered {
		return
	}
	p.entered = false
	debug.SetGCPercent(p.prevGC)
	runtime.UnlockOSThread()
	p.mu.Unlock()
}

// BusyWaiter spins on the monotonic clock instead of sleeping, so short
// waits are not rounded up to the scheduler's granularity.
type BusyWaiter struct{}

// Wait spins until d has passed.
func (BusyWaiter) Wait(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}
