package timing

import (
	"sync"
	"time"
)

// Millis is a 32-bit millisecond reading of the monotonic clock.
//
// The counter wraps after roughly 49.7 days. Durations must always be
// computed with Elapsed so the subtraction stays correct across a wrap.
type Millis uint32

// Elapsed returns the milliseconds between mark and now.
//
// Unsigned subtraction keeps the result correct when now has wrapped
// past zero and mark has not.
func Elapsed(now, mark Millis) Millis {
	return now - mark
}

// Duration converts a time.Duration into Millis, truncating sub-millisecond parts.
func Duration(d time.Duration) Millis {
	return Millis(d / time.Millisecond)
}

// Std converts m back into a time.Duration.
func (m Millis) Std() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Clock reports the current monotonic time in milliseconds.
type Clock interface {
	Now() Millis
}

// SystemClock reads the process monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock whose zero is the moment of construction.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns milliseconds since construction, truncated to 32 bits.
func (c *SystemClock) Now() Millis {
	return Millis(uint64(time.Since(c.start).Milliseconds()))
}

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now Millis
}

// NewManualClock returns a ManualClock reading start.
func NewManualClock(start Millis) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current reading.
func (c *ManualClock) Now() Millis {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to an absolute reading.
func (c *ManualClock) Set(now Millis) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by d milliseconds and returns the new reading.
func (c *ManualClock) Advance(d Millis) Millis {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}

// Interval fires once at least Every milliseconds have passed since the last Reset.
type Interval struct {
	mark  Millis
	every Millis
}

// Reset re-arms the interval at now with a new period.
func (i *Interval) Reset(now, every Millis) {
	i.mark = now
	i.every = every
}

// Due reports whether the period has elapsed since the last Reset.
func (i *Interval) Due(now Millis) bool {
	return Elapsed(now, i.mark) >= i.every
}

// Every returns the period.
func (i *Interval) Every() Millis {
	return i.every
}

// Mark returns the reading at which the interval was last armed.
func (i *Interval) Mark() Millis {
	return i.mark
}
