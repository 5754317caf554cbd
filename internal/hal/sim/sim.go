package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/icu-core/internal/hal"
)

// ErrNotPresent is returned by Begin when a device is configured to fail.
var ErrNotPresent = errors.New("sim: device not present")

// keepLast drops the oldest entries so at most limit remain. A limit of
// zero keeps everything.
func keepLast[T any](s []T, limit int) []T {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	n := copy(s, s[len(s)-limit:])
	clear(s[n:])
	return s[:n]
}

// DrawOp is one recorded screen primitive.
type DrawOp struct {
	Kind  string // "fill", "circle", "text"
	X, Y  int
	R     int
	Text  string
	Size  int
	Color hal.Color
}

// Screen is an in-memory round display.
type Screen struct {
	mu     sync.Mutex
	width  int
	height int
	fail   bool
	begins int
	limit  int
	ops    []DrawOp
}

// NewScreen returns a w x h screen.
func NewScreen(w, h int) *Screen {
	return &Screen{width: w, height: h}
}

// FailBegin makes subsequent Begin calls return ErrNotPresent.
func (s *Screen) FailBegin(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

// SetHistoryLimit caps the recorded primitives for long-running use.
func (s *Screen) SetHistoryLimit(n int) {
	s.mu.Lock()
	s.limit = n
	s.ops = keepLast(s.ops, n)
	s.mu.Unlock()
}

func (s *Screen) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	if s.fail {
		return fmt.Errorf("screen: %w", ErrNotPresent)
	}
	return nil
}

func (s *Screen) Width() int  { return s.width }
func (s *Screen) Height() int { return s.height }

func (s *Screen) FillScreen(c hal.Color) {
	s.record(DrawOp{Kind: "fill", Color: c})
}

func (s *Screen) DrawCircle(x, y, r int, c hal.Color) {
	s.record(DrawOp{Kind: "circle", X: x, Y: y, R: r, Color: c})
}

func (s *Screen) DrawText(x, y int, text string, size int, c hal.Color) {
	s.record(DrawOp{Kind: "text", X: x, Y: y, Text: text, Size: size, Color: c})
}

// TextBounds uses the classic 6x8 glyph cell scaled by size.
func (s *Screen) TextBounds(text string, size int) (int, int) {
	return 6 * size * len(text), 8 * size
}

func (s *Screen) record(op DrawOp) {
	s.mu.Lock()
	s.ops = keepLast(append(s.ops, op), s.limit)
	s.mu.Unlock()
}

// Ops returns a copy of every recorded primitive.
func (s *Screen) Ops() []DrawOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DrawOp(nil), s.ops...)
}

// Texts returns the recorded text lines in draw order.
func (s *Screen) Texts() []string {
	var out []string
	for _, op := range s.Ops() {
		if op.Kind == "text" {
			out = append(out, op.Text)
		}
	}
	return out
}

// Begins returns how many times Begin was called.
func (s *Screen) Begins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins
}

// Reset discards recorded primitives.
func (s *Screen) Reset() {
	s.mu.Lock()
	s.ops = nil
	s.mu.Unlock()
}

// PulseWrite is one recorded PWM write.
type PulseWrite struct {
	Channel int
	Ticks   uint16
}

// PWM is an in-memory servo board.
type PWM struct {
	mu        sync.Mutex
	fail      bool
	frequency int
	limit     int
	writes    []PulseWrite
}

// NewPWM returns an empty PWM board.
func NewPWM() *PWM {
	return &PWM{}
}

// FailBegin makes subsequent Begin calls return ErrNotPresent.
func (p *PWM) FailBegin(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

// SetHistoryLimit caps the recorded writes for long-running use.
func (p *PWM) SetHistoryLimit(n int) {
	p.mu.Lock()
	p.limit = n
	p.writes = keepLast(p.writes, n)
	p.mu.Unlock()
}

func (p *PWM) Begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("pwm: %w", ErrNotPresent)
	}
	return nil
}

func (p *PWM) SetFrequency(hz int) error {
	p.mu.Lock()
	p.frequency = hz
	p.mu.Unlock()
	return nil
}

func (p *PWM) SetPulse(channel int, ticks uint16) error {
	p.mu.Lock()
	p.writes = keepLast(append(p.writes, PulseWrite{Channel: channel, Ticks: ticks}), p.limit)
	p.mu.Unlock()
	return nil
}

// Frequency returns the last frequency set.
func (p *PWM) Frequency() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frequency
}

// Writes returns a copy of the recorded writes.
func (p *PWM) Writes() []PulseWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PulseWrite(nil), p.writes...)
}

// Last returns the most recent pulse on channel and whether one exists.
func (p *PWM) Last(channel int) (uint16, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.writes) - 1; i >= 0; i-- {
		if p.writes[i].Channel == channel {
			return p.writes[i].Ticks, true
		}
	}
	return 0, false
}

// Reset discards recorded writes.
func (p *PWM) Reset() {
	p.mu.Lock()
	p.writes = nil
	p.mu.Unlock()
}

// Level is one recorded pin write with the virtual time it happened at.
type Level struct {
	High bool
	At   time.Duration
}

// Pin is an in-memory digital output driven on a virtual timeline advanced
// by a Waiter sharing the same Timeline.
type Pin struct {
	mu       sync.Mutex
	timeline *Timeline
	fail     bool
	output   bool
	limit    int
	levels   []Level
}

// NewPin returns a pin recording against tl.
func NewPin(tl *Timeline) *Pin {
	return &Pin{timeline: tl}
}

// FailBegin makes ConfigureOutput return ErrNotPresent.
func (p *Pin) FailBegin(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

// SetHistoryLimit caps the recorded levels for long-running use.
func (p *Pin) SetHistoryLimit(n int) {
	p.mu.Lock()
	p.limit = n
	p.levels = keepLast(p.levels, n)
	p.mu.Unlock()
}

func (p *Pin) ConfigureOutput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("pin: %w", ErrNotPresent)
	}
	p.output = true
	return nil
}

func (p *Pin) Write(high bool) {
	p.mu.Lock()
	p.levels = keepLast(append(p.levels, Level{High: high, At: p.timeline.Now()}), p.limit)
	p.mu.Unlock()
}

// Levels returns a copy of the recorded writes.
func (p *Pin) Levels() []Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Level(nil), p.levels...)
}

// LowPulses counts high-to-low transitions in the recording.
func (p *Pin) LowPulses() int {
	n := 0
	prev := true
	for _, l := range p.Levels() {
		if prev && !l.High {
			n++
		}
		prev = l.High
	}
	return n
}

// Reset discards recorded writes.
func (p *Pin) Reset() {
	p.mu.Lock()
	p.levels = nil
	p.mu.Unlock()
}

// Timeline is a virtual clock advanced only by Waiter.Wait.
type Timeline struct {
	mu  sync.Mutex
	now time.Duration
}

// Now returns the virtual time.
func (t *Timeline) Now() time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

// Waiter advances a Timeline instead of blocking.
type Waiter struct {
	Timeline *Timeline
}

func (w Waiter) Wait(d time.Duration) {
	if w.Timeline == nil {
		return
	}
	w.Timeline.mu.Lock()
	w.Timeline.now += d
	w.Timeline.mu.Unlock()
}

// Preemption counts mask and unmask calls.
type Preemption struct {
	mu       sync.Mutex
	depth    int
	disables int
}

func (p *Preemption) Disable() {
	p.mu.Lock()
	p.depth++
	p.disables++
	p.mu.Unlock()
}

func (p *Preemption) Enable() {
	p.mu.Lock()
	p.depth--
	p.mu.Unlock()
}

// Masked reports whether a critical section is currently open.
func (p *Preemption) Masked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.depth > 0
}

// Sections returns how many critical sections were entered.
func (p *Preemption) Sections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disables
}

// ClimateSensor is a simulated temperature/humidity/pressure sensor.
type ClimateSensor struct {
	mu          sync.Mutex
	Absent      bool
	Celsius     float64
	RelHumidity float64
	Pascal      float64
}

func (c *ClimateSensor) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Absent {
		return fmt.Errorf("climate sensor: %w", ErrNotPresent)
	}
	return nil
}

func (c *ClimateSensor) Temperature() float64 { return c.read(func() float64 { return c.Celsius }) }
func (c *ClimateSensor) Humidity() float64    { return c.read(func() float64 { return c.RelHumidity }) }
func (c *ClimateSensor) Pressure() float64    { return c.read(func() float64 { return c.Pascal }) }

func (c *ClimateSensor) read(f func() float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Absent {
		return math.NaN()
	}
	return f()
}

// Tachometer reports a fixed fan speed.
type Tachometer struct {
	mu    sync.Mutex
	pulse time.Duration
}

// SpinAt sets the speed the tachometer reports. Zero or less stops the fan.
func (t *Tachometer) SpinAt(rpm int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rpm <= 0 {
		t.pulse = 0
		return
	}
	// Two pulses per revolution.
	t.pulse = time.Minute / time.Duration(2*rpm)
}

func (t *Tachometer) PulseWidth() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pulse
}

var (
	_ hal.Screen     = (*Screen)(nil)
	_ hal.PWM        = (*PWM)(nil)
	_ hal.OutputPin  = (*Pin)(nil)
	_ hal.Waiter     = Waiter{}
	_ hal.Preemption = (*Preemption)(nil)
	_ hal.Tachometer = (*Tachometer)(nil)
)
