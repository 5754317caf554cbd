package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/nerrad567/icu-core/internal/demo"
	"github.com/nerrad567/icu-core/internal/environment"
	"github.com/nerrad567/icu-core/internal/hal/sim"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/peripheral/actuator"
	"github.com/nerrad567/icu-core/internal/peripheral/display"
	"github.com/nerrad567/icu-core/internal/peripheral/indicator"
	"github.com/nerrad567/icu-core/internal/protocol"
	"github.com/nerrad567/icu-core/internal/timing"
)

// passStep is how far the manual clock moves per pass.
const passStep timing.Millis = 10

type rig struct {
	clock  *timing.ManualClock
	screen *sim.Screen
	pwm    *sim.PWM
	pin    *sim.Pin
	deps   Deps
}

func newRig() *rig {
	tl := &sim.Timeline{}
	r := &rig{
		clock:  timing.NewManualClock(0),
		screen: sim.NewScreen(240, 240),
		pwm:    sim.NewPWM(),
		pin:    sim.NewPin(tl),
	}
	r.deps = Deps{
		Clock:     r.clock,
		Display:   display.New(r.screen, display.DefaultConfig(), nil),
		Actuator:  actuator.New(r.pwm, actuator.DefaultConfig(), nil),
		Indicator: indicator.New(r.pin, &sim.Preemption{}, sim.Waiter{Timeline: tl}, indicator.DefaultConfig(), nil),
	}
	return r
}

// pass runs one control-loop pass and then advances the clock.
func (r *rig) pass(c *Controller) {
	c.RunOnce()
	r.clock.Advance(passStep)
}

func (r *rig) runUntil(t *testing.T, c *Controller, cond func() bool) {
	t.Helper()
	for i := 0; i < 100_000; i++ {
		if cond() {
			return
		}
		r.pass(c)
	}
	t.Fatalf("condition not reached; snapshot = %+v", c.Snapshot())
}

func shortPhases() []demo.Phase {
	return []demo.Phase{
		{Name: "scan", State: lifecycle.Scanning, Duration: 200, Enabled: true},
		{Name: "nap", State: lifecycle.Napping, Duration: 200},
		{Name: "sleep", State: lifecycle.FullAsleep, Duration: 200, Enabled: true},
	}
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []lifecycle.State
	messages    []protocol.EventKind
	failures    []string
	passes      int
}

func (m *recordingMetrics) ObserveTransition(s lifecycle.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, s)
}

func (m *recordingMetrics) ObserveMessage(k protocol.EventKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, k)
}

func (m *recordingMetrics) ObserveStartupFailure(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, p)
}

func (m *recordingMetrics) ObservePass(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes++
}

type lineQueue struct {
	lines []string
}

func (q *lineQueue) LineAvailable() bool { return len(q.lines) > 0 }

func (q *lineQueue) ReadLine() (string, error) {
	if len(q.lines) == 0 {
		return "", errors.New("empty")
	}
	l := q.lines[0]
	q.lines = q.lines[1:]
	return l, nil
}

func TestNew_RequiresCollaborators(t *testing.T) {
	r := newRig()

	deps := r.deps
	deps.Clock = nil
	if _, err := New(deps, Options{}); !errors.Is(err, ErrMissingClock) {
		t.Errorf("New() without clock error = %v", err)
	}

	deps = r.deps
	deps.Actuator = nil
	if _, err := New(deps, Options{}); !errors.Is(err, ErrMissingPeripheral) {
		t.Errorf("New() without actuator error = %v", err)
	}

	if _, err := New(r.deps, Options{Phases: []demo.Phase{{Name: "x", State: lifecycle.Scanning}}}); err == nil {
		t.Error("New() with no enabled phases should fail")
	}
}

func TestController_StartupHandsOffToDemo(t *testing.T) {
	r := newRig()
	metrics := &recordingMetrics{}
	r.deps.Metrics = metrics

	c, err := New(r.deps, Options{Phases: shortPhases(), BootID: "boot-1"})
	if err != nil {
		t.Fatal(err)
	}

	snap := c.Snapshot()
	if snap.State != "WAKE_UP" || snap.Driver != DriverStartup || snap.StartupStep != "initialize:indicator" {
		t.Fatalf("initial snapshot = %+v", snap)
	}

	r.runUntil(t, c, func() bool { return c.Driver() == DriverDemo })

	if got := c.Machine().State(); got != lifecycle.Scanning {
		t.Errorf("state after hand-off = %v, want SCANNING", got)
	}
	snap = c.Snapshot()
	if diff := cmp.Diff([]string{"indicator", "display", "actuator"}, snap.Initialized); diff != "" {
		t.Errorf("initialized mismatch (-want +got):\n%s", diff)
	}
	if snap.BootID != "boot-1" {
		t.Errorf("BootID = %q", snap.BootID)
	}

	// The display held startup until its wake-up animation finished.
	if c.clock.Now() <= display.DefaultConfig().WakeUpDuration {
		t.Errorf("demo started at %d, before the wake-up animation ended", c.clock.Now())
	}
	if diff := cmp.Diff([]lifecycle.State{lifecycle.Scanning}, metrics.transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestController_DemoWrapRestartsStartup(t *testing.T) {
	r := newRig()
	metrics := &recordingMetrics{}
	r.deps.Metrics = metrics

	c, err := New(r.deps, Options{Phases: shortPhases(), RestartStartupOnWrap: true})
	if err != nil {
		t.Fatal(err)
	}

	r.runUntil(t, c, func() bool { return c.Driver() == DriverDemo })
	r.runUntil(t, c, func() bool { return c.Demo().Cycles() == 1 })

	if c.Driver() != DriverStartup {
		t.Fatalf("driver after wrap = %v, want startup", c.Driver())
	}
	if c.Machine().State() != lifecycle.WakeUp {
		t.Errorf("state after wrap = %v, want WAKE_UP", c.Machine().State())
	}

	r.runUntil(t, c, func() bool { return c.Driver() == DriverDemo })
	if r.screen.Begins() != 2 {
		t.Errorf("display Begin calls = %d, want 2", r.screen.Begins())
	}

	want := []lifecycle.State{lifecycle.Scanning, lifecycle.FullAsleep, lifecycle.WakeUp, lifecycle.Scanning}
	if diff := cmp.Diff(want, metrics.transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestController_DemoLoopsWithoutRestart(t *testing.T) {
	r := newRig()
	c, err := New(r.deps, Options{Phases: shortPhases()})
	if err != nil {
		t.Fatal(err)
	}

	r.runUntil(t, c, func() bool { return c.Driver() == DriverDemo })
	r.runUntil(t, c, func() bool { return c.Demo().Cycles() == 2 })

	if c.Driver() != DriverDemo {
		t.Errorf("driver = %v, want demo", c.Driver())
	}
	if r.screen.Begins() != 1 {
		t.Errorf("display Begin calls = %d, want 1", r.screen.Begins())
	}
}

func TestController_StartupFailureHalts(t *testing.T) {
	r := newRig()
	r.screen.FailBegin(true)
	metrics := &recordingMetrics{}
	r.deps.Metrics = metrics

	var mu sync.Mutex
	var events []Event
	d := NewDispatcher(16, nil, SinkFunc(func(_ context.Context, ev Event) error {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		return nil
	}))
	r.deps.Dispatcher = d

	c, err := New(r.deps, Options{Phases: shortPhases(), BootID: "b"})
	if err != nil {
		t.Fatal(err)
	}

	for range 50 {
		r.pass(c)
	}

	if c.Driver() != DriverHalted || c.Machine().State() != lifecycle.Error {
		t.Fatalf("driver=%v state=%v, want halted/ERROR", c.Driver(), c.Machine().State())
	}
	if f := c.Startup().Failure(); f == nil || f.Peripheral != "display" {
		t.Errorf("Failure() = %+v", f)
	}
	snap := c.Snapshot()
	if snap.Failure == "" || snap.Driver != DriverHalted {
		t.Errorf("snapshot = %+v", snap)
	}
	if diff := cmp.Diff([]string{"display"}, metrics.failures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}

	d.Start(context.Background())
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
		if ev.BootID != "b" {
			t.Errorf("event %s BootID = %q", ev.Type, ev.BootID)
		}
	}
	if diff := cmp.Diff([]EventType{EventLifecycleChanged, EventStartupFailed}, types); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if events[0].State != lifecycle.Error || events[0].Previous != lifecycle.WakeUp {
		t.Errorf("transition event = %+v", events[0])
	}
}

func TestController_PerceptionMessages(t *testing.T) {
	r := newRig()
	metrics := &recordingMetrics{}
	r.deps.Metrics = metrics
	r.deps.Perception = &lineQueue{lines: []string{
		`{"action":"alive","data":"XIAO is running"}`,
		`{"action":"detection","data":"10,20,30,40"}`,
		`not json`,
		`{"action":"dance"}`,
		`{"action":"error","data":"Camera init failed"}`,
	}}

	wall := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	c, err := New(r.deps, Options{Phases: shortPhases(), Now: func() time.Time { return wall }})
	if err != nil {
		t.Fatal(err)
	}

	for range 10 {
		r.pass(c)
	}

	snap := c.Snapshot()
	want := map[string]uint64{"HEARTBEAT": 1, "DETECTION": 1, "PARSE_ERROR": 1, "UNKNOWN_ACTION": 1, "ERROR": 1}
	if diff := cmp.Diff(want, snap.Messages); diff != "" {
		t.Errorf("message counts mismatch (-want +got):\n%s", diff)
	}
	if snap.LastHeartbeat == nil || !snap.LastHeartbeat.Equal(wall) {
		t.Errorf("LastHeartbeat = %v", snap.LastHeartbeat)
	}
	if snap.LastMessage == nil || snap.LastMessage.Kind != "ERROR" || snap.LastMessage.Payload != "Camera init failed" {
		t.Errorf("LastMessage = %+v", snap.LastMessage)
	}
	if len(metrics.messages) != 5 {
		t.Errorf("metrics saw %d messages, want 5", len(metrics.messages))
	}
	// Messages never move the lifecycle.
	if c.Machine().State() != lifecycle.WakeUp {
		t.Errorf("state = %v, want WAKE_UP", c.Machine().State())
	}
}

func TestController_EnvironmentSampling(t *testing.T) {
	r := newRig()
	monitor := environment.NewMonitor(&sim.ClimateSensor{Celsius: 22, RelHumidity: 45, Pascal: 100000})
	if err := monitor.Begin(); err != nil {
		t.Fatal(err)
	}
	r.deps.Climate = monitor
	r.deps.SampleInterval = 100

	c, err := New(r.deps, Options{Phases: shortPhases()})
	if err != nil {
		t.Fatal(err)
	}
	for range 25 {
		r.pass(c)
	}

	env := c.Snapshot().Environment
	if env["temperature_c"] != 22 || env["pressure_hpa"] != 1000 {
		t.Errorf("Environment = %v", env)
	}
}

func TestController_SnapshotIsACopy(t *testing.T) {
	r := newRig()
	r.deps.Perception = &lineQueue{lines: []string{`{"action":"alive","data":"x"}`}}
	c, err := New(r.deps, Options{Phases: shortPhases()})
	if err != nil {
		t.Fatal(err)
	}
	r.pass(c)

	snap := c.Snapshot()
	snap.Messages["HEARTBEAT"] = 99
	snap.LastMessage.Payload = "mutated"

	again := c.Snapshot()
	if again.Messages["HEARTBEAT"] != 1 || again.LastMessage.Payload != "x" {
		t.Errorf("snapshot shares state with controller: %+v", again)
	}
}

func TestController_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRig()
	r.deps.Clock = timing.NewSystemClock()
	c, err := New(r.deps, Options{Phases: shortPhases(), TickInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if c.Snapshot().Passes == 0 {
		t.Error("Run() executed no passes")
	}
}
