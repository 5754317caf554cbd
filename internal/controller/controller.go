package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/icu-core/internal/demo"
	"github.com/nerrad567/icu-core/internal/environment"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/peripheral"
	"github.com/nerrad567/icu-core/internal/protocol"
	"github.com/nerrad567/icu-core/internal/startup"
	"github.com/nerrad567/icu-core/internal/timing"
)

// DefaultTickInterval is the control-loop period when none is configured.
const DefaultTickInterval = 5 * time.Millisecond

// Metrics receives control-loop observations. A nil Metrics in Deps
// disables them.
type Metrics interface {
	ObserveTransition(state lifecycle.State)
	ObserveMessage(kind protocol.EventKind)
	ObserveStartupFailure(peripheral string)
	ObservePass(d time.Duration)
}

// Deps are the collaborators of a Controller. Display, Actuator and
// Indicator are required; everything else is optional.
type Deps struct {
	Clock timing.Clock

	Display   peripheral.Peripheral
	Actuator  peripheral.Peripheral
	Indicator peripheral.Peripheral

	// Perception is the serial line source; nil runs without a camera.
	Perception protocol.LineSource

	// Climate is sampled every SampleInterval when set.
	Climate        *environment.Monitor
	SampleInterval timing.Millis

	Dispatcher *Dispatcher
	Metrics    Metrics
	Logger     peripheral.Logger
}

// Options tune behaviour.
type Options struct {
	// BootID tags every event; a random UUID is used when empty.
	BootID       string
	Phases       []demo.Phase
	TickInterval time.Duration
	// RestartStartupOnWrap re-runs the startup sequence after the last
	// demo phase instead of looping the schedule.
	RestartStartupOnWrap bool
	// Now is the wall clock for event timestamps.
	Now func() time.Time
}

// Controller runs the cooperative control loop: every pass ticks the
// peripherals, steps the active sequencer, polls the perception link and
// samples the climate sensor. Nothing in a pass blocks for long.
type Controller struct {
	clock      timing.Clock
	now        func() time.Time
	tick       time.Duration
	bootID     string
	logger     peripheral.Logger
	metrics    Metrics
	dispatcher *Dispatcher

	machine     *lifecycle.Machine
	peripherals []peripheral.Peripheral
	startup     *startup.Sequencer
	demo        *demo.Sequencer
	decoder     *protocol.Decoder
	sampler     *environment.Sampler

	driver          Driver
	previous        lifecycle.State
	failureReported bool

	status status
}

// New wires the lifecycle machine, sequencers and peripherals together.
//
// Lifecycle changes are broadcast to display, actuator and indicator in
// that order. Bring-up runs indicator, display (waiting for its wake-up
// animation) and actuator.
func New(deps Deps, opts Options) (*Controller, error) {
	if deps.Clock == nil {
		return nil, ErrMissingClock
	}
	switch {
	case deps.Display == nil:
		return nil, fmt.Errorf("%w: display", ErrMissingPeripheral)
	case deps.Actuator == nil:
		return nil, fmt.Errorf("%w: actuator", ErrMissingPeripheral)
	case deps.Indicator == nil:
		return nil, fmt.Errorf("%w: indicator", ErrMissingPeripheral)
	}

	c := &Controller{
		clock:      deps.Clock,
		now:        opts.Now,
		tick:       opts.TickInterval,
		bootID:     opts.BootID,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		dispatcher: deps.Dispatcher,
		previous:   lifecycle.WakeUp,
		// Tick order follows bring-up order.
		peripherals: []peripheral.Peripheral{deps.Indicator, deps.Display, deps.Actuator},
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.tick <= 0 {
		c.tick = DefaultTickInterval
	}
	if c.bootID == "" {
		c.bootID = uuid.NewString()
	}
	if c.logger == nil {
		c.logger = peripheral.NopLogger()
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}

	c.machine = lifecycle.NewMachine(deps.Clock, deps.Display, deps.Actuator, deps.Indicator)
	c.machine.Register(lifecycle.ObserverFunc(c.onLifecycleChange))

	var err error
	c.startup, err = startup.New(c.machine, []startup.Entry{
		{Peripheral: deps.Indicator},
		{Peripheral: deps.Display, AwaitReady: true},
		{Peripheral: deps.Actuator},
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("building startup plan: %w", err)
	}

	phases := opts.Phases
	if phases == nil {
		phases = demo.DefaultPhases()
	}
	c.demo, err = demo.New(c.machine, phases, c.logger)
	if err != nil {
		return nil, fmt.Errorf("building demo schedule: %w", err)
	}

	c.startup.OnComplete(c.startDemo)
	if opts.RestartStartupOnWrap {
		c.demo.OnWrap(c.restartStartup)
	}

	if deps.Perception != nil {
		c.decoder = protocol.NewDecoder(deps.Perception)
	}
	if deps.Climate != nil && deps.SampleInterval > 0 {
		c.sampler = environment.NewSampler(deps.Climate, deps.SampleInterval, deps.Clock.Now(), c.onReading)
	}

	wall := c.now().UTC()
	c.status.snap = Snapshot{
		BootID:      c.bootID,
		StartedAt:   wall,
		State:       lifecycle.WakeUp.String(),
		StateSince:  wall,
		Driver:      DriverStartup,
		StartupStep: c.startup.Current().String(),
		Messages:    make(map[string]uint64),
	}
	return c, nil
}

// Run executes passes on a ticker until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	c.logger.Info("control loop started", "boot_id", c.bootID, "tick", c.tick.String())
	for {
		c.RunOnce()
		select {
		case <-ctx.Done():
			c.logger.Info("control loop stopped", "state", c.machine.State().String())
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single control-loop pass.
func (c *Controller) RunOnce() {
	start := time.Now()
	now := c.clock.Now()

	for _, p := range c.peripherals {
		p.Tick(now)
	}

	switch c.driver {
	case DriverStartup:
		c.startup.Step(now)
		c.reportStartupFailure(now)
	case DriverDemo:
		c.demo.Step(now)
	case DriverHalted:
	}

	if c.decoder != nil {
		if msg := c.decoder.Poll(); !msg.Empty() {
			c.onMessage(msg, now)
		}
	}

	if c.sampler != nil {
		c.sampler.Tick(now)
	}

	c.status.update(func(s *Snapshot) {
		s.Passes++
		s.Driver = c.driver
		s.StartupStep = c.startup.Current().String()
		s.Initialized = c.startup.Initialized()
		if c.driver == DriverDemo {
			s.DemoPhase = c.demo.Current().Name
		} else {
			s.DemoPhase = ""
		}
		s.DemoCycles = c.demo.Cycles()
	})
	c.metrics.ObservePass(time.Since(start))
}

// startDemo is the startup sequencer's completion hand-off.
func (c *Controller) startDemo(now timing.Millis) {
	c.driver = DriverDemo
	c.demo.Start(now)
}

// restartStartup is the demo sequencer's wrap hand-off.
func (c *Controller) restartStartup(timing.Millis) {
	c.startup.Reset()
	c.driver = DriverStartup
	c.machine.Set(lifecycle.WakeUp)
}

func (c *Controller) onLifecycleChange(state lifecycle.State, at timing.Millis) {
	prev := c.previous
	c.previous = state

	if state == lifecycle.Error && c.driver != DriverHalted {
		c.driver = DriverHalted
		c.demo.Stop()
		c.logger.Error("controller halted", "previous", prev.String())
	}

	phase := ""
	if c.driver == DriverDemo && c.demo.Running() {
		phase = c.demo.Current().Name
	}

	wall := c.now().UTC()
	c.status.update(func(s *Snapshot) {
		s.State = state.String()
		s.StateSince = wall
		s.Driver = c.driver
	})
	c.metrics.ObserveTransition(state)
	c.publish(Event{
		Type:      EventLifecycleChanged,
		Time:      wall,
		Uptime:    at,
		State:     state,
		Previous:  prev,
		DemoPhase: phase,
	})
}

func (c *Controller) reportStartupFailure(now timing.Millis) {
	f := c.startup.Failure()
	if f == nil || c.failureReported {
		return
	}
	c.failureReported = true
	c.status.update(func(s *Snapshot) {
		s.Failure = fmt.Sprintf("%s: %v", f.Peripheral, f.Err)
	})
	c.metrics.ObserveStartupFailure(f.Peripheral)
	c.publish(Event{
		Type:       EventStartupFailed,
		Time:       c.now().UTC(),
		Uptime:     now,
		Peripheral: f.Peripheral,
		Err:        f.Err.Error(),
	})
}

// onMessage logs and reports one decoded perception message. Messages
// do not drive the lifecycle.
func (c *Controller) onMessage(msg protocol.Message, now timing.Millis) {
	wall := c.now().UTC()

	switch msg.Kind {
	case protocol.Detection:
		box, err := protocol.ParseBoundingBox(msg.Payload)
		if err != nil {
			c.logger.Warn("detection with unreadable box", "payload", msg.Payload, "error", err)
			break
		}
		x, y := box.Center()
		c.logger.Info("person detected", "box", box.String(), "center_x", x, "center_y", y)
	case protocol.Heartbeat:
		c.logger.Debug("perception heartbeat", "payload", msg.Payload)
	case protocol.Error:
		c.logger.Warn("perception node error", "payload", msg.Payload)
	case protocol.ParseError:
		c.logger.Warn("unparseable perception line", "line", msg.Payload)
	case protocol.UnknownAction:
		c.logger.Warn("unknown perception action", "payload", msg.Payload)
	}

	c.status.update(func(s *Snapshot) {
		s.Messages[msg.Kind.String()]++
		s.LastMessage = &MessageRecord{Kind: msg.Kind.String(), Payload: msg.Payload, At: wall}
		if msg.Kind == protocol.Heartbeat {
			s.LastHeartbeat = &wall
		}
	})
	c.metrics.ObserveMessage(msg.Kind)
	c.publish(Event{
		Type:    EventPerceptionMessage,
		Time:    wall,
		Uptime:  now,
		Message: msg,
	})
}

func (c *Controller) onReading(r environment.Reading) {
	fields := r.Fields()
	c.status.update(func(s *Snapshot) {
		s.Environment = fields
	})
	c.publish(Event{
		Type:    EventEnvironmentReading,
		Time:    r.At.UTC(),
		Uptime:  c.clock.Now(),
		Reading: r,
	})
}

func (c *Controller) publish(ev Event) {
	if c.dispatcher == nil {
		return
	}
	ev.BootID = c.bootID
	if !c.dispatcher.Publish(ev) {
		c.logger.Debug("event dropped", "event", string(ev.Type))
	}
}

// Snapshot returns current status. Safe to call from any goroutine.
func (c *Controller) Snapshot() Snapshot {
	s := c.status.copy()
	if c.dispatcher != nil {
		s.EventsDropped = c.dispatcher.Dropped()
	}
	return s
}

// BootID returns the identifier attached to this run's events.
func (c *Controller) BootID() string { return c.bootID }

// Driver returns the active driver. Control-loop goroutine only.
func (c *Controller) Driver() Driver { return c.driver }

// Machine exposes the lifecycle machine. Control-loop goroutine only.
func (c *Controller) Machine() *lifecycle.Machine { return c.machine }

// Startup exposes the startup sequencer. Control-loop goroutine only.
func (c *Controller) Startup() *startup.Sequencer { return c.startup }

// Demo exposes the demo sequencer. Control-loop goroutine only.
func (c *Controller) Demo() *demo.Sequencer { return c.demo }

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(lifecycle.State) {}
func (nopMetrics) ObserveMessage(protocol.EventKind) {}
func (nopMetrics) ObserveStartupFailure(string)      {}
func (nopMetrics) ObservePass(time.Duration)         {}
