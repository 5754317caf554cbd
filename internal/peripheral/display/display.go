package display

import (
	"fmt"
	"math"

	"github.com/nerrad567/icu-core/internal/hal"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/peripheral"
	"github.com/nerrad567/icu-core/internal/timing"
)

// Name identifies the display in logs and startup steps.
const Name = "display"

// SubState alternates the scanning screen between a message and the ripple.
type SubState int

const (
	SubStateText SubState = iota
	SubStateAnimation
)

func (s SubState) String() string {
	if s == SubStateAnimation {
		return "animation"
	}
	return "text"
}

const (
	rippleCount   = 3
	rippleSpacing = 40.0
	rippleRange   = 120.0
	lineGap       = 4
)

// Display renders the lifecycle state on a round screen.
type Display struct {
	screen hal.Screen
	cfg    Config
	logger peripheral.Logger

	initialized bool
	state       lifecycle.State
	enteredAt   timing.Millis
	wakeDone    bool

	sub       SubState
	subMark   timing.Millis
	scanIdx   int
	detectIdx int

	ring   peripheral.Dedup[hal.Color]
	ripple []int
}

// New returns a Display drawing on screen. A nil logger discards output.
func New(screen hal.Screen, cfg Config, logger peripheral.Logger) *Display {
	if logger == nil {
		logger = peripheral.NopLogger()
	}
	return &Display{
		screen: screen,
		cfg:    cfg.withDefaults(),
		logger: logger,
		state:  lifecycle.WakeUp,
	}
}

func (d *Display) Name() string { return Name }

// Begin initialises the panel. It may be called again after a startup
// restart; a failure leaves the display uninitialised.
func (d *Display) Begin() error {
	if err := d.screen.Begin(); err != nil {
		d.initialized = false
		d.logger.Error("display initialisation failed", "error", err)
		return fmt.Errorf("display begin: %w", err)
	}
	d.initialized = true
	d.ring.Reset()
	d.logger.Info("display initialised", "width", d.screen.Width(), "height", d.screen.Height())
	return nil
}

func (d *Display) Initialized() bool { return d.initialized }

// Ready reports whether the wake-up animation has played for its full
// duration since the last WAKE_UP entry.
func (d *Display) Ready() bool {
	return d.initialized && d.wakeDone
}

// OnLifecycleChange clears the panel and draws the entry frame for state.
func (d *Display) OnLifecycleChange(state lifecycle.State, now timing.Millis) {
	if !d.initialized {
		return
	}
	d.state = state
	d.enteredAt = now
	d.clear(hal.Black)

	switch state {
	case lifecycle.WakeUp:
		d.wakeDone = false
		d.drawCentered("POWERING\nUP", hal.White)
	case lifecycle.Scanning:
		d.scanIdx = 0
		d.sub = SubStateText
		d.subMark = now
		d.drawCentered(d.cfg.ScanningMessages[0], hal.Cyan)
	case lifecycle.Detection:
		d.detectIdx = 0
		d.subMark = now
		d.drawCentered(d.cfg.DetectionMessages[0], hal.Red)
	case lifecycle.Napping:
		d.drawCentered("ZZZzzz", hal.Cyan)
	case lifecycle.FullAsleep:
		d.drawCentered("POWERING\nDOWN...", hal.White)
	case lifecycle.Error:
		d.drawCentered("SYSTEM\nERROR", hal.White)
	}
}

// Tick advances the animation for the current state.
func (d *Display) Tick(now timing.Millis) {
	if !d.initialized {
		return
	}

	switch d.state {
	case lifecycle.WakeUp:
		d.drawRing(hal.Color565(0, pulseLevel(now), 0))
		if !d.wakeDone && timing.Elapsed(now, d.enteredAt) > d.cfg.WakeUpDuration {
			d.wakeDone = true
			d.logger.Debug("display wake-up complete")
		}
	case lifecycle.Scanning:
		d.tickScanning(now)
	case lifecycle.Detection:
		d.drawRing(hal.Color565(pulseLevel(now), 0, 0))
		if timing.Elapsed(now, d.subMark) > d.cfg.DetectionText {
			d.subMark = now
			d.detectIdx = (d.detectIdx + 1) % len(d.cfg.DetectionMessages)
			d.clear(hal.Black)
			d.drawCentered(d.cfg.DetectionMessages[d.detectIdx], hal.Red)
		}
	case lifecycle.Napping:
		d.drawRing(hal.Color565(0, 0, pulseLevel(now)))
	case lifecycle.FullAsleep:
		v := pulseLevel(now)
		d.drawRing(hal.Color565(0, v, v))
	case lifecycle.Error:
		p := (math.Sin(float64(now)/200) + 1) / 2
		c := hal.Color565(uint8(100+155*p), 0, 0)
		if sent, _ := d.ring.Issue(c, d.fill); sent {
			d.drawCentered("ERROR\nCRITICAL", hal.White)
		}
	}
}

func (d *Display) tickScanning(now timing.Millis) {
	switch d.sub {
	case SubStateText:
		if timing.Elapsed(now, d.subMark) > d.cfg.ScanningText {
			d.sub = SubStateAnimation
			d.subMark = now
			d.clear(hal.Black)
		}
	case SubStateAnimation:
		d.drawRipple(now)
		if timing.Elapsed(now, d.subMark) > d.cfg.ScanningAnimation {
			d.sub = SubStateText
			d.subMark = now
			d.scanIdx = (d.scanIdx + 1) % len(d.cfg.ScanningMessages)
			d.clear(hal.Black)
			d.drawCentered(d.cfg.ScanningMessages[d.scanIdx], hal.Cyan)
		}
	}
}

// State returns the last state the display rendered.
func (d *Display) State() lifecycle.State { return d.state }

// Scanning returns the scanning sub-state and message index.
func (d *Display) Scanning() (SubState, int) { return d.sub, d.scanIdx }

// DetectionIndex returns the index of the detection message on screen.
func (d *Display) DetectionIndex() int { return d.detectIdx }

func (d *Display) clear(c hal.Color) {
	d.screen.FillScreen(c)
	d.ring.Reset()
	d.ripple = d.ripple[:0]
}

func (d *Display) fill(c hal.Color) error {
	d.screen.FillScreen(c)
	return nil
}

func (d *Display) drawRing(c hal.Color) {
	_, _ = d.ring.Issue(c, func(c hal.Color) error {
		cx, cy := d.screen.Width()/2, d.screen.Height()/2
		for i := range d.cfg.RingWidth {
			d.screen.DrawCircle(cx, cy, cx-i, c)
		}
		return nil
	})
}

func (d *Display) drawRipple(now timing.Millis) {
	cx, cy := d.screen.Width()/2, d.screen.Height()/2
	radii := RippleRadii(now)

	same := len(d.ripple) == len(radii)
	for i := 0; same && i < len(radii); i++ {
		same = d.ripple[i] == radii[i]
	}
	if same {
		return
	}

	for _, r := range d.ripple {
		d.screen.DrawCircle(cx, cy, r, hal.Black)
	}
	for _, r := range radii {
		brightness := uint8(255 * (1 - float64(r)/rippleRange))
		d.screen.DrawCircle(cx, cy, r, hal.Color565(0, 100, brightness))
	}
	d.ripple = append(d.ripple[:0], radii...)
}

func (d *Display) drawCentered(text string, c hal.Color) {
	for _, l := range CenteredLines(d.screen, text, d.screen.Height()/2, d.cfg.TextSize) {
		d.screen.DrawText(l.X, l.Y, l.Text, d.cfg.TextSize, c)
	}
}

// pulseLevel maps a slow sine of now onto the 20..200 channel range.
func pulseLevel(now timing.Millis) uint8 {
	p := (math.Sin(float64(now)/800) + 1) / 2
	return uint8(20 + 180*p)
}

// RippleRadii returns the radii of the expanding scan circles at now.
func RippleRadii(now timing.Millis) []int {
	base := math.Mod(float64(now)/20, rippleRange)
	out := make([]int, rippleCount)
	for i := range out {
		out[i] = int(math.Mod(base+float64(i)*rippleSpacing, rippleRange))
	}
	return out
}

var (
	_ peripheral.Peripheral    = (*Display)(nil)
	_ peripheral.ReadinessGate = (*Display)(nil)
)
