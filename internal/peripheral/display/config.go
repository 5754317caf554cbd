package display

import "github.com/nerrad567/icu-core/internal/timing"

// Config holds display timing and copy.
type Config struct {
	WakeUpDuration    timing.Millis
	ScanningText      timing.Millis
	ScanningAnimation timing.Millis
	DetectionText     timing.Millis
	RingWidth         int
	TextSize          int
	ScanningMessages  []string
	DetectionMessages []string
}

// DefaultScanningMessages are cycled while scanning.
var DefaultScanningMessages = []string{
	"..SCANNING..",
	"WHERE ARE\nTHE HUMANS?",
	"COME OUT\nCOME OUT...",
	"I SEE YOU...",
	"DON'T BE SHY",
}

// DefaultDetectionMessages are cycled while a detection is shown.
var DefaultDetectionMessages = []string{
	"GOTCHA!",
	"FREEZE\nHUMAN!",
	"I GOT YOU\nDIRTBAG!",
	"YOU ARE\nTERMINATED!",
	"TIME TO BBQ\nSOME MEAT!",
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		WakeUpDuration:    3000,
		ScanningText:      5000,
		ScanningAnimation: 10000,
		DetectionText:     5000,
		RingWidth:         10,
		TextSize:          3,
		ScanningMessages:  DefaultScanningMessages,
		DetectionMessages: DefaultDetectionMessages,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.WakeUpDuration == 0 {
		c.WakeUpDuration = def.WakeUpDuration
	}
	if c.ScanningText == 0 {
		c.ScanningText = def.ScanningText
	}
	if c.ScanningAnimation == 0 {
		c.ScanningAnimation = def.ScanningAnimation
	}
	if c.DetectionText == 0 {
		c.DetectionText = def.DetectionText
	}
	if c.RingWidth <= 0 {
		c.RingWidth = def.RingWidth
	}
	if c.TextSize <= 0 {
		c.TextSize = def.TextSize
	}
	if len(c.ScanningMessages) == 0 {
		c.ScanningMessages = def.ScanningMessages
	}
	if len(c.DetectionMessages) == 0 {
		c.DetectionMessages = def.DetectionMessages
	}
	return c
}
