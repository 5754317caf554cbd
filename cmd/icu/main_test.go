package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/icu-core/internal/demo"
	"github.com/nerrad567/icu-core/internal/hal"
	"github.com/nerrad567/icu-core/internal/hal/sim"
	"github.com/nerrad567/icu-core/internal/infrastructure/config"
	"github.com/nerrad567/icu-core/internal/infrastructure/logging"
	"github.com/nerrad567/icu-core/internal/lifecycle"
)

func TestRun_InvalidConfigPath(t *testing.T) {
	t.Setenv("ICU_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with an explicit missing config path")
	}
}

// TestRun_MinimalConfig runs the loop with every optional integration off
// until the context expires.
func TestRun_MinimalConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
device:
  id: test-rig
logging:
  level: error
database:
  enabled: false
mqtt:
  enabled: false
influxdb:
  enabled: false
api:
  enabled: false
serial:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ICU_CONFIG", path)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestRun_JournalEnabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
device:
  id: test-rig
logging:
  level: error
database:
  enabled: true
  path: ` + filepath.Join(dir, "icu.db") + `
mqtt:
  enabled: false
api:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ICU_CONFIG", path)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "icu.db")); err != nil {
		t.Errorf("journal database not created: %v", err)
	}
}

func TestDemoPhases(t *testing.T) {
	got, err := demoPhases(config.DemoConfig{Phases: []config.PhaseConfig{
		{Name: "scan", State: "scanning", DurationMS: 1000, Enabled: true},
		{Name: "nap", State: "NAPPING", DurationMS: 500},
	}})
	if err != nil {
		t.Fatal(err)
	}
	want := []demo.Phase{
		{Name: "scan", State: lifecycle.Scanning, Duration: 1000, Enabled: true},
		{Name: "nap", State: lifecycle.Napping, Duration: 500},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("phases (-want +got):\n%s", diff)
	}

	_, err = demoPhases(config.DemoConfig{Phases: []config.PhaseConfig{{Name: "x", State: "dancing"}}})
	if !errors.Is(err, lifecycle.ErrUnknownState) {
		t.Errorf("error = %v, want ErrUnknownState", err)
	}
}

func TestBuildRig_FromDefaults(t *testing.T) {
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Environment.Enabled = true
	cfg.Environment.SampleIntervalMS = 1000

	r, err := buildRig(cfg, logging.Default())
	if err != nil {
		t.Fatalf("buildRig() error = %v", err)
	}
	deps := r.deps()
	if deps.Climate == nil || deps.SampleInterval != 1000 {
		t.Errorf("climate wiring = %v / %d", deps.Climate, deps.SampleInterval)
	}
	if !deps.Climate.Found() {
		t.Error("simulated climate sensor not found")
	}

	ac := actuatorConfig(cfg.Actuator)
	if ac.Pulses.EyelidOpen != 412 || ac.Pulses.EyelidClosed != 534 {
		t.Errorf("eyelid pulses = %d/%d, want 412/534", ac.Pulses.EyelidOpen, ac.Pulses.EyelidClosed)
	}
	if ic := indicatorConfig(cfg.Indicator); ic.PulseWidth != 20*time.Millisecond || ic.PulseSpacing != 50*time.Millisecond {
		t.Errorf("indicator timing = %+v", ic)
	}
}

func TestBuildRig_BadSampleInterval(t *testing.T) {
	cfg, _ := config.Defaults()
	cfg.Environment.Enabled = true
	cfg.Environment.SampleIntervalMS = 0
	if _, err := buildRig(cfg, logging.Default()); err == nil || !strings.Contains(err.Error(), "sample_interval_ms") {
		t.Errorf("buildRig() error = %v", err)
	}
}

func TestBuildRig_FanSpeedInReadings(t *testing.T) {
	cfg, _ := config.Defaults()
	cfg.Environment.Enabled = true
	cfg.Fan.Enabled = true

	r, err := buildRig(cfg, logging.Default())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.setFanSpeed(50); err != nil {
		t.Fatal(err)
	}

	reading := r.climate.Read()
	if !reading.FanMeasured || reading.FanRPM != 2490 {
		t.Errorf("fan = %d rpm (measured %v), want 2490", reading.FanRPM, reading.FanMeasured)
	}
}

func TestPulseTiming(t *testing.T) {
	timeline := &sim.Timeline{}

	p, w := pulseTiming(config.IndicatorConfig{}, timeline)
	if _, ok := p.(*sim.Preemption); !ok {
		t.Errorf("preemption = %T, want *sim.Preemption", p)
	}
	if _, ok := w.(sim.Waiter); !ok {
		t.Errorf("waiter = %T, want sim.Waiter", w)
	}

	p, w = pulseTiming(config.IndicatorConfig{Realtime: true}, timeline)
	if _, ok := p.(*hal.RuntimePreemption); !ok {
		t.Errorf("preemption = %T, want *hal.RuntimePreemption", p)
	}
	if _, ok := w.(hal.BusyWaiter); !ok {
		t.Errorf("waiter = %T, want hal.BusyWaiter", w)
	}
}
