package demo

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/timing"
)

type setRecorder struct {
	states []lifecycle.State
}

func (r *setRecorder) Set(s lifecycle.State) { r.states = append(r.states, s) }

func TestDefaultPhases_ActiveSchedule(t *testing.T) {
	seq, err := New(&setRecorder{}, DefaultPhases(), nil)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, p := range seq.Phases() {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"scan_1", "detect", "scan_3", "sleep"}, names); diff != "" {
		t.Errorf("active schedule mismatch (-want +got):\n%s", diff)
	}
}

func TestSequencer_StrictThreshold(t *testing.T) {
	rec := &setRecorder{}
	seq, _ := New(rec, DefaultPhases(), nil)

	seq.Start(0)
	seq.Step(20000)
	if seq.Current().Name != "scan_1" {
		t.Fatal("advanced at exactly the duration")
	}
	seq.Step(20001)
	if seq.Current().Name != "detect" {
		t.Fatalf("Current() = %s, want detect", seq.Current().Name)
	}
	if seq.EnteredAt() != 20001 {
		t.Errorf("EnteredAt() = %d, want 20001", seq.EnteredAt())
	}

	want := []lifecycle.State{lifecycle.Scanning, lifecycle.Detection}
	if diff := cmp.Diff(want, rec.states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestSequencer_OnePhasePerStep(t *testing.T) {
	rec := &setRecorder{}
	seq, _ := New(rec, DefaultPhases(), nil)
	seq.Start(0)

	seq.Step(1_000_000)
	if seq.Current().Name != "detect" {
		t.Errorf("Current() = %s after a long stall, want detect", seq.Current().Name)
	}
}

func TestSequencer_WrapCallsHook(t *testing.T) {
	rec := &setRecorder{}
	seq, _ := New(rec, DefaultPhases(), nil)

	var wraps []timing.Millis
	seq.OnWrap(func(now timing.Millis) { wraps = append(wraps, now) })
	seq.Start(0)

	now := timing.Millis(0)
	for _, d := range []timing.Millis{20000, 7000, 20000, 15000} {
		now += d + 1
		seq.Step(now)
	}

	if diff := cmp.Diff([]timing.Millis{now}, wraps); diff != "" {
		t.Errorf("wrap hook mismatch (-want +got):\n%s", diff)
	}
	if seq.Running() {
		t.Error("Running() = true after wrap hook")
	}
	want := []lifecycle.State{lifecycle.Scanning, lifecycle.Detection, lifecycle.Scanning, lifecycle.FullAsleep}
	if diff := cmp.Diff(want, rec.states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if seq.Cycles() != 1 {
		t.Errorf("Cycles() = %d, want 1", seq.Cycles())
	}

	seq.Step(now + 100_000)
	if len(rec.states) != 4 {
		t.Error("stopped sequencer still set state")
	}
}

func TestSequencer_WrapWithoutHookLoops(t *testing.T) {
	rec := &setRecorder{}
	phases := []Phase{
		{Name: "a", State: lifecycle.Scanning, Duration: 10, Enabled: true},
		{Name: "b", State: lifecycle.Detection, Duration: 10, Enabled: true},
	}
	seq, _ := New(rec, phases, nil)
	seq.Start(0)
	seq.Step(11)
	seq.Step(22)

	if seq.Current().Name != "a" {
		t.Errorf("Current() = %s, want a after wrap", seq.Current().Name)
	}
}

func TestSequencer_AcrossClockWrap(t *testing.T) {
	rec := &setRecorder{}
	seq, _ := New(rec, DefaultPhases(), nil)

	start := timing.Millis(math.MaxUint32 - 5000)
	seq.Start(start)
	seq.Step(start + 20000) // wraps the counter
	if seq.Current().Name != "scan_1" {
		t.Fatal("advanced early across counter wrap")
	}
	seq.Step(start + 20001)
	if seq.Current().Name != "detect" {
		t.Error("did not advance across counter wrap")
	}
}

func TestSequencer_FiresOncePastDuration(t *testing.T) {
	states := lifecycle.States()

	for seed := uint64(1); seed <= 50; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*31))

		phases := make([]Phase, 1+rng.IntN(6))
		for i := range phases {
			phases[i] = Phase{
				Name:     string(rune('a' + i)),
				State:    states[rng.IntN(len(states))],
				Duration: timing.Millis(1 + rng.IntN(60000)),
				Enabled:  true,
			}
		}
		rec := &setRecorder{}
		seq, err := New(rec, phases, nil)
		if err != nil {
			t.Fatal(err)
		}

		// Start close enough to the top of the counter that most
		// schedules run across the wrap.
		now := timing.Millis(math.MaxUint32 - uint32(rng.IntN(120000)))
		seq.Start(now)

		idx := 0
		for range 2 * len(phases) {
			cur := phases[idx]
			entered := seq.EnteredAt()
			sets := len(rec.states)

			mid := timing.Millis(rng.IntN(int(cur.Duration) + 1))
			for _, k := range []timing.Millis{0, mid, cur.Duration} {
				seq.Step(entered + k)
				if len(rec.states) != sets {
					t.Fatalf("seed %d phase %s: advanced %dms into a %dms phase", seed, cur.Name, k, cur.Duration)
				}
			}

			now = entered + cur.Duration + timing.Millis(1+rng.IntN(1000))
			seq.Step(now)
			idx = (idx + 1) % len(phases)
			if len(rec.states) != sets+1 {
				t.Fatalf("seed %d phase %s: %d state changes past duration, want 1", seed, cur.Name, len(rec.states)-sets)
			}
			if seq.Current().Name != phases[idx].Name || seq.EnteredAt() != now {
				t.Fatalf("seed %d: Current() = %s entered %d, want %s entered %d",
					seed, seq.Current().Name, seq.EnteredAt(), phases[idx].Name, now)
			}
		}
		if seq.Cycles() != 2 {
			t.Errorf("seed %d: Cycles() = %d, want 2", seed, seq.Cycles())
		}
	}
}

func TestNew_Errors(t *testing.T) {
	disabled := []Phase{{Name: "x", State: lifecycle.Scanning, Duration: 5}}
	if _, err := New(&setRecorder{}, disabled, nil); !errors.Is(err, ErrNoPhases) {
		t.Errorf("error = %v, want ErrNoPhases", err)
	}

	zero := []Phase{{Name: "x", State: lifecycle.Scanning, Enabled: true}}
	if _, err := New(&setRecorder{}, zero, nil); !errors.Is(err, ErrZeroDuration) {
		t.Errorf("error = %v, want ErrZeroDuration", err)
	}
}
