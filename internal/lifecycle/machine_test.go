package lifecycle

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/icu-core/internal/timing"
)

type recordingObserver struct {
	name string
	log  *[]string
}

func (r recordingObserver) OnLifecycleChange(state State, _ timing.Millis) {
	*r.log = append(*r.log, r.name+":"+state.String())
}

func TestMachine_BroadcastOrder(t *testing.T) {
	clock := timing.NewManualClock(0)
	var log []string

	m := NewMachine(clock,
		recordingObserver{"display", &log},
		recordingObserver{"actuator", &log},
	)
	m.Register(recordingObserver{"indicator", &log})

	m.Set(Scanning)

	want := []string{"display:SCANNING", "actuator:SCANNING", "indicator:SCANNING"}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Errorf("broadcast order mismatch (-want +got):\n%s", diff)
	}
}

func TestMachine_SetRecordsEntryTime(t *testing.T) {
	clock := timing.NewManualClock(100)
	m := NewMachine(clock)

	if m.State() != WakeUp {
		t.Fatalf("initial State() = %v, want WAKE_UP", m.State())
	}

	clock.Set(2500)
	m.Set(Detection)

	if m.State() != Detection {
		t.Errorf("State() = %v, want DETECTION", m.State())
	}
	if m.EnteredAt() != 2500 {
		t.Errorf("EnteredAt() = %d, want 2500", m.EnteredAt())
	}
	if got := m.InState(3000); got != 500 {
		t.Errorf("InState() = %d, want 500", got)
	}
}

func TestMachine_RepeatedSetStillBroadcasts(t *testing.T) {
	clock := timing.NewManualClock(0)
	calls := 0
	m := NewMachine(clock, ObserverFunc(func(State, timing.Millis) { calls++ }))

	m.Set(Scanning)
	clock.Advance(10)
	m.Set(Scanning)

	if calls != 2 {
		t.Errorf("observer called %d times, want 2", calls)
	}
	if m.EnteredAt() != 10 {
		t.Errorf("EnteredAt() = %d, want 10 after re-entry", m.EnteredAt())
	}
}

func TestMachine_NoTransitionGuards(t *testing.T) {
	m := NewMachine(timing.NewManualClock(0))
	for _, s := range []State{FullAsleep, Detection, Error, Napping} {
		m.Set(s)
		if m.State() != s {
			t.Errorf("State() = %v after Set(%v)", m.State(), s)
		}
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		input   string
		want    State
		wantErr bool
	}{
		{"WAKE_UP", WakeUp, false},
		{"scanning", Scanning, false},
		{"full-asleep", FullAsleep, false},
		{" error ", Error, false},
		{"dozing", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseState(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseState(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownState) {
					t.Errorf("error = %v, want ErrUnknownState", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseState(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestState_TextRoundTripAndInvalid(t *testing.T) {
	for _, s := range States() {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", s, err)
		}
		var back State
		if err := back.UnmarshalText(b); err != nil || back != s {
			t.Errorf("UnmarshalText(%s) = %v, %v", b, back, err)
		}
	}

	if _, err := State(42).MarshalText(); !errors.Is(err, ErrUnknownState) {
		t.Errorf("MarshalText(42) error = %v, want ErrUnknownState", err)
	}
	if State(42).String() != "State(42)" {
		t.Errorf("String() = %q", State(42).String())
	}
}
