package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nerrad567/icu-core/internal/infrastructure/database"
	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/protocol"
	"github.com/nerrad567/icu-core/migrations"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "icu.db"), WALMode: true, BusyTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return New(db.DB)
}

var base = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func TestRecordTransition_NewestFirst(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	steps := []struct {
		state, prev lifecycle.State
		phase       string
	}{
		{lifecycle.Scanning, lifecycle.WakeUp, "scan_1"},
		{lifecycle.Detection, lifecycle.Scanning, "detect"},
		{lifecycle.FullAsleep, lifecycle.Detection, "sleep"},
	}
	for i, s := range steps {
		if err := j.RecordTransition(ctx, "boot", s.state, s.prev, s.phase, uint32(i*1000), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordTransition() error = %v", err)
		}
	}

	got, err := j.RecentTransitions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []Transition{
		{BootID: "boot", State: "FULL_ASLEEP", Previous: "DETECTION", DemoPhase: "sleep", UptimeMS: 2000, CreatedAt: base.Add(2 * time.Second)},
		{BootID: "boot", State: "DETECTION", Previous: "SCANNING", DemoPhase: "detect", UptimeMS: 1000, CreatedAt: base.Add(time.Second)},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Transition{}, "ID")); diff != "" {
		t.Errorf("RecentTransitions mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordTransition_Validation(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	if err := j.RecordTransition(ctx, "", lifecycle.Scanning, lifecycle.WakeUp, "", 0, base); !errors.Is(err, ErrMissingBootID) {
		t.Errorf("missing boot id error = %v", err)
	}
	if err := j.RecordTransition(ctx, "b", lifecycle.State(42), lifecycle.WakeUp, "", 0, base); !errors.Is(err, lifecycle.ErrUnknownState) {
		t.Errorf("invalid state error = %v", err)
	}
}

func TestRecordMessage_FilterByKind(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	msgs := []protocol.Message{
		{Kind: protocol.Heartbeat, Payload: "XIAO is running"},
		{Kind: protocol.None},
		{Kind: protocol.Detection, Payload: "1,2,3,4"},
		{Kind: protocol.Heartbeat, Payload: "XIAO is running"},
	}
	for i, m := range msgs {
		if err := j.RecordMessage(ctx, "boot", m, base.Add(time.Duration(i)*time.Millisecond)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := j.RecentEvents(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("RecentEvents() = %d rows, want 3 (None skipped)", len(all))
	}
	if all[0].Kind != "HEARTBEAT" || all[1].Kind != "DETECTION" {
		t.Errorf("order = %s, %s", all[0].Kind, all[1].Kind)
	}

	beats, err := j.RecentEvents(ctx, "HEARTBEAT", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(beats) != 2 {
		t.Errorf("heartbeats = %d, want 2", len(beats))
	}
}

func TestPrune(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	old := base.Add(-48 * time.Hour)
	_ = j.RecordTransition(ctx, "b", lifecycle.Scanning, lifecycle.WakeUp, "", 0, old)
	_ = j.RecordTransition(ctx, "b", lifecycle.Detection, lifecycle.Scanning, "", 0, base)
	_ = j.RecordMessage(ctx, "b", protocol.Message{Kind: protocol.Error, Payload: "x"}, old)

	n, err := j.Prune(ctx, base, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Prune() deleted %d, want 2", n)
	}
	left, _ := j.RecentTransitions(ctx, 0)
	if len(left) != 1 || left[0].State != "DETECTION" {
		t.Errorf("remaining = %+v", left)
	}

	if _, err := j.Prune(ctx, base, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v", err)
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{-1: 50, 0: 50, 10: 10, 200: 200, 500: 200} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
