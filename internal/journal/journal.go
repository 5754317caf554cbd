package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/protocol"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed-width so created_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// Transition is one recorded lifecycle state entry.
type Transition struct {
	ID        int64     `json:"id"`
	BootID    string    `json:"boot_id"`
	State     string    `json:"state"`
	Previous  string    `json:"previous"`
	DemoPhase string    `json:"demo_phase,omitempty"`
	UptimeMS  uint32    `json:"uptime_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// PerceptionEvent is one recorded message from the perception node.
type PerceptionEvent struct {
	ID        int64     `json:"id"`
	BootID    string    `json:"boot_id"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal persists lifecycle transitions and perception events so the
// recent history survives a restart and can be served by the API.
//
// It is safe for concurrent use; database/sql serialises access.
type Journal struct {
	db *sql.DB
}

// New returns a Journal over an open, migrated database.
//
// Parameters:
//   - db: SQLite connection with the journal migrations applied
//
// Returns:
//   - *Journal: Ready for use
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// RecordTransition inserts a lifecycle transition.
func (j *Journal) RecordTransition(ctx context.Context, bootID string, state, previous lifecycle.State, demoPhase string, uptimeMS uint32, at time.Time) error {
	if bootID == "" {
		return ErrMissingBootID
	}
	if !state.Valid() {
		return fmt.Errorf("recording transition: %w", lifecycle.ErrUnknownState)
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO lifecycle_transitions (boot_id, state, previous, demo_phase, uptime_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bootID, state.String(), previous.String(), demoPhase, int64(uptimeMS), at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

// RecordMessage inserts a perception event. None messages are ignored.
func (j *Journal) RecordMessage(ctx context.Context, bootID string, msg protocol.Message, at time.Time) error {
	if bootID == "" {
		return ErrMissingBootID
	}
	if msg.Empty() {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO perception_events (boot_id, kind, payload, created_at) VALUES (?, ?, ?, ?)",
		bootID, msg.Kind.String(), msg.Payload, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting perception event: %w", err)
	}
	return nil
}

// RecentTransitions returns transitions newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries (default 50, max 200)
func (j *Journal) RecentTransitions(ctx context.Context, limit int) ([]Transition, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, boot_id, state, previous, demo_phase, uptime_ms, created_at
		 FROM lifecycle_transitions
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	out := make([]Transition, 0, clampLimit(limit))
	for rows.Next() {
		var t Transition
		var uptime int64
		var created string
		if err := rows.Scan(&t.ID, &t.BootID, &t.State, &t.Previous, &t.DemoPhase, &uptime, &created); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		t.UptimeMS = uint32(uptime)
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return out, nil
}

// RecentEvents returns perception events newest first, optionally
// filtered to one kind ("" for all).
func (j *Journal) RecentEvents(ctx context.Context, kind string, limit int) ([]PerceptionEvent, error) {
	query := `SELECT id, boot_id, kind, payload, created_at FROM perception_events`
	args := []any{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, clampLimit(limit))

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying perception events: %w", err)
	}
	defer rows.Close()

	out := make([]PerceptionEvent, 0, clampLimit(limit))
	for rows.Next() {
		var e PerceptionEvent
		var created string
		if err := rows.Scan(&e.ID, &e.BootID, &e.Kind, &e.Payload, &created); err != nil {
			return nil, fmt.Errorf("scanning perception event: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating perception events: %w", err)
	}
	return out, nil
}

// Prune deletes rows from both tables older than olderThan relative to now.
//
// Returns:
//   - int64: Total rows deleted
//   - error: nil on success, otherwise the underlying database error
func (j *Journal) Prune(ctx context.Context, now time.Time, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := now.UTC().Add(-olderThan).Format(timeLayout)

	var total int64
	for _, table := range []string{"lifecycle_transitions", "perception_events"} {
		res, err := j.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing journal timestamp %q: %w", s, err)
	}
	return t, nil
}
