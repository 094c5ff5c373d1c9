// Package eventlog persists detected events to SQLite, grouped by scan run.
package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/scan"
	_ "modernc.org/sqlite"
)

// ErrUnknownRun is returned by List for run IDs with no recorded events.
var ErrUnknownRun = errors.New("unknown run")

const schema = `
CREATE TABLE IF NOT EXISTS events (
	run_id   TEXT    NOT NULL,
	norad_id INTEGER NOT NULL,
	listener TEXT    NOT NULL,
	info     TEXT    NOT NULL,
	date     INTEGER NOT NULL,
	frame    TEXT    NOT NULL,
	x DOUBLE, y DOUBLE, z DOUBLE,
	vx DOUBLE, vy DOUBLE, vz DOUBLE
);
CREATE INDEX IF NOT EXISTS events_run ON events (run_id, date);
`

// Event is one detected event as stored and served.
type Event struct {
	RunID    string     `json:"run_id,omitempty"`
	NORADID  int        `json:"norad_id"`
	Listener string     `json:"listener"`
	Info     string     `json:"info"`
	Date     time.Time  `json:"date"`
	Frame    string     `json:"frame"`
	Position [3]float64 `json:"position_km"`
	Velocity [3]float64 `json:"velocity_km_s"`
}

// FromState converts an annotated state. s.Event must be set.
func FromState(runID string, noradID int, s orbit.State) Event {
	return Event{
		RunID:    runID,
		NORADID:  noradID,
		Listener: scan.ListenerName(s.Event.Listener),
		Info:     s.Event.Info,
		Date:     s.Date.UTC(),
		Frame:    string(s.Frame),
		Position: [3]float64{s.Position.X, s.Position.Y, s.Position.Z},
		Velocity: [3]float64{s.Velocity.X, s.Velocity.Y, s.Velocity.Z},
	}
}

// NewRunID returns a fresh scan run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Run summarizes one recorded scan. A batch run covers several satellites.
type Run struct {
	RunID      string    `json:"run_id"`
	Satellites int       `json:"satellites"`
	Events     int       `json:"events"`
	First      time.Time `json:"first"`
	Last       time.Time `json:"last"`
}

// Log is an SQLite-backed event store.
type Log struct {
	db *sql.DB
}

// Open opens or creates the event log at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating event log schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record stores events in one transaction.
func (l *Log) Record(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events
		(run_id, norad_id, listener, info, date, frame, x, y, z, vx, vy, vz)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if e.RunID == "" {
			return fmt.Errorf("event %q at %s has no run ID", e.Info, e.Date.Format(time.RFC3339))
		}
		_, err := stmt.ExecContext(ctx, e.RunID, e.NORADID, e.Listener, e.Info, e.Date.UnixNano(), e.Frame,
			e.Position[0], e.Position[1], e.Position[2],
			e.Velocity[0], e.Velocity[1], e.Velocity[2])
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}
	return tx.Commit()
}

// List returns the events of runID in date order. Events sharing a date keep
// their recording order.
func (l *Log) List(ctx context.Context, runID string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT
		run_id, norad_id, listener, info, date, frame, x, y, z, vx, vy, vz
		FROM events WHERE run_id = ? ORDER BY date, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e  Event
			ns int64
		)
		if err := rows.Scan(&e.RunID, &e.NORADID, &e.Listener, &e.Info, &ns, &e.Frame,
			&e.Position[0], &e.Position[1], &e.Position[2],
			&e.Velocity[0], &e.Velocity[1], &e.Velocity[2]); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Date = time.Unix(0, ns).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return events, nil
}

// Runs summarizes every recorded run, one row per run ID, most recent event
// last.
func (l *Log) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT run_id, COUNT(DISTINCT norad_id), COUNT(*), MIN(date), MAX(date)
		FROM events GROUP BY run_id ORDER BY MAX(date), run_id`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r           Run
			first, last int64
		)
		if err := rows.Scan(&r.RunID, &r.Satellites, &r.Events, &first, &last); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.First = time.Unix(0, first).UTC()
		r.Last = time.Unix(0, last).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
