// Package events records search and agent lifecycle events to SQLite.
// Recording is fire-and-forget: a failing events store must never block
// or abort the search pipeline.
package events

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/lockhunt/dbopen"
	"github.com/hazyhaar/lockhunt/hunt"
	"github.com/hazyhaar/lockhunt/idgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS search_events (
	event_id   TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	agent_id   INTEGER NOT NULL DEFAULT 0,
	target     TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL DEFAULT '',
	details    TEXT NOT NULL DEFAULT '',
	success    INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_events_type_time
	ON search_events(event_type, created_at);
`

// Log writes events to the events database. Implements hunt.EventSink.
type Log struct {
	db    *sql.DB
	newID idgen.Generator
}

// Open opens (or creates) the events database at path.
func Open(path string) (*Log, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already-opened database. The schema must be in place;
// tests use dbopen.OpenMemory with WithSchema(Schema).
func New(db *sql.DB) *Log {
	return &Log{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
}

// Schema exposes the table DDL for callers that open the database
// themselves.
const Schema = schema

// Record inserts one event row. Errors are logged via slog and swallowed.
func (l *Log) Record(ctx context.Context, e hunt.Event) {
	success := 0
	if e.Success {
		success = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO search_events (
			event_id, event_type, agent_id, target, action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?)`,
		l.newID(), e.Type, e.AgentID, e.Target, e.Action, e.Details, success, time.Now().Unix())
	if err != nil {
		slog.Error("events: record failed", "error", err, "event_type", e.Type, "action", e.Action)
	}
}

// Count returns the number of recorded events of the given type; an
// empty type counts everything.
func (l *Log) Count(ctx context.Context, eventType string) (int, error) {
	var n int
	var err error
	if eventType == "" {
		err = l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_events`).Scan(&n)
	} else {
		err = l.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM search_events WHERE event_type = ?`, eventType).Scan(&n)
	}
	return n, err
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
