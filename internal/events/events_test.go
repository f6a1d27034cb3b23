package events_test

import (
	"context"
	"testing"

	"github.com/hazyhaar/lockhunt/dbopen"
	"github.com/hazyhaar/lockhunt/hunt"
	"github.com/hazyhaar/lockhunt/internal/events"
	_ "modernc.org/sqlite"
)

func TestRecordAndCount(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(events.Schema))
	log := events.New(db)
	ctx := context.Background()

	log.Record(ctx, hunt.Event{Type: "agent", AgentID: 1, Target: "A1706", Action: "start", Success: true})
	log.Record(ctx, hunt.Event{Type: "agent", AgentID: 1, Target: "A1706", Action: "blocked", Success: false})
	log.Record(ctx, hunt.Event{Type: "listing", AgentID: 1, Target: "A1706", Action: "added", Details: "http://x/1", Success: true})

	n, err := log.Count(ctx, "agent")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("agent events = %d, want 2", n)
	}

	n, err = log.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count all: %v", err)
	}
	if n != 3 {
		t.Fatalf("all events = %d, want 3", n)
	}

	n, err = log.Count(ctx, "search")
	if err != nil {
		t.Fatalf("Count search: %v", err)
	}
	if n != 0 {
		t.Fatalf("search events = %d, want 0", n)
	}
}

func TestRecord_UniqueEventIDs(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(events.Schema))
	log := events.New(db)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		log.Record(ctx, hunt.Event{Type: "agent", Action: "start", Success: true})
	}

	// A colliding event_id would violate the primary key and the insert
	// would be swallowed, leaving fewer rows than recorded.
	n, err := log.Count(ctx, "agent")
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Fatalf("events = %d, want 10", n)
	}
}
