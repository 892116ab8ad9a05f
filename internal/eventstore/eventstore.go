// Package eventstore persists the ActivityEvent and WorkStatus history of
// every resource participating in the engine, and answers "what is the
// current status of this resource" and "which resources are currently in
// one of these statuses" queries.
package eventstore

import (
	"context"
	"time"
)

// EventRecord is an immutable ActivityEvent.
type EventRecord struct {
	ID        int64
	ParentRef string // "<type-tag>:<id>"
	UserRef   *string
	Target    string
	Action    string
	Data      map[string]any
	CreatedAt time.Time
}

// Type returns the qualified "<target>:<action>" event type.
func (e EventRecord) Type() string {
	return e.Target + ":" + e.Action
}

// StatusRecord is an immutable WorkStatus row.
type StatusRecord struct {
	ID        int64
	ParentRef string
	Value     string
	EventRef  *int64
	CreatedAt time.Time
}

// Store is the persistence interface the FSM evaluator and the transition
// binder depend on. It has two implementations: memstore (in-memory, used
// by tests and small deployments) and postgres (SQL-backed).
type Store interface {
	// CreateEvent appends an ActivityEvent and returns it with its
	// assigned ID and timestamp.
	CreateEvent(ctx context.Context, parentRef string, userRef *string, target, action string, data map[string]any) (EventRecord, error)

	// SetWorkStatus appends a WorkStatus row. eventRef, if non-nil, must
	// reference an event whose ParentRef equals parentRef.
	SetWorkStatus(ctx context.Context, parentRef string, value string, eventRef *int64) (StatusRecord, error)

	// CurrentStatus returns the WorkStatus row with the greatest
	// (CreatedAt, ID) for parentRef. ok is false if no row exists.
	CurrentStatus(ctx context.Context, parentRef string) (rec StatusRecord, ok bool, err error)

	// StatusQuery returns the parentRefs under typeTag whose current
	// status is (or, if negate, is not) one of values.
	StatusQuery(ctx context.Context, typeTag string, values []string, negate bool) ([]string, error)

	// Events returns the ActivityEvent history for parentRef, oldest first.
	Events(ctx context.Context, parentRef string) ([]EventRecord, error)

	// Event looks up a single ActivityEvent by ID.
	Event(ctx context.Context, id int64) (EventRecord, bool, error)
}

// currentOf picks the current row out of a slice: greatest (CreatedAt, ID)
// wins; ties on CreatedAt are broken by the larger ID winning (a later
// insert with an identical timestamp supersedes the earlier one).
func currentOf(rows []StatusRecord) (StatusRecord, bool) {
	var best StatusRecord
	found := false
	for _, r := range rows {
		if !found || isAfter(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

func isAfter(a, b StatusRecord) bool {
	if a.CreatedAt.After(b.CreatedAt) {
		return true
	}
	if a.CreatedAt.Before(b.CreatedAt) {
		return false
	}
	return a.ID > b.ID
}
