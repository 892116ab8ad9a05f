// Package memstore is an in-memory eventstore.Store: a mutex-guarded map
// of append-only records, ordered by insertion, for tests and
// single-process deployments.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rathix/workflow-engine/internal/eventstore"
)

// Store is a concurrency-safe in-memory eventstore.Store.
type Store struct {
	mu       sync.RWMutex
	events   []eventstore.EventRecord
	byID     map[int64]int // event id -> index into events
	statuses map[string][]eventstore.StatusRecord
	nextEID  int64
	nextSID  int64

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byID:     make(map[int64]int),
		statuses: make(map[string][]eventstore.StatusRecord),
		clock:    time.Now,
	}
}

// WithClock overrides the store's clock (for tests).
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

var _ eventstore.Store = (*Store)(nil)

// CreateEvent appends a new ActivityEvent.
func (s *Store) CreateEvent(_ context.Context, parentRef string, userRef *string, target, action string, data map[string]any) (eventstore.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEID++
	rec := eventstore.EventRecord{
		ID:        s.nextEID,
		ParentRef: parentRef,
		UserRef:   userRef,
		Target:    target,
		Action:    action,
		Data:      data,
		CreatedAt: s.clock().UTC(),
	}
	s.byID[rec.ID] = len(s.events)
	s.events = append(s.events, rec)
	return rec, nil
}

// SetWorkStatus appends a new WorkStatus row, validating that eventRef (if
// set) points at an event with a matching ParentRef.
func (s *Store) SetWorkStatus(_ context.Context, parentRef string, value string, eventRef *int64) (eventstore.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if eventRef != nil {
		idx, ok := s.byID[*eventRef]
		if !ok {
			return eventstore.StatusRecord{}, fmt.Errorf("memstore: event %d not found", *eventRef)
		}
		if s.events[idx].ParentRef != parentRef {
			return eventstore.StatusRecord{}, fmt.Errorf("memstore: event %d belongs to %q, not %q", *eventRef, s.events[idx].ParentRef, parentRef)
		}
	}

	s.nextSID++
	rec := eventstore.StatusRecord{
		ID:        s.nextSID,
		ParentRef: parentRef,
		Value:     value,
		EventRef:  eventRef,
		CreatedAt: s.clock().UTC(),
	}
	s.statuses[parentRef] = append(s.statuses[parentRef], rec)
	return rec, nil
}

// CurrentStatus returns the current WorkStatus row for parentRef.
func (s *Store) CurrentStatus(_ context.Context, parentRef string) (eventstore.StatusRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := currentLocked(s.statuses[parentRef])
	return rec, ok, nil
}

// StatusQuery returns the parentRefs under typeTag whose current status
// matches (or, if negate, does not match) any of values.
func (s *Store) StatusQuery(_ context.Context, typeTag string, values []string, negate bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[v] = struct{}{}
	}

	prefix := typeTag + ":"
	var matches []string
	for parentRef, rows := range s.statuses {
		if len(parentRef) < len(prefix) || parentRef[:len(prefix)] != prefix {
			continue
		}
		cur, ok := currentLocked(rows)
		if !ok {
			continue
		}
		_, in := want[cur.Value]
		if in != negate {
			matches = append(matches, parentRef)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Events returns the ActivityEvent history for parentRef, oldest first.
func (s *Store) Events(_ context.Context, parentRef string) ([]eventstore.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []eventstore.EventRecord
	for _, e := range s.events {
		if e.ParentRef == parentRef {
			out = append(out, e)
		}
	}
	return out, nil
}

// Event looks up a single ActivityEvent by ID.
func (s *Store) Event(_ context.Context, id int64) (eventstore.EventRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return eventstore.EventRecord{}, false, nil
	}
	return s.events[idx], true, nil
}

// currentLocked picks the row with the greatest (CreatedAt, ID); ties on
// CreatedAt are broken by the larger ID winning. Caller must hold a lock.
func currentLocked(rows []eventstore.StatusRecord) (eventstore.StatusRecord, bool) {
	var best eventstore.StatusRecord
	found := false
	for _, r := range rows {
		if !found {
			best, found = r, true
			continue
		}
		if r.CreatedAt.After(best.CreatedAt) {
			best = r
		} else if r.CreatedAt.Equal(best.CreatedAt) && r.ID > best.ID {
			best = r
		}
	}
	return best, found
}
