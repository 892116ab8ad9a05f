// Package memstore is an in-memory notifysvc.Store, intended for tests
// and single-process deployments, mirroring the locking and id-allocation
// conventions of internal/eventstore/memstore.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/rathix/workflow-engine/internal/notifysvc"
)

// Store is an in-memory notifysvc.Store.
type Store struct {
	mu sync.RWMutex

	notifications map[int64]notifysvc.Notification
	dispatches    map[int64]notifysvc.Dispatch
	dispatchUser  map[int64]string
	preferences   map[string]notifysvc.Preference // key: userRef + "|" + channel

	nextNotificationID int64
	nextDispatchID      int64

	clock func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		notifications: make(map[int64]notifysvc.Notification),
		dispatches:    make(map[int64]notifysvc.Dispatch),
		dispatchUser:  make(map[int64]string),
		preferences:   make(map[string]notifysvc.Preference),
		clock:         time.Now,
	}
}

// WithClock overrides the store's time source. Intended for tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

var _ notifysvc.Store = (*Store)(nil)

func prefKey(userRef string, channel notifysvc.Channel) string {
	return userRef + "|" + string(channel)
}

func (s *Store) EnsurePreference(ctx context.Context, userRef string, channel notifysvc.Channel, defaultFreq notifysvc.Frequency) (notifysvc.Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prefKey(userRef, channel)
	if p, ok := s.preferences[key]; ok {
		return p, nil
	}
	p := notifysvc.Preference{UserRef: userRef, Channel: channel, Frequency: defaultFreq}
	s.preferences[key] = p
	return p, nil
}

func (s *Store) CreateNotification(ctx context.Context, userRef string, eventRef int64) (notifysvc.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextNotificationID++
	n := notifysvc.Notification{
		ID:        s.nextNotificationID,
		UserRef:   userRef,
		EventRef:  eventRef,
		CreatedAt: s.clock(),
	}
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) Notification(ctx context.Context, id int64) (notifysvc.Notification, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	return n, ok, nil
}

func (s *Store) CreateDispatch(ctx context.Context, notificationRef int64, channel notifysvc.Channel, address, view string, singleSpec, batchSpec map[string]any, due time.Time) (notifysvc.Dispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDispatchID++
	d := notifysvc.Dispatch{
		ID:              s.nextDispatchID,
		NotificationRef: notificationRef,
		Channel:         channel,
		Address:         address,
		View:            view,
		SingleSpec:      singleSpec,
		BatchSpec:       batchSpec,
		Due:             due,
	}
	s.dispatches[d.ID] = d
	if n, ok := s.notifications[notificationRef]; ok {
		s.dispatchUser[d.ID] = n.UserRef
	}
	return d, nil
}

func (s *Store) Dispatch(ctx context.Context, id int64) (notifysvc.Dispatch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dispatches[id]
	return d, ok, nil
}

func (s *Store) DueDispatches(ctx context.Context, now time.Time) ([]notifysvc.DueRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []notifysvc.DueRow
	for id, d := range s.dispatches {
		if d.Sent != nil {
			continue
		}
		if d.Due.After(now) {
			continue
		}
		if n, ok := s.notifications[d.NotificationRef]; ok && n.ReadAt != nil {
			continue
		}
		out = append(out, notifysvc.DueRow{Dispatch: d, UserRef: s.dispatchUser[id]})
	}
	return out, nil
}

func (s *Store) MarkSent(ctx context.Context, dispatchID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dispatches[dispatchID]
	if !ok {
		return notifysvc.ErrNotFound
	}
	sentAt := at
	d.Sent = &sentAt
	s.dispatches[dispatchID] = d
	return nil
}
