package notifysvc

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup by id finds no matching row.
var ErrNotFound = errors.New("notifysvc: not found")

// Store persists notifications, their per-channel dispatch rows, and
// per-user delivery-frequency preferences.
type Store interface {
	// EnsurePreference returns the user's stored preference for channel,
	// creating one seeded with defaultFreq if none exists yet.
	EnsurePreference(ctx context.Context, userRef string, channel Channel, defaultFreq Frequency) (Preference, error)

	CreateNotification(ctx context.Context, userRef string, eventRef int64) (Notification, error)
	Notification(ctx context.Context, id int64) (Notification, bool, error)

	CreateDispatch(ctx context.Context, notificationRef int64, channel Channel, address, view string, singleSpec, batchSpec map[string]any, due time.Time) (Dispatch, error)
	Dispatch(ctx context.Context, id int64) (Dispatch, bool, error)

	// DueDispatches returns every unsent dispatch row whose due time is at
	// or before now and whose notification has not been read, each
	// annotated with its owning user ref.
	DueDispatches(ctx context.Context, now time.Time) ([]DueRow, error)

	// MarkSent stamps dispatch id as delivered at the given time.
	MarkSent(ctx context.Context, dispatchID int64, at time.Time) error
}

// AddressResolver looks up the delivery address (email, phone number, ...)
// a user has on file for a channel. Address/profile storage is out of
// scope for this module; callers supply their own resolver.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, userRef string, channel Channel) (string, error)
}

// ViewResolver renders a dispatch's view/spec pair into the payload body
// posted to a channel backend.
type ViewResolver interface {
	Render(ctx context.Context, view string, spec map[string]any) (map[string]any, error)
}
