// Package notifysvc materializes per-user, per-channel notification
// dispatch rows (the notification factory) and runs the periodic and
// on-demand executor that delivers them.
package notifysvc

import "time"

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Frequency is how often a user wants a channel's notifications batched.
type Frequency string

const (
	FrequencyNull   Frequency = "null"
	FrequencyHourly Frequency = "hourly"
	FrequencyDaily  Frequency = "daily"
)

// Notification is the immutable parent record fanning out to one or more
// Dispatch rows.
type Notification struct {
	ID        int64
	UserRef   string
	EventRef  int64
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Dispatch is one per-channel delivery row belonging to a Notification.
type Dispatch struct {
	ID              int64
	NotificationRef int64
	Channel         Channel
	Address         string
	View            string
	SingleSpec      map[string]any
	BatchSpec       map[string]any
	Due             time.Time
	Sent            *time.Time
}

// Preference records how often a user wants a channel's notifications
// delivered.
type Preference struct {
	UserRef   string
	Channel   Channel
	Frequency Frequency
}

// Mapping describes, for one channel, the template view and render specs a
// newly created notification should fan out to.
type Mapping struct {
	Channel    Channel        `json:"channel"`
	View       string         `json:"view"`
	SingleSpec map[string]any `json:"single_spec,omitempty"`
	BatchSpec  map[string]any `json:"batch_spec,omitempty"`
}

// DueRow is one dispatch row returned by Store.DueDispatches, annotated
// with its owning user for the executor's group-by-user-then-channel pass.
type DueRow struct {
	Dispatch Dispatch
	UserRef  string
}
