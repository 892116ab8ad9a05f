package notifysvc

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// dailyDueHour is the local clock hour daily-frequency notifications are
// due at, per the engine's fixed nightly-digest convention.
const dailyDueHour = 20

// Factory materializes a Notification and its per-channel Dispatch rows
// for an activity event, normalising each row's due time from the user's
// stored channel preference.
type Factory struct {
	store            Store
	resolver         AddressResolver
	defaultFrequency Frequency
	onCreate         func(ctx context.Context, d Dispatch)
	clock            func() time.Time
	logger           *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithDefaultFrequency sets the frequency assigned to a user's channel
// preference the first time it's seen. Defaults to FrequencyNull
// (deliver as soon as due).
func WithDefaultFrequency(f Frequency) FactoryOption {
	return func(fc *Factory) { fc.defaultFrequency = f }
}

// WithOnCreate registers a callback invoked synchronously for every newly
// created Dispatch row, used to attempt opportunistic immediate delivery
// of rows that are already due (FrequencyNull).
func WithOnCreate(fn func(ctx context.Context, d Dispatch)) FactoryOption {
	return func(fc *Factory) { fc.onCreate = fn }
}

// WithClock overrides the factory's time source. Intended for tests.
func WithClock(clock func() time.Time) FactoryOption {
	return func(fc *Factory) { fc.clock = clock }
}

// WithFactoryLogger sets the factory's logger.
func WithFactoryLogger(logger *slog.Logger) FactoryOption {
	return func(fc *Factory) { fc.logger = logger }
}

// NewFactory creates a Factory backed by store, resolving delivery
// addresses through resolver.
func NewFactory(store Store, resolver AddressResolver, opts ...FactoryOption) *Factory {
	f := &Factory{
		store:            store,
		resolver:         resolver,
		defaultFrequency: FrequencyNull,
		clock:            time.Now,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create materializes a Notification for userRef/eventRef and one
// Dispatch row per entry in mapping, each due according to the user's
// stored preference for that channel. Rows that come out already due are
// handed to the onCreate callback for opportunistic immediate delivery.
func (f *Factory) Create(ctx context.Context, userRef string, eventRef int64, mapping []Mapping) (Notification, []Dispatch, error) {
	n, err := f.store.CreateNotification(ctx, userRef, eventRef)
	if err != nil {
		return Notification{}, nil, err
	}

	now := f.clock()
	dispatches := make([]Dispatch, 0, len(mapping))
	for _, m := range mapping {
		pref, err := f.store.EnsurePreference(ctx, userRef, m.Channel, f.defaultFrequency)
		if err != nil {
			f.logger.Warn("failed to resolve notification preference", "user", userRef, "channel", m.Channel, "error", err)
			continue
		}

		address, err := f.resolver.ResolveAddress(ctx, userRef, m.Channel)
		if err != nil {
			f.logger.Warn("failed to resolve delivery address", "user", userRef, "channel", m.Channel, "error", err)
			continue
		}

		due := DueTime(now, pref.Frequency)
		d, err := f.store.CreateDispatch(ctx, n.ID, m.Channel, address, m.View, m.SingleSpec, m.BatchSpec, due)
		if err != nil {
			f.logger.Warn("failed to create dispatch row", "user", userRef, "channel", m.Channel, "error", err)
			continue
		}
		dispatches = append(dispatches, d)

		if f.onCreate != nil && !due.After(now) {
			f.onCreate(ctx, d)
		}
	}
	return n, dispatches, nil
}

// DueTime normalises a channel preference's frequency into the concrete
// time a newly created dispatch row becomes due, relative to now.
func DueTime(now time.Time, freq Frequency) time.Time {
	switch freq {
	case FrequencyHourly:
		return nextTopOfHour(now)
	case FrequencyDaily:
		return nextDailyDue(now)
	default:
		return now
	}
}

// nextTopOfHour returns the next whole hour strictly after now.
func nextTopOfHour(now time.Time) time.Time {
	truncated := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return truncated.Add(time.Hour)
}

// nextDailyDue returns today's dailyDueHour:00 if now hasn't reached it
// yet, otherwise tomorrow's — using AddDate so month/year rollover is
// handled by the time package rather than manual day arithmetic.
func nextDailyDue(now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), dailyDueHour, 0, 0, 0, now.Location())
	if !now.Before(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}
