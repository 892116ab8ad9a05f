// Package postgres provides a PostgreSQL-backed notifysvc.Store, mirroring
// the pgx/v5 + golang-migrate + database/sql shape of
// internal/eventstore/postgres.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rathix/workflow-engine/internal/notifysvc"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB implements notifysvc.Store against PostgreSQL via the pgx/v5 stdlib
// driver, so it can be exercised in tests with DATA-DOG/go-sqlmock.
type DB struct {
	db *sql.DB
}

var _ notifysvc.Store = (*DB)(nil)

// Open connects via the pgx stdlib driver, applies pending migrations, and
// returns a ready Store.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &DB{db: db}, nil
}

// NewWithConn wraps an already-open *sql.DB (used by tests with sqlmock).
func NewWithConn(db *sql.DB) *DB {
	return &DB{db: db}
}

// RunMigrations applies all pending up-migrations against dsn.
func RunMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, toMigrateURL(dsn))
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func toMigrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + dsn[len(prefix):]
		}
	}
	return "pgx5://" + dsn
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping reports whether the underlying connection pool can reach the
// database, for use by the liveness endpoint's subsystem checks.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) EnsurePreference(ctx context.Context, userRef string, channel notifysvc.Channel, defaultFreq notifysvc.Frequency) (notifysvc.Preference, error) {
	var freq string
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO notification_preferences (user_ref, channel, frequency)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_ref, channel) DO UPDATE SET channel = notification_preferences.channel
		RETURNING frequency
	`, userRef, string(channel), string(defaultFreq)).Scan(&freq)
	if err != nil {
		return notifysvc.Preference{}, err
	}
	return notifysvc.Preference{UserRef: userRef, Channel: channel, Frequency: notifysvc.Frequency(freq)}, nil
}

func (d *DB) CreateNotification(ctx context.Context, userRef string, eventRef int64) (notifysvc.Notification, error) {
	var n notifysvc.Notification
	n.UserRef = userRef
	n.EventRef = eventRef
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_ref, event_ref)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, userRef, eventRef).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return notifysvc.Notification{}, err
	}
	return n, nil
}

func (d *DB) Notification(ctx context.Context, id int64) (notifysvc.Notification, bool, error) {
	var (
		n       notifysvc.Notification
		readAtN sql.NullTime
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, user_ref, event_ref, read_at, created_at
		FROM notifications WHERE id = $1
	`, id).Scan(&n.ID, &n.UserRef, &n.EventRef, &readAtN, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return notifysvc.Notification{}, false, nil
	}
	if err != nil {
		return notifysvc.Notification{}, false, err
	}
	n.ReadAt = timePtr(readAtN)
	return n, true, nil
}

func (d *DB) CreateDispatch(ctx context.Context, notificationRef int64, channel notifysvc.Channel, address, view string, singleSpec, batchSpec map[string]any, due time.Time) (notifysvc.Dispatch, error) {
	singlePayload, err := marshalSpec(singleSpec)
	if err != nil {
		return notifysvc.Dispatch{}, err
	}
	batchPayload, err := marshalSpec(batchSpec)
	if err != nil {
		return notifysvc.Dispatch{}, err
	}

	var dp notifysvc.Dispatch
	dp.NotificationRef = notificationRef
	dp.Channel = channel
	dp.Address = address
	dp.View = view
	dp.Due = due
	err = d.db.QueryRowContext(ctx, `
		INSERT INTO notification_dispatches (notification_ref, channel, address, view, single_spec, batch_spec, due)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, notificationRef, string(channel), address, view, singlePayload, batchPayload, due).Scan(&dp.ID)
	if err != nil {
		return notifysvc.Dispatch{}, err
	}
	dp.SingleSpec = singleSpec
	dp.BatchSpec = batchSpec
	return dp, nil
}

func (d *DB) Dispatch(ctx context.Context, id int64) (notifysvc.Dispatch, bool, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, notification_ref, channel, address, view, single_spec, batch_spec, due, sent
		FROM notification_dispatches WHERE id = $1
	`, id)
	dp, err := scanDispatchRow(row)
	if err == sql.ErrNoRows {
		return notifysvc.Dispatch{}, false, nil
	}
	if err != nil {
		return notifysvc.Dispatch{}, false, err
	}
	return dp, true, nil
}

func (d *DB) DueDispatches(ctx context.Context, now time.Time) ([]notifysvc.DueRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT nd.id, nd.notification_ref, nd.channel, nd.address, nd.view, nd.single_spec, nd.batch_spec, nd.due, nd.sent, n.user_ref
		FROM notification_dispatches nd
		JOIN notifications n ON n.id = nd.notification_ref
		WHERE nd.sent IS NULL AND nd.due <= $1 AND n.read_at IS NULL
		ORDER BY nd.due, nd.id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notifysvc.DueRow
	for rows.Next() {
		var (
			dp         notifysvc.Dispatch
			channelStr string
			singleRaw  []byte
			batchRaw   []byte
			sentN      sql.NullTime
			userRef    string
		)
		if err := rows.Scan(&dp.ID, &dp.NotificationRef, &channelStr, &dp.Address, &dp.View, &singleRaw, &batchRaw, &dp.Due, &sentN, &userRef); err != nil {
			return nil, err
		}
		dp.Channel = notifysvc.Channel(channelStr)
		dp.Sent = timePtr(sentN)
		if dp.SingleSpec, err = unmarshalSpec(singleRaw); err != nil {
			return nil, err
		}
		if dp.BatchSpec, err = unmarshalSpec(batchRaw); err != nil {
			return nil, err
		}
		out = append(out, notifysvc.DueRow{Dispatch: dp, UserRef: userRef})
	}
	return out, rows.Err()
}

func (d *DB) MarkSent(ctx context.Context, dispatchID int64, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE notification_dispatches SET sent = $2 WHERE id = $1
	`, dispatchID, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispatchRow(row rowScanner) (notifysvc.Dispatch, error) {
	var (
		dp         notifysvc.Dispatch
		channelStr string
		singleRaw  []byte
		batchRaw   []byte
		sentN      sql.NullTime
	)
	if err := row.Scan(&dp.ID, &dp.NotificationRef, &channelStr, &dp.Address, &dp.View, &singleRaw, &batchRaw, &dp.Due, &sentN); err != nil {
		return notifysvc.Dispatch{}, err
	}
	dp.Channel = notifysvc.Channel(channelStr)
	dp.Sent = timePtr(sentN)
	spec, err := unmarshalSpec(singleRaw)
	if err != nil {
		return notifysvc.Dispatch{}, err
	}
	dp.SingleSpec = spec
	spec, err = unmarshalSpec(batchRaw)
	if err != nil {
		return notifysvc.Dispatch{}, err
	}
	dp.BatchSpec = spec
	return dp, nil
}

func marshalSpec(spec map[string]any) ([]byte, error) {
	if spec == nil {
		spec = map[string]any{}
	}
	return json.Marshal(spec)
}

func unmarshalSpec(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	return m, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}
