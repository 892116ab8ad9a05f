// Package postgres provides a PostgreSQL-backed eventstore.Store, grounded
// on the pgx/v5 + golang-migrate pattern used throughout the pack for
// embedded-migration SQL stores.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rathix/workflow-engine/internal/eventstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB implements eventstore.Store against PostgreSQL. Queries run through the
// database/sql interface (via the pgx/v5 stdlib driver) rather than a
// pgxpool.Pool directly, so the store can be exercised in tests with
// DATA-DOG/go-sqlmock.
type DB struct {
	db *sql.DB
}

var _ eventstore.Store = (*DB)(nil)

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

// RunMigrations applies all pending up-migrations against dsn. Safe to call
// more than once — migrate.ErrNoChange is treated as success.
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

// toMigrateURL converts a postgres:// or postgresql:// DSN to the pgx5://
// scheme expected by golang-migrate's pgx/v5 driver.
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

func (d *DB) CreateEvent(ctx context.Context, parentRef string, userRef *string, target, action string, data map[string]any) (eventstore.EventRecord, error) {
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return eventstore.EventRecord{}, fmt.Errorf("marshal event data: %w", err)
	}

	var (
		rec       eventstore.EventRecord
		userRefNS sql.NullString
		rawData   []byte
	)
	err = d.db.QueryRowContext(ctx, `
		INSERT INTO activity_events (parent_ref, user_ref, target, action, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, parent_ref, user_ref, target, action, data, created_at
	`, parentRef, nullableString(userRef), target, action, payload).Scan(
		&rec.ID, &rec.ParentRef, &userRefNS, &rec.Target, &rec.Action, &rawData, &rec.CreatedAt,
	)
	if err != nil {
		return eventstore.EventRecord{}, err
	}
	rec.UserRef = stringPtr(userRefNS)
	if rec.Data, err = decodeJSON(rawData); err != nil {
		return eventstore.EventRecord{}, err
	}
	return rec, nil
}

func (d *DB) SetWorkStatus(ctx context.Context, parentRef string, value string, eventRef *int64) (eventstore.StatusRecord, error) {
	var (
		rec        eventstore.StatusRecord
		eventRefNI sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO work_statuses (parent_ref, value, event_ref)
		VALUES ($1, $2, $3)
		RETURNING id, parent_ref, value, event_ref, created_at
	`, parentRef, value, nullableInt64(eventRef)).Scan(
		&rec.ID, &rec.ParentRef, &rec.Value, &eventRefNI, &rec.CreatedAt,
	)
	if err != nil {
		return eventstore.StatusRecord{}, err
	}
	rec.EventRef = int64Ptr(eventRefNI)
	return rec, nil
}

func (d *DB) CurrentStatus(ctx context.Context, parentRef string) (eventstore.StatusRecord, bool, error) {
	var (
		rec        eventstore.StatusRecord
		eventRefNI sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, parent_ref, value, event_ref, created_at
		FROM work_statuses
		WHERE parent_ref = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, parentRef).Scan(&rec.ID, &rec.ParentRef, &rec.Value, &eventRefNI, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return eventstore.StatusRecord{}, false, nil
	}
	if err != nil {
		return eventstore.StatusRecord{}, false, err
	}
	rec.EventRef = int64Ptr(eventRefNI)
	return rec, true, nil
}

func (d *DB) StatusQuery(ctx context.Context, typeTag string, values []string, negate bool) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(values))
	args := make([]any, 0, len(values)+1)
	args = append(args, typeTag+":%")
	for i, v := range values {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, v)
	}
	cmp := "IN"
	if negate {
		cmp = "NOT IN"
	}

	query := fmt.Sprintf(`
		SELECT cur.parent_ref FROM (
			SELECT DISTINCT ON (ws.parent_ref) ws.parent_ref, ws.value
			FROM work_statuses ws
			WHERE ws.parent_ref LIKE $1
			ORDER BY ws.parent_ref, ws.created_at DESC, ws.id DESC
		) cur
		WHERE cur.value %s (%s)
		ORDER BY cur.parent_ref
	`, cmp, strings.Join(placeholders, ", "))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var parentRef string
		if err := rows.Scan(&parentRef); err != nil {
			return nil, err
		}
		out = append(out, parentRef)
	}
	return out, rows.Err()
}

func (d *DB) Events(ctx context.Context, parentRef string) ([]eventstore.EventRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, parent_ref, user_ref, target, action, data, created_at
		FROM activity_events
		WHERE parent_ref = $1
		ORDER BY created_at, id
	`, parentRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []eventstore.EventRecord
	for rows.Next() {
		rec, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *DB) Event(ctx context.Context, id int64) (eventstore.EventRecord, bool, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, parent_ref, user_ref, target, action, data, created_at
		FROM activity_events WHERE id = $1
	`, id)
	rec, err := scanEventRow(row)
	if err == sql.ErrNoRows {
		return eventstore.EventRecord{}, false, nil
	}
	if err != nil {
		return eventstore.EventRecord{}, false, err
	}
	return rec, true, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEventRow(row rowScanner) (eventstore.EventRecord, error) {
	var (
		rec       eventstore.EventRecord
		userRefNS sql.NullString
		rawData   []byte
	)
	if err := row.Scan(&rec.ID, &rec.ParentRef, &userRefNS, &rec.Target, &rec.Action, &rawData, &rec.CreatedAt); err != nil {
		return eventstore.EventRecord{}, err
	}
	rec.UserRef = stringPtr(userRefNS)
	data, err := decodeJSON(rawData)
	if err != nil {
		return eventstore.EventRecord{}, err
	}
	rec.Data = data
	return rec, nil
}

func decodeJSON(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal event data: %w", err)
	}
	return m, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullableInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
