// Package sqlstore keeps calendar events in a MySQL database through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/theakshaypant/crmcal/internal/core"
)

// Schema creates the tables the store uses.
const Schema = `
CREATE TABLE IF NOT EXISTS customers (
	id           VARCHAR(64) PRIMARY KEY,
	display_name VARCHAR(255) NOT NULL
);
CREATE TABLE IF NOT EXISTS calendar_events (
	id               VARCHAR(64) PRIMARY KEY,
	title            VARCHAR(255) NOT NULL,
	description      TEXT NOT NULL,
	location         VARCHAR(255) NOT NULL DEFAULT '',
	starts_at        DATETIME NOT NULL,
	ends_at          DATETIME NULL,
	all_day          TINYINT(1) NOT NULL DEFAULT 0,
	event_type       VARCHAR(32) NOT NULL,
	status           VARCHAR(32) NOT NULL,
	priority         VARCHAR(16) NOT NULL,
	color            VARCHAR(16) NOT NULL DEFAULT '',
	customer_id      VARCHAR(64) NULL,
	is_private       TINYINT(1) NOT NULL DEFAULT 0,
	reminder_offsets VARCHAR(255) NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	INDEX calendar_events_starts_at (starts_at)
);`

const selectColumns = "SELECT id, title, description, location, starts_at, ends_at, all_day, event_type, status, priority, color, customer_id, is_private, reminder_offsets, created_at, updated_at FROM calendar_events"

// Config holds database configuration
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	id   string
	name string
	db   *sql.DB
	now  func() time.Time
}

// Open connects with the mysql driver. The DSN must set parseTime=true.
func Open(ctx context.Context, id, name string, cfg Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	return New(id, name, db), nil
}

// New wraps an open database.
func New(id, name string, db *sql.DB) *Store {
	return &Store{id: id, name: name, db: db, now: time.Now}
}

func (s *Store) ID() string   { return s.id }
func (s *Store) Name() string { return s.name }

func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates missing tables, one statement at a time.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func buildFetchQuery(opts core.FetchOptions) (string, []interface{}) {
	query := selectColumns + " WHERE 1=1"
	args := []interface{}{}

	if !opts.End.IsZero() {
		query += " AND starts_at < ?"
		args = append(args, opts.End.UTC())
	}
	if !opts.Start.IsZero() {
		query += " AND ((ends_at IS NULL AND starts_at >= ?) OR ends_at > ?)"
		args = append(args, opts.Start.UTC(), opts.Start.UTC())
	}
	if len(opts.IncludeTypes) > 0 {
		query += " AND event_type IN (" + placeholders(len(opts.IncludeTypes)) + ")"
		for _, t := range opts.IncludeTypes {
			args = append(args, string(t))
		}
	}
	if len(opts.IncludeStatuses) > 0 {
		query += " AND status IN (" + placeholders(len(opts.IncludeStatuses)) + ")"
		for _, st := range opts.IncludeStatuses {
			args = append(args, string(st))
		}
	}
	if len(opts.IncludePriorities) > 0 {
		query += " AND priority IN (" + placeholders(len(opts.IncludePriorities)) + ")"
		for _, p := range opts.IncludePriorities {
			args = append(args, string(p))
		}
	}
	if opts.CustomerID != "" {
		query += " AND customer_id = ?"
		args = append(args, opts.CustomerID)
	}
	if !opts.IncludePrivate {
		query += " AND is_private = 0"
	}
	return query + " ORDER BY starts_at ASC, id ASC", args
}

func (s *Store) FetchEvents(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
	query, args := buildFetchQuery(opts)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		e, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scan(row scanner) (core.Event, error) {
	var (
		e                     core.Event
		end                   sql.NullTime
		customer              sql.NullString
		typ, status, priority string
		offsets               string
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Start, &end, &e.AllDay,
		&typ, &status, &priority, &e.Color, &customer, &e.IsPrivate, &offsets, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return core.Event{}, err
	}
	e.ProviderID = s.id
	e.Type = core.EventType(typ)
	e.Status = core.EventStatus(status)
	e.Priority = core.Priority(priority)
	if end.Valid {
		t := end.Time
		e.End = &t
	}
	if customer.Valid {
		e.CustomerID = customer.String
	}
	e.ReminderOffsets = parseOffsets(offsets)
	return e, nil
}

func parseOffsets(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n >= 0 {
			out = append(out, n)
		}
	}
	return out
}

func formatOffsets(offsets []int) string {
	parts := make([]string, len(offsets))
	for i, o := range offsets {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}

func nullable(e core.Event) (sql.NullTime, sql.NullString) {
	var end sql.NullTime
	if e.End != nil {
		end = sql.NullTime{Time: e.End.UTC(), Valid: true}
	}
	customer := sql.NullString{String: e.CustomerID, Valid: e.CustomerID != ""}
	return end, customer
}

func (s *Store) CreateEvent(ctx context.Context, in core.EventInput) (core.Event, error) {
	now := s.now().UTC().Truncate(time.Second)
	e := in.ToEvent(uuid.NewString())
	e.ProviderID = s.id
	e.CreatedAt, e.UpdatedAt = now, now

	end, customer := nullable(e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_events (id, title, description, location, starts_at, ends_at, all_day, event_type, status, priority, color, customer_id, is_private, reminder_offsets, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.Location, e.Start.UTC(), end, e.AllDay,
		string(e.Type), string(e.Status), string(e.Priority), e.Color, customer, e.IsPrivate,
		formatOffsets(e.ReminderOffsets), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return core.Event{}, fmt.Errorf("failed to insert event: %w", err)
	}
	return e, nil
}

func (s *Store) UpdateEvent(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Event{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.scan(tx.QueryRowContext(ctx, selectColumns+" WHERE id = ? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Event{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Event{}, fmt.Errorf("failed to get event: %w", err)
	}

	next, err := patch.Apply(current)
	if err != nil {
		return core.Event{}, err
	}
	next.UpdatedAt = s.now().UTC().Truncate(time.Second)

	end, customer := nullable(next)
	_, err = tx.ExecContext(ctx,
		`UPDATE calendar_events SET title = ?, description = ?, location = ?, starts_at = ?, ends_at = ?, all_day = ?,
		 event_type = ?, status = ?, priority = ?, color = ?, customer_id = ?, is_private = ?, reminder_offsets = ?, updated_at = ?
		 WHERE id = ?`,
		next.Title, next.Description, next.Location, next.Start.UTC(), end, next.AllDay,
		string(next.Type), string(next.Status), string(next.Priority), next.Color, customer, next.IsPrivate,
		formatOffsets(next.ReminderOffsets), next.UpdatedAt, id)
	if err != nil {
		return core.Event{}, fmt.Errorf("failed to update event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Event{}, fmt.Errorf("failed to commit: %w", err)
	}
	return next, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return nil
}

// ResolveDisplayName reads the customers table.
func (s *Store) ResolveDisplayName(ctx context.Context, customerID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT display_name FROM customers WHERE id = ?", customerID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: customer %s", core.ErrNotFound, customerID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get customer: %w", err)
	}
	return name, nil
}
