package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/theakshaypant/crmcal/internal/core"
)

// DefaultChannel is the LISTEN/NOTIFY channel for change notices.
const DefaultChannel = "calendar_events_changed"

// Schema creates the tables the store reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS customers (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS calendar_events (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	location         TEXT NOT NULL DEFAULT '',
	start_at         TIMESTAMPTZ NOT NULL,
	end_at           TIMESTAMPTZ NULL CHECK (end_at IS NULL OR end_at > start_at),
	all_day          BOOLEAN NOT NULL DEFAULT FALSE,
	event_type       TEXT NOT NULL,
	status           TEXT NOT NULL,
	priority         TEXT NOT NULL,
	color            TEXT NOT NULL DEFAULT '',
	customer_id      TEXT NULL,
	is_private       BOOLEAN NOT NULL DEFAULT FALSE,
	reminder_offsets INT[] NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS calendar_events_start_idx ON calendar_events (start_at);
`

const eventColumns = `id,title,description,location,start_at,end_at,all_day,event_type,status,priority,color,customer_id,is_private,reminder_offsets,created_at,updated_at`

// Store is a Postgres-backed event store. It also implements
// core.ChangeNotifier and core.CustomerDirectory.
type Store struct {
	id      string
	name    string
	db      *pgxpool.Pool
	channel string
	now     func() time.Time
}

// New connects to dsn and verifies the connection.
func New(ctx context.Context, id, name, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return NewWithPool(id, name, pool), nil
}

func NewWithPool(id, name string, pool *pgxpool.Pool) *Store {
	return &Store{id: id, name: name, db: pool, channel: DefaultChannel, now: time.Now}
}

func (s *Store) ID() string   { return s.id }
func (s *Store) Name() string { return s.name }

func (s *Store) Close() { s.db.Close() }

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

// buildFetchQuery renders the SELECT for opts; the window test matches
// core.FetchOptions.Overlaps.
func buildFetchQuery(opts core.FetchOptions) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !opts.End.IsZero() {
		conds = append(conds, "start_at < "+arg(opts.End))
	}
	if !opts.Start.IsZero() {
		p := arg(opts.Start)
		conds = append(conds, fmt.Sprintf("((end_at IS NULL AND start_at >= %s) OR end_at > %s)", p, p))
	}
	if len(opts.IncludeTypes) > 0 {
		conds = append(conds, "event_type = ANY("+arg(toStrings(opts.IncludeTypes))+")")
	}
	if len(opts.IncludeStatuses) > 0 {
		conds = append(conds, "status = ANY("+arg(toStrings(opts.IncludeStatuses))+")")
	}
	if len(opts.IncludePriorities) > 0 {
		conds = append(conds, "priority = ANY("+arg(toStrings(opts.IncludePriorities))+")")
	}
	if opts.CustomerID != "" {
		conds = append(conds, "customer_id = "+arg(opts.CustomerID))
	}
	if !opts.IncludePrivate {
		conds = append(conds, "NOT is_private")
	}

	q := "SELECT " + eventColumns + " FROM calendar_events"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q + " ORDER BY start_at, id", args
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func (s *Store) FetchEvents(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
	q, args := buildFetchQuery(opts)
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []core.Event
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) scanEvent(row pgx.Row) (core.Event, error) {
	var e core.Event
	var customer *string
	var offsets []int32
	var typ, status, prio string
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Start, &e.End, &e.AllDay,
		&typ, &status, &prio, &e.Color, &customer, &e.IsPrivate, &offsets, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return core.Event{}, err
	}
	e.ProviderID = s.id
	e.Type = core.EventType(typ)
	e.Status = core.EventStatus(status)
	e.Priority = core.Priority(prio)
	if customer != nil {
		e.CustomerID = *customer
	}
	for _, o := range offsets {
		e.ReminderOffsets = append(e.ReminderOffsets, int(o))
	}
	return e, nil
}

func eventArgs(e core.Event) []any {
	var customer *string
	if e.CustomerID != "" {
		customer = &e.CustomerID
	}
	offsets := make([]int32, len(e.ReminderOffsets))
	for i, o := range e.ReminderOffsets {
		offsets[i] = int32(o)
	}
	return []any{e.ID, e.Title, e.Description, e.Location, e.Start, e.End, e.AllDay,
		string(e.Type), string(e.Status), string(e.Priority), e.Color, customer, e.IsPrivate, offsets,
		e.CreatedAt, e.UpdatedAt}
}

func (s *Store) CreateEvent(ctx context.Context, in core.EventInput) (core.Event, error) {
	now := s.now().UTC()
	e := in.ToEvent(uuid.NewString())
	e.ProviderID = s.id
	e.CreatedAt, e.UpdatedAt = now, now

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		q := `INSERT INTO calendar_events (` + eventColumns + `)
		      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
		if _, err := tx.Exec(ctx, q, eventArgs(e)...); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return s.notify(ctx, tx, core.ChangeCreated, e.ID)
	})
	if err != nil {
		return core.Event{}, err
	}
	return e, nil
}

func (s *Store) UpdateEvent(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
	var out core.Event
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id=$1 FOR UPDATE`, id)
		current, err := s.scanEvent(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", core.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		next, err := patch.Apply(current)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.now().UTC()

		q := `UPDATE calendar_events SET title=$2,description=$3,location=$4,start_at=$5,end_at=$6,all_day=$7,
		      event_type=$8,status=$9,priority=$10,color=$11,customer_id=$12,is_private=$13,reminder_offsets=$14,
		      created_at=$15,updated_at=$16 WHERE id=$1`
		if _, err := tx.Exec(ctx, q, eventArgs(next)...); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		out = next
		return s.notify(ctx, tx, core.ChangeUpdated, id)
	})
	return out, err
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM calendar_events WHERE id=$1`, id)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", core.ErrNotFound, id)
		}
		return s.notify(ctx, tx, core.ChangeDeleted, id)
	})
}

// notify queues a change notice; Postgres delivers it on commit.
func (s *Store) notify(ctx context.Context, tx pgx.Tx, kind core.ChangeKind, eventID string) error {
	payload, err := json.Marshal(core.ChangeNotice{StoreID: s.id, Kind: kind, EventID: eventID, At: s.now().UTC()})
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, string(payload))
	return err
}

// Changes listens on the notify channel until ctx is done.
func (s *Store) Changes(ctx context.Context) (<-chan core.ChangeNotice, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	out := make(chan core.ChangeNotice, 16)
	go func() {
		defer close(out)
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				return
			}
			notice := decodeNotice(s.id, n)
			select {
			case out <- notice:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decodeNotice(storeID string, n *pgconn.Notification) core.ChangeNotice {
	var notice core.ChangeNotice
	if err := json.Unmarshal([]byte(n.Payload), &notice); err != nil || notice.Kind == "" {
		// Foreign payloads (e.g. from a trigger) still invalidate.
		notice = core.ChangeNotice{Kind: core.ChangeInvalidated}
	}
	if notice.StoreID == "" {
		notice.StoreID = storeID
	}
	if notice.At.IsZero() {
		notice.At = time.Now().UTC()
	}
	return notice
}

// ResolveDisplayName looks a customer up in the customers table.
func (s *Store) ResolveDisplayName(ctx context.Context, customerID string) (string, error) {
	var name string
	err := s.db.QueryRow(ctx, `SELECT display_name FROM customers WHERE id=$1`, customerID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: customer %s", core.ErrNotFound, customerID)
	}
	return name, err
}

// UpsertCustomer writes a customer display name.
func (s *Store) UpsertCustomer(ctx context.Context, id, displayName string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO customers (id, display_name) VALUES ($1,$2)
		 ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`, id, displayName)
	return err
}
