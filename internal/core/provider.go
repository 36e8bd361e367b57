package core

import (
	"context"
	"time"
)

// FetchOptions configures which events to retrieve.
// Stores may apply these server-side; callers re-apply their full filter anyway.
type FetchOptions struct {
	// Half-open window [Start, End)
	Start time.Time
	End   time.Time

	// Filter by event type. Empty means all types.
	IncludeTypes []EventType

	// Filter by status. Empty means all statuses.
	IncludeStatuses []EventStatus

	// Filter by priority. Empty means all priorities.
	IncludePriorities []Priority

	// Exact customer match when set.
	CustomerID string

	// Private events are dropped unless IncludePrivate is set.
	IncludePrivate bool
}

// DefaultFetchOptions returns sensible defaults (all types, all statuses, no private events).
func DefaultFetchOptions(start, end time.Time) FetchOptions {
	return FetchOptions{
		Start: start,
		End:   end,
	}
}

// Matches reports whether e passes the option filters, ignoring the time window.
func (o FetchOptions) Matches(e Event) bool {
	if len(o.IncludeTypes) > 0 && !containsType(o.IncludeTypes, e.Type) {
		return false
	}
	if len(o.IncludeStatuses) > 0 && !containsStatus(o.IncludeStatuses, e.Status) {
		return false
	}
	if len(o.IncludePriorities) > 0 && !containsPriority(o.IncludePriorities, e.Priority) {
		return false
	}
	if o.CustomerID != "" && e.CustomerID != o.CustomerID {
		return false
	}
	if e.IsPrivate && !o.IncludePrivate {
		return false
	}
	return true
}

// Overlaps reports whether e intersects the [Start, End) window.
func (o FetchOptions) Overlaps(e Event) bool {
	if !o.End.IsZero() && !e.Start.Before(o.End) {
		return false
	}
	if o.Start.IsZero() {
		return true
	}
	if e.End == nil {
		return !e.Start.Before(o.Start)
	}
	return e.End.After(o.Start)
}

func containsType(types []EventType, t EventType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsStatus(statuses []EventStatus, s EventStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(priorities []Priority, p Priority) bool {
	for _, v := range priorities {
		if v == p {
			return true
		}
	}
	return false
}

// EventStore is a backing source of calendar events (Postgres, Google, local files, etc).
type EventStore interface {
	// ID returns the unique identifier from the config (e.g. "office")
	ID() string
	// Name returns a human-readable label (e.g. "Office Postgres")
	Name() string
	// FetchEvents retrieves events overlapping the window in opts.
	// This should block until done or context is cancelled.
	FetchEvents(ctx context.Context, opts FetchOptions) ([]Event, error)
	CreateEvent(ctx context.Context, in EventInput) (Event, error)
	UpdateEvent(ctx context.Context, id string, patch EventPatch) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// ChangeKind describes what happened in a ChangeNotice.
type ChangeKind string

const (
	ChangeCreated     ChangeKind = "created"
	ChangeUpdated     ChangeKind = "updated"
	ChangeDeleted     ChangeKind = "deleted"
	ChangeInvalidated ChangeKind = "invalidated"
)

// ChangeNotice tells subscribers that the store's contents changed.
type ChangeNotice struct {
	StoreID string     `json:"store_id"`
	Kind    ChangeKind `json:"kind"`
	EventID string     `json:"event_id,omitempty"`
	At      time.Time  `json:"at"`
}

// ChangeNotifier is implemented by stores that can push change notices.
// The channel is closed when ctx is done or the feed fails.
type ChangeNotifier interface {
	Changes(ctx context.Context) (<-chan ChangeNotice, error)
}

// CustomerDirectory resolves CRM customer display names.
type CustomerDirectory interface {
	ResolveDisplayName(ctx context.Context, customerID string) (string, error)
}
