package core

import (
	"context"
	"time"
)

// Storage handles the offline mirror of events pulled from remote stores.
type Storage interface {
	// SyncEvents saves a batch of events for one provider.
	// Smart enough to update existing ones and insert new ones.
	SyncEvents(ctx context.Context, providerID string, events []Event) error
	// ListEvents returns mirrored events sorted by Start time.
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	// PurgeProvider removes events associated with a specific provider ID.
	// Useful when re-syncing a calendar from scratch.
	PurgeProvider(ctx context.Context, providerID string) error
}

// EventFilter defines criteria for querying the mirror.
type EventFilter struct {
	Start time.Time
	End   time.Time
	// If empty, return all providers
	ProviderIDs []string
}

// IncludesProvider reports whether id passes the provider filter.
func (f EventFilter) IncludesProvider(id string) bool {
	if len(f.ProviderIDs) == 0 {
		return true
	}
	for _, p := range f.ProviderIDs {
		if p == id {
			return true
		}
	}
	return false
}
