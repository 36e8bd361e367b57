package local

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/crmcal/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("offline", "Offline", filepath.Join(t.TempDir(), "events"))
	require.NoError(t, err)
	return s
}

func TestKeyTransform(t *testing.T) {
	key := toKey("office", "AAMkAD/x=y")
	pk := keyToPathTransform(key)
	require.Len(t, pk.Path, 1)
	assert.Equal(t, key, pathToKeyTransform(pk))
	assert.NotContains(t, pk.FileName, "/")
}

func TestStore_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	ev, err := s.CreateEvent(ctx, core.EventInput{Title: "Fence repair", Start: start, Type: core.TypeJob})
	require.NoError(t, err)
	assert.Equal(t, "offline", ev.ProviderID)

	_, err = s.CreateEvent(ctx, core.EventInput{Title: "Earlier", Start: start.Add(-2 * time.Hour)})
	require.NoError(t, err)

	events, err := s.FetchEvents(ctx, core.DefaultFetchOptions(start.Add(-24*time.Hour), start.Add(24*time.Hour)))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Earlier", events[0].Title)

	title := "Fence repair (2 panels)"
	updated, err := s.UpdateEvent(ctx, ev.ID, core.EventPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, ev.CreatedAt, updated.CreatedAt)

	require.NoError(t, s.DeleteEvent(ctx, ev.ID))
	assert.True(t, errors.Is(s.DeleteEvent(ctx, ev.ID), core.ErrNotFound))
	_, err = s.UpdateEvent(ctx, ev.ID, core.EventPatch{Title: &title})
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestStore_Mirror(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SyncEvents(ctx, "google", []core.Event{
		{ID: "g1", Title: "Remote A", Start: start},
		{ID: "g2", Title: "Remote B", Start: start.AddDate(0, 1, 0)},
	}))
	require.NoError(t, s.SyncEvents(ctx, "outlook", []core.Event{{ID: "o1", Title: "Remote C", Start: start}}))
	// Upsert replaces the existing copy.
	require.NoError(t, s.SyncEvents(ctx, "google", []core.Event{{ID: "g1", Title: "Remote A v2", Start: start}}))

	all, err := s.ListEvents(ctx, core.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	march, err := s.ListEvents(ctx, core.EventFilter{
		Start:       start.AddDate(0, 0, -9),
		End:         start.AddDate(0, 0, 20),
		ProviderIDs: []string{"google"},
	})
	require.NoError(t, err)
	require.Len(t, march, 1)
	assert.Equal(t, "Remote A v2", march[0].Title)

	_, err = s.UpdateEvent(ctx, "g1", core.EventPatch{})
	assert.True(t, errors.Is(err, core.ErrReadOnly))

	require.NoError(t, s.PurgeProvider(ctx, "google"))
	all, err = s.ListEvents(ctx, core.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "outlook", all[0].ProviderID)

	assert.Error(t, s.SyncEvents(ctx, "google", []core.Event{{Title: "no id"}}))
}

func TestStore_Changes(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notices, err := s.Changes(ctx)
	require.NoError(t, err)

	var got atomic.Int32
	go func() {
		for range notices {
			got.Add(1)
		}
	}()

	// Another process writing a burst of events.
	other, err := New("offline", "Offline", s.basePath)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := other.CreateEvent(ctx, core.EventInput{Title: "burst", Start: time.Now()})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return got.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(3 * ThrottleDelay)
	assert.LessOrEqual(t, got.Load(), int32(3), "bursts are coalesced")
}
