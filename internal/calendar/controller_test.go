package calendar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/crmcal/internal/core"
)

// Mock EventStore
type mockStore struct {
	fetchEventsFunc func(ctx context.Context, opts core.FetchOptions) ([]core.Event, error)
	createEventFunc func(ctx context.Context, in core.EventInput) (core.Event, error)
	updateEventFunc func(ctx context.Context, id string, patch core.EventPatch) (core.Event, error)
	deleteEventFunc func(ctx context.Context, id string) error

	fetches atomic.Int32
}

func (m *mockStore) ID() string   { return "mock" }
func (m *mockStore) Name() string { return "Mock Store" }

func (m *mockStore) FetchEvents(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
	m.fetches.Add(1)
	if m.fetchEventsFunc != nil {
		return m.fetchEventsFunc(ctx, opts)
	}
	return nil, errors.New("not implemented")
}

func (m *mockStore) CreateEvent(ctx context.Context, in core.EventInput) (core.Event, error) {
	if m.createEventFunc != nil {
		return m.createEventFunc(ctx, in)
	}
	return core.Event{}, errors.New("not implemented")
}

func (m *mockStore) UpdateEvent(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
	if m.updateEventFunc != nil {
		return m.updateEventFunc(ctx, id, patch)
	}
	return core.Event{}, errors.New("not implemented")
}

func (m *mockStore) DeleteEvent(ctx context.Context, id string) error {
	if m.deleteEventFunc != nil {
		return m.deleteEventFunc(ctx, id)
	}
	return errors.New("not implemented")
}

type mockDirectory struct {
	names map[string]string
	calls atomic.Int32
}

func (m *mockDirectory) ResolveDisplayName(ctx context.Context, id string) (string, error) {
	m.calls.Add(1)
	if n, ok := m.names[id]; ok {
		return n, nil
	}
	return "", core.ErrNotFound
}

// staticFetch serves events overlapping the requested window.
func staticFetch(events *[]core.Event, mu *sync.Mutex) func(context.Context, core.FetchOptions) ([]core.Event, error) {
	return func(_ context.Context, opts core.FetchOptions) ([]core.Event, error) {
		mu.Lock()
		defer mu.Unlock()
		var out []core.Event
		for _, e := range *events {
			if opts.Overlaps(e) && opts.Matches(e) {
				out = append(out, e)
			}
		}
		return out, nil
	}
}

func newTestController(store core.EventStore, anchor time.Time, view ViewType) *Controller {
	return NewController(store, Options{
		View:   view,
		Anchor: anchor,
		Now:    func() time.Time { return anchor },
	})
}

func TestController_NavigateLoadsRange(t *testing.T) {
	var mu sync.Mutex
	events := []core.Event{
		timed("a", at(2024, time.March, 10, 9, 0)),
		timed("b", at(2024, time.March, 10, 11, 0)),
		timed("c", at(2024, time.March, 12, 9, 0)),
		timed("april", at(2024, time.April, 20, 9, 0)),
	}
	var gotOpts core.FetchOptions
	store := &mockStore{}
	inner := staticFetch(&events, &mu)
	store.fetchEventsFunc = func(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
		gotOpts = opts
		return inner(ctx, opts)
	}

	c := newTestController(store, date(2024, time.March, 15), ViewMonth)
	ctx := context.Background()

	require.NoError(t, c.NavigateTo(ctx, date(2024, time.March, 15), ""))
	assert.Equal(t, date(2024, time.February, 25), gotOpts.Start)
	assert.Equal(t, date(2024, time.April, 7), gotOpts.End)

	snap := c.Snapshot()
	assert.False(t, snap.Stale())
	assert.Equal(t, []string{"a", "b", "c"}, ids(snap.Events))
	assert.Equal(t, []string{"a", "b"}, ids(c.ForDate(date(2024, time.March, 10))))

	require.NoError(t, c.NavigateNext(ctx))
	assert.Equal(t, date(2024, time.March, 31), c.Range().Start)
	assert.Equal(t, []string{"april"}, ids(c.Events()))

	require.NoError(t, c.NavigatePrevious(ctx))
	require.NoError(t, c.NavigateTo(ctx, date(2024, time.March, 12), ViewDay))
	assert.Equal(t, []string{"c"}, ids(c.Events()))
}

func TestController_DiscardsSupersededFetch(t *testing.T) {
	march := []core.Event{timed("march", at(2024, time.March, 10, 9, 0))}
	april := []core.Event{timed("april", at(2024, time.April, 10, 9, 0))}

	started := make(chan struct{})
	release := make(chan struct{})
	store := &mockStore{
		fetchEventsFunc: func(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
			if opts.Start.Month() == time.February {
				close(started)
				<-release
				return march, nil
			}
			return april, nil
		},
	}

	c := newTestController(store, date(2024, time.March, 15), ViewMonth)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.NavigateTo(ctx, date(2024, time.March, 15), "") }()
	<-started

	require.NoError(t, c.NavigateTo(ctx, date(2024, time.April, 15), ""))
	close(release)
	require.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Equal(t, date(2024, time.March, 31), snap.Range.Start)
	assert.Equal(t, snap.Range, snap.LoadedRange)
	assert.Equal(t, []string{"april"}, ids(snap.Events))
}

func TestController_ErrorKeepsLastKnownGood(t *testing.T) {
	fail := false
	boom := errors.New("connection reset")
	store := &mockStore{
		fetchEventsFunc: func(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
			if fail {
				return nil, boom
			}
			return []core.Event{timed("kept", at(2024, time.March, 10, 9, 0))}, nil
		},
	}
	c := newTestController(store, date(2024, time.March, 15), ViewMonth)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	fail = true
	err := c.NavigateNext(ctx)
	require.Error(t, err)

	var se *core.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "fetch", se.Op)
	assert.Equal(t, "mock", se.StoreID)
	assert.True(t, errors.Is(err, boom))

	snap := c.Snapshot()
	assert.Equal(t, []string{"kept"}, ids(snap.Events))
	assert.Equal(t, date(2024, time.March, 31), snap.Range.Start)
	assert.Equal(t, date(2024, time.February, 25), snap.LoadedRange.Start)
	assert.True(t, snap.Stale())
	assert.Error(t, snap.Err)
}

func TestController_CreateMergesWithoutRefetch(t *testing.T) {
	existing := timed("a", at(2024, time.March, 10, 9, 0))
	store := &mockStore{
		fetchEventsFunc: func(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
			return []core.Event{existing}, nil
		},
		createEventFunc: func(ctx context.Context, in core.EventInput) (core.Event, error) {
			return in.ToEvent("b"), nil
		},
	}
	c := newTestController(store, date(2024, time.March, 15), ViewMonth)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	ev, err := c.Create(ctx, core.EventInput{Title: "New job", Start: at(2024, time.March, 10, 8, 0), Type: core.TypeJob})
	require.NoError(t, err)
	assert.Equal(t, "b", ev.ID)
	assert.Equal(t, int32(1), store.fetches.Load())
	assert.Equal(t, []string{"b", "a"}, ids(c.ForDate(date(2024, time.March, 10))))
}

func TestController_CreateRejectsInvalidInput(t *testing.T) {
	store := &mockStore{}
	c := newTestController(store, date(2024, time.March, 15), ViewMonth)

	_, err := c.Create(context.Background(), core.EventInput{Start: at(2024, time.March, 10, 8, 0)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
	assert.Zero(t, store.fetches.Load())
}

func TestController_MergeFailureRefetches(t *testing.T) {
	var mu sync.Mutex
	events := []core.Event{timed("a", at(2024, time.March, 10, 9, 0))}
	store := &mockStore{
		createEventFunc: func(ctx context.Context, in core.EventInput) (core.Event, error) {
			mu.Lock()
			defer mu.Unlock()
			ev := in.ToEvent("server-side")
			events = append(events, ev)
			ev.ID = "" // the store forgot to echo the id
			return ev, nil
		},
	}
	store.fetchEventsFunc = staticFetch(&events, &mu)

	c := newTestController(store, date(2024, time.March, 15), ViewMonth)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	_, err := c.Create(ctx, core.EventInput{Title: "Echo", Start: at(2024, time.March, 11, 8, 0)})
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.fetches.Load())
	assert.Equal(t, []string{"a", "server-side"}, ids(c.Events()))
}

func TestController_UpdateAndDelete(t *testing.T) {
	var mu sync.Mutex
	events := []core.Event{
		timed("a", at(2024, time.March, 10, 9, 0)),
		timed("b", at(2024, time.March, 11, 9, 0)),
	}
	store := &mockStore{
		updateEventFunc: func(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
			mu.Lock()
			defer mu.Unlock()
			for i, e := range events {
				if e.ID == id {
					updated, err := patch.Apply(e)
					if err != nil {
						return core.Event{}, err
					}
					events[i] = updated
					return updated, nil
				}
			}
			return core.Event{}, core.ErrNotFound
		},
		deleteEventFunc: func(ctx context.Context, id string) error {
			mu.Lock()
			defer mu.Unlock()
			for i, e := range events {
				if e.ID == id {
					events = append(events[:i], events[i+1:]...)
					return nil
				}
			}
			return core.ErrNotFound
		},
	}
	store.fetchEventsFunc = staticFetch(&events, &mu)

	c := newTestController(store, date(2024, time.March, 15), ViewMonth)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	t.Run("update merges", func(t *testing.T) {
		title := "Rescheduled"
		status := core.StatusRescheduled
		start := at(2024, time.March, 12, 9, 0)
		ev, err := c.Update(ctx, "a", core.EventPatch{Title: &title, Status: &status, Start: &start, ClearEnd: true})
		require.NoError(t, err)
		assert.Equal(t, "Rescheduled", ev.Title)
		assert.Empty(t, c.ForDate(date(2024, time.March, 10)))
		assert.Equal(t, []string{"a"}, ids(c.ForDate(date(2024, time.March, 12))))
		assert.Equal(t, int32(1), store.fetches.Load())
	})

	t.Run("update missing id surfaces store error", func(t *testing.T) {
		_, err := c.Update(ctx, "zzz", core.EventPatch{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrNotFound))
		assert.Equal(t, []string{"b", "a"}, ids(c.Events()))
	})

	t.Run("delete removes", func(t *testing.T) {
		require.NoError(t, c.Delete(ctx, "b"))
		assert.Equal(t, []string{"a"}, ids(c.Events()))
		assert.Equal(t, int32(1), store.fetches.Load())
	})

	t.Run("delete requires id", func(t *testing.T) {
		assert.True(t, errors.Is(c.Delete(ctx, ""), core.ErrInvalidInput))
	})
}

func TestController_SetFilter(t *testing.T) {
	var mu sync.Mutex
	private := timed("private", at(2024, time.March, 10, 10, 0))
	private.IsPrivate = true
	job := timed("job", at(2024, time.March, 10, 9, 0))
	meeting := timed("meeting", at(2024, time.March, 10, 11, 0))
	meeting.Type = core.TypeMeeting
	meeting.CustomerID = "c1"
	events := []core.Event{job, private, meeting}

	store := &mockStore{fetchEventsFunc: staticFetch(&events, &mu)}
	dir := &mockDirectory{names: map[string]string{"c1": "Harbor Dental"}}
	c := NewController(store, Options{
		View:      ViewDay,
		Anchor:    date(2024, time.March, 10),
		Customers: dir,
	})
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, []string{"job", "meeting"}, ids(c.Events()))

	require.NoError(t, c.SetFilter(ctx, Filter{ShowPrivate: true}))
	assert.Equal(t, []string{"job", "private", "meeting"}, ids(c.Events()))

	require.NoError(t, c.SetFilter(ctx, Filter{Search: "harbor"}))
	assert.Equal(t, []string{"meeting"}, ids(c.Events()))
	assert.Equal(t, "Harbor Dental", c.CustomerName("c1"))

	require.NoError(t, c.SetFilter(ctx, Filter{Search: "dental"}))
	assert.Equal(t, int32(1), dir.calls.Load(), "names are cached")
}

func TestController_WatchRefetchesOnNotice(t *testing.T) {
	store := &mockStore{
		fetchEventsFunc: func(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
			return nil, nil
		},
	}
	c := newTestController(store, date(2024, time.March, 15), ViewWeek)

	notices := make(chan core.ChangeNotice, 4)
	notices <- core.ChangeNotice{Kind: core.ChangeCreated}
	notices <- core.ChangeNotice{Kind: core.ChangeUpdated}
	close(notices)

	require.NoError(t, c.Watch(context.Background(), notices))
	assert.GreaterOrEqual(t, store.fetches.Load(), int32(1))
	assert.True(t, c.Snapshot().Loaded)
}

func TestController_Upcoming(t *testing.T) {
	now := at(2024, time.March, 10, 12, 0)
	var gotOpts core.FetchOptions
	store := &mockStore{
		fetchEventsFunc: func(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
			gotOpts = opts
			hidden := timed("hidden", now.Add(2*time.Hour))
			hidden.IsPrivate = true
			return []core.Event{
				timed("later", now.Add(48*time.Hour)),
				hidden,
				timed("soon", now.Add(time.Hour)),
				timed("past", now.Add(-time.Hour)),
			}, nil
		},
	}
	c := NewController(store, Options{View: ViewDay, Anchor: now, Now: func() time.Time { return now }})

	got, err := c.Upcoming(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"soon", "later"}, ids(got))
	assert.Equal(t, now, gotOpts.Start)
	assert.Equal(t, now.Add(DefaultUpcomingHorizon), gotOpts.End)
}

func TestController_ScenarioForDate(t *testing.T) {
	var mu sync.Mutex
	events := []core.Event{
		timed("second", at(2024, time.March, 10, 14, 0)),
		timed("third", at(2024, time.March, 12, 9, 0)),
		timed("first", at(2024, time.March, 10, 9, 0)),
	}
	store := &mockStore{fetchEventsFunc: staticFetch(&events, &mu)}
	c := newTestController(store, date(2024, time.March, 15), ViewMonth)
	require.NoError(t, c.Refresh(context.Background()))

	got := c.ForDate(date(2024, time.March, 10))
	require.Len(t, got, 2)
	assert.Equal(t, []string{"first", "second"}, ids(got))
}
