package overlay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/crmcal/internal/core"
)

type fakeStore struct {
	id      string
	events  []core.Event
	err     error
	created []core.EventInput
	notices chan core.ChangeNotice
}

func (f *fakeStore) ID() string   { return f.id }
func (f *fakeStore) Name() string { return f.id }

func (f *fakeStore) FetchEvents(context.Context, core.FetchOptions) ([]core.Event, error) {
	return f.events, f.err
}

func (f *fakeStore) CreateEvent(_ context.Context, in core.EventInput) (core.Event, error) {
	f.created = append(f.created, in)
	return in.ToEvent("new"), nil
}

func (f *fakeStore) UpdateEvent(context.Context, string, core.EventPatch) (core.Event, error) {
	return core.Event{}, errors.New("not implemented")
}

func (f *fakeStore) DeleteEvent(context.Context, string) error { return f.err }

type notifyingStore struct{ *fakeStore }

func (n notifyingStore) Changes(context.Context) (<-chan core.ChangeNotice, error) {
	return n.notices, nil
}

func at(h int) time.Time { return time.Date(2024, time.March, 10, h, 0, 0, 0, time.UTC) }

func TestStore_FetchMergesAndSkipsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	primary := &fakeStore{id: "crm", events: []core.Event{{ID: "p1", ProviderID: "crm", Start: at(11)}}}
	google := &fakeStore{id: "google", events: []core.Event{{ID: "g1", Start: at(9)}}}
	broken := &fakeStore{id: "feed", err: errors.New("connection refused")}

	s := New(primary, []core.EventStore{google, broken}, logger)
	events, err := s.FetchEvents(context.Background(), core.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "g1", events[0].ID)
	assert.Equal(t, "google", events[0].ProviderID)
	assert.Equal(t, "p1", events[1].ID)

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "feed", hook.LastEntry().Data["store"])
}

func TestStore_PrimaryFailure(t *testing.T) {
	boom := errors.New("primary down")
	s := New(&fakeStore{id: "crm", err: boom}, []core.EventStore{&fakeStore{id: "google"}}, nil)

	_, err := s.FetchEvents(context.Background(), core.FetchOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	var se *core.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "crm", se.StoreID)
}

func TestStore_WritesGoToPrimary(t *testing.T) {
	primary := &fakeStore{id: "crm"}
	secondary := &fakeStore{id: "google"}
	s := New(primary, []core.EventStore{secondary}, nil)

	_, err := s.CreateEvent(context.Background(), core.EventInput{Title: "x", Start: at(9)})
	require.NoError(t, err)
	assert.Len(t, primary.created, 1)
	assert.Empty(t, secondary.created)
	assert.Equal(t, "crm", s.ID())
}

func TestStore_ChangesFanIn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := notifyingStore{&fakeStore{id: "crm", notices: make(chan core.ChangeNotice, 1)}}
	b := notifyingStore{&fakeStore{id: "offline", notices: make(chan core.ChangeNotice, 1)}}
	s := New(a, []core.EventStore{b, &fakeStore{id: "plain"}}, nil)

	out, err := s.Changes(ctx)
	require.NoError(t, err)

	a.notices <- core.ChangeNotice{StoreID: "crm", Kind: core.ChangeCreated}
	b.notices <- core.ChangeNotice{StoreID: "offline", Kind: core.ChangeInvalidated}
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case n := <-out:
			seen[n.StoreID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for notice")
		}
	}
	assert.Equal(t, map[string]bool{"crm": true, "offline": true}, seen)

	close(a.notices)
	close(b.notices)
	_, ok := <-out
	assert.False(t, ok)
}

type directoryStore struct {
	*fakeStore
	names map[string]string
	err   error
}

func (d directoryStore) ResolveDisplayName(_ context.Context, id string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	if name, ok := d.names[id]; ok {
		return name, nil
	}
	return "", core.ErrNotFound
}

func TestStore_ResolveDisplayName(t *testing.T) {
	crm := directoryStore{fakeStore: &fakeStore{id: "crm"}, names: map[string]string{"c1": "Harbor Dental"}}
	legacy := directoryStore{fakeStore: &fakeStore{id: "legacy"}, names: map[string]string{"c2": "Oak Street Bakery"}}
	s := New(crm, []core.EventStore{&fakeStore{id: "google"}, legacy}, nil)
	ctx := context.Background()

	t.Run("first directory", func(t *testing.T) {
		name, err := s.ResolveDisplayName(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Harbor Dental", name)
	})
	t.Run("falls through unknown customers", func(t *testing.T) {
		name, err := s.ResolveDisplayName(ctx, "c2")
		require.NoError(t, err)
		assert.Equal(t, "Oak Street Bakery", name)
	})
	t.Run("unknown everywhere", func(t *testing.T) {
		_, err := s.ResolveDisplayName(ctx, "c3")
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
	t.Run("other errors stop the lookup", func(t *testing.T) {
		boom := errors.New("connection reset")
		broken := directoryStore{fakeStore: &fakeStore{id: "crm"}, err: boom}
		_, err := New(broken, []core.EventStore{legacy}, nil).ResolveDisplayName(ctx, "c2")
		assert.True(t, errors.Is(err, boom))
	})
}
