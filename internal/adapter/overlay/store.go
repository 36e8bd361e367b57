// Package overlay combines one writable store with read-only secondaries.
package overlay

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/theakshaypant/crmcal/internal/core"
)

// Store fetches from every store in parallel; mutations go to the primary.
type Store struct {
	primary     core.EventStore
	secondaries []core.EventStore
	log         logrus.FieldLogger
}

func New(primary core.EventStore, secondaries []core.EventStore, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{primary: primary, secondaries: secondaries, log: log}
}

func (s *Store) ID() string   { return s.primary.ID() }
func (s *Store) Name() string { return s.primary.Name() }

// Stores returns the primary followed by the secondaries.
func (s *Store) Stores() []core.EventStore {
	return append([]core.EventStore{s.primary}, s.secondaries...)
}

// FetchEvents fails only if the primary fails. A failing secondary is
// logged and left out.
func (s *Store) FetchEvents(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
	type result struct {
		events []core.Event
		err    error
	}
	results := make([]result, len(s.secondaries))

	var wg sync.WaitGroup
	for i, sec := range s.secondaries {
		wg.Add(1)
		go func(i int, sec core.EventStore) {
			defer wg.Done()
			events, err := sec.FetchEvents(ctx, opts)
			results[i] = result{events, err}
		}(i, sec)
	}

	events, err := s.primary.FetchEvents(ctx, opts)
	wg.Wait()
	if err != nil {
		return nil, core.WrapStoreError("fetch", s.primary.ID(), err)
	}

	for i, r := range results {
		id := s.secondaries[i].ID()
		if r.err != nil {
			s.log.WithError(r.err).WithField("store", id).Warn("skipping store")
			continue
		}
		for _, e := range r.events {
			if e.ProviderID == "" {
				e.ProviderID = id
			}
			events = append(events, e)
		}
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

func (s *Store) CreateEvent(ctx context.Context, in core.EventInput) (core.Event, error) {
	return s.primary.CreateEvent(ctx, in)
}

func (s *Store) UpdateEvent(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
	return s.primary.UpdateEvent(ctx, id, patch)
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return s.primary.DeleteEvent(ctx, id)
}

// Changes fans in the change feeds of every store that has one.
func (s *Store) Changes(ctx context.Context) (<-chan core.ChangeNotice, error) {
	var feeds []<-chan core.ChangeNotice
	for _, st := range s.Stores() {
		n, ok := st.(core.ChangeNotifier)
		if !ok {
			continue
		}
		ch, err := n.Changes(ctx)
		if err != nil {
			s.log.WithError(err).WithField("store", st.ID()).Warn("change feed unavailable")
			continue
		}
		feeds = append(feeds, ch)
	}

	out := make(chan core.ChangeNotice, 16)
	var wg sync.WaitGroup
	for _, ch := range feeds {
		wg.Add(1)
		go func(ch <-chan core.ChangeNotice) {
			defer wg.Done()
			for n := range ch {
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// ResolveDisplayName asks each customer directory in store order. A directory
// that does not know the customer passes to the next one.
func (s *Store) ResolveDisplayName(ctx context.Context, customerID string) (string, error) {
	for _, st := range s.Stores() {
		dir, ok := st.(core.CustomerDirectory)
		if !ok {
			continue
		}
		name, err := dir.ResolveDisplayName(ctx, customerID)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		return name, err
	}
	return "", core.ErrNotFound
}
