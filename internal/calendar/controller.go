package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theakshaypant/crmcal/internal/core"
)

// DefaultUpcomingHorizon bounds the store query behind Controller.Upcoming.
const DefaultUpcomingHorizon = 90 * 24 * time.Hour

// FetchObserver is told about every store fetch (metrics hook).
type FetchObserver interface {
	ObserveFetch(storeID string, took time.Duration, err error)
}

// Options configures a Controller.
type Options struct {
	Calculator Calculator
	Aggregator Aggregator
	View       ViewType
	// Zero anchor means now.
	Anchor time.Time
	Filter Filter

	// Optional; enables customer names in search.
	Customers core.CustomerDirectory
	Logger    logrus.FieldLogger
	Observer  FetchObserver
	Now       func() time.Time

	UpcomingHorizon time.Duration
}

// Snapshot is a consistent copy of controller state.
type Snapshot struct {
	// Range is the current view; LoadedRange is the range Events came from.
	Range       ViewRange
	LoadedRange ViewRange
	Filter      Filter
	Events      []core.Event
	Index       DateBucketIndex
	Loaded      bool
	// Err is the last fetch failure for the current generation, if any.
	Err error
}

// Stale reports whether the held events belong to another range or the last fetch failed.
func (s Snapshot) Stale() bool {
	return !s.Loaded || s.Err != nil || !s.LoadedRange.Start.Equal(s.Range.Start) || !s.LoadedRange.End.Equal(s.Range.End)
}

// Controller owns one view: its range, filter, and the aggregated events.
// All methods are safe for concurrent use; the lock is never held across store I/O.
type Controller struct {
	store     core.EventStore
	customers core.CustomerDirectory
	agg       Aggregator
	log       logrus.FieldLogger
	observer  FetchObserver
	now       func() time.Time
	horizon   time.Duration

	mu      sync.Mutex
	state   *ViewState
	filter  Filter
	gen     uint64
	applied uint64

	events      []core.Event
	loadedRange ViewRange
	loaded      bool
	visible     []core.Event
	index       DateBucketIndex
	lastErr     error
	names       map[string]string
}

// NewController builds a controller over store. Nothing is fetched until a
// navigation or Refresh call.
func NewController(store core.EventStore, opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	anchor := opts.Anchor
	if anchor.IsZero() {
		anchor = now()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	horizon := opts.UpcomingHorizon
	if horizon <= 0 {
		horizon = DefaultUpcomingHorizon
	}

	return &Controller{
		store:     store,
		customers: opts.Customers,
		agg:       opts.Aggregator,
		log:       logger.WithField("store", store.ID()),
		observer:  opts.Observer,
		now:       now,
		horizon:   horizon,
		state:     NewViewState(opts.Calculator, opts.View, anchor, now),
		filter:    opts.Filter,
		names:     make(map[string]string),
	}
}

// Store returns the backing event store.
func (c *Controller) Store() core.EventStore { return c.store }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Range:       c.state.Range(),
		LoadedRange: c.loadedRange,
		Filter:      c.filter,
		Events:      append([]core.Event(nil), c.visible...),
		Index:       c.index,
		Loaded:      c.loaded,
		Err:         c.lastErr,
	}
}

func (c *Controller) Range() ViewRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Range()
}

func (c *Controller) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Events returns the filtered, in-range events ordered by start.
func (c *Controller) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Event(nil), c.visible...)
}

// ForDate returns the bucket for date; never nil.
func (c *Controller) ForDate(date time.Time) []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.ForDate(date)
}

// CustomerName returns the cached display name for id.
func (c *Controller) CustomerName(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names[id]
}

// NavigateTo anchors the view at date and reloads. An empty view keeps the current one.
func (c *Controller) NavigateTo(ctx context.Context, date time.Time, view ViewType) error {
	return c.transition(ctx, func(s *ViewState) { s.NavigateTo(date, view) })
}

func (c *Controller) NavigatePrevious(ctx context.Context) error {
	return c.transition(ctx, func(s *ViewState) { s.NavigatePrevious() })
}

func (c *Controller) NavigateNext(ctx context.Context) error {
	return c.transition(ctx, func(s *ViewState) { s.NavigateNext() })
}

func (c *Controller) NavigateToToday(ctx context.Context) error {
	return c.transition(ctx, func(s *ViewState) { s.NavigateToToday() })
}

// SetFilter replaces the filter and reloads.
func (c *Controller) SetFilter(ctx context.Context, f Filter) error {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Refresh re-fetches the current range.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.transition(ctx, nil)
}

// Invalidate is the reaction to a store change notice.
func (c *Controller) Invalidate(ctx context.Context) error {
	c.log.Debug("calendar invalidated, re-fetching")
	return c.Refresh(ctx)
}

// Watch re-fetches on every notice until ctx is done or the channel closes.
// Bursts of notices are coalesced into one re-fetch.
func (c *Controller) Watch(ctx context.Context, notices <-chan core.ChangeNotice) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-notices:
			if !ok {
				return nil
			}
		drain:
			for {
				select {
				case _, ok := <-notices:
					if !ok {
						break drain
					}
				default:
					break drain
				}
			}
			if err := c.Invalidate(ctx); err != nil {
				c.log.WithError(err).Warn("re-fetch after change notice failed")
			}
		}
	}
}

// Subscribe starts Watch on the store's change feed when it has one.
// It reports false when the store cannot push changes.
func (c *Controller) Subscribe(ctx context.Context) (bool, error) {
	notifier, ok := c.store.(core.ChangeNotifier)
	if !ok {
		return false, nil
	}
	notices, err := notifier.Changes(ctx)
	if err != nil {
		return false, core.WrapStoreError("subscribe", c.store.ID(), err)
	}
	go func() {
		if err := c.Watch(ctx, notices); err != nil && ctx.Err() == nil {
			c.log.WithError(err).Warn("change watch stopped")
		}
	}()
	return true, nil
}

// Create stores a new event and merges it into the held collection.
func (c *Controller) Create(ctx context.Context, in core.EventInput) (core.Event, error) {
	if err := in.Validate(); err != nil {
		return core.Event{}, err
	}
	ev, err := c.store.CreateEvent(ctx, in)
	if err != nil {
		return core.Event{}, core.WrapStoreError("create", c.store.ID(), err)
	}
	err = c.merge(ctx, "create", func(events []core.Event) ([]core.Event, error) {
		if ev.ID == "" {
			return nil, fmt.Errorf("%w: created event has no id", core.ErrInconsistent)
		}
		for i := range events {
			if events[i].ID == ev.ID {
				events[i] = ev
				return events, nil
			}
		}
		return append(events, ev), nil
	})
	return ev, err
}

// Update patches an event and merges the store's result.
func (c *Controller) Update(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
	if id == "" {
		return core.Event{}, fmt.Errorf("%w: event id is required", core.ErrInvalidInput)
	}
	if err := patch.Validate(); err != nil {
		return core.Event{}, err
	}
	ev, err := c.store.UpdateEvent(ctx, id, patch)
	if err != nil {
		return core.Event{}, core.WrapStoreError("update", c.store.ID(), err)
	}
	err = c.merge(ctx, "update", func(events []core.Event) ([]core.Event, error) {
		if ev.ID == "" || ev.ID != id {
			return nil, fmt.Errorf("%w: updated event id %q does not match %q", core.ErrInconsistent, ev.ID, id)
		}
		for i := range events {
			if events[i].ID == id {
				events[i] = ev
				return events, nil
			}
		}
		return nil, fmt.Errorf("%w: event %s is not held", core.ErrInconsistent, id)
	})
	return ev, err
}

// Delete removes an event from the store and from the held collection.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: event id is required", core.ErrInvalidInput)
	}
	if err := c.store.DeleteEvent(ctx, id); err != nil {
		return core.WrapStoreError("delete", c.store.ID(), err)
	}
	return c.merge(ctx, "delete", func(events []core.Event) ([]core.Event, error) {
		out := events[:0]
		for _, e := range events {
			if e.ID != id {
				out = append(out, e)
			}
		}
		return out, nil
	})
}

// Upcoming returns the next events after now under the current filter,
// independent of the view range.
func (c *Controller) Upcoming(ctx context.Context, limit int) ([]core.Event, error) {
	c.mu.Lock()
	filter := c.filter
	c.mu.Unlock()

	now := c.now()
	opts := filter.FetchOptions(now, now.Add(c.horizon))
	events, err := c.fetchStore(ctx, opts)
	if err != nil {
		return nil, err
	}
	names := c.resolveNames(ctx, events, filter)
	visible := Apply(events, filter.Clauses(MapLookup(names))...)
	return c.agg.Upcoming(visible, now, limit), nil
}

// transition applies an optional state change and reloads under a new generation.
func (c *Controller) transition(ctx context.Context, change func(*ViewState)) error {
	c.mu.Lock()
	if change != nil {
		change(c.state)
	}
	c.gen++
	gen := c.gen
	rng := c.state.Range()
	filter := c.filter
	c.mu.Unlock()

	return c.load(ctx, gen, rng, filter)
}

func (c *Controller) load(ctx context.Context, gen uint64, rng ViewRange, filter Filter) error {
	start, end := rng.FetchWindow()
	events, err := c.fetchStore(ctx, filter.FetchOptions(start, end))
	if err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.lastErr = err
		}
		c.mu.Unlock()
		return err
	}

	c.resolveNames(ctx, events, filter)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.log.WithFields(logrus.Fields{"generation": gen, "current": c.gen}).Debug("discarding superseded fetch")
		return nil
	}
	c.events = events
	c.loadedRange = rng
	c.loaded = true
	c.lastErr = nil
	c.applied = gen
	c.rebuildLocked()
	return nil
}

// merge applies fn to the held collection, or re-fetches when fn reports an
// inconsistency or a newer fetch is still pending.
func (c *Controller) merge(ctx context.Context, op string, fn func([]core.Event) ([]core.Event, error)) error {
	c.mu.Lock()
	if !c.loaded || c.applied != c.gen {
		c.mu.Unlock()
		return c.Refresh(ctx)
	}
	held := append([]core.Event(nil), c.events...)
	merged, err := fn(held)
	if err != nil {
		c.mu.Unlock()
		c.log.WithError(err).WithField("op", op).Warn("merge failed, re-fetching")
		if rerr := c.Refresh(ctx); rerr != nil {
			return fmt.Errorf("%w (re-fetch: %v)", err, rerr)
		}
		return nil
	}
	c.gen++
	c.applied = c.gen
	c.events = merged
	c.rebuildLocked()
	filter := c.filter
	gen := c.gen
	c.mu.Unlock()

	// A merged event may carry a customer we have not named yet.
	if filter.NeedsNames() && len(c.missingNames(merged)) > 0 {
		c.resolveNames(ctx, merged, filter)
		c.mu.Lock()
		if gen == c.gen {
			c.rebuildLocked()
		}
		c.mu.Unlock()
	}
	return nil
}

func (c *Controller) rebuildLocked() {
	rng := c.loadedRange
	inRange := c.agg.InRange(c.events, rng)
	visible := Apply(inRange, c.filter.Clauses(MapLookup(c.names))...)
	sortByStart(visible)
	c.visible = visible
	c.index = c.agg.BucketByDay(visible, rng)
}

func (c *Controller) fetchStore(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
	began := time.Now()
	events, err := c.store.FetchEvents(ctx, opts)
	if c.observer != nil {
		c.observer.ObserveFetch(c.store.ID(), time.Since(began), err)
	}
	if err != nil {
		return nil, core.WrapStoreError("fetch", c.store.ID(), err)
	}
	return events, nil
}

func (c *Controller) missingNames(events []core.Event) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var missing []string
	seen := make(map[string]bool)
	for _, e := range events {
		if e.CustomerID == "" || seen[e.CustomerID] {
			continue
		}
		seen[e.CustomerID] = true
		if _, ok := c.names[e.CustomerID]; !ok {
			missing = append(missing, e.CustomerID)
		}
	}
	return missing
}

// resolveNames fills the name cache for customers in events and returns a copy.
// Lookup failures are logged and leave the name empty.
func (c *Controller) resolveNames(ctx context.Context, events []core.Event, filter Filter) map[string]string {
	if c.customers != nil && filter.NeedsNames() {
		for _, id := range c.missingNames(events) {
			name, err := c.customers.ResolveDisplayName(ctx, id)
			if err != nil {
				c.log.WithError(err).WithField("customer_id", id).Warn("customer lookup failed")
				continue
			}
			c.mu.Lock()
			c.names[id] = name
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	names := make(map[string]string, len(c.names))
	for k, v := range c.names {
		names[k] = v
	}
	return names
}
