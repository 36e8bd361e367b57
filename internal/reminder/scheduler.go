package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/theakshaypant/crmcal/internal/core"
)

const (
	DefaultSchedule = "@every 1m"
	// DefaultLookahead bounds how far ahead events are fetched, so it also
	// caps the largest reminder offset that can fire.
	DefaultLookahead = 7 * 24 * time.Hour
)

type Options struct {
	Schedule  string
	Lookahead time.Duration
	Notifier  Notifier
	Deduper   Deduper
	Logger    logrus.FieldLogger
	Location  *time.Location
	Now       func() time.Time
}

// Scheduler scans a store for due reminders on a cron schedule.
type Scheduler struct {
	store     core.EventStore
	schedule  string
	lookahead time.Duration
	notifier  Notifier
	dedupe    Deduper
	log       logrus.FieldLogger
	loc       *time.Location
	now       func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// New builds a scheduler. Reminders due before the first run are not fired.
func New(store core.EventStore, opts Options) (*Scheduler, error) {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("%w: reminder schedule %q: %v", core.ErrInvalidInput, opts.Schedule, err)
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Log: opts.Logger}
	}
	if opts.Deduper == nil {
		opts.Deduper = NewMemoryDeduper()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		store:     store,
		schedule:  opts.Schedule,
		lookahead: opts.Lookahead,
		notifier:  opts.Notifier,
		dedupe:    opts.Deduper,
		log:       opts.Logger,
		loc:       opts.Location,
		now:       opts.Now,
		lastRun:   opts.Now(),
	}, nil
}

// RunOnce fires reminders due since the previous run and returns how many
// were sent. A failed fetch keeps the previous mark so the next run catches
// up. A reminder that fails to send is released and retried on the next run.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	after := s.lastRun
	opts := core.FetchOptions{Start: after, End: now.Add(s.lookahead), IncludePrivate: true}
	events, err := s.store.FetchEvents(ctx, opts)
	if err != nil {
		return 0, core.WrapStoreError("fetch", s.store.ID(), err)
	}

	sent := 0
	mark := now
	var errs []error
	retry := func(d Due) {
		if at := d.FireAt.Add(-time.Nanosecond); at.Before(mark) {
			mark = at
		}
	}
	for _, d := range DueBetween(events, after, now) {
		// Keep the key at least as long as the reminder could be rescanned.
		first, err := s.dedupe.First(ctx, d.Key(), s.lookahead+time.Hour)
		if err != nil {
			errs = append(errs, err)
			retry(d)
			continue
		}
		if !first {
			continue
		}
		if err := s.notifier.Notify(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", d.Event.ID, err))
			if ferr := s.dedupe.Forget(ctx, d.Key()); ferr != nil {
				errs = append(errs, ferr)
			}
			retry(d)
			continue
		}
		sent++
	}
	s.lastRun = mark
	return sent, errors.Join(errs...)
}

// Run blocks, scanning on the schedule until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(s.log))),
	)
	_, err := c.AddFunc(s.schedule, func() {
		n, err := s.RunOnce(ctx)
		if err != nil {
			s.log.WithError(err).Warn("reminder scan failed")
		}
		if n > 0 {
			s.log.WithField("count", n).Debug("reminders sent")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}

	s.log.WithField("schedule", s.schedule).Info("reminder scheduler started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
