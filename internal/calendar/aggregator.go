package calendar

import (
	"sort"
	"time"

	"github.com/theakshaypant/crmcal/internal/core"
)

// DefaultUpcomingLimit caps Upcoming when no limit is given.
const DefaultUpcomingLimit = 10

// DayKeyLayout formats bucket keys.
const DayKeyLayout = "2006-01-02"

// DayKey returns the bucket key for t's calendar date in t's own location.
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

// DateBucketIndex maps calendar-day keys to the events on that day.
// It is rebuilt from scratch, never patched.
type DateBucketIndex struct {
	buckets map[string][]core.Event
	keys    []string
	total   int
	// loc is the zone the buckets were keyed in.
	loc *time.Location
}

// ForDate returns the bucket for date's calendar day in the index's zone.
// It never returns nil.
func (ix DateBucketIndex) ForDate(date time.Time) []core.Event {
	if ix.loc != nil {
		date = date.In(ix.loc)
	}
	return ix.ForKey(DayKey(date))
}

// ForKey returns the bucket for a YYYY-MM-DD key. It never returns nil.
func (ix DateBucketIndex) ForKey(key string) []core.Event {
	events := ix.buckets[key]
	out := make([]core.Event, len(events))
	copy(out, events)
	return out
}

// Keys returns the non-empty day keys in ascending order.
func (ix DateBucketIndex) Keys() []string {
	return append([]string(nil), ix.keys...)
}

// Len returns the total number of bucketed events.
func (ix DateBucketIndex) Len() int { return ix.total }

// Buckets returns a copy of every non-empty bucket.
func (ix DateBucketIndex) Buckets() map[string][]core.Event {
	out := make(map[string][]core.Event, len(ix.buckets))
	for k := range ix.buckets {
		out[k] = ix.ForKey(k)
	}
	return out
}

// Aggregator buckets and orders events for a view range.
// A nil Location uses the range's own location for day keys.
type Aggregator struct {
	Location *time.Location
}

func (a Aggregator) loc(r ViewRange) *time.Location {
	if a.Location != nil {
		return a.Location
	}
	return r.Start.Location()
}

// WithinRange reports whether e belongs to r. Timed events need Start inside
// the inclusive range; all-day events need any calendar-day overlap.
func (a Aggregator) WithinRange(e core.Event, r ViewRange) bool {
	if e.Start.IsZero() {
		return false
	}
	if !e.AllDay {
		return r.Contains(e.Start)
	}
	loc := a.loc(r)
	first, last := allDaySpan(e, loc)
	rFirst := dateIn(r.Start, loc)
	rLast := dateIn(r.End, loc)
	return !first.After(rLast) && !last.Before(rFirst)
}

// InRange keeps the events inside r, in input order.
func (a Aggregator) InRange(events []core.Event, r ViewRange) []core.Event {
	out := make([]core.Event, 0, len(events))
	for _, e := range events {
		if a.WithinRange(e, r) {
			out = append(out, e)
		}
	}
	return out
}

// BucketByDay keys in-range events by their local start date. A multi-day
// all-day event lands once, on the later of its first day and the range's
// first day. Buckets are ordered by Start; ties keep input order.
func (a Aggregator) BucketByDay(events []core.Event, r ViewRange) DateBucketIndex {
	loc := a.loc(r)
	ix := DateBucketIndex{buckets: make(map[string][]core.Event), loc: loc}

	for _, e := range events {
		if !a.WithinRange(e, r) {
			continue
		}
		key := a.bucketKey(e, r, loc)
		ix.buckets[key] = append(ix.buckets[key], e)
		ix.total++
	}

	for key, bucket := range ix.buckets {
		sortByStart(bucket)
		ix.keys = append(ix.keys, key)
	}
	sort.Strings(ix.keys)
	return ix
}

func (a Aggregator) bucketKey(e core.Event, r ViewRange, loc *time.Location) string {
	if !e.AllDay {
		return DayKey(e.Start.In(loc))
	}
	first, _ := allDaySpan(e, loc)
	if rFirst := dateIn(r.Start, loc); first.Before(rFirst) {
		first = rFirst
	}
	return DayKey(first)
}

// Upcoming returns up to limit events starting strictly after now, ascending.
// It ignores any view range. limit <= 0 means DefaultUpcomingLimit.
func (a Aggregator) Upcoming(events []core.Event, now time.Time, limit int) []core.Event {
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}
	out := make([]core.Event, 0, limit)
	for _, e := range events {
		if e.Start.After(now) {
			out = append(out, e)
		}
	}
	sortByStart(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sortByStart is a stable ascending sort on Start.
func sortByStart(events []core.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}

// allDaySpan returns the first and last calendar day of an all-day event.
// The date components of Start and End are taken as-is; an End at midnight is exclusive.
func allDaySpan(e core.Event, loc *time.Location) (time.Time, time.Time) {
	y, m, d := e.Start.Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, loc)
	last := first
	if e.End != nil && e.End.After(e.Start) {
		ey, em, ed := e.End.Date()
		end := time.Date(ey, em, ed, 0, 0, 0, 0, loc)
		h, mi, s := e.End.Clock()
		if h == 0 && mi == 0 && s == 0 && e.End.Nanosecond() == 0 {
			end = end.AddDate(0, 0, -1)
		}
		if end.After(last) {
			last = end
		}
	}
	return first, last
}

func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
