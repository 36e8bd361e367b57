package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/theakshaypant/crmcal/internal/core"
)

// ViewType is the calendar presentation mode.
type ViewType string

const (
	ViewMonth  ViewType = "month"
	ViewWeek   ViewType = "week"
	ViewDay    ViewType = "day"
	ViewAgenda ViewType = "agenda"
)

// ViewTypes lists every view in cycling order.
var ViewTypes = []ViewType{ViewMonth, ViewWeek, ViewDay, ViewAgenda}

// ParseViewType validates a raw view name. Unknown names are input errors.
func ParseViewType(s string) (ViewType, error) {
	v := ViewType(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case ViewMonth, ViewWeek, ViewDay, ViewAgenda:
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown view type %q (use month, week, day or agenda)", core.ErrInvalidInput, s)
}

// ViewRange is the concrete window implied by a view type and anchor.
// Start and End are inclusive; End covers its whole calendar day.
type ViewRange struct {
	Type   ViewType  `json:"type"`
	Anchor time.Time `json:"anchor"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// FetchWindow returns the half-open window [Start, day after End) used for store queries.
func (r ViewRange) FetchWindow() (time.Time, time.Time) {
	return r.Start, startOfDay(r.End).AddDate(0, 0, 1)
}

// Contains reports whether t falls on or after Start and no later than End's day.
func (r ViewRange) Contains(t time.Time) bool {
	_, end := r.FetchWindow()
	return !t.Before(r.Start) && t.Before(end)
}

// Days returns the midnight of every day in the range.
func (r ViewRange) Days() []time.Time {
	var days []time.Time
	for d := startOfDay(r.Start); !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Calculator computes view ranges. The zero value starts weeks on Sunday and
// works in each anchor's own location.
type Calculator struct {
	WeekStart time.Weekday
	// Location overrides the anchor's location when set.
	Location *time.Location
}

// DefaultCalculator is the Sunday-start calculator.
var DefaultCalculator = Calculator{WeekStart: time.Sunday}

// RangeFor uses DefaultCalculator.
func RangeFor(view ViewType, anchor time.Time) ViewRange {
	return DefaultCalculator.RangeFor(view, anchor)
}

// Step uses DefaultCalculator.
func Step(view ViewType, anchor time.Time, direction int) time.Time {
	return DefaultCalculator.Step(view, anchor, direction)
}

// RangeFor returns the range for view anchored at anchor.
func (c Calculator) RangeFor(view ViewType, anchor time.Time) ViewRange {
	anchor = c.in(anchor)
	r := ViewRange{Type: view, Anchor: anchor}

	switch view {
	case ViewWeek:
		r.Start = c.weekStartOn(anchor)
		r.End = r.Start.AddDate(0, 0, 6)
	case ViewDay:
		r.Start = startOfDay(anchor)
		r.End = endOfDay(anchor)
	case ViewAgenda:
		r.Start = startOfDay(anchor)
		r.End = lastOfMonth(anchor)
	default:
		r.Type = ViewMonth
		r.Start = c.weekStartOn(firstOfMonth(anchor))
		r.End = c.weekEndOn(lastOfMonth(anchor))
	}
	return r
}

// Step moves anchor one unit of view in direction (-1 or +1).
func (c Calculator) Step(view ViewType, anchor time.Time, direction int) time.Time {
	anchor = c.in(anchor)
	if direction < 0 {
		direction = -1
	} else {
		direction = 1
	}

	switch view {
	case ViewWeek:
		return anchor.AddDate(0, 0, 7*direction)
	case ViewDay:
		return anchor.AddDate(0, 0, direction)
	default:
		return addMonthsClamped(anchor, direction)
	}
}

func (c Calculator) in(t time.Time) time.Time {
	if c.Location != nil {
		return t.In(c.Location)
	}
	return t
}

// weekStartOn returns midnight of the most recent week start on or before t.
func (c Calculator) weekStartOn(t time.Time) time.Time {
	back := (int(t.Weekday()) - int(c.WeekStart) + 7) % 7
	return startOfDay(t).AddDate(0, 0, -back)
}

// weekEndOn returns midnight of the next week end on or after t.
func (c Calculator) weekEndOn(t time.Time) time.Time {
	weekEnd := (c.WeekStart + 6) % 7
	fwd := (int(weekEnd) - int(t.Weekday()) + 7) % 7
	return startOfDay(t).AddDate(0, 0, fwd)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

func firstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func lastOfMonth(t time.Time) time.Time {
	return firstOfMonth(t).AddDate(0, 1, -1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// addMonthsClamped keeps the day of month, clamped to the target month's length.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// SameDay reports whether a and b fall on the same calendar day in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
