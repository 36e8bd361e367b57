package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/theakshaypant/crmcal/internal/core"
)

// maxOccurrences caps the instances produced by one RRULE in one window.
const maxOccurrences = 5000

// occurrenceID names one instance of a recurring event.
func occurrenceID(uid string, start time.Time) string {
	return uid + "/" + start.UTC().Format(layoutUTC)
}

// expand turns parsed VEVENTs into concrete events that may overlap
// [start, end). Recurring masters are expanded with EXDATEs removed and
// RECURRENCE-ID overrides swapped in.
func expand(events []vevent, start, end time.Time) ([]core.Event, []string) {
	overrides := make(map[string]map[int64]vevent)
	for _, ev := range events {
		if ev.recurrenceID == nil {
			continue
		}
		if overrides[ev.uid] == nil {
			overrides[ev.uid] = make(map[int64]vevent)
		}
		overrides[ev.uid][ev.recurrenceID.Unix()] = ev
	}

	var out []core.Event
	var truncated []string
	for _, ev := range events {
		if ev.recurrenceID != nil {
			continue
		}
		if ev.rrule == "" {
			out = append(out, ev.base)
			continue
		}
		occ, capped := expandRecurring(ev, overrides[ev.uid], start, end)
		if capped {
			truncated = append(truncated, ev.uid)
		}
		out = append(out, occ...)
	}
	return out, truncated
}

func expandRecurring(ev vevent, overrides map[int64]vevent, start, end time.Time) ([]core.Event, bool) {
	r, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		// Unreadable rule: show the first instance only.
		return []core.Event{ev.base}, false
	}
	r.DTStart(ev.base.Start)

	var set rrule.Set
	set.RRule(r)
	loc := ev.base.Start.Location()
	for _, ex := range ev.exdates {
		set.ExDate(ex.In(loc))
	}

	// Instances starting up to one duration before the window can still overlap it.
	dur := ev.base.Duration()
	times := set.Between(start.Add(-dur).In(loc), end.In(loc), true)
	capped := false
	if len(times) > maxOccurrences {
		times = times[:maxOccurrences]
		capped = true
	}

	out := make([]core.Event, 0, len(times))
	for _, t := range times {
		e := ev.base
		if o, ok := overrides[t.Unix()]; ok {
			e = o.base
		} else {
			e.Start = t
			if ev.base.End != nil {
				occEnd := t.Add(dur)
				e.End = &occEnd
			}
		}
		e.ID = occurrenceID(ev.uid, t)
		out = append(out, e)
	}
	return out, capped
}
