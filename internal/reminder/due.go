// Package reminder fires event reminders (minutes before start) on a cron schedule.
package reminder

import (
	"fmt"
	"sort"
	"time"

	"github.com/theakshaypant/crmcal/internal/core"
)

// Due is one reminder that should fire.
type Due struct {
	Event  core.Event `json:"event"`
	Offset int        `json:"offset_minutes"`
	FireAt time.Time  `json:"fire_at"`
}

// Key identifies the reminder. A moved event gets new keys.
func (d Due) Key() string {
	return fmt.Sprintf("%s|%s|%d|%d", d.Event.ProviderID, d.Event.ID, d.Event.Start.Unix(), d.Offset)
}

// Message is the human text for the reminder.
func (d Due) Message() string {
	if d.Offset == 0 {
		return fmt.Sprintf("%s starts now", d.Event.Title)
	}
	return fmt.Sprintf("%s starts in %d min (%s)", d.Event.Title, d.Offset, d.Event.Start.Format("15:04"))
}

// silent reports statuses that never fire reminders.
func silent(s core.EventStatus) bool {
	return s == core.StatusCancelled || s == core.StatusCompleted
}

// DueBetween returns reminders whose fire time is in (after, upTo], ordered by fire time.
func DueBetween(events []core.Event, after, upTo time.Time) []Due {
	var out []Due
	for _, e := range events {
		if silent(e.Status) {
			continue
		}
		seen := make(map[int]bool, len(e.ReminderOffsets))
		for _, off := range e.ReminderOffsets {
			if off < 0 || seen[off] {
				continue
			}
			seen[off] = true
			at := e.Start.Add(-time.Duration(off) * time.Minute)
			if at.After(after) && !at.After(upTo) {
				out = append(out, Due{Event: e, Offset: off, FireAt: at})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}
