package google

import (
	"strconv"
	"strings"
	"time"

	"github.com/theakshaypant/crmcal/internal/core"

	"google.golang.org/api/calendar/v3"
)

const (
	timeLayout = time.RFC3339
	dateLayout = "2006-01-02"

	propType      = "crm_type"
	propStatus    = "crm_status"
	propPriority  = "crm_priority"
	propCustomer  = "crm_customer_id"
	propColor     = "crm_color"
	propReminders = "crm_reminders"
)

// parseEvent converts a Google Calendar event to our unified Event type.
// It reports false for events without a usable start.
func parseEvent(item *calendar.Event, providerID string) (core.Event, bool) {
	if item == nil || item.Start == nil {
		return core.Event{}, false
	}

	// Timing (all day vs time specific)
	var start, end time.Time
	allDay := false
	if item.Start.DateTime != "" {
		start, _ = time.Parse(timeLayout, item.Start.DateTime)
		if item.End != nil && item.End.DateTime != "" {
			end, _ = time.Parse(timeLayout, item.End.DateTime)
		}
	} else {
		// All day event (YYYY-MM-DD); Google end dates are exclusive.
		start, _ = time.ParseInLocation(dateLayout, item.Start.Date, time.Local)
		if item.End != nil && item.End.Date != "" {
			end, _ = time.ParseInLocation(dateLayout, item.End.Date, time.Local)
		}
		allDay = true
	}
	if start.IsZero() {
		return core.Event{}, false
	}

	props := map[string]string{}
	if item.ExtendedProperties != nil && item.ExtendedProperties.Private != nil {
		props = item.ExtendedProperties.Private
	}

	ev := core.Event{
		ID:          item.Id,
		ProviderID:  providerID,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Start:       start,
		AllDay:      allDay,
		Type:        core.TypeCustom,
		Status:      parseStatus(item, props[propStatus]),
		Priority:    core.PriorityMedium,
		Color:       props[propColor],
		CustomerID:  props[propCustomer],
		IsPrivate:   item.Visibility == "private" || item.Visibility == "confidential",
	}
	if end.After(start) {
		ev.End = &end
	}
	if t, err := core.ParseEventType(props[propType]); err == nil {
		ev.Type = t
	}
	if p, err := core.ParsePriority(props[propPriority]); err == nil {
		ev.Priority = p
	}
	ev.ReminderOffsets = parseReminders(item, props[propReminders])
	ev.CreatedAt, _ = time.Parse(timeLayout, item.Created)
	ev.UpdatedAt, _ = time.Parse(timeLayout, item.Updated)

	return ev, true
}

// parseStatus prefers the CRM status and falls back to the Google status.
func parseStatus(item *calendar.Event, raw string) core.EventStatus {
	if s, err := core.ParseStatus(raw); err == nil {
		return s
	}
	switch item.Status {
	case "cancelled":
		return core.StatusCancelled
	case "confirmed":
		return core.StatusConfirmed
	default:
		return core.StatusScheduled
	}
}

func parseReminders(item *calendar.Event, raw string) []int {
	if raw != "" {
		var out []int
		for _, part := range strings.Split(raw, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n >= 0 {
				out = append(out, n)
			}
		}
		return out
	}
	if item.Reminders == nil {
		return nil
	}
	var out []int
	for _, r := range item.Reminders.Overrides {
		out = append(out, int(r.Minutes))
	}
	return out
}

// writeEvent copies e onto item, leaving fields we do not model untouched.
func writeEvent(item *calendar.Event, e core.Event) {
	item.Summary = e.Title
	item.Description = e.Description
	item.Location = e.Location

	end := e.EndOrStart()
	if e.AllDay {
		if !end.After(e.Start) {
			end = e.Start.AddDate(0, 0, 1)
		}
		item.Start = &calendar.EventDateTime{Date: e.Start.Format(dateLayout)}
		item.End = &calendar.EventDateTime{Date: end.Format(dateLayout)}
	} else {
		item.Start = &calendar.EventDateTime{DateTime: e.Start.Format(timeLayout)}
		item.End = &calendar.EventDateTime{DateTime: end.Format(timeLayout)}
	}

	if e.IsPrivate {
		item.Visibility = "private"
	} else if item.Visibility == "private" || item.Visibility == "confidential" {
		item.Visibility = "default"
	}
	// Google hides cancelled events, so a cancelled CRM event stays confirmed
	// there and carries its status in the extended properties.
	if item.Status == "" || item.Status == "cancelled" {
		item.Status = "confirmed"
	}

	if item.ExtendedProperties == nil {
		item.ExtendedProperties = &calendar.EventExtendedProperties{}
	}
	if item.ExtendedProperties.Private == nil {
		item.ExtendedProperties.Private = map[string]string{}
	}
	props := item.ExtendedProperties.Private
	props[propType] = string(e.Type)
	props[propStatus] = string(e.Status)
	props[propPriority] = string(e.Priority)
	setOrDelete(props, propCustomer, e.CustomerID)
	setOrDelete(props, propColor, e.Color)

	if len(e.ReminderOffsets) > 0 {
		parts := make([]string, len(e.ReminderOffsets))
		overrides := make([]*calendar.EventReminder, 0, len(e.ReminderOffsets))
		for i, m := range e.ReminderOffsets {
			parts[i] = strconv.Itoa(m)
			// Google caps popup overrides at five.
			if len(overrides) < 5 {
				overrides = append(overrides, &calendar.EventReminder{Method: "popup", Minutes: int64(m)})
			}
		}
		props[propReminders] = strings.Join(parts, ",")
		item.Reminders = &calendar.EventReminders{Overrides: overrides, ForceSendFields: []string{"UseDefault"}}
	} else {
		delete(props, propReminders)
		item.Reminders = &calendar.EventReminders{UseDefault: true}
	}
}

func setOrDelete(m map[string]string, key, value string) {
	if value == "" {
		delete(m, key)
		return
	}
	m[key] = value
}
