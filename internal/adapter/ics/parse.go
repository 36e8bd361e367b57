package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/theakshaypant/crmcal/internal/core"
)

// CRM fields that plain iCalendar has no slot for.
const (
	propCRMType      ical.ComponentProperty = "X-CRM-TYPE"
	propCRMStatus    ical.ComponentProperty = "X-CRM-STATUS"
	propCRMPriority  ical.ComponentProperty = "X-CRM-PRIORITY"
	propCRMCustomer  ical.ComponentProperty = "X-CRM-CUSTOMER"
	propCRMColor     ical.ComponentProperty = "X-CRM-COLOR"
	propCRMReminders ical.ComponentProperty = "X-CRM-REMINDERS"

	propRecurrenceID ical.ComponentProperty = "RECURRENCE-ID"
)

const (
	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"
)

// vevent is one parsed VEVENT before recurrence expansion.
type vevent struct {
	uid     string
	base    core.Event
	rrule   string
	exdates []time.Time
	// Set on overrides of a single occurrence.
	recurrenceID *time.Time
}

func parseCalendar(body []byte, loc *time.Location) ([]vevent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	var out []vevent
	for _, comp := range cal.Events() {
		ev, err := parseVEvent(comp, loc)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";")

// propValue returns the unescaped TEXT value of p.
func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(textUnescaper.Replace(prop.Value))
	}
	return ""
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var out vevent
	out.uid = propValue(ve, ical.ComponentPropertyUniqueId)
	if out.uid == "" {
		return out, errors.New("missing UID")
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := parseTimeProp(dtStart, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}

	e := core.Event{
		ID:          out.uid,
		Title:       propValue(ve, ical.ComponentPropertySummary),
		Description: propValue(ve, ical.ComponentPropertyDescription),
		Location:    propValue(ve, ical.ComponentPropertyLocation),
		Start:       start,
		AllDay:      allDay,
		Type:        parseType(ve),
		Status:      parseStatus(ve),
		Priority:    parsePriority(ve),
		Color:       propValue(ve, propCRMColor),
		CustomerID:  propValue(ve, propCRMCustomer),
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		if end, _, err := parseTimeProp(p, loc); err == nil && end.After(start) {
			e.End = &end
		}
	} else if allDay {
		// A DATE start with no end covers that one day.
		end := start.AddDate(0, 0, 1)
		e.End = &end
	}

	switch strings.ToUpper(propValue(ve, ical.ComponentPropertyClass)) {
	case "PRIVATE", "CONFIDENTIAL":
		e.IsPrivate = true
	}

	for _, part := range strings.Split(propValue(ve, propCRMReminders), ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n >= 0 {
			e.ReminderOffsets = append(e.ReminderOffsets, n)
		}
	}

	if t, err := time.Parse(layoutUTC, propValue(ve, ical.ComponentPropertyCreated)); err == nil {
		e.CreatedAt = t
	}
	if t, err := time.Parse(layoutUTC, propValue(ve, ical.ComponentPropertyLastModified)); err == nil {
		e.UpdatedAt = t
	}
	out.base = e

	out.rrule = propValue(ve, ical.ComponentPropertyRrule)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, _, err := parseTimeValue(strings.TrimSpace(part), p.ICalParameters, loc); err == nil {
				out.exdates = append(out.exdates, t)
			}
		}
	}
	if p := ve.GetProperty(propRecurrenceID); p != nil {
		if t, _, err := parseTimeProp(p, loc); err == nil {
			out.recurrenceID = &t
		}
	}
	return out, nil
}

func parseTimeProp(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	return parseTimeValue(strings.TrimSpace(p.Value), p.ICalParameters, loc)
}

// parseTimeValue reads DATE and DATE-TIME values. It reports true for DATE.
// Floating times and dates are placed in loc.
func parseTimeValue(v string, params map[string][]string, loc *time.Location) (time.Time, bool, error) {
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}
	if vs := params[string(ical.ParameterValue)]; (len(vs) > 0 && strings.EqualFold(vs[0], "DATE")) || !strings.Contains(v, "T") {
		t, err := time.ParseInLocation(layoutDate, v, loc)
		return t, true, err
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutUTC, v)
		return t, false, err
	}
	in := loc
	if tz := params[string(ical.ParameterTzid)]; len(tz) > 0 {
		if l, err := time.LoadLocation(tz[0]); err == nil {
			in = l
		}
	}
	t, err := time.ParseInLocation(layoutLocal, v, in)
	return t, false, err
}

// parseType prefers X-CRM-TYPE, then the first CATEGORIES entry naming a type.
func parseType(ve *ical.VEvent) core.EventType {
	if t, err := core.ParseEventType(strings.ToLower(propValue(ve, propCRMType))); err == nil {
		return t
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			name := strings.ToLower(strings.TrimSpace(c))
			name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
			if t, err := core.ParseEventType(name); err == nil {
				return t
			}
		}
	}
	return core.TypeCustom
}

func parseStatus(ve *ical.VEvent) core.EventStatus {
	if s, err := core.ParseStatus(strings.ToLower(propValue(ve, propCRMStatus))); err == nil {
		return s
	}
	switch strings.ToUpper(propValue(ve, ical.ComponentPropertyStatus)) {
	case "CANCELLED":
		return core.StatusCancelled
	case "CONFIRMED":
		return core.StatusConfirmed
	}
	return core.StatusScheduled
}

// parsePriority falls back to the RFC 5545 PRIORITY scale (1 highest, 9 lowest).
func parsePriority(ve *ical.VEvent) core.Priority {
	if p, err := core.ParsePriority(strings.ToLower(propValue(ve, propCRMPriority))); err == nil {
		return p
	}
	n, err := strconv.Atoi(propValue(ve, ical.ComponentPropertyPriority))
	switch {
	case err != nil || n == 0 || n == 5:
		return core.PriorityMedium
	case n <= 2:
		return core.PriorityUrgent
	case n <= 4:
		return core.PriorityHigh
	default:
		return core.PriorityLow
	}
}
