package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/theakshaypant/crmcal/internal/calendar"
	"github.com/theakshaypant/crmcal/internal/core"
	"github.com/theakshaypant/crmcal/internal/util"
)

const separator = "─────────────────────────────────────────────────"

// displayZone is the configured calendar zone; timed events are shown in it.
var displayZone = time.Local

func inZone(t time.Time) time.Time { return t.In(displayZone) }

// nameFunc resolves a customer ID to a display name, "" when unknown.
type nameFunc func(id string) string

// customerNames resolves every customer referenced by events, preferring the
// controller's cache and falling back to the store's directory.
func customerNames(ctx context.Context, ctl *calendar.Controller, events []core.Event) nameFunc {
	names := make(map[string]string)
	dir, _ := store.(core.CustomerDirectory)
	for _, e := range events {
		id := e.CustomerID
		if id == "" {
			continue
		}
		if _, done := names[id]; done {
			continue
		}
		name := ctl.CustomerName(id)
		if name == "" && dir != nil {
			name, _ = dir.ResolveDisplayName(ctx, id)
		}
		names[id] = name
	}
	return func(id string) string { return names[id] }
}

func rangeTitle(r calendar.ViewRange) string {
	switch r.Type {
	case calendar.ViewMonth:
		return r.Anchor.Format("January 2006")
	case calendar.ViewWeek:
		return fmt.Sprintf("Week of %s", r.Start.Format("Jan 2, 2006"))
	case calendar.ViewDay:
		return r.Start.Format("Monday, Jan 2, 2006")
	default:
		return fmt.Sprintf("Agenda from %s to %s", r.Start.Format("Jan 2"), r.End.Format("Jan 2, 2006"))
	}
}

// printRange writes the bucketed range as day headers, each followed by a table.
// Month and agenda views skip days without events.
func printRange(w io.Writer, snap calendar.Snapshot, names nameFunc, now time.Time) {
	title := color.New(color.Bold)
	day := color.New(color.Bold, color.Underline)
	faint := color.New(color.Faint)

	_, _ = title.Fprintf(w, "📅 %s\n", rangeTitle(snap.Range))
	fmt.Fprintln(w, separator)

	skipEmpty := snap.Range.Type == calendar.ViewMonth || snap.Range.Type == calendar.ViewAgenda
	shown := 0
	for _, d := range snap.Range.Days() {
		events := snap.Index.ForDate(d)
		if len(events) == 0 && skipEmpty {
			continue
		}
		shown++

		fmt.Fprintln(w)
		header := d.Format("Mon, Jan 2")
		if calendar.SameDay(d, now) {
			header += " (today)"
		}
		_, _ = day.Fprint(w, header)
		switch len(events) {
		case 0:
			_, _ = faint.Fprintln(w, " - none")
			continue
		case 1:
			_, _ = faint.Fprintln(w, " - 1 event")
		default:
			_, _ = faint.Fprintf(w, " - %d events\n", len(events))
		}
		fmt.Fprintln(w, eventTable(events, names, now, false))
	}

	if shown == 0 {
		fmt.Fprintln(w, "\nNo events found.")
	}
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "Total: %d events\n", snap.Index.Len())
}

// eventTable renders one row per event. withDay prefixes the time with the
// date, for tables that span several days.
func eventTable(events []core.Event, names nameFunc, now time.Time, withDay bool) *uitable.Table {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 48
	for _, e := range events {
		customer := ""
		if e.CustomerID != "" {
			customer = names(e.CustomerID)
			if customer == "" {
				customer = e.CustomerID
			}
		}
		marker := " "
		if e.InProgress(now) {
			marker = color.GreenString("●")
		}
		when := formatTimeRange(e)
		if withDay {
			day := e.Start
			if !e.AllDay {
				day = inZone(day)
			}
			when = day.Format("Mon Jan 2") + "  " + when
		}
		tbl.AddRow(marker, when, formatEventType(e.Type), statusColor(e.Status).Sprint(e.Title), customer, formatPriority(e.Priority))
	}
	return tbl
}

func formatTimeRange(e core.Event) string {
	if e.AllDay {
		return "all day"
	}
	start := inZone(e.Start)
	if e.End == nil {
		return start.Format("3:04 PM")
	}
	end := inZone(*e.End)
	if calendar.SameDay(start, end) {
		return start.Format("3:04 PM") + " - " + end.Format("3:04 PM")
	}
	return start.Format("3:04 PM") + " - " + end.Format("Jan 2 3:04 PM")
}

func formatEventTime(e core.Event) string {
	if e.AllDay {
		end := e.EndOrStart()
		// All-day ends are exclusive midnights.
		if e.End != nil && end.Sub(e.Start) > 24*time.Hour {
			return fmt.Sprintf("%s - %s (all day)", e.Start.Format("Mon, Jan 2"), end.AddDate(0, 0, -1).Format("Mon, Jan 2"))
		}
		return e.Start.Format("Mon, Jan 2") + " (all day)"
	}
	start := inZone(e.Start)
	if e.End == nil {
		return start.Format("Mon, Jan 2, 3:04 PM")
	}
	end := inZone(*e.End)
	if calendar.SameDay(start, end) {
		return fmt.Sprintf("%s, %s - %s", start.Format("Mon, Jan 2"), start.Format("3:04 PM"), end.Format("3:04 PM"))
	}
	return fmt.Sprintf("%s - %s", start.Format("Mon, Jan 2 3:04 PM"), end.Format("Mon, Jan 2 3:04 PM"))
}

func formatEventType(t core.EventType) string {
	switch t {
	case core.TypeJob:
		return "🔧 Job"
	case core.TypeAssessment:
		return "📋 Assessment"
	case core.TypeMeeting:
		return "🤝 Meeting"
	case core.TypeReminder:
		return "⏰ Reminder"
	case core.TypeFollowUp:
		return "📞 Follow-up"
	case core.TypeQuoteExpiry:
		return "💰 Quote expiry"
	default:
		return "📌 Other"
	}
}

func formatStatus(s core.EventStatus) string {
	switch s {
	case core.StatusScheduled:
		return "Scheduled"
	case core.StatusConfirmed:
		return "Confirmed ✓"
	case core.StatusInProgress:
		return "In progress"
	case core.StatusCompleted:
		return "Completed ✓"
	case core.StatusCancelled:
		return "Cancelled ✗"
	case core.StatusRescheduled:
		return "Rescheduled ↻"
	default:
		return "Unknown"
	}
}

func statusColor(s core.EventStatus) *color.Color {
	switch s {
	case core.StatusCancelled:
		return color.New(color.Faint, color.CrossedOut)
	case core.StatusCompleted:
		return color.New(color.Faint)
	case core.StatusInProgress:
		return color.New(color.FgGreen)
	default:
		return color.New()
	}
}

func formatPriority(p core.Priority) string {
	switch p {
	case core.PriorityUrgent:
		return color.New(color.FgRed, color.Bold).Sprint("!!! urgent")
	case core.PriorityHigh:
		return color.YellowString("!! high")
	case core.PriorityLow:
		return color.New(color.Faint).Sprint("low")
	default:
		return ""
	}
}

func formatReminders(offsets []int) string {
	parts := make([]string, len(offsets))
	for i, m := range offsets {
		parts[i] = util.FormatDuration(time.Duration(m)*time.Minute) + " before"
	}
	return strings.Join(parts, ", ")
}

// printEventDetail prints every field of e, one per line.
func printEventDetail(w io.Writer, e core.Event, names nameFunc, indent string) {
	fmt.Fprintf(w, "%s%s  %s\n", indent, formatEventType(e.Type), color.New(color.Bold).Sprint(e.Title))
	fmt.Fprintf(w, "%s🕐 When:        %s\n", indent, formatEventTime(e))
	if d := e.Duration(); d > 0 && !e.AllDay {
		fmt.Fprintf(w, "%s⏱️  Duration:    %s\n", indent, util.FormatDuration(d))
	}
	fmt.Fprintf(w, "%s📊 Status:      %s\n", indent, formatStatus(e.Status))
	if p := formatPriority(e.Priority); p != "" {
		fmt.Fprintf(w, "%s🚩 Priority:    %s\n", indent, p)
	}
	if e.CustomerID != "" {
		name := names(e.CustomerID)
		if name == "" {
			name = e.CustomerID
		}
		fmt.Fprintf(w, "%s👤 Customer:    %s\n", indent, name)
	}
	if e.Location != "" {
		fmt.Fprintf(w, "%s📍 Location:    %s\n", indent, e.Location)
	}
	if len(e.ReminderOffsets) > 0 {
		fmt.Fprintf(w, "%s🔔 Reminders:   %s\n", indent, formatReminders(e.ReminderOffsets))
	}
	if e.IsPrivate {
		fmt.Fprintf(w, "%s🔒 Private\n", indent)
	}
	if e.Description != "" {
		fmt.Fprintf(w, "%s📝 Notes:\n", indent)
		for _, line := range util.WrapText(e.Description, 60) {
			fmt.Fprintf(w, "%s   %s\n", indent, line)
		}
	}
	fmt.Fprintf(w, "%s🆔 ID:          %s\n", indent, e.ID)
	if e.ProviderID != "" {
		fmt.Fprintf(w, "%s🗂️  Store:       %s\n", indent, e.ProviderID)
	}
}
