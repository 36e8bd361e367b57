package ics

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/theakshaypant/crmcal/internal/core"
)

const productID = "-//crmcal//calendar export//EN"

// Export writes events as an iCalendar document. CRM fields are carried in
// X-CRM-* properties so Store can read the file back without loss.
func Export(w io.Writer, events []core.Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	for _, e := range events {
		uid := e.ID
		if e.ProviderID != "" {
			uid = e.ProviderID + ":" + e.ID
		}
		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(now.UTC())
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}

		if e.AllDay {
			ve.SetAllDayStartAt(e.Start)
			end := e.EndOrStart()
			if !end.After(e.Start) {
				end = e.Start.AddDate(0, 0, 1)
			}
			ve.SetAllDayEndAt(end)
		} else {
			ve.SetStartAt(e.Start.UTC())
			if e.End != nil {
				ve.SetEndAt(e.End.UTC())
			}
		}

		switch e.Status {
		case core.StatusCancelled:
			ve.SetStatus(ical.ObjectStatusCancelled)
		case core.StatusScheduled:
			ve.SetStatus(ical.ObjectStatusTentative)
		default:
			ve.SetStatus(ical.ObjectStatusConfirmed)
		}
		if e.IsPrivate {
			ve.SetClass(ical.ClassificationPrivate)
		}

		ve.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(e.Type)))
		ve.SetProperty(propCRMType, string(e.Type))
		ve.SetProperty(propCRMStatus, string(e.Status))
		ve.SetProperty(propCRMPriority, string(e.Priority))
		ve.SetProperty(propCRMColor, e.DisplayColor())
		if e.CustomerID != "" {
			ve.SetProperty(propCRMCustomer, e.CustomerID)
		}

		if len(e.ReminderOffsets) > 0 {
			parts := make([]string, len(e.ReminderOffsets))
			for i, m := range e.ReminderOffsets {
				parts[i] = strconv.Itoa(m)
				alarm := ve.AddAlarm()
				alarm.SetAction(ical.ActionDisplay)
				alarm.SetTrigger(fmt.Sprintf("-PT%dM", m))
			}
			ve.SetProperty(propCRMReminders, strings.Join(parts, ","))
		}
		if !e.CreatedAt.IsZero() {
			ve.SetCreatedTime(e.CreatedAt.UTC())
		}
		if !e.UpdatedAt.IsZero() {
			ve.SetModifiedAt(e.UpdatedAt.UTC())
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}
