package outlook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/theakshaypant/crmcal/internal/core"
	"github.com/theakshaypant/crmcal/internal/util"

	"golang.org/x/oauth2"
)

// CRM fields ride along as categories of the form "crm:key=value".
const categoryPrefix = "crm:"

const graphTimeLayout = "2006-01-02T15:04:05"

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

// tokenFromFile reads an OAuth token from a JSON file.
func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// mapError turns Graph 404 responses into core.ErrNotFound.
func mapError(err error) error {
	var apiErr interface{ GetStatusCode() int }
	if errors.As(err, &apiErr) && apiErr.GetStatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %v", core.ErrNotFound, err)
	}
	return err
}

// crmCategories splits categories into CRM fields and the user's own categories.
func crmCategories(cats []string) (map[string]string, []string) {
	fields := make(map[string]string)
	var rest []string
	for _, c := range cats {
		kv, ok := strings.CutPrefix(c, categoryPrefix)
		if !ok {
			rest = append(rest, c)
			continue
		}
		if k, v, ok := strings.Cut(kv, "="); ok {
			fields[k] = v
		}
	}
	return fields, rest
}

// parseGraphEvent converts a Graph SDK event into our unified core.Event.
// It reports false for events without a usable start.
func parseGraphEvent(providerID string, item models.Eventable) (core.Event, bool) {
	if item == nil {
		return core.Event{}, false
	}
	allDay := derefBool(item.GetIsAllDay())
	start := parseSDKDateTime(item.GetStart(), allDay)
	if start.IsZero() {
		return core.Event{}, false
	}
	end := parseSDKDateTime(item.GetEnd(), allDay)

	fields, _ := crmCategories(item.GetCategories())

	// Description: body.content may be HTML or text
	description := ""
	if body := item.GetBody(); body != nil {
		description = derefStr(body.GetContent())
		if ct := body.GetContentType(); ct != nil && *ct == models.HTML_BODYTYPE {
			description = util.HTMLToText(description)
		}
	}

	location := ""
	if loc := item.GetLocation(); loc != nil {
		location = derefStr(loc.GetDisplayName())
	}

	ev := core.Event{
		ID:          derefStr(item.GetId()),
		ProviderID:  providerID,
		Title:       derefStr(item.GetSubject()),
		Description: description,
		Location:    location,
		Start:       start,
		AllDay:      allDay,
		Type:        core.TypeCustom,
		Status:      core.StatusScheduled,
		Priority:    parseImportance(item.GetImportance()),
		Color:       fields["color"],
		CustomerID:  fields["customer"],
	}
	if end.After(start) {
		ev.End = &end
	}
	if t, err := core.ParseEventType(fields["type"]); err == nil {
		ev.Type = t
	}
	if s, err := core.ParseStatus(fields["status"]); err == nil {
		ev.Status = s
	}
	if derefBool(item.GetIsCancelled()) {
		ev.Status = core.StatusCancelled
	}
	if p, err := core.ParsePriority(fields["priority"]); err == nil {
		ev.Priority = p
	}
	if s := item.GetSensitivity(); s != nil {
		ev.IsPrivate = *s == models.PRIVATE_SENSITIVITY || *s == models.CONFIDENTIAL_SENSITIVITY
	}

	if raw, ok := fields["reminders"]; ok {
		for _, part := range strings.Split(raw, ",") {
			if n, err := strconv.Atoi(part); err == nil && n >= 0 {
				ev.ReminderOffsets = append(ev.ReminderOffsets, n)
			}
		}
	} else if derefBool(item.GetIsReminderOn()) {
		if m := item.GetReminderMinutesBeforeStart(); m != nil {
			ev.ReminderOffsets = []int{int(*m)}
		}
	}

	if t := item.GetCreatedDateTime(); t != nil {
		ev.CreatedAt = *t
	}
	if t := item.GetLastModifiedDateTime(); t != nil {
		ev.UpdatedAt = *t
	}
	return ev, true
}

func parseImportance(imp *models.Importance) core.Priority {
	if imp == nil {
		return core.PriorityMedium
	}
	switch *imp {
	case models.HIGH_IMPORTANCE:
		return core.PriorityHigh
	case models.LOW_IMPORTANCE:
		return core.PriorityLow
	default:
		return core.PriorityMedium
	}
}

// writeGraphEvent fills body from e. existing holds the current categories so
// the user's own ones survive an update.
func writeGraphEvent(body models.Eventable, e core.Event, existing []string) {
	title := e.Title
	body.SetSubject(&title)

	content := e.Description
	contentType := models.TEXT_BODYTYPE
	itemBody := models.NewItemBody()
	itemBody.SetContent(&content)
	itemBody.SetContentType(&contentType)
	body.SetBody(itemBody)

	location := e.Location
	loc := models.NewLocation()
	loc.SetDisplayName(&location)
	body.SetLocation(loc)

	allDay := e.AllDay
	body.SetIsAllDay(&allDay)
	end := e.EndOrStart()
	if allDay && !end.After(e.Start) {
		end = e.Start.AddDate(0, 0, 1)
	}
	body.SetStart(graphDateTime(e.Start, allDay))
	body.SetEnd(graphDateTime(end, allDay))

	sensitivity := models.NORMAL_SENSITIVITY
	if e.IsPrivate {
		sensitivity = models.PRIVATE_SENSITIVITY
	}
	body.SetSensitivity(&sensitivity)

	importance := models.NORMAL_IMPORTANCE
	switch e.Priority {
	case core.PriorityHigh, core.PriorityUrgent:
		importance = models.HIGH_IMPORTANCE
	case core.PriorityLow:
		importance = models.LOW_IMPORTANCE
	}
	body.SetImportance(&importance)

	_, cats := crmCategories(existing)
	cats = append(cats,
		categoryPrefix+"type="+string(e.Type),
		categoryPrefix+"status="+string(e.Status),
		categoryPrefix+"priority="+string(e.Priority),
	)
	if e.CustomerID != "" {
		cats = append(cats, categoryPrefix+"customer="+e.CustomerID)
	}
	if e.Color != "" {
		cats = append(cats, categoryPrefix+"color="+e.Color)
	}

	reminderOn := len(e.ReminderOffsets) > 0
	body.SetIsReminderOn(&reminderOn)
	if reminderOn {
		parts := make([]string, len(e.ReminderOffsets))
		for i, m := range e.ReminderOffsets {
			parts[i] = strconv.Itoa(m)
		}
		cats = append(cats, categoryPrefix+"reminders="+strings.Join(parts, ","))
		first := int32(e.ReminderOffsets[0])
		body.SetReminderMinutesBeforeStart(&first)
	}
	body.SetCategories(cats)
}

func graphDateTime(t time.Time, allDay bool) models.DateTimeTimeZoneable {
	var s string
	zone := "UTC"
	if allDay {
		// All-day events are sent as bare calendar-day midnights.
		s = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(graphTimeLayout)
	} else {
		s = t.UTC().Format(graphTimeLayout)
	}
	dt := models.NewDateTimeTimeZone()
	dt.SetDateTime(&s)
	dt.SetTimeZone(&zone)
	return dt
}

// parseSDKDateTime converts a Graph SDK DateTimeTimeZone to time.Time.
// Times are in UTC because we set the Prefer: outlook.timezone="UTC" header;
// all-day dates are read as local calendar days.
func parseSDKDateTime(dt models.DateTimeTimeZoneable, allDay bool) time.Time {
	if dt == nil {
		return time.Time{}
	}
	dateTimeStr := dt.GetDateTime()
	if dateTimeStr == nil {
		return time.Time{}
	}
	layouts := []string{
		"2006-01-02T15:04:05.0000000",
		graphTimeLayout,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, *dateTimeStr); err == nil {
			if allDay {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
			}
			return t.UTC()
		}
	}
	return time.Time{}
}
