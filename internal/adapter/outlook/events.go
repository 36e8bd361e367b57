package outlook

import (
	"context"
	"fmt"
	"sort"
	"time"

	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/theakshaypant/crmcal/internal/core"
)

var selectFields = []string{
	"id", "subject", "body", "start", "end", "location", "isAllDay",
	"isCancelled", "categories", "sensitivity", "importance",
	"isReminderOn", "reminderMinutesBeforeStart", "createdDateTime", "lastModifiedDateTime",
}

func utcHeaders() *abstractions.RequestHeaders {
	headers := abstractions.NewRequestHeaders()
	headers.Add("Prefer", `outlook.timezone="UTC"`)
	return headers
}

// FetchEvents retrieves the calendar view for the window in opts.
func (o *OutlookAdapter) FetchEvents(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
	startStr := opts.Start.UTC().Format(time.RFC3339)
	endStr := opts.End.UTC().Format(time.RFC3339)
	orderBy := []string{"start/dateTime"}
	top := int32(100)

	var result models.EventCollectionResponseable
	var err error

	if o.calendarID == "" {
		config := &users.ItemCalendarViewRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.ItemCalendarViewRequestBuilderGetQueryParameters{
				StartDateTime: &startStr,
				EndDateTime:   &endStr,
				Select:        selectFields,
				Orderby:       orderBy,
				Top:           &top,
			},
			Headers: utcHeaders(),
		}
		result, err = o.client.Me().CalendarView().Get(ctx, config)
	} else {
		config := &users.ItemCalendarsItemCalendarViewRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.ItemCalendarsItemCalendarViewRequestBuilderGetQueryParameters{
				StartDateTime: &startStr,
				EndDateTime:   &endStr,
				Select:        selectFields,
				Orderby:       orderBy,
				Top:           &top,
			},
			Headers: utcHeaders(),
		}
		result, err = o.client.Me().Calendars().ByCalendarId(o.calendarID).CalendarView().Get(ctx, config)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch calendar view: %w", mapError(err))
	}

	// Use PageIterator for automatic pagination
	pageIterator, err := msgraphcore.NewPageIterator[models.Eventable](
		result,
		o.client.GetAdapter(),
		models.CreateEventCollectionResponseFromDiscriminatorValue,
	)
	if err != nil {
		return nil, fmt.Errorf("create page iterator: %w", err)
	}

	var results []core.Event
	err = pageIterator.Iterate(ctx, func(item models.Eventable) bool {
		event, ok := parseGraphEvent(o.ID(), item)
		if ok && opts.Matches(event) {
			results = append(results, event)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("iterate events: %w", mapError(err))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Start.Before(results[j].Start) })
	return results, nil
}

func (o *OutlookAdapter) CreateEvent(ctx context.Context, in core.EventInput) (core.Event, error) {
	body := models.NewEvent()
	writeGraphEvent(body, in.ToEvent(""), nil)

	var created models.Eventable
	var err error
	if o.calendarID == "" {
		created, err = o.client.Me().Events().Post(ctx, body, nil)
	} else {
		created, err = o.client.Me().Calendars().ByCalendarId(o.calendarID).Events().Post(ctx, body, nil)
	}
	if err != nil {
		return core.Event{}, fmt.Errorf("create event: %w", mapError(err))
	}
	ev, ok := parseGraphEvent(o.ID(), created)
	if !ok {
		return core.Event{}, fmt.Errorf("%w: unreadable event returned by create", core.ErrInconsistent)
	}
	return ev, nil
}

// UpdateEvent reads the event, applies the patch locally and sends the changed fields.
func (o *OutlookAdapter) UpdateEvent(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
	current, err := o.client.Me().Events().ByEventId(id).Get(ctx, nil)
	if err != nil {
		return core.Event{}, fmt.Errorf("get event %s: %w", id, mapError(err))
	}
	ev, ok := parseGraphEvent(o.ID(), current)
	if !ok {
		return core.Event{}, fmt.Errorf("%w: event %s has no start", core.ErrInconsistent, id)
	}
	next, err := patch.Apply(ev)
	if err != nil {
		return core.Event{}, err
	}

	body := models.NewEvent()
	writeGraphEvent(body, next, current.GetCategories())
	updated, err := o.client.Me().Events().ByEventId(id).Patch(ctx, body, nil)
	if err != nil {
		return core.Event{}, fmt.Errorf("update event %s: %w", id, mapError(err))
	}
	out, ok := parseGraphEvent(o.ID(), updated)
	if !ok {
		return next, nil
	}
	return out, nil
}

func (o *OutlookAdapter) DeleteEvent(ctx context.Context, id string) error {
	if err := o.client.Me().Events().ByEventId(id).Delete(ctx, nil); err != nil {
		return fmt.Errorf("delete event %s: %w", id, mapError(err))
	}
	return nil
}
