package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/theakshaypant/crmcal/internal/core"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Scope is the OAuth scope the store needs for read-write access.
const Scope = calendar.CalendarEventsScope

// GoogleAdapter is an event store backed by one Google calendar.
// CRM fields live in the event's private extended properties.
type GoogleAdapter struct {
	id         string
	name       string
	calendarID string
	client     *http.Client
	service    *calendar.Service
	credsFile  string
	tokenFile  string
}

func NewGoogleAdapter(id, name, credsFile, tokenFile, calendarID string) *GoogleAdapter {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleAdapter{
		id:         id,
		name:       name,
		calendarID: calendarID,
		credsFile:  credsFile,
		tokenFile:  tokenFile,
	}
}

// NewWithService wraps an already configured Calendar service.
func NewWithService(id, name, calendarID string, svc *calendar.Service) *GoogleAdapter {
	g := NewGoogleAdapter(id, name, "", "", calendarID)
	g.service = svc
	return g
}

func (g *GoogleAdapter) ID() string   { return g.id }
func (g *GoogleAdapter) Name() string { return g.name }

// Login loads credentials and token, then initializes the Calendar service.
// Run `crmcal auth` first to generate the token file.
func (g *GoogleAdapter) Login(ctx context.Context) error {
	b, err := os.ReadFile(g.credsFile)
	if err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, Scope)
	if err != nil {
		return fmt.Errorf("parse credentials: %w", err)
	}

	tok, err := tokenFromFile(g.tokenFile)
	if err != nil {
		return fmt.Errorf("read token file (run crmcal auth first): %w", err)
	}

	g.client = config.Client(ctx, tok)
	g.service, err = calendar.NewService(ctx, option.WithHTTPClient(g.client))
	if err != nil {
		return err
	}
	return nil
}

// Calendars returns the calendars the account can see (ID -> Name).
func (g *GoogleAdapter) Calendars(ctx context.Context) (map[string]string, error) {
	calList, err := g.service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	out := make(map[string]string, len(calList.Items))
	for _, cal := range calList.Items {
		out[cal.Id] = cal.Summary
	}
	return out, nil
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

func (g *GoogleAdapter) FetchEvents(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
	var results []core.Event
	pageToken := ""

	for {
		req := g.service.Events.List(g.calendarID).
			ShowDeleted(false).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		if !opts.Start.IsZero() {
			req = req.TimeMin(opts.Start.Format(timeLayout))
		}
		if !opts.End.IsZero() {
			req = req.TimeMax(opts.End.Format(timeLayout))
		}
		if opts.CustomerID != "" {
			req = req.PrivateExtendedProperty(propCustomer + "=" + opts.CustomerID)
		}
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		eventsResult, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("list events in %s: %w", g.calendarID, mapError(err))
		}

		for _, item := range eventsResult.Items {
			event, ok := parseEvent(item, g.id)
			if !ok || !opts.Matches(event) {
				continue
			}
			results = append(results, event)
		}

		pageToken = eventsResult.NextPageToken
		if pageToken == "" {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Start.Before(results[j].Start) })
	return results, nil
}

func (g *GoogleAdapter) CreateEvent(ctx context.Context, in core.EventInput) (core.Event, error) {
	item := &calendar.Event{}
	writeEvent(item, in.ToEvent(""))

	created, err := g.service.Events.Insert(g.calendarID, item).Context(ctx).Do()
	if err != nil {
		return core.Event{}, fmt.Errorf("insert event: %w", mapError(err))
	}
	ev, ok := parseEvent(created, g.id)
	if !ok {
		return core.Event{}, fmt.Errorf("%w: unreadable event returned by insert", core.ErrInconsistent)
	}
	return ev, nil
}

// UpdateEvent reads the current event, applies the patch and writes the whole event back.
func (g *GoogleAdapter) UpdateEvent(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
	item, err := g.service.Events.Get(g.calendarID, id).Context(ctx).Do()
	if err != nil {
		return core.Event{}, fmt.Errorf("get event %s: %w", id, mapError(err))
	}
	current, ok := parseEvent(item, g.id)
	if !ok {
		return core.Event{}, fmt.Errorf("%w: event %s has no start", core.ErrInconsistent, id)
	}
	next, err := patch.Apply(current)
	if err != nil {
		return core.Event{}, err
	}
	writeEvent(item, next)

	updated, err := g.service.Events.Update(g.calendarID, id, item).Context(ctx).Do()
	if err != nil {
		return core.Event{}, fmt.Errorf("update event %s: %w", id, mapError(err))
	}
	ev, ok := parseEvent(updated, g.id)
	if !ok {
		return core.Event{}, fmt.Errorf("%w: unreadable event returned by update", core.ErrInconsistent)
	}
	return ev, nil
}

func (g *GoogleAdapter) DeleteEvent(ctx context.Context, id string) error {
	if err := g.service.Events.Delete(g.calendarID, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", id, mapError(err))
	}
	return nil
}

// mapError turns missing-resource API errors into core.ErrNotFound.
func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%w: %s", core.ErrNotFound, gerr.Message)
		}
	}
	return err
}
