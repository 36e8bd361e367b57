package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/theakshaypant/crmcal/internal/core"
)

func TestParseEvent_CRMFields(t *testing.T) {
	item := &calendar.Event{
		Id:         "g1",
		Summary:    "Roof inspection",
		Location:   "12 Elm St",
		Start:      &calendar.EventDateTime{DateTime: "2024-03-10T09:00:00Z"},
		End:        &calendar.EventDateTime{DateTime: "2024-03-10T10:30:00Z"},
		Visibility: "private",
		Status:     "confirmed",
		ExtendedProperties: &calendar.EventExtendedProperties{Private: map[string]string{
			propType:      "assessment",
			propPriority:  "urgent",
			propCustomer:  "c42",
			propReminders: "60, 15",
		}},
	}

	ev, ok := parseEvent(item, "office")
	require.True(t, ok)
	assert.Equal(t, "g1", ev.ID)
	assert.Equal(t, "office", ev.ProviderID)
	assert.Equal(t, core.TypeAssessment, ev.Type)
	assert.Equal(t, core.StatusConfirmed, ev.Status)
	assert.Equal(t, core.PriorityUrgent, ev.Priority)
	assert.Equal(t, "c42", ev.CustomerID)
	assert.True(t, ev.IsPrivate)
	assert.Equal(t, []int{60, 15}, ev.ReminderOffsets)
	assert.Equal(t, 90*time.Minute, ev.Duration())
	assert.False(t, ev.AllDay)
}

func TestParseEvent_Defaults(t *testing.T) {
	t.Run("plain google event", func(t *testing.T) {
		ev, ok := parseEvent(&calendar.Event{
			Id:        "g2",
			Start:     &calendar.EventDateTime{DateTime: "2024-03-10T09:00:00Z"},
			End:       &calendar.EventDateTime{DateTime: "2024-03-10T09:00:00Z"},
			Reminders: &calendar.EventReminders{Overrides: []*calendar.EventReminder{{Minutes: 10}}},
		}, "office")
		require.True(t, ok)
		assert.Equal(t, core.TypeCustom, ev.Type)
		assert.Equal(t, core.StatusScheduled, ev.Status)
		assert.Equal(t, core.PriorityMedium, ev.Priority)
		assert.Nil(t, ev.End, "zero-length events have no end")
		assert.Equal(t, []int{10}, ev.ReminderOffsets)
	})

	t.Run("all day", func(t *testing.T) {
		ev, ok := parseEvent(&calendar.Event{
			Start: &calendar.EventDateTime{Date: "2024-03-10"},
			End:   &calendar.EventDateTime{Date: "2024-03-12"},
		}, "office")
		require.True(t, ok)
		assert.True(t, ev.AllDay)
		assert.Equal(t, 10, ev.Start.Day())
		require.NotNil(t, ev.End)
		assert.Equal(t, 12, ev.End.Day())
	})

	t.Run("no start", func(t *testing.T) {
		_, ok := parseEvent(&calendar.Event{Id: "x"}, "office")
		assert.False(t, ok)
	})
}

func TestWriteEvent_RoundTrip(t *testing.T) {
	start := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	in := core.Event{
		Title:           "Kitchen refit",
		Start:           start,
		End:             &end,
		Type:            core.TypeJob,
		Status:          core.StatusCancelled,
		Priority:        core.PriorityHigh,
		CustomerID:      "c7",
		Color:           "#112233",
		ReminderOffsets: []int{30},
	}

	item := &calendar.Event{Id: "g3"}
	writeEvent(item, in)
	assert.Equal(t, "confirmed", item.Status)
	assert.Equal(t, int64(30), item.Reminders.Overrides[0].Minutes)

	out, ok := parseEvent(item, "office")
	require.True(t, ok)
	assert.Equal(t, core.StatusCancelled, out.Status)
	assert.Equal(t, core.TypeJob, out.Type)
	assert.Equal(t, "c7", out.CustomerID)
	assert.Equal(t, "#112233", out.Color)
	assert.True(t, out.Start.Equal(start))
	assert.True(t, out.End.Equal(end))

	in.CustomerID = ""
	in.ReminderOffsets = nil
	writeEvent(item, in)
	assert.NotContains(t, item.ExtendedProperties.Private, propCustomer)
	assert.True(t, item.Reminders.UseDefault)
}

func newTestAdapter(t *testing.T, mux *http.ServeMux) *GoogleAdapter {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewWithService("office", "Office", "", svc)
}

func customerProps(id string) *calendar.EventExtendedProperties {
	return &calendar.EventExtendedProperties{Private: map[string]string{propCustomer: id}}
}

func TestGoogleAdapter_FetchAndCreate(t *testing.T) {
	var gotQuery map[string][]string
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			gotQuery = r.URL.Query()
			_ = json.NewEncoder(w).Encode(&calendar.Events{Items: []*calendar.Event{
				{
					Id:                 "late",
					Start:              &calendar.EventDateTime{DateTime: "2024-03-10T15:00:00Z"},
					End:                &calendar.EventDateTime{DateTime: "2024-03-10T16:00:00Z"},
					ExtendedProperties: customerProps("c1"),
				},
				{
					Id:                 "hidden",
					Visibility:         "private",
					Start:              &calendar.EventDateTime{DateTime: "2024-03-10T11:00:00Z"},
					ExtendedProperties: customerProps("c1"),
				},
				{
					// The server ignored the filter; the client drops it.
					Id:    "walk-in",
					Start: &calendar.EventDateTime{DateTime: "2024-03-10T12:00:00Z"},
				},
				{
					Id:                 "early",
					Start:              &calendar.EventDateTime{DateTime: "2024-03-10T08:00:00Z"},
					ExtendedProperties: customerProps("c1"),
				},
			}})
		case http.MethodPost:
			var ev calendar.Event
			if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ev.Id = "created-1"
			_ = json.NewEncoder(w).Encode(&ev)
		}
	})
	a := newTestAdapter(t, mux)
	ctx := context.Background()

	start := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	events, err := a.FetchEvents(ctx, core.FetchOptions{Start: start, End: start.AddDate(0, 0, 1), CustomerID: "c1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "early", events[0].ID)
	assert.Equal(t, "late", events[1].ID)
	assert.Equal(t, []string{"2024-03-10T00:00:00Z"}, gotQuery["timeMin"])
	assert.Equal(t, []string{propCustomer + "=c1"}, gotQuery["privateExtendedProperty"])

	ev, err := a.CreateEvent(ctx, core.EventInput{
		Title:      "Quote visit",
		Start:      start.Add(9 * time.Hour),
		Type:       core.TypeAssessment,
		CustomerID: "c1",
		IsPrivate:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "created-1", ev.ID)
	assert.Equal(t, core.TypeAssessment, ev.Type)
	assert.Equal(t, "c1", ev.CustomerID)
	assert.True(t, ev.IsPrivate)
	assert.Nil(t, ev.End)
}

func TestGoogleAdapter_DeleteNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":{"code":410,"message":"Resource has been deleted"}}`))
	})
	a := newTestAdapter(t, mux)

	err := a.DeleteEvent(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestGoogleAdapter_UpdateEvent(t *testing.T) {
	existing := &calendar.Event{
		Id:      "ev-1",
		Summary: "Site visit",
		Start:   &calendar.EventDateTime{DateTime: "2024-03-10T09:00:00Z"},
		End:     &calendar.EventDateTime{DateTime: "2024-03-10T10:00:00Z"},
	}
	title := "Site visit (rescheduled)"

	tests := []struct {
		name    string
		respond func(ev *calendar.Event) *calendar.Event
		wantErr error
	}{
		{
			name:    "returns the written event",
			respond: func(ev *calendar.Event) *calendar.Event { return ev },
		},
		{
			name:    "unreadable response",
			respond: func(ev *calendar.Event) *calendar.Event { return &calendar.Event{Id: ev.Id} },
			wantErr: core.ErrInconsistent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/calendars/primary/events/ev-1", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				switch r.Method {
				case http.MethodGet:
					_ = json.NewEncoder(w).Encode(existing)
				case http.MethodPut:
					var ev calendar.Event
					if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
						http.Error(w, err.Error(), http.StatusBadRequest)
						return
					}
					ev.Id = "ev-1"
					_ = json.NewEncoder(w).Encode(tt.respond(&ev))
				}
			})
			a := newTestAdapter(t, mux)

			ev, err := a.UpdateEvent(context.Background(), "ev-1", core.EventPatch{Title: &title})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Empty(t, ev.ID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ev-1", ev.ID)
			assert.Equal(t, title, ev.Title)
		})
	}
}
