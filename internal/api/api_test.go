package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/crmcal/internal/calendar"
	"github.com/theakshaypant/crmcal/internal/config"
	"github.com/theakshaypant/crmcal/internal/core"
	"github.com/theakshaypant/crmcal/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Mock EventStore and CustomerDirectory
type mockStore struct {
	mu     sync.Mutex
	events []core.Event

	fetchErr  error
	createErr error
	names     map[string]string
}

func (m *mockStore) ID() string   { return "mock" }
func (m *mockStore) Name() string { return "Mock Store" }

func (m *mockStore) FetchEvents(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Event
	for _, e := range m.events {
		if opts.Overlaps(e) && opts.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) CreateEvent(ctx context.Context, in core.EventInput) (core.Event, error) {
	if m.createErr != nil {
		return core.Event{}, m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := in.ToEvent(fmt.Sprintf("new-%d", len(m.events)+1))
	ev.ProviderID = "mock"
	m.events = append(m.events, ev)
	return ev, nil
}

func (m *mockStore) UpdateEvent(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.events {
		if e.ID == id {
			next, err := patch.Apply(e)
			if err != nil {
				return core.Event{}, err
			}
			m.events[i] = next
			return next, nil
		}
	}
	return core.Event{}, core.ErrNotFound
}

func (m *mockStore) DeleteEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.events {
		if e.ID == id {
			m.events = append(m.events[:i], m.events[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (m *mockStore) ResolveDisplayName(ctx context.Context, id string) (string, error) {
	if n, ok := m.names[id]; ok {
		return n, nil
	}
	return "", core.ErrNotFound
}

var testNow = time.Date(2024, time.March, 11, 12, 0, 0, 0, time.UTC)

func at(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 0, 0, 0, time.UTC)
}

func seedStore() *mockStore {
	end := at(11, 10)
	return &mockStore{
		names: map[string]string{"c1": "Acme Roofing"},
		events: []core.Event{
			{ID: "kickoff", Title: "Kickoff", Start: at(11, 9), End: &end, Type: core.TypeMeeting, Status: core.StatusScheduled, Priority: core.PriorityMedium, CustomerID: "c1"},
			{ID: "secret", Title: "Private job", Start: at(12, 10), Type: core.TypeJob, Status: core.StatusScheduled, Priority: core.PriorityHigh, IsPrivate: true},
			{ID: "later", Title: "Gutter job", Start: at(20, 8), Type: core.TypeJob, Status: core.StatusConfirmed, Priority: core.PriorityLow},
		},
	}
}

func newTestServer(store core.EventStore, auth config.AuthConfig, metrics *Metrics) *gin.Engine {
	srv := New(store, Options{
		Calendar: calendar.Options{
			Calculator: calendar.Calculator{WeekStart: time.Sunday, Location: time.UTC},
			View:       calendar.ViewMonth,
			Now:        func() time.Time { return testNow },
		},
		Auth:    auth,
		Logger:  logging.Discard(),
		Metrics: metrics,
	})
	return srv.Router()
}

func do(t *testing.T, r http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestServer(seedStore(), config.AuthConfig{}, nil)
	w := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestGetCalendar(t *testing.T) {
	r := newTestServer(seedStore(), config.AuthConfig{}, nil)

	t.Run("week view", func(t *testing.T) {
		w := do(t, r, http.MethodGet, "/api/v1/calendar?view=week&date=2024-03-13", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp calendarResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, calendar.ViewWeek, resp.Range.Type)
		assert.True(t, resp.Range.Start.Equal(time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)))
		require.Len(t, resp.Days, 7)
		assert.Equal(t, "2024-03-10", resp.Days[0].Date)
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.Days[1].Events, 1)
		assert.Equal(t, "kickoff", resp.Days[1].Events[0].ID)
		assert.Empty(t, resp.Days[2].Events, "private events are hidden by default")
		assert.Equal(t, "Acme Roofing", resp.Customers["c1"])
	})

	t.Run("private shown on request", func(t *testing.T) {
		w := do(t, r, http.MethodGet, "/api/v1/calendar?view=week&date=2024-03-13&private=true", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp calendarResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
	})

	t.Run("type filter over month", func(t *testing.T) {
		w := do(t, r, http.MethodGet, "/api/v1/calendar?date=2024-03-01&types=job", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp calendarResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, calendar.ViewMonth, resp.Range.Type)
		assert.Equal(t, 1, resp.Count)
	})

	t.Run("search matches customer name", func(t *testing.T) {
		w := do(t, r, http.MethodGet, "/api/v1/calendar?view=agenda&date=2024-03-01&q=acme", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp calendarResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.Days, 1, "agenda omits empty days")
		assert.Equal(t, "2024-03-11", resp.Days[0].Date)
	})

	t.Run("bad input", func(t *testing.T) {
		for _, path := range []string{
			"/api/v1/calendar?view=year",
			"/api/v1/calendar?date=13/03/2024",
			"/api/v1/calendar?types=party",
			"/api/v1/calendar?private=maybe",
		} {
			w := do(t, r, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, path)
		}
	})
}

func TestGetDay(t *testing.T) {
	r := newTestServer(seedStore(), config.AuthConfig{}, nil)
	w := do(t, r, http.MethodGet, "/api/v1/calendar/day/2024-03-11", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp calendarResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, calendar.ViewDay, resp.Range.Type)
	require.Len(t, resp.Days, 1)
	require.Len(t, resp.Days[0].Events, 1)
	assert.Equal(t, "Kickoff", resp.Days[0].Events[0].Title)
}

func TestGetUpcoming(t *testing.T) {
	r := newTestServer(seedStore(), config.AuthConfig{}, nil)

	var resp struct {
		Events []core.Event `json:"events"`
		Count  int          `json:"count"`
	}
	w := do(t, r, http.MethodGet, "/api/v1/calendar/upcoming", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "later", resp.Events[0].ID)

	w = do(t, r, http.MethodGet, "/api/v1/calendar/upcoming?private=true&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "secret", resp.Events[0].ID)

	w = do(t, r, http.MethodGet, "/api/v1/calendar/upcoming?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventMutations(t *testing.T) {
	store := seedStore()
	r := newTestServer(store, config.AuthConfig{}, nil)

	t.Run("create", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/api/v1/events", core.EventInput{Title: "Site visit", Start: at(14, 9), Type: core.TypeAssessment})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var ev core.Event
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
		assert.Equal(t, "new-4", ev.ID)
		assert.Equal(t, core.StatusScheduled, ev.Status)
		assert.Equal(t, core.PriorityMedium, ev.Priority)
	})

	t.Run("create rejects invalid input", func(t *testing.T) {
		end := at(14, 8)
		w := do(t, r, http.MethodPost, "/api/v1/events", core.EventInput{Title: "Backwards", Start: at(14, 9), End: &end})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, r, http.MethodPost, "/api/v1/events", core.EventInput{Start: at(14, 9)})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update", func(t *testing.T) {
		status := core.StatusCompleted
		w := do(t, r, http.MethodPatch, "/api/v1/events/kickoff", core.EventPatch{Status: &status})
		require.Equal(t, http.StatusOK, w.Code)
		var ev core.Event
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
		assert.Equal(t, core.StatusCompleted, ev.Status)
	})

	t.Run("update missing", func(t *testing.T) {
		title := "x"
		w := do(t, r, http.MethodPatch, "/api/v1/events/nope", core.EventPatch{Title: &title})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := do(t, r, http.MethodDelete, "/api/v1/events/later", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = do(t, r, http.MethodDelete, "/api/v1/events/later", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestErrorStatus(t *testing.T) {
	store := seedStore()
	store.createErr = core.ErrReadOnly
	store.fetchErr = errors.New("connection refused")
	r := newTestServer(store, config.AuthConfig{}, nil)

	w := do(t, r, http.MethodPost, "/api/v1/events", core.EventInput{Title: "Feed item", Start: at(14, 9)})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/calendar", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "s3cret"
	r := newTestServer(seedStore(), config.AuthConfig{Tokens: []string{"static-token"}, JWTSecret: secret}, nil)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "dispatcher",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("other"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		errMsg string
	}{
		{"missing", "", http.StatusUnauthorized, "missing authorization"},
		{"bad format", "Token abc", http.StatusUnauthorized, "invalid authorization format"},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized, "invalid token"},
		{"static", "Bearer static-token", http.StatusOK, ""},
		{"jwt", "Bearer " + signed, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.header != "" {
				headers = []string{"Authorization", tt.header}
			}
			w := do(t, r, http.MethodGet, "/api/v1/calendar/upcoming", nil, headers...)
			assert.Equal(t, tt.status, w.Code)
			if tt.errMsg != "" {
				assert.Contains(t, w.Body.String(), tt.errMsg)
			}
		})
	}

	w := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health stays public")
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	r := newTestServer(seedStore(), config.AuthConfig{}, m)

	do(t, r, http.MethodGet, "/api/v1/calendar?view=day&date=2024-03-11", nil)
	w := do(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, `crmcal_http_requests_total{method="GET",route="/api/v1/calendar",status="200"} 1`), body)
	assert.Contains(t, body, `crmcal_store_fetches_total{result="ok",store="mock"} 1`)
}
