package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/crmcal/internal/core"
)

var eventCols = []string{"id", "title", "description", "location", "starts_at", "ends_at", "all_day",
	"event_type", "status", "priority", "color", "customer_id", "is_private", "reminder_offsets", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New("crm", "CRM MySQL", db)
	s.now = func() time.Time { return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestStore_FetchEvents(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	start := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	evEnd := start.Add(10 * time.Hour)
	created := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(eventCols).
		AddRow("e1", "Gutter clean", "", "5 Oak Rd", start.Add(9*time.Hour), evEnd, false,
			"job", "confirmed", "high", "", "c1", false, "60,15", created, created).
		AddRow("e2", "Quote expires", "", "", start.Add(24*time.Hour), nil, true,
			"quote_expiry", "scheduled", "medium", "#EF4444", nil, false, "", created, created)

	mock.ExpectQuery(regexp.QuoteMeta("FROM calendar_events WHERE 1=1 AND starts_at < ? AND ((ends_at IS NULL AND starts_at >= ?) OR ends_at > ?) AND event_type IN (?,?) AND is_private = 0")).
		WithArgs(end, start, start, "job", "quote_expiry").
		WillReturnRows(rows)

	events, err := s.FetchEvents(ctx, core.FetchOptions{
		Start:        start,
		End:          end,
		IncludeTypes: []core.EventType{core.TypeJob, core.TypeQuoteExpiry},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "crm", events[0].ProviderID)
	assert.Equal(t, core.StatusConfirmed, events[0].Status)
	assert.Equal(t, []int{60, 15}, events[0].ReminderOffsets)
	require.NotNil(t, events[0].End)
	assert.Equal(t, "c1", events[0].CustomerID)

	assert.Nil(t, events[1].End)
	assert.True(t, events[1].AllDay)
	assert.Empty(t, events[1].CustomerID)
	assert.Empty(t, events[1].ReminderOffsets)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateEvent(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO calendar_events")).
		WithArgs(sqlmock.AnyArg(), "Site survey", "", "", start, nil, false,
			"assessment", "scheduled", "medium", "", "c9", true, "30", s.now(), s.now()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ev, err := s.CreateEvent(context.Background(), core.EventInput{
		Title:           "Site survey",
		Start:           start,
		Type:            core.TypeAssessment,
		CustomerID:      "c9",
		IsPrivate:       true,
		ReminderOffsets: []int{30},
	})
	require.NoError(t, err)
	assert.Len(t, ev.ID, 36)
	assert.Equal(t, "crm", ev.ProviderID)
	assert.Equal(t, s.now(), ev.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateEvent(t *testing.T) {
	start := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	created := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	t.Run("applies patch", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ? FOR UPDATE")).
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows(eventCols).AddRow("e1", "Old", "", "", start, nil, false,
				"job", "scheduled", "medium", "", nil, false, "", created, created))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE calendar_events SET")).
			WithArgs("Old", "", "", start, nil, false, "job", "completed", "medium", "", nil, false, "", s.now(), "e1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		status := core.StatusCompleted
		ev, err := s.UpdateEvent(context.Background(), "e1", core.EventPatch{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, core.StatusCompleted, ev.Status)
		assert.Equal(t, created, ev.CreatedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ? FOR UPDATE")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(eventCols))
		mock.ExpectRollback()

		_, err := s.UpdateEvent(context.Background(), "missing", core.EventPatch{})
		assert.True(t, errors.Is(err, core.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_DeleteEvent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM calendar_events WHERE id = ?")).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM calendar_events WHERE id = ?")).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteEvent(context.Background(), "e1"))
	err := s.DeleteEvent(context.Background(), "e1")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResolveDisplayName(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT display_name FROM customers WHERE id = ?")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"display_name"}).AddRow("Acme Plumbing"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT display_name FROM customers WHERE id = ?")).
		WithArgs("c2").
		WillReturnRows(sqlmock.NewRows([]string{"display_name"}))

	name, err := s.ResolveDisplayName(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", name)

	_, err = s.ResolveDisplayName(context.Background(), "c2")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
