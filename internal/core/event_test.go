package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestEventInput_Validate(t *testing.T) {
	start := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   EventInput
		ok   bool
	}{
		{"minimal", EventInput{Title: "Site visit", Start: start}, true},
		{"missing title", EventInput{Start: start}, false},
		{"missing start", EventInput{Title: "x"}, false},
		{"end before start", EventInput{Title: "x", Start: start, End: ptr(start.Add(-time.Minute))}, false},
		{"end equals start", EventInput{Title: "x", Start: start, End: ptr(start)}, false},
		{"bad type", EventInput{Title: "x", Start: start, Type: "party"}, false},
		{"bad priority", EventInput{Title: "x", Start: start, Priority: "whenever"}, false},
		{"bad color", EventInput{Title: "x", Start: start, Color: "blue"}, false},
		{"good color", EventInput{Title: "x", Start: start, Color: "#3B82F6"}, true},
		{"negative reminder", EventInput{Title: "x", Start: start, ReminderOffsets: []int{15, -5}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestEventInput_ToEventDefaults(t *testing.T) {
	start := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	in := EventInput{Title: "Call back", Start: start, ReminderOffsets: []int{30}}

	e := in.ToEvent("ev1")
	assert.Equal(t, "ev1", e.ID)
	assert.Equal(t, TypeCustom, e.Type)
	assert.Equal(t, StatusScheduled, e.Status)
	assert.Equal(t, PriorityMedium, e.Priority)
	assert.Equal(t, DefaultColor(TypeCustom), e.DisplayColor())

	in.ReminderOffsets[0] = 99
	assert.Equal(t, []int{30}, e.ReminderOffsets)
}

func TestEventPatch_Apply(t *testing.T) {
	start := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	base := Event{ID: "a", Title: "Old", Start: start, End: &end, Type: TypeJob, Status: StatusScheduled}

	t.Run("nil fields unchanged", func(t *testing.T) {
		got, err := EventPatch{}.Apply(base)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})

	t.Run("sets fields", func(t *testing.T) {
		got, err := EventPatch{
			Title:  ptr("New"),
			Status: ptr(StatusConfirmed),
			End:    ptr(start.Add(3 * time.Hour)),
		}.Apply(base)
		require.NoError(t, err)
		assert.Equal(t, "New", got.Title)
		assert.Equal(t, StatusConfirmed, got.Status)
		assert.Equal(t, 3*time.Hour, got.Duration())
		assert.Equal(t, 2*time.Hour, base.Duration(), "original untouched")
	})

	t.Run("clear end", func(t *testing.T) {
		got, err := EventPatch{ClearEnd: true}.Apply(base)
		require.NoError(t, err)
		assert.Nil(t, got.End)
		assert.Equal(t, start, got.EndOrStart())
	})

	t.Run("moving start past end fails", func(t *testing.T) {
		_, err := EventPatch{Start: ptr(end.Add(time.Hour))}.Apply(base)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})
}

func TestEventPatch_Validate(t *testing.T) {
	assert.NoError(t, EventPatch{}.Validate())
	assert.Error(t, EventPatch{Title: ptr("")}.Validate())
	assert.Error(t, EventPatch{Type: ptr(EventType("nope"))}.Validate())
	assert.Error(t, EventPatch{ReminderOffsets: ptr([]int{-1})}.Validate())
	assert.NoError(t, EventPatch{Priority: ptr(PriorityUrgent)}.Validate())
}

func TestFetchOptions_Overlaps(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2024, time.March, d, h, 0, 0, 0, time.UTC) }
	opts := DefaultFetchOptions(day(10, 0), day(17, 0))

	cases := []struct {
		name  string
		start time.Time
		end   *time.Time
		want  bool
	}{
		{"inside", day(12, 9), ptr(day(12, 10)), true},
		{"starts at window end", day(17, 0), nil, false},
		{"ends at window start", day(9, 22), ptr(day(10, 0)), false},
		{"spans start", day(9, 22), ptr(day(10, 1)), true},
		{"point at start", day(10, 0), nil, true},
		{"point before", day(9, 23), nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, opts.Overlaps(Event{Start: tc.start, End: tc.end}))
		})
	}
}

func TestFetchOptions_Matches(t *testing.T) {
	e := Event{Type: TypeJob, Status: StatusConfirmed, Priority: PriorityHigh, CustomerID: "c1"}

	assert.True(t, FetchOptions{}.Matches(e))
	assert.True(t, FetchOptions{IncludeTypes: []EventType{TypeMeeting, TypeJob}}.Matches(e))
	assert.False(t, FetchOptions{IncludeStatuses: []EventStatus{StatusCancelled}}.Matches(e))
	assert.False(t, FetchOptions{IncludePriorities: []Priority{PriorityLow}}.Matches(e))
	assert.False(t, FetchOptions{CustomerID: "c2"}.Matches(e))

	e.IsPrivate = true
	assert.False(t, FetchOptions{}.Matches(e))
	assert.True(t, FetchOptions{IncludePrivate: true}.Matches(e))
}

func TestWrapStoreError(t *testing.T) {
	assert.NoError(t, WrapStoreError("fetch", "office", nil))

	err := WrapStoreError("fetch", "office", ErrNotFound)
	var se *StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "office fetch: event not found", err.Error())
	assert.True(t, errors.Is(err, ErrNotFound))

	outer := fmt.Errorf("loading: %w", err)
	assert.Same(t, outer, WrapStoreError("update", "other", outer))
}

func TestParseEnums(t *testing.T) {
	typ, err := ParseEventType("quote_expiry")
	require.NoError(t, err)
	assert.Equal(t, TypeQuoteExpiry, typ)

	_, err = ParseStatus("done")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	p, err := ParsePriority("urgent")
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, p)
}
