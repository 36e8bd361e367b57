package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/crmcal/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func assertDate(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.Equal(t, want.Format(DayKeyLayout), got.Format(DayKeyLayout))
}

func TestRangeFor_MonthAlwaysWholeWeeks(t *testing.T) {
	d := date(2023, time.January, 1)
	for i := 0; i < 800; i++ {
		anchor := d.AddDate(0, 0, i).Add(13*time.Hour + 7*time.Minute)
		r := RangeFor(ViewMonth, anchor)

		require.Equal(t, time.Sunday, r.Start.Weekday(), "start for %s", anchor)
		require.Equal(t, time.Saturday, r.End.Weekday(), "end for %s", anchor)
		require.False(t, anchor.Before(r.Start), "anchor %s before %s", anchor, r.Start)
		require.True(t, r.Contains(anchor), "anchor %s outside range", anchor)

		days := len(r.Days())
		require.Zero(t, days%7, "grid for %s has %d days", anchor, days)
	}
}

func TestRangeFor_WeekSpansSixDays(t *testing.T) {
	d := date(2024, time.February, 20)
	for i := 0; i < 60; i++ {
		r := RangeFor(ViewWeek, d.AddDate(0, 0, i))
		assert.Equal(t, 6*24*time.Hour, r.End.Sub(r.Start))
		assert.Equal(t, time.Sunday, r.Start.Weekday())
	}
}

func TestRangeFor_Day(t *testing.T) {
	anchor := time.Date(2024, time.March, 15, 14, 30, 0, 0, time.UTC)
	r := RangeFor(ViewDay, anchor)

	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2024, time.March, 15, 23, 59, 59, 999000000, time.UTC), r.End)
	assert.Equal(t, anchor, r.Anchor)
}

func TestRangeFor_AgendaEndsAtMonthEnd(t *testing.T) {
	anchor := time.Date(2024, time.February, 10, 9, 0, 0, 0, time.UTC)
	r := RangeFor(ViewAgenda, anchor)

	assert.Equal(t, date(2024, time.February, 10), r.Start)
	assert.Equal(t, date(2024, time.February, 29), r.End)
}

func TestRangeFor_MarchAndApril2024(t *testing.T) {
	anchor := date(2024, time.March, 15)
	r := RangeFor(ViewMonth, anchor)
	assertDate(t, date(2024, time.February, 25), r.Start)
	// March 31 2024 is a Sunday, so the grid runs a sixth week to April 6.
	assertDate(t, date(2024, time.April, 6), r.End)

	next := Step(ViewMonth, anchor, +1)
	assertDate(t, date(2024, time.April, 15), next)

	r = RangeFor(ViewMonth, next)
	assertDate(t, date(2024, time.March, 31), r.Start)
	assertDate(t, date(2024, time.May, 4), r.End)
}

func TestRangeFor_MondayWeekStart(t *testing.T) {
	calc := Calculator{WeekStart: time.Monday}

	r := calc.RangeFor(ViewMonth, date(2024, time.March, 15))
	assertDate(t, date(2024, time.February, 26), r.Start)
	assertDate(t, date(2024, time.March, 31), r.End)
	assert.Equal(t, time.Monday, r.Start.Weekday())
	assert.Equal(t, time.Sunday, r.End.Weekday())

	w := calc.RangeFor(ViewWeek, date(2024, time.March, 17))
	assertDate(t, date(2024, time.March, 11), w.Start)
	assertDate(t, date(2024, time.March, 17), w.End)
}

func TestStep(t *testing.T) {
	t.Run("day round trip", func(t *testing.T) {
		d := time.Date(2024, time.March, 10, 1, 30, 0, 0, time.UTC)
		for i := 0; i < 400; i++ {
			x := d.AddDate(0, 0, i)
			assert.True(t, x.Equal(Step(ViewDay, Step(ViewDay, x, +1), -1)))
		}
	})

	t.Run("week moves seven days", func(t *testing.T) {
		d := date(2024, time.December, 28)
		assertDate(t, date(2025, time.January, 4), Step(ViewWeek, d, +1))
		assertDate(t, date(2024, time.December, 21), Step(ViewWeek, d, -1))
	})

	t.Run("month crosses year forward", func(t *testing.T) {
		got := Step(ViewMonth, date(2024, time.December, 15), +1)
		assert.Equal(t, 2025, got.Year())
		assert.Equal(t, time.January, got.Month())
		assert.Equal(t, 15, got.Day())
	})

	t.Run("month crosses year backward", func(t *testing.T) {
		got := Step(ViewAgenda, date(2025, time.January, 15), -1)
		assertDate(t, date(2024, time.December, 15), got)
	})

	t.Run("month clamps day", func(t *testing.T) {
		assertDate(t, date(2024, time.February, 29), Step(ViewMonth, date(2024, time.January, 31), +1))
		assertDate(t, date(2023, time.February, 28), Step(ViewMonth, date(2023, time.January, 31), +1))
		assertDate(t, date(2024, time.April, 30), Step(ViewMonth, date(2024, time.May, 31), -1))
	})

	t.Run("keeps clock", func(t *testing.T) {
		d := time.Date(2024, time.March, 15, 16, 45, 0, 0, time.UTC)
		got := Step(ViewMonth, d, +1)
		assert.Equal(t, 16, got.Hour())
		assert.Equal(t, 45, got.Minute())
	})
}

func TestParseViewType(t *testing.T) {
	for _, v := range []string{"month", "Week", " day ", "AGENDA"} {
		_, err := ParseViewType(v)
		assert.NoError(t, err, v)
	}

	_, err := ParseViewType("year")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestViewRange_FetchWindow(t *testing.T) {
	r := RangeFor(ViewWeek, date(2024, time.March, 13))
	start, end := r.FetchWindow()
	assert.Equal(t, date(2024, time.March, 10), start)
	assert.Equal(t, date(2024, time.March, 17), end)

	assert.True(t, r.Contains(time.Date(2024, time.March, 16, 22, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(end))
}

func TestViewState_Navigation(t *testing.T) {
	now := time.Date(2024, time.June, 5, 10, 0, 0, 0, time.UTC)
	s := NewViewState(DefaultCalculator, ViewMonth, date(2024, time.March, 15), func() time.Time { return now })

	t.Run("next and previous", func(t *testing.T) {
		r := s.NavigateNext()
		assertDate(t, date(2024, time.April, 15), r.Anchor)
		assert.Equal(t, ViewMonth, r.Type)

		r = s.NavigatePrevious()
		assertDate(t, date(2024, time.March, 15), r.Anchor)
	})

	t.Run("navigate keeps view when empty", func(t *testing.T) {
		r := s.NavigateTo(date(2024, time.July, 4), "")
		assert.Equal(t, ViewMonth, r.Type)
		assertDate(t, date(2024, time.June, 30), r.Start)
	})

	t.Run("navigate switches view atomically", func(t *testing.T) {
		r := s.NavigateTo(date(2024, time.July, 4), ViewDay)
		assert.Equal(t, ViewDay, r.Type)
		assertDate(t, date(2024, time.July, 4), r.Start)
		assertDate(t, date(2024, time.July, 4), r.End)
		assert.Equal(t, r, s.Range())
	})

	t.Run("today keeps view", func(t *testing.T) {
		s.NavigateTo(date(2024, time.July, 4), ViewWeek)
		r := s.NavigateToToday()
		assert.Equal(t, ViewWeek, r.Type)
		assert.Equal(t, now, r.Anchor)
		assertDate(t, date(2024, time.June, 2), r.Start)
	})
}
