package calendar

import "time"

// ViewState holds the current view type, anchor and computed range.
// It has no other state; every transition recomputes all three together.
type ViewState struct {
	calc Calculator
	now  func() time.Time
	rng  ViewRange
}

// NewViewState starts at anchor in view. A nil now uses time.Now.
func NewViewState(calc Calculator, view ViewType, anchor time.Time, now func() time.Time) *ViewState {
	if now == nil {
		now = time.Now
	}
	if view == "" {
		view = ViewMonth
	}
	s := &ViewState{calc: calc, now: now}
	s.rng = calc.RangeFor(view, anchor)
	return s
}

// Range returns the current view range.
func (s *ViewState) Range() ViewRange { return s.rng }

// View returns the current view type.
func (s *ViewState) View() ViewType { return s.rng.Type }

// Calculator returns the calculator the state navigates with.
func (s *ViewState) Calculator() Calculator { return s.calc }

// NavigateTo anchors the view at date. An empty view keeps the current one.
func (s *ViewState) NavigateTo(date time.Time, view ViewType) ViewRange {
	if view == "" {
		view = s.rng.Type
	}
	s.rng = s.calc.RangeFor(view, date)
	return s.rng
}

func (s *ViewState) NavigatePrevious() ViewRange {
	return s.NavigateTo(s.calc.Step(s.rng.Type, s.rng.Anchor, -1), "")
}

func (s *ViewState) NavigateNext() ViewRange {
	return s.NavigateTo(s.calc.Step(s.rng.Type, s.rng.Anchor, +1), "")
}

// NavigateToToday keeps the current view type.
func (s *ViewState) NavigateToToday() ViewRange {
	return s.NavigateTo(s.now(), "")
}
