package core

import (
	"fmt"
	"time"
)

// EventType represents the kind of CRM calendar entry.
type EventType string

const (
	TypeJob         EventType = "job"
	TypeAssessment  EventType = "assessment"
	TypeMeeting     EventType = "meeting"
	TypeReminder    EventType = "reminder"
	TypeFollowUp    EventType = "follow_up"
	TypeQuoteExpiry EventType = "quote_expiry"
	TypeCustom      EventType = "custom"
)

// AllTypes lists every event type in display order.
var AllTypes = []EventType{
	TypeJob, TypeAssessment, TypeMeeting, TypeReminder, TypeFollowUp, TypeQuoteExpiry, TypeCustom,
}

// EventStatus represents where an event is in its lifecycle.
type EventStatus string

const (
	StatusScheduled   EventStatus = "scheduled"
	StatusConfirmed   EventStatus = "confirmed"
	StatusInProgress  EventStatus = "in_progress"
	StatusCompleted   EventStatus = "completed"
	StatusCancelled   EventStatus = "cancelled"
	StatusRescheduled EventStatus = "rescheduled"
)

var AllStatuses = []EventStatus{
	StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusRescheduled,
}

// Priority ranks how urgent an event is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var AllPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// defaultColors is the display hint used when an event carries no color.
var defaultColors = map[EventType]string{
	TypeJob:         "#3B82F6",
	TypeAssessment:  "#8B5CF6",
	TypeMeeting:     "#10B981",
	TypeReminder:    "#F59E0B",
	TypeFollowUp:    "#EC4899",
	TypeQuoteExpiry: "#EF4444",
	TypeCustom:      "#6B7280",
}

// DefaultColor returns the color hint for an event type.
func DefaultColor(t EventType) string {
	if c, ok := defaultColors[t]; ok {
		return c
	}
	return defaultColors[TypeCustom]
}

// All stores (Postgres, Google, Outlook, ICS, etc.) convert their data to this format.
// An Event is a snapshot; change it through EventStore.UpdateEvent, never in place.
type Event struct {
	// Unique ID (provided by the store)
	ID string `json:"id"`
	// The ID of the store it came from (e.g., "office_google")
	ProviderID string `json:"provider_id,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	// Timing. End is optional; when set it is strictly after Start.
	Start  time.Time  `json:"start"`
	End    *time.Time `json:"end,omitempty"`
	AllDay bool       `json:"all_day"`

	Type     EventType   `json:"event_type"`
	Status   EventStatus `json:"status"`
	Priority Priority    `json:"priority"`
	Color    string      `json:"color,omitempty"`

	// Weak reference to a CRM customer
	CustomerID string `json:"customer_id,omitempty"`
	IsPrivate  bool   `json:"is_private"`
	// Minutes before Start
	ReminderOffsets []int `json:"reminder_offsets,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// DisplayColor returns Color, falling back to the type default.
func (e Event) DisplayColor() string {
	if e.Color != "" {
		return e.Color
	}
	return DefaultColor(e.Type)
}

// EndOrStart returns End when set, otherwise Start.
func (e Event) EndOrStart() time.Time {
	if e.End != nil {
		return *e.End
	}
	return e.Start
}

// Duration returns the length of the event, zero when it has no end.
func (e Event) Duration() time.Duration {
	if e.End == nil {
		return 0
	}
	return e.End.Sub(e.Start)
}

// InProgress checks if the event is happening right now.
func (e Event) InProgress(now time.Time) bool {
	return e.End != nil && now.After(e.Start) && now.Before(*e.End)
}

// EventInput is the payload for creating an event.
type EventInput struct {
	Title           string      `json:"title" validate:"required"`
	Description     string      `json:"description"`
	Location        string      `json:"location"`
	Start           time.Time   `json:"start" validate:"required"`
	End             *time.Time  `json:"end"`
	AllDay          bool        `json:"all_day"`
	Type            EventType   `json:"event_type" validate:"omitempty,oneof=job assessment meeting reminder follow_up quote_expiry custom"`
	Status          EventStatus `json:"status" validate:"omitempty,oneof=scheduled confirmed in_progress completed cancelled rescheduled"`
	Priority        Priority    `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Color           string      `json:"color" validate:"omitempty,hexcolor"`
	CustomerID      string      `json:"customer_id"`
	IsPrivate       bool        `json:"is_private"`
	ReminderOffsets []int       `json:"reminder_offsets" validate:"dive,gte=0"`
}

// WithDefaults fills in the type, status and priority when left blank.
func (in EventInput) WithDefaults() EventInput {
	if in.Type == "" {
		in.Type = TypeCustom
	}
	if in.Status == "" {
		in.Status = StatusScheduled
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	return in
}

// Validate checks tags and the End-after-Start rule.
func (in EventInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.End != nil && !in.End.After(in.Start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	}
	return nil
}

// ToEvent builds an event snapshot from the input. Stores assign the ID.
func (in EventInput) ToEvent(id string) Event {
	in = in.WithDefaults()
	return Event{
		ID:              id,
		Title:           in.Title,
		Description:     in.Description,
		Location:        in.Location,
		Start:           in.Start,
		End:             in.End,
		AllDay:          in.AllDay,
		Type:            in.Type,
		Status:          in.Status,
		Priority:        in.Priority,
		Color:           in.Color,
		CustomerID:      in.CustomerID,
		IsPrivate:       in.IsPrivate,
		ReminderOffsets: append([]int(nil), in.ReminderOffsets...),
	}
}

// EventPatch is a partial update. Nil fields are left unchanged.
type EventPatch struct {
	Title           *string      `json:"title,omitempty" validate:"omitempty,min=1"`
	Description     *string      `json:"description,omitempty"`
	Location        *string      `json:"location,omitempty"`
	Start           *time.Time   `json:"start,omitempty"`
	End             *time.Time   `json:"end,omitempty"`
	ClearEnd        bool         `json:"clear_end,omitempty"`
	AllDay          *bool        `json:"all_day,omitempty"`
	Type            *EventType   `json:"event_type,omitempty" validate:"omitempty,oneof=job assessment meeting reminder follow_up quote_expiry custom"`
	Status          *EventStatus `json:"status,omitempty" validate:"omitempty,oneof=scheduled confirmed in_progress completed cancelled rescheduled"`
	Priority        *Priority    `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Color           *string      `json:"color,omitempty"`
	CustomerID      *string      `json:"customer_id,omitempty"`
	IsPrivate       *bool        `json:"is_private,omitempty"`
	ReminderOffsets *[]int       `json:"reminder_offsets,omitempty"`
}

// Validate checks the tags on set fields.
func (p EventPatch) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if p.ReminderOffsets != nil {
		for _, o := range *p.ReminderOffsets {
			if o < 0 {
				return fmt.Errorf("%w: reminder offsets must be non-negative", ErrInvalidInput)
			}
		}
	}
	return nil
}

// Apply returns a copy of e with the patch applied.
func (p EventPatch) Apply(e Event) (Event, error) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Start != nil {
		e.Start = *p.Start
	}
	if p.ClearEnd {
		e.End = nil
	} else if p.End != nil {
		end := *p.End
		e.End = &end
	}
	if p.AllDay != nil {
		e.AllDay = *p.AllDay
	}
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.Priority != nil {
		e.Priority = *p.Priority
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.CustomerID != nil {
		e.CustomerID = *p.CustomerID
	}
	if p.IsPrivate != nil {
		e.IsPrivate = *p.IsPrivate
	}
	if p.ReminderOffsets != nil {
		e.ReminderOffsets = append([]int(nil), (*p.ReminderOffsets)...)
	}
	if e.End != nil && !e.End.After(e.Start) {
		return e, fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	}
	return e, nil
}

// ParseEventType validates a raw event type string.
func ParseEventType(s string) (EventType, error) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, s)
}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (EventStatus, error) {
	for _, v := range AllStatuses {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// ParsePriority validates a raw priority string.
func ParsePriority(s string) (Priority, error) {
	for _, v := range AllPriorities {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, s)
}
