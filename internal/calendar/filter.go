package calendar

import (
	"strings"
	"time"

	"github.com/theakshaypant/crmcal/internal/core"
)

// Filter narrows which events are visible. Every set field is one clause,
// and clauses combine with AND.
type Filter struct {
	// Empty means no restriction.
	EventTypes []core.EventType   `json:"event_types,omitempty"`
	Statuses   []core.EventStatus `json:"statuses,omitempty"`
	Priorities []core.Priority    `json:"priorities,omitempty"`

	CustomerID string `json:"customer_id,omitempty"`

	// ShowPrivate defaults to false, which hides every private event.
	ShowPrivate bool `json:"show_private"`

	// Case-insensitive substring over title, description, location and customer name.
	Search string `json:"search,omitempty"`
}

// Clause is a single pure test over an event.
type Clause func(core.Event) bool

// NameLookup resolves a customer id to its display name; "" when unknown.
type NameLookup func(customerID string) string

// MapLookup adapts a map to a NameLookup.
func MapLookup(names map[string]string) NameLookup {
	return func(id string) string { return names[id] }
}

// Clauses returns one clause per active filter field. The order carries no meaning.
func (f Filter) Clauses(names NameLookup) []Clause {
	var clauses []Clause

	if !f.ShowPrivate {
		clauses = append(clauses, func(e core.Event) bool { return !e.IsPrivate })
	}
	if len(f.EventTypes) > 0 {
		set := make(map[core.EventType]struct{}, len(f.EventTypes))
		for _, t := range f.EventTypes {
			set[t] = struct{}{}
		}
		clauses = append(clauses, func(e core.Event) bool {
			_, ok := set[e.Type]
			return ok
		})
	}
	if len(f.Statuses) > 0 {
		set := make(map[core.EventStatus]struct{}, len(f.Statuses))
		for _, s := range f.Statuses {
			set[s] = struct{}{}
		}
		clauses = append(clauses, func(e core.Event) bool {
			_, ok := set[e.Status]
			return ok
		})
	}
	if len(f.Priorities) > 0 {
		set := make(map[core.Priority]struct{}, len(f.Priorities))
		for _, p := range f.Priorities {
			set[p] = struct{}{}
		}
		clauses = append(clauses, func(e core.Event) bool {
			_, ok := set[e.Priority]
			return ok
		})
	}
	if f.CustomerID != "" {
		id := f.CustomerID
		clauses = append(clauses, func(e core.Event) bool { return e.CustomerID == id })
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		clauses = append(clauses, searchClause(q, names))
	}

	return clauses
}

func searchClause(q string, names NameLookup) Clause {
	return func(e core.Event) bool {
		for _, field := range []string{e.Title, e.Description, e.Location} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		if e.CustomerID != "" && names != nil {
			if name := names(e.CustomerID); name != "" && strings.Contains(strings.ToLower(name), q) {
				return true
			}
		}
		return false
	}
}

// Predicate is the AND of every clause.
func (f Filter) Predicate(names NameLookup) Clause {
	return All(f.Clauses(names)...)
}

// All combines clauses with AND. No clauses accepts everything.
func All(clauses ...Clause) Clause {
	return func(e core.Event) bool {
		for _, c := range clauses {
			if !c(e) {
				return false
			}
		}
		return true
	}
}

// Apply returns the events accepted by every clause, in input order.
func Apply(events []core.Event, clauses ...Clause) []core.Event {
	match := All(clauses...)
	out := make([]core.Event, 0, len(events))
	for _, e := range events {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

// NeedsNames reports whether evaluation would consult customer names.
func (f Filter) NeedsNames() bool {
	return strings.TrimSpace(f.Search) != ""
}

// FetchOptions translates the store-expressible clauses. Search stays client-side.
func (f Filter) FetchOptions(start, end time.Time) core.FetchOptions {
	opts := core.DefaultFetchOptions(start, end)
	opts.IncludeTypes = append(opts.IncludeTypes, f.EventTypes...)
	opts.IncludeStatuses = append(opts.IncludeStatuses, f.Statuses...)
	opts.IncludePriorities = append(opts.IncludePriorities, f.Priorities...)
	opts.CustomerID = f.CustomerID
	opts.IncludePrivate = f.ShowPrivate
	return opts
}
