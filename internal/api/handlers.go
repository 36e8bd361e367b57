package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theakshaypant/crmcal/internal/calendar"
	"github.com/theakshaypant/crmcal/internal/core"
)

type dayResponse struct {
	Date   string       `json:"date"`
	Events []core.Event `json:"events"`
}

type calendarResponse struct {
	Range     calendar.ViewRange `json:"range"`
	Filter    calendar.Filter    `json:"filter"`
	Days      []dayResponse      `json:"days"`
	Count     int                `json:"count"`
	Customers map[string]string  `json:"customers,omitempty"`
}

func (s *Server) getCalendar(c *gin.Context) {
	view := s.opts.Calendar.View
	if raw := c.Query("view"); raw != "" {
		v, err := calendar.ParseViewType(raw)
		if err != nil {
			s.abort(c, err)
			return
		}
		view = v
	}
	if view == "" {
		view = calendar.ViewMonth
	}
	s.renderRange(c, view, c.Query("date"))
}

func (s *Server) getDay(c *gin.Context) {
	s.renderRange(c, calendar.ViewDay, c.Param("date"))
}

func (s *Server) renderRange(c *gin.Context, view calendar.ViewType, rawDate string) {
	anchor, err := s.parseDate(rawDate)
	if err != nil {
		s.abort(c, err)
		return
	}
	f, err := s.parseFilter(c)
	if err != nil {
		s.abort(c, err)
		return
	}

	ctl := s.controller(view, anchor, f)
	if err := ctl.Refresh(c.Request.Context()); err != nil {
		s.abort(c, err)
		return
	}
	snap := ctl.Snapshot()

	resp := calendarResponse{
		Range:  snap.Range,
		Filter: snap.Filter,
		Count:  snap.Index.Len(),
	}
	for _, day := range snap.Range.Days() {
		events := snap.Index.ForDate(day)
		if view == calendar.ViewAgenda && len(events) == 0 {
			continue
		}
		resp.Days = append(resp.Days, dayResponse{Date: calendar.DayKey(day), Events: events})
	}
	resp.Customers = s.customerNames(c.Request.Context(), ctl, snap.Events)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getUpcoming(c *gin.Context) {
	limit := s.opts.UpcomingLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.abort(c, fmt.Errorf("%w: limit must be a positive integer", core.ErrInvalidInput))
			return
		}
		limit = n
	}
	f, err := s.parseFilter(c)
	if err != nil {
		s.abort(c, err)
		return
	}

	ctl := s.controller(s.opts.Calendar.View, time.Time{}, f)
	events, err := ctl.Upcoming(c.Request.Context(), limit)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events":    events,
		"count":     len(events),
		"customers": s.customerNames(c.Request.Context(), ctl, events),
	})
}

func (s *Server) createEvent(c *gin.Context) {
	var in core.EventInput
	if err := c.BindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := in.Validate(); err != nil {
		s.abort(c, err)
		return
	}
	ev, err := s.store.CreateEvent(c.Request.Context(), in.WithDefaults())
	if err != nil {
		s.abort(c, core.WrapStoreError("create", s.store.ID(), err))
		return
	}
	c.JSON(http.StatusCreated, ev)
}

func (s *Server) updateEvent(c *gin.Context) {
	var patch core.EventPatch
	if err := c.BindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := patch.Validate(); err != nil {
		s.abort(c, err)
		return
	}
	ev, err := s.store.UpdateEvent(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.abort(c, core.WrapStoreError("update", s.store.ID(), err))
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (s *Server) deleteEvent(c *gin.Context) {
	if err := s.store.DeleteEvent(c.Request.Context(), c.Param("id")); err != nil {
		s.abort(c, core.WrapStoreError("delete", s.store.ID(), err))
		return
	}
	c.Status(http.StatusNoContent)
}

// parseDate accepts YYYY-MM-DD or "today"; empty means now.
func (s *Server) parseDate(raw string) (time.Time, error) {
	now := s.opts.Calendar.Now().In(s.location())
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "today":
		return now, nil
	}
	t, err := time.ParseInLocation(calendar.DayKeyLayout, raw, s.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", core.ErrInvalidInput, raw)
	}
	return t, nil
}

// parseFilter reads the filter query parameters. Lists are comma separated.
func (s *Server) parseFilter(c *gin.Context) (calendar.Filter, error) {
	f := s.opts.Calendar.Filter
	f.CustomerID = c.DefaultQuery("customer", f.CustomerID)
	f.Search = c.DefaultQuery("q", f.Search)

	if raw := c.Query("private"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("%w: private must be true or false", core.ErrInvalidInput)
		}
		f.ShowPrivate = b
	}

	var err error
	if f.EventTypes, err = parseList(c.Query("types"), f.EventTypes, core.ParseEventType); err != nil {
		return f, err
	}
	if f.Statuses, err = parseList(c.Query("statuses"), f.Statuses, core.ParseStatus); err != nil {
		return f, err
	}
	if f.Priorities, err = parseList(c.Query("priorities"), f.Priorities, core.ParsePriority); err != nil {
		return f, err
	}
	return f, nil
}

func parseList[T any](raw string, def []T, parse func(string) (T, error)) ([]T, error) {
	if raw == "" {
		return def, nil
	}
	var out []T
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// customerNames names every customer referenced by events. Lookup failures leave the name out.
func (s *Server) customerNames(ctx context.Context, ctl *calendar.Controller, events []core.Event) map[string]string {
	names := make(map[string]string)
	dir := s.opts.Calendar.Customers
	for _, e := range events {
		if e.CustomerID == "" {
			continue
		}
		if _, ok := names[e.CustomerID]; ok {
			continue
		}
		if name := ctl.CustomerName(e.CustomerID); name != "" {
			names[e.CustomerID] = name
			continue
		}
		if dir == nil {
			continue
		}
		name, err := dir.ResolveDisplayName(ctx, e.CustomerID)
		if err != nil {
			s.log.WithError(err).WithField("customer_id", e.CustomerID).Warn("customer lookup failed")
			continue
		}
		names[e.CustomerID] = name
	}
	return names
}
