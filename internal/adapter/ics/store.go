// Package ics reads events from an iCalendar feed (URL or file) and writes ICS exports.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theakshaypant/crmcal/internal/core"
)

// Store is a read-only event store over one ICS source.
type Store struct {
	id     string
	name   string
	source string
	loc    *time.Location
	client *http.Client
	log    logrus.FieldLogger

	// HTTP cache of the last good body.
	mu           sync.Mutex
	etag         string
	lastModified string
	cached       []byte
}

type Option func(*Store)

// WithLocation sets the zone used for floating times and all-day dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// New builds a store over source: an http(s) or webcal URL, or a file path.
func New(id, name, source string, opts ...Option) *Store {
	s := &Store{
		id:     id,
		name:   name,
		source: source,
		loc:    time.Local,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ID() string   { return s.id }
func (s *Store) Name() string { return s.name }

func (s *Store) FetchEvents(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
	body, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := parseCalendar(body, s.loc)
	if err != nil {
		return nil, err
	}

	expanded, truncated := expand(parsed, opts.Start, opts.End)
	for _, uid := range truncated {
		s.log.WithField("uid", uid).Warn("recurrence truncated")
	}

	var out []core.Event
	for _, e := range expanded {
		if !opts.Overlaps(e) || !opts.Matches(e) {
			continue
		}
		e.ProviderID = s.id
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) CreateEvent(context.Context, core.EventInput) (core.Event, error) {
	return core.Event{}, s.readOnly()
}

func (s *Store) UpdateEvent(context.Context, string, core.EventPatch) (core.Event, error) {
	return core.Event{}, s.readOnly()
}

func (s *Store) DeleteEvent(context.Context, string) error {
	return s.readOnly()
}

func (s *Store) readOnly() error {
	return fmt.Errorf("%w: %s is an ICS feed", core.ErrReadOnly, s.id)
}

func (s *Store) load(ctx context.Context) ([]byte, error) {
	src := s.source
	if rest, ok := strings.CutPrefix(src, "webcal://"); ok {
		src = "https://" + rest
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		body, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read ics file: %w", err)
		}
		return body, nil
	}
	return s.fetchURL(ctx, src)
}

// fetchURL does a conditional GET, falling back to the last good body on failure.
func (s *Store) fetchURL(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if s.etag != "" {
		req.Header.Set("If-None-Match", s.etag)
	}
	if s.lastModified != "" {
		req.Header.Set("If-Modified-Since", s.lastModified)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return s.fallback(fmt.Errorf("fetch ics: %w", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return s.fallback(fmt.Errorf("read ics body: %w", err))
		}
		s.etag = resp.Header.Get("ETag")
		s.lastModified = resp.Header.Get("Last-Modified")
		s.cached = body
		return body, nil
	case http.StatusNotModified:
		if len(s.cached) == 0 {
			return nil, errors.New("received 304 Not Modified but no cached body available")
		}
		return s.cached, nil
	default:
		return s.fallback(fmt.Errorf("fetch ics: %s", resp.Status))
	}
}

func (s *Store) fallback(err error) ([]byte, error) {
	if len(s.cached) == 0 {
		return nil, err
	}
	s.log.WithError(err).Warn("ics fetch failed, using cached body")
	return s.cached, nil
}
