// Package local keeps events as JSON files on disk. It serves both as an
// offline event store of its own and as the mirror that `crmcal sync` fills
// from remote stores.
package local

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/peterbourgon/diskv/v3"

	"github.com/theakshaypant/crmcal/internal/core"
)

var enc = base64.RawURLEncoding

// Store is a diskv-backed event store. Events it owns live under its own id;
// mirrored events live under their provider's id and are read-only here.
type Store struct {
	id       string
	name     string
	basePath string
	d        *diskv.Diskv
	now      func() time.Time

	mu sync.Mutex
}

// New opens (creating if needed) a store rooted at basePath.
func New(id, name, basePath string) (*Store, error) {
	if basePath == "" {
		return nil, errors.New("local store: base path required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("local store: ensure base path: %w", err)
	}
	return &Store{
		id:       id,
		name:     name,
		basePath: basePath,
		d: diskv.New(diskv.Options{
			BasePath:          basePath,
			AdvancedTransform: keyToPathTransform,
			InverseTransform:  pathToKeyTransform,
			// Other crmcal processes write here too, so nothing is cached.
			CacheSizeMax: 0,
		}),
		now: time.Now,
	}, nil
}

func (s *Store) ID() string   { return s.id }
func (s *Store) Name() string { return s.name }

// toKey makes `provider.id`, both base64url so any id is a safe file name.
func toKey(providerID, id string) string {
	return enc.EncodeToString([]byte(providerID)) + "." + enc.EncodeToString([]byte(id))
}

func keyToPathTransform(key string) *diskv.PathKey {
	dir, file, ok := strings.Cut(key, ".")
	if !ok {
		return &diskv.PathKey{FileName: key}
	}
	return &diskv.PathKey{Path: []string{dir}, FileName: file}
}

func pathToKeyTransform(pk *diskv.PathKey) string {
	return strings.Join(pk.Path, "") + "." + pk.FileName
}

func providerPrefix(providerID string) string {
	return enc.EncodeToString([]byte(providerID)) + "."
}

func (s *Store) read(key string) (core.Event, error) {
	val, err := s.d.Read(key)
	if err != nil {
		return core.Event{}, err
	}
	var e core.Event
	if err := json.Unmarshal(val, &e); err != nil {
		return core.Event{}, fmt.Errorf("%s: %w", key, err)
	}
	return e, nil
}

func (s *Store) write(e core.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.d.Write(toKey(e.ProviderID, e.ID), data)
}

// scan reads every event under prefix ("" for all), skipping unreadable files.
func (s *Store) scan(ctx context.Context, prefix string, keep func(core.Event) bool) []core.Event {
	var out []core.Event
	for key := range s.d.KeysPrefix(prefix, ctx.Done()) {
		e, err := s.read(key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "local store: %v\n", err)
			continue
		}
		if keep(e) {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out
}

func sortEvents(events []core.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Start.Equal(events[j].Start) {
			return events[i].ID < events[j].ID
		}
		return events[i].Start.Before(events[j].Start)
	})
}

// FetchEvents returns owned and mirrored events in the window.
func (s *Store) FetchEvents(ctx context.Context, opts core.FetchOptions) ([]core.Event, error) {
	out := s.scan(ctx, "", func(e core.Event) bool { return opts.Overlaps(e) && opts.Matches(e) })
	return out, ctx.Err()
}

func (s *Store) CreateEvent(ctx context.Context, in core.EventInput) (core.Event, error) {
	now := s.now().UTC()
	e := in.ToEvent(uuid.NewString())
	e.ProviderID = s.id
	e.CreatedAt, e.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(e); err != nil {
		return core.Event{}, fmt.Errorf("write event: %w", err)
	}
	return e, nil
}

// find locates id under any provider.
func (s *Store) find(ctx context.Context, id string) (string, core.Event, error) {
	suffix := "." + enc.EncodeToString([]byte(id))
	if key := providerPrefix(s.id) + suffix[1:]; s.d.Has(key) {
		e, err := s.read(key)
		return key, e, err
	}
	for key := range s.d.Keys(ctx.Done()) {
		if strings.HasSuffix(key, suffix) {
			e, err := s.read(key)
			return key, e, err
		}
	}
	return "", core.Event{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
}

func (s *Store) owned(e core.Event) error {
	if e.ProviderID != s.id {
		return fmt.Errorf("%w: %s is mirrored from %s", core.ErrReadOnly, e.ID, e.ProviderID)
	}
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, current, err := s.find(ctx, id)
	if err != nil {
		return core.Event{}, err
	}
	if err := s.owned(current); err != nil {
		return core.Event{}, err
	}
	next, err := patch.Apply(current)
	if err != nil {
		return core.Event{}, err
	}
	next.UpdatedAt = s.now().UTC()
	if err := s.write(next); err != nil {
		return core.Event{}, fmt.Errorf("write event: %w", err)
	}
	return next, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, current, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.owned(current); err != nil {
		return err
	}
	if err := s.d.Erase(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("erase event: %w", err)
	}
	return nil
}

// SyncEvents upserts a batch mirrored from providerID.
func (s *Store) SyncEvents(ctx context.Context, providerID string, events []core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.ID == "" {
			return fmt.Errorf("%w: mirrored event without id from %s", core.ErrInconsistent, providerID)
		}
		e.ProviderID = providerID
		if err := s.write(e); err != nil {
			return fmt.Errorf("write %s: %w", e.ID, err)
		}
	}
	return nil
}

// ListEvents returns mirrored events in filter's window, sorted by start.
func (s *Store) ListEvents(ctx context.Context, filter core.EventFilter) ([]core.Event, error) {
	window := core.FetchOptions{Start: filter.Start, End: filter.End}
	out := s.scan(ctx, "", func(e core.Event) bool {
		return filter.IncludesProvider(e.ProviderID) && window.Overlaps(e)
	})
	return out, ctx.Err()
}

// PurgeProvider removes every event mirrored from providerID.
func (s *Store) PurgeProvider(ctx context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.d.KeysPrefix(providerPrefix(providerID), ctx.Done()) {
		keys = append(keys, key)
	}
	for _, key := range keys {
		if err := s.d.Erase(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("erase %s: %w", key, err)
		}
	}
	return ctx.Err()
}
