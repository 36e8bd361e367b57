package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/theakshaypant/crmcal/internal/core"
)

// ThrottleDelay coalesces bursts of file writes into one notice.
const ThrottleDelay = 100 * time.Millisecond

// Changes streams a notice whenever the files under the base path change,
// whichever process wrote them. The channel closes when ctx is done or the
// watcher fails.
func (s *Store) Changes(ctx context.Context) (<-chan core.ChangeNotice, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("local store: create watcher: %w", err)
	}
	var closeOnce sync.Once
	closeWatcher := func() {
		closeOnce.Do(func() {
			if err := watcher.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "local store: watcher close: %v\n", err)
			}
		})
	}

	dirs, err := collectDirs(s.basePath)
	if err != nil {
		closeWatcher()
		return nil, fmt.Errorf("local store: enumerate directories: %w", err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			closeWatcher()
			return nil, fmt.Errorf("local store: watch %s: %w", dir, err)
		}
	}

	out := make(chan core.ChangeNotice, 16)
	go func() {
		defer close(out)
		defer closeWatcher()

		watched := make(map[string]struct{}, len(dirs))
		for _, dir := range dirs {
			watched[dir] = struct{}{}
		}

		var sendMu sync.Mutex
		done := false
		send := func() {
			sendMu.Lock()
			defer sendMu.Unlock()
			if done {
				return
			}
			select {
			case out <- core.ChangeNotice{StoreID: s.id, Kind: core.ChangeInvalidated, At: s.now().UTC()}:
			default:
				// Consumer busy; it re-fetches everything on the pending notice anyway.
			}
		}
		throttle := newThrottle(ThrottleDelay, send)
		defer func() {
			throttle.Stop()
			sendMu.Lock()
			done = true
			sendMu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				throttle.Kick()
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&fsnotify.Create == fsnotify.Create {
					if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
						dir := filepath.Clean(evt.Name)
						if _, found := watched[dir]; !found {
							if err := watcher.Add(dir); err == nil {
								watched[dir] = struct{}{}
							}
						}
					}
				}
				throttle.Kick()
			}
		}
	}()
	return out, nil
}

func collectDirs(base string) ([]string, error) {
	dirs := []string{base}
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() && path != base {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

// throttle calls fire once per burst of Kick calls.
type throttle struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	fire  func()
}

func newThrottle(delay time.Duration, fire func()) *throttle {
	return &throttle{delay: delay, fire: fire}
}

func (t *throttle) Kick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		t.timer = time.AfterFunc(t.delay, func() {
			t.mu.Lock()
			t.timer = nil
			t.mu.Unlock()
			t.fire()
		})
	}
}

func (t *throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
