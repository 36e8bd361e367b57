package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Notifier delivers a due reminder.
type Notifier interface {
	Notify(ctx context.Context, d Due) error
}

// LogNotifier writes reminders to the log.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Notify(_ context.Context, d Due) error {
	n.Log.WithFields(logrus.Fields{
		"event_id":    d.Event.ID,
		"store":       d.Event.ProviderID,
		"customer_id": d.Event.CustomerID,
		"offset":      d.Offset,
	}).Info(d.Message())
	return nil
}

// RedisNotifier publishes reminders as JSON on a channel.
type RedisNotifier struct {
	Client  *redis.Client
	Channel string
}

func (n RedisNotifier) Notify(ctx context.Context, d Due) error {
	payload, err := json.Marshal(struct {
		Due
		Message string `json:"message"`
	}{d, d.Message()})
	if err != nil {
		return fmt.Errorf("failed to marshal reminder: %w", err)
	}
	if err := n.Client.Publish(ctx, n.Channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish reminder: %w", err)
	}
	return nil
}

// Deduper remembers fired reminders. First reports whether key is new and
// marks it fired for ttl. Forget clears the mark after a failed send.
type Deduper interface {
	First(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// MemoryDeduper is a process-local Deduper.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryDeduper) First(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.seen {
		if now.After(exp) {
			delete(m.seen, k)
		}
	}
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryDeduper) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

// RedisDeduper shares fired keys between processes with SETNX.
type RedisDeduper struct {
	Client *redis.Client
	Prefix string
}

func (r RedisDeduper) First(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.Client.SetNX(ctx, r.Prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record reminder: %w", err)
	}
	return ok, nil
}

func (r RedisDeduper) Forget(ctx context.Context, key string) error {
	if err := r.Client.Del(ctx, r.Prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release reminder: %w", err)
	}
	return nil
}
