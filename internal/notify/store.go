package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theakshaypant/crmcal/internal/core"
)

// PublishingStore announces every successful mutation on a Bus, so other
// views of the same store can re-fetch. Its Changes feed is the bus.
type PublishingStore struct {
	core.EventStore
	bus Bus
	log logrus.FieldLogger
	now func() time.Time
}

func NewPublishingStore(store core.EventStore, bus Bus, log logrus.FieldLogger) *PublishingStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PublishingStore{EventStore: store, bus: bus, log: log, now: time.Now}
}

func (s *PublishingStore) publish(ctx context.Context, kind core.ChangeKind, id string) {
	n := core.ChangeNotice{StoreID: s.ID(), Kind: kind, EventID: id, At: s.now().UTC()}
	if err := s.bus.Publish(ctx, n); err != nil {
		// The write already happened; other views catch up on their next refresh.
		s.log.WithError(err).WithField("event_id", id).Warn("change notice not published")
	}
}

func (s *PublishingStore) CreateEvent(ctx context.Context, in core.EventInput) (core.Event, error) {
	ev, err := s.EventStore.CreateEvent(ctx, in)
	if err == nil {
		s.publish(ctx, core.ChangeCreated, ev.ID)
	}
	return ev, err
}

func (s *PublishingStore) UpdateEvent(ctx context.Context, id string, patch core.EventPatch) (core.Event, error) {
	ev, err := s.EventStore.UpdateEvent(ctx, id, patch)
	if err == nil {
		s.publish(ctx, core.ChangeUpdated, id)
	}
	return ev, err
}

func (s *PublishingStore) DeleteEvent(ctx context.Context, id string) error {
	err := s.EventStore.DeleteEvent(ctx, id)
	if err == nil {
		s.publish(ctx, core.ChangeDeleted, id)
	}
	return err
}

func (s *PublishingStore) Changes(ctx context.Context) (<-chan core.ChangeNotice, error) {
	return s.bus.Changes(ctx)
}

// ResolveDisplayName forwards to the wrapped store when it is a directory.
func (s *PublishingStore) ResolveDisplayName(ctx context.Context, customerID string) (string, error) {
	if dir, ok := s.EventStore.(core.CustomerDirectory); ok {
		return dir.ResolveDisplayName(ctx, customerID)
	}
	return "", core.ErrNotFound
}
