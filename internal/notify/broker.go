// Package notify carries store change notices between crmcal processes over redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
	"github.com/sirupsen/logrus"

	"github.com/theakshaypant/crmcal/internal/config"
	"github.com/theakshaypant/crmcal/internal/core"
)

// NewClient connects to redis and checks the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		// Not available on older servers and only produces a warning there.
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Bus publishes and subscribes to change notices.
type Bus interface {
	Publish(ctx context.Context, n core.ChangeNotice) error
	core.ChangeNotifier
}

// Broker is a Bus over one redis channel.
type Broker struct {
	client  *redis.Client
	channel string
	log     logrus.FieldLogger
}

func NewBroker(client *redis.Client, channel string, log logrus.FieldLogger) *Broker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Broker{client: client, channel: channel, log: log}
}

func (b *Broker) Publish(ctx context.Context, n core.ChangeNotice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

// Changes subscribes to the channel. Malformed messages are logged and dropped.
func (b *Broker) Changes(ctx context.Context) (<-chan core.ChangeNotice, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	out := make(chan core.ChangeNotice, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n core.ChangeNotice
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					b.log.WithError(err).Warn("dropping malformed change notice")
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
