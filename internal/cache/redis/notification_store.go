package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// NotificationStore publishes operator notifications on
// <prefix>:notifications:events. The notify subscriber bridges the channel
// to the configured senders.
type NotificationStore struct {
	rdb    *redis.Client
	events string
}

// NewNotificationStore creates the publisher under <prefix>:notifications.
func NewNotificationStore(c *Client) *NotificationStore {
	return &NotificationStore{
		rdb:    c.rdb,
		events: c.key("notifications", "events"),
	}
}

// EventsChannel returns the pub/sub channel carrying notifications.
func (s *NotificationStore) EventsChannel() string { return s.events }

// Publish stamps the notification with an ID and timestamp when missing and
// pushes it onto the channel.
func (s *NotificationStore) Publish(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("redis: marshal notification: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.events, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", s.events, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.NotificationPublisher = (*NotificationStore)(nil)
