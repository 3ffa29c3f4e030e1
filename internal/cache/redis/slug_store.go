package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// SlugStore implements domain.SlugStore: a plain set of market slugs plus an
// events channel so the subscription manager can react to runtime changes.
type SlugStore struct {
	rdb    *redis.Client
	set    string
	events string
}

// NewSlugStore creates the store under <prefix>:slugs.
func NewSlugStore(c *Client) *SlugStore {
	return &SlugStore{
		rdb:    c.rdb,
		set:    c.key("slugs"),
		events: c.key("slugs", "events"),
	}
}

// EventsChannel returns the pub/sub channel carrying slug changes.
func (s *SlugStore) EventsChannel() string { return s.events }

// Add registers a slug and publishes "add" when it was not already present.
func (s *SlugStore) Add(ctx context.Context, slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: empty slug", domain.ErrInvalidInput)
	}

	added, err := s.rdb.SAdd(ctx, s.set, slug).Result()
	if err != nil {
		return fmt.Errorf("redis: add slug %s: %w", slug, err)
	}
	if added == 0 {
		return nil
	}
	return s.publish(ctx, domain.ChangeAdd, slug)
}

// Remove deregisters a slug and publishes "remove" when it was present.
func (s *SlugStore) Remove(ctx context.Context, slug string) error {
	removed, err := s.rdb.SRem(ctx, s.set, slug).Result()
	if err != nil {
		return fmt.Errorf("redis: remove slug %s: %w", slug, err)
	}
	if removed == 0 {
		return nil
	}
	return s.publish(ctx, domain.ChangeRemove, slug)
}

// List returns every registered slug.
func (s *SlugStore) List(ctx context.Context) ([]string, error) {
	slugs, err := s.rdb.SMembers(ctx, s.set).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list slugs: %w", err)
	}
	return slugs, nil
}

func (s *SlugStore) publish(ctx context.Context, op domain.ChangeOp, slug string) error {
	payload, err := json.Marshal(domain.ChangeEvent{Op: op, Key: slug})
	if err != nil {
		return fmt.Errorf("redis: marshal slug event: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.events, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", s.events, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SlugStore = (*SlugStore)(nil)
