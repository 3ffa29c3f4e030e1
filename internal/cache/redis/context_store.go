package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// ContextStore caches the latest MarketContext per asset and publishes every
// update on <prefix>:market_context:events. Documents carry a TTL so dead
// assets age out without a reaper.
type ContextStore struct {
	rdb    *redis.Client
	docKey string
	events string
}

// contextTTL bounds how long a stale context survives.
const contextTTL = time.Hour

// NewContextStore creates the store under <prefix>:market_context.
func NewContextStore(c *Client) *ContextStore {
	return &ContextStore{
		rdb:    c.rdb,
		docKey: c.key("market_context", "doc"),
		events: c.key("market_context", "events"),
	}
}

// EventsChannel returns the pub/sub channel carrying context updates.
func (s *ContextStore) EventsChannel() string { return s.events }

// Set stores the latest context for the asset and publishes it.
func (s *ContextStore) Set(ctx context.Context, mc domain.MarketContext) error {
	doc, err := json.Marshal(mc)
	if err != nil {
		return fmt.Errorf("redis: marshal market context: %w", err)
	}

	key := s.docKey + ":" + mc.AssetID
	if err := s.rdb.Set(ctx, key, doc, contextTTL).Err(); err != nil {
		return fmt.Errorf("redis: set market context %s: %w", mc.AssetID, err)
	}
	if err := s.rdb.Publish(ctx, s.events, doc).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", s.events, err)
	}
	return nil
}

// Get returns the latest context for the asset.
func (s *ContextStore) Get(ctx context.Context, assetID string) (domain.MarketContext, error) {
	data, err := s.rdb.Get(ctx, s.docKey+":"+assetID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MarketContext{}, fmt.Errorf("redis: market context %s: %w", assetID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.MarketContext{}, fmt.Errorf("redis: get market context %s: %w", assetID, err)
	}

	var mc domain.MarketContext
	if err := json.Unmarshal(data, &mc); err != nil {
		return domain.MarketContext{}, fmt.Errorf("redis: decode market context: %w", err)
	}
	return mc, nil
}

// Compile-time interface check.
var _ domain.ContextStore = (*ContextStore)(nil)
