package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// OrderRequestStore implements domain.OrderRequestStore. Intents are keyed
// by (market, asset, side), so a newer intent for the same slot replaces the
// older one and the events channel announces it as an update.
type OrderRequestStore struct {
	docStore
}

// NewOrderRequestStore creates the store under <prefix>:order_requests.
func NewOrderRequestStore(c *Client) *OrderRequestStore {
	return &OrderRequestStore{docStore: newDocStore(c, "order_requests")}
}

// EventsChannel returns the pub/sub channel carrying this store's changes.
func (s *OrderRequestStore) EventsChannel() string { return s.events }

// Add validates and upserts an intent.
func (s *OrderRequestStore) Add(ctx context.Context, req domain.OrderRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	req.Active = true

	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("redis: marshal order request: %w", err)
	}
	return s.add(ctx, req.Key(), doc)
}

// Remove deletes the intent in the (market, asset, side) slot.
func (s *OrderRequestStore) Remove(ctx context.Context, market, asset string, side domain.Side) error {
	return s.remove(ctx, fmt.Sprintf("%s:%s:%s", market, asset, side))
}

// Get fetches the intent in the (market, asset, side) slot.
func (s *OrderRequestStore) Get(ctx context.Context, market, asset string, side domain.Side) (domain.OrderRequest, error) {
	data, err := s.get(ctx, fmt.Sprintf("%s:%s:%s", market, asset, side))
	if err != nil {
		return domain.OrderRequest{}, err
	}

	var req domain.OrderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.OrderRequest{}, fmt.Errorf("redis: decode order request: %w", err)
	}
	return req, nil
}

// GetActive scans the member set and returns all active intents, optionally
// filtered by market slug.
func (s *OrderRequestStore) GetActive(ctx context.Context, market string) ([]domain.OrderRequest, error) {
	keys, err := s.members(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.OrderRequest
	for _, key := range keys {
		if market != "" && !strings.HasPrefix(key, market+":") {
			continue
		}
		data, err := s.get(ctx, key)
		if err != nil {
			// Stale pointer; skipped here, reaped by CleanupStalePointers.
			continue
		}
		var req domain.OrderRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		if req.Active {
			out = append(out, req)
		}
	}
	return out, nil
}

// CleanupStalePointers removes members whose document has vanished.
func (s *OrderRequestStore) CleanupStalePointers(ctx context.Context) (int, error) {
	return s.cleanupStalePointers(ctx)
}

// Compile-time interface check.
var _ domain.OrderRequestStore = (*OrderRequestStore)(nil)
