package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// TradeRecordStore implements domain.TradeRecordStore. Records are keyed by
// (market, asset, side, order ID) so repeated fills of the same order merge
// into one document.
type TradeRecordStore struct {
	docStore
}

// NewTradeRecordStore creates the store under <prefix>:trade_records.
func NewTradeRecordStore(c *Client) *TradeRecordStore {
	return &TradeRecordStore{docStore: newDocStore(c, "trade_records")}
}

// EventsChannel returns the pub/sub channel carrying this store's changes.
func (s *TradeRecordStore) EventsChannel() string { return s.events }

// Add upserts a record.
func (s *TradeRecordStore) Add(ctx context.Context, rec domain.TradeRecord) error {
	if rec.OrderID == "" {
		return fmt.Errorf("%w: trade record missing order id", domain.ErrInvalidInput)
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal trade record: %w", err)
	}
	return s.add(ctx, rec.Key(), doc)
}

// Get fetches a record by its composite key.
func (s *TradeRecordStore) Get(ctx context.Context, key string) (domain.TradeRecord, error) {
	data, err := s.get(ctx, key)
	if err != nil {
		return domain.TradeRecord{}, err
	}

	var rec domain.TradeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.TradeRecord{}, fmt.Errorf("redis: decode trade record: %w", err)
	}
	return rec, nil
}

// GetActive returns all active records, optionally filtered by market slug.
func (s *TradeRecordStore) GetActive(ctx context.Context, market string) ([]domain.TradeRecord, error) {
	keys, err := s.members(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.TradeRecord
	for _, key := range keys {
		if market != "" && !strings.HasPrefix(key, market+":") {
			continue
		}
		data, err := s.get(ctx, key)
		if err != nil {
			continue
		}
		var rec domain.TradeRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.Active {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Deactivate clears the record's active flag in place. The update is
// announced on the events channel like any other mutation.
func (s *TradeRecordStore) Deactivate(ctx context.Context, key string) error {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if !rec.Active {
		return nil
	}
	rec.Active = false
	return s.Add(ctx, rec)
}

// Remove deletes a record by key.
func (s *TradeRecordStore) Remove(ctx context.Context, key string) error {
	return s.remove(ctx, key)
}

// CleanupStalePointers removes members whose document has vanished.
func (s *TradeRecordStore) CleanupStalePointers(ctx context.Context) (int, error) {
	return s.cleanupStalePointers(ctx)
}

// Compile-time interface check.
var _ domain.TradeRecordStore = (*TradeRecordStore)(nil)
