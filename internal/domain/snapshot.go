package domain

import "time"

// TradeSnapshot is the flattened row the trade subscriber writes to the
// relational sink for every new fill. Rows are deduplicated on
// (OrderID, MatchedTS).
type TradeSnapshot struct {
	OrderID    string        `json:"order_id"`
	MarketSlug string        `json:"market_slug"`
	AssetID    string        `json:"asset_id"`
	Side       Side          `json:"side"`
	Price      float64       `json:"price"`
	Size       float64       `json:"size"`
	Matched    float64       `json:"matched"`
	MatchedTS  time.Time     `json:"matched_ts"`
	Status     TradeStatus   `json:"status"`
	Source     RequestSource `json:"source,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// SnapshotFromRecord flattens a TradeRecord into a sink row.
func SnapshotFromRecord(r TradeRecord) TradeSnapshot {
	return TradeSnapshot{
		OrderID:    r.OrderID,
		MarketSlug: r.MarketSlug,
		AssetID:    r.AssetID,
		Side:       r.Side,
		Price:      r.Price,
		Size:       r.OriginalSize,
		Matched:    r.Matched,
		MatchedTS:  r.MatchedTS,
		Status:     r.Status,
		Source:     r.Source,
		CreatedAt:  r.CreatedAt,
	}
}
