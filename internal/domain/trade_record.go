package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TradeStatus is the lifecycle status of a placed order as reported by the
// user channel and the CLOB REST API.
type TradeStatus string

const (
	TradeStatusLive      TradeStatus = "LIVE"
	TradeStatusMatched   TradeStatus = "MATCHED"
	TradeStatusConfirmed TradeStatus = "CONFIRMED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
	TradeStatusRedeemed  TradeStatus = "REDEEMED"
)

// TradeRecord tracks one placed order and its fills. Records are keyed by
// (market, asset, side, order ID) so partial fills of the same order merge
// into a single record.
type TradeRecord struct {
	MarketSlug string      `json:"market_slug"`
	AssetID    string      `json:"asset_id"`
	Side       Side        `json:"side"`
	OrderID    string      `json:"order_id"`
	Status     TradeStatus `json:"status"`
	Price      float64     `json:"price"`
	// OriginalSize is the submitted order size in shares.
	OriginalSize float64 `json:"original_size"`
	// Matched is the filled notional in USD.
	Matched   float64       `json:"matched"`
	MatchedTS time.Time     `json:"matched_ts,omitzero"`
	Source    RequestSource `json:"source,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Active    bool          `json:"active"`
	Outcome   string        `json:"outcome,omitempty"`
	Redeemed  bool          `json:"redeemed"`

	// Events is the append-only trail of raw feed events that touched this
	// record, kept for audit and replay.
	Events []json.RawMessage `json:"events,omitempty"`
}

// Key returns the content address of the record.
func (t TradeRecord) Key() string {
	return fmt.Sprintf("%s:%s:%s:%s", t.MarketSlug, t.AssetID, t.Side, t.OrderID)
}

// AppendEvent adds a raw feed event to the record's trail.
func (t *TradeRecord) AppendEvent(raw []byte) {
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	t.Events = append(t.Events, cp)
}
