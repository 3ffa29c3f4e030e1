package domain

import "time"

// MarketContext is the per-asset market view assembled by the price handler
// after every processed feed event. It is the single input to strategy
// evaluation and is published on the signal bus for observers.
type MarketContext struct {
	MarketSlug   string  `json:"market_slug"`
	AssetID      string  `json:"asset_id"`
	BestBid      float64 `json:"best_bid"`
	BestBidSize  float64 `json:"best_bid_size"`
	BestAsk      float64 `json:"best_ask"`
	BestAskSize  float64 `json:"best_ask_size"`
	Mid          float64 `json:"mid"`
	Spread       float64 `json:"spread"`
	LastTrade    float64 `json:"last_trade"`
	TickSize     float64 `json:"tick_size"`
	OrderMinSize float64 `json:"order_min_size"`

	Trend TrendPrediction `json:"trend"`

	UpdatedAt time.Time `json:"updated_at"`
	Seq       uint64    `json:"seq"`
}

// HasBook reports whether both sides of the book are populated.
func (c MarketContext) HasBook() bool {
	return c.BestBid > 0 && c.BestAsk > 0
}

// PriceForSide returns the marketable price for the given side: the best ask
// when buying, the best bid when selling.
func (c MarketContext) PriceForSide(side Side) float64 {
	if side == SideBuy {
		return c.BestAsk
	}
	return c.BestBid
}
