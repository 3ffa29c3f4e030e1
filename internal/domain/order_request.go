package domain

import (
	"fmt"
	"time"
)

// RequestSource records which component produced an order intent.
type RequestSource string

const (
	SourceStrategyEnter RequestSource = "STRATEGY_ENTER"
	SourceStrategyExit  RequestSource = "STRATEGY_EXIT"
	SourceStopLoss      RequestSource = "STOP_LOSS"
	SourceTakeProfit    RequestSource = "TAKE_PROFIT"
	SourceManual        RequestSource = "MANUAL"
	SourceResolution    RequestSource = "RESOLUTION"
)

// OrderRequest is an order intent. At most one active intent exists per
// (market, asset, side); the store key is derived from those three fields so
// a newer intent for the same slot overwrites the older one.
//
// Entry intents carry the exit parameters of the rule that produced them.
// The BUY intent stays in its slot after placement, so exit evaluation reads
// StopLoss, TakeProfit and Slippage back from the stored intent instead of
// re-matching rule predicates against a market that may have moved on.
type OrderRequest struct {
	ID           string        `json:"id"`
	MarketSlug   string        `json:"market_slug"`
	AssetID      string        `json:"asset_id"`
	Side         Side          `json:"side"`
	Price        float64       `json:"price"`
	Size         float64       `json:"size"`
	OrderType    OrderType     `json:"order_type"`
	Source       RequestSource `json:"source"`
	StrategyName string        `json:"strategy_name,omitempty"`
	StopLoss     float64       `json:"stop_loss,omitempty"`
	TakeProfit   float64       `json:"take_profit,omitempty"`
	Slippage     float64       `json:"slippage,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	Expiration   time.Time     `json:"expiration,omitzero"`
	Active       bool          `json:"active"`
	Attempts     int           `json:"attempts"`
	LastError    string        `json:"last_error,omitempty"`
}

// Key returns the content address of the intent's slot.
func (r OrderRequest) Key() string {
	return fmt.Sprintf("%s:%s:%s", r.MarketSlug, r.AssetID, r.Side)
}

// Validate checks the intent for fields the executor cannot work without.
func (r OrderRequest) Validate() error {
	switch {
	case r.MarketSlug == "":
		return fmt.Errorf("%w: order request missing market slug", ErrInvalidInput)
	case r.AssetID == "":
		return fmt.Errorf("%w: order request missing asset id", ErrInvalidInput)
	case r.Side != SideBuy && r.Side != SideSell:
		return fmt.Errorf("%w: order request side %q", ErrInvalidInput, r.Side)
	case r.Price <= 0 || r.Price >= 1:
		return fmt.Errorf("%w: order request price %v", ErrInvalidInput, r.Price)
	case r.Size <= 0:
		return fmt.Errorf("%w: order request size %v", ErrInvalidInput, r.Size)
	}
	return nil
}
