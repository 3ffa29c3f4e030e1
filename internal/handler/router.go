// Package handler turns coalesced feed events into market contexts, strategy
// evaluations, and trade record updates. One Router instance serves every
// actor; all per-asset mutable state lives in maps keyed by asset ID and is
// only touched from that asset's actor goroutine via per-asset locks.
package handler

import (
	"context"
	"log/slog"

	"github.com/hunterlabs/polyhunter/internal/domain"
	"github.com/hunterlabs/polyhunter/internal/feed"
)

// MarketIndex resolves the market an asset belongs to. The subscription
// manager maintains it as markets are added and pruned.
type MarketIndex interface {
	MarketByAsset(assetID string) (domain.Market, bool)
}

// Router dispatches coalesced events to the price and user pipelines. It
// implements the actor handler contract.
type Router struct {
	price  *PriceHandler
	orders *OrderHandler
	trades *TradeHandler
	logger *slog.Logger
}

// NewRouter wires the three pipelines behind a single dispatch point.
func NewRouter(price *PriceHandler, orders *OrderHandler, trades *TradeHandler, logger *slog.Logger) *Router {
	return &Router{
		price:  price,
		orders: orders,
		trades: trades,
		logger: logger.With(slog.String("component", "router")),
	}
}

// Handle processes the latest coalesced events for one asset. Market data is
// applied before user events so fills are merged against a current book.
func (r *Router) Handle(ctx context.Context, assetID string, latest map[string]feed.Event) {
	marketDirty := false
	for _, typ := range []string{"book", "price_change", "tick_size_change", "last_trade_price"} {
		ev, ok := latest[typ]
		if !ok {
			continue
		}
		if err := r.price.Apply(ctx, assetID, ev); err != nil {
			r.logger.Warn("market event failed",
				slog.String("asset_id", assetID),
				slog.String("event_type", typ),
				slog.String("error", err.Error()),
			)
			continue
		}
		marketDirty = true
	}
	if marketDirty {
		if err := r.price.Publish(ctx, assetID); err != nil {
			r.logger.Warn("context publish failed",
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}
	}

	if ev, ok := latest["order"]; ok {
		if err := r.orders.Apply(ctx, ev); err != nil {
			r.logger.Warn("order event failed",
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}
	}
	if ev, ok := latest["trade"]; ok {
		if err := r.trades.Apply(ctx, ev); err != nil {
			r.logger.Warn("trade event failed",
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}
	}
}
