package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// Resolver sweeps markets that have ended: it cancels stale resting orders,
// redeems winning positions, and closes out the bookkeeping for losers.
type Resolver struct {
	slugs         domain.SlugStore
	catalog       domain.MarketCatalog
	exchange      domain.Exchange
	positions     domain.PositionSource
	records       domain.TradeRecordStore
	requests      domain.OrderRequestStore
	notify        domain.NotificationPublisher
	staleOrderAge time.Duration
	logger        *slog.Logger
}

// NewResolver builds the resolution sweep.
func NewResolver(
	slugs domain.SlugStore,
	catalog domain.MarketCatalog,
	exchange domain.Exchange,
	positions domain.PositionSource,
	records domain.TradeRecordStore,
	requests domain.OrderRequestStore,
	notify domain.NotificationPublisher,
	staleOrderAge time.Duration,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		slugs:         slugs,
		catalog:       catalog,
		exchange:      exchange,
		positions:     positions,
		records:       records,
		requests:      requests,
		notify:        notify,
		staleOrderAge: staleOrderAge,
		logger:        logger.With(slog.String("component", "resolver")),
	}
}

// Sweep runs one resolution pass over every subscribed market.
func (r *Resolver) Sweep(ctx context.Context) error {
	slugs, err := r.slugs.List(ctx)
	if err != nil {
		return fmt.Errorf("service: list slugs: %w", err)
	}

	now := time.Now().UTC()
	for _, slug := range slugs {
		market, err := r.catalog.MarketBySlug(ctx, slug)
		if err != nil {
			r.logger.Warn("market lookup failed",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !market.Ended(now) {
			continue
		}

		r.cancelStaleOrders(ctx, market, now)

		if market.Resolved {
			if err := r.settle(ctx, market); err != nil {
				r.logger.Warn("settlement failed",
					slog.String("slug", slug),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}

// cancelStaleOrders cancels resting orders on an ended market once they have
// been live longer than the configured age.
func (r *Resolver) cancelStaleOrders(ctx context.Context, market domain.Market, now time.Time) {
	orders, err := r.exchange.ListOpenOrders(ctx, market.ConditionID)
	if err != nil {
		r.logger.Warn("open order listing failed",
			slog.String("slug", market.Slug),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, order := range orders {
		if order.Status != domain.TradeStatusLive {
			continue
		}
		if !order.CreatedAt.IsZero() && now.Sub(order.CreatedAt) < r.staleOrderAge {
			continue
		}
		if err := r.exchange.CancelOrder(ctx, order.OrderID); err != nil {
			r.logger.Warn("cancel failed",
				slog.String("order_id", order.OrderID),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.logger.Info("stale order cancelled",
			slog.String("slug", market.Slug),
			slog.String("order_id", order.OrderID),
			slog.String("side", string(order.Side)),
		)

		key := domain.TradeRecord{
			MarketSlug: market.Slug, AssetID: order.AssetID,
			Side: order.Side, OrderID: order.OrderID,
		}.Key()
		if err := r.records.Deactivate(ctx, key); err != nil {
			r.logger.Debug("record deactivate skipped",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		if err := r.requests.Remove(ctx, market.Slug, order.AssetID, order.Side); err != nil {
			r.logger.Debug("intent cleanup skipped", slog.String("error", err.Error()))
		}
	}
}

// settle redeems any redeemable position on the resolved market and folds
// the outcome into the trade records.
func (r *Resolver) settle(ctx context.Context, market domain.Market) error {
	positions, err := r.positions.Positions(ctx)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	redeemed := false
	for _, pos := range positions {
		if pos.ConditionID != market.ConditionID || !pos.Redeemable || pos.Size <= 0 {
			continue
		}
		if err := r.exchange.Redeem(ctx, market.ConditionID, market.NegRisk); err != nil {
			return fmt.Errorf("redeem %s: %w", market.Slug, err)
		}
		redeemed = true

		won := pos.AssetID == market.WinningAsset
		outcome := "LOST"
		payout := 0.0
		if won {
			outcome = "WON"
			payout = pos.Size
		}

		now := time.Now().UTC()
		rec := domain.TradeRecord{
			MarketSlug:   market.Slug,
			AssetID:      pos.AssetID,
			Side:         domain.SideSell,
			OrderID:      "redeem-" + market.ConditionID,
			Status:       domain.TradeStatusRedeemed,
			Price:        1,
			OriginalSize: pos.Size,
			Matched:      payout,
			MatchedTS:    now,
			Source:       domain.SourceResolution,
			CreatedAt:    now,
			Outcome:      outcome,
			Redeemed:     true,
		}
		if err := r.records.Add(ctx, rec); err != nil {
			return fmt.Errorf("record redemption: %w", err)
		}

		// The entry record for this asset is no longer an open position.
		opens, err := r.records.GetActive(ctx, market.Slug)
		if err == nil {
			for _, open := range opens {
				if open.AssetID == pos.AssetID && open.Side == domain.SideBuy {
					_ = r.records.Deactivate(ctx, open.Key())
				}
			}
		}

		n := domain.Notification{
			Kind:  domain.NotifyResolution,
			Title: "Market resolved",
			Body: fmt.Sprintf("%s: %s %.2f shares, payout $%.2f",
				market.Slug, outcome, pos.Size, payout),
		}
		if err := r.notify.Publish(ctx, n); err != nil {
			r.logger.Warn("notification publish failed", slog.String("error", err.Error()))
		}
	}

	if !redeemed {
		r.logger.Debug("nothing to redeem", slog.String("slug", market.Slug))
	}
	return nil
}
