// Package service contains the long-running workers that react to store
// events: the order executor, the trade subscriber, the resolution sweep,
// and the periodic report.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// NegRiskResolver reports whether a market settles through the negative-risk
// adapter, which changes the exchange contract orders are signed against.
type NegRiskResolver interface {
	NegRisk(marketSlug string) bool
}

// Executor subscribes to the order-request events channel and places every
// newly added intent on the exchange.
type Executor struct {
	bus      domain.SignalBus
	channel  string
	requests domain.OrderRequestStore
	exchange domain.Exchange
	negRisk  NegRiskResolver
	sink     domain.SnapshotSink
	notify   domain.NotificationPublisher
	logger   *slog.Logger
}

// NewExecutor wires the executor to the request store's events channel.
func NewExecutor(
	bus domain.SignalBus,
	eventsChannel string,
	requests domain.OrderRequestStore,
	exchange domain.Exchange,
	negRisk NegRiskResolver,
	sink domain.SnapshotSink,
	notify domain.NotificationPublisher,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		bus:      bus,
		channel:  eventsChannel,
		requests: requests,
		exchange: exchange,
		negRisk:  negRisk,
		sink:     sink,
		notify:   notify,
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// Run consumes intent events until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	events, err := e.bus.Subscribe(ctx, e.channel)
	if err != nil {
		return fmt.Errorf("service: subscribe %s: %w", e.channel, err)
	}

	e.logger.Info("executor started", slog.String("channel", e.channel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-events:
			if !ok {
				return nil
			}
			var change domain.ChangeEvent
			if err := json.Unmarshal(payload, &change); err != nil {
				e.logger.Warn("bad change event", slog.String("error", err.Error()))
				continue
			}
			if change.Op != domain.ChangeAdd && change.Op != domain.ChangeUpdate {
				continue
			}

			var req domain.OrderRequest
			if err := json.Unmarshal(change.Doc, &req); err != nil {
				e.logger.Warn("bad intent document",
					slog.String("key", change.Key),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !req.Active {
				continue
			}

			e.execute(ctx, req)
		}
	}
}

// execute places one intent and clears the correct slot afterwards.
//
// The slot cleared depends on side and outcome: a successful SELL closes the
// position, so the opposite BUY slot is freed for re-entry; a failed SELL
// frees its own slot for retry. Symmetrically, a successful BUY frees the
// SELL slot and a failed BUY frees the BUY slot.
func (e *Executor) execute(ctx context.Context, req domain.OrderRequest) {
	negRisk := e.negRisk != nil && e.negRisk.NegRisk(req.MarketSlug)

	orderID, err := e.exchange.PlaceOrder(ctx, req, negRisk)
	success := err == nil

	if success {
		e.logger.Info("order placed",
			slog.String("market", req.MarketSlug),
			slog.String("asset_id", req.AssetID),
			slog.String("side", string(req.Side)),
			slog.Float64("price", req.Price),
			slog.Float64("size", req.Size),
			slog.String("order_id", orderID),
		)
		e.publishNotification(ctx, domain.Notification{
			Kind:  domain.NotifyOrder,
			Title: "Order placed",
			Body: fmt.Sprintf("%s %s %.0f @ %.3f (%s)",
				req.Side, req.MarketSlug, req.Size, req.Price, req.Source),
		})
	} else {
		e.logger.Error("order failed",
			slog.String("market", req.MarketSlug),
			slog.String("asset_id", req.AssetID),
			slog.String("side", string(req.Side)),
			slog.String("error", err.Error()),
		)
		tev := domain.NewTradeEvent(
			domain.EventClobAPIError, domain.EventStateFailed,
			req.MarketSlug, req.AssetID, req.Side, err.Error(),
		)
		if serr := e.sink.InsertEvent(ctx, tev); serr != nil {
			e.logger.Warn("event insert failed", slog.String("error", serr.Error()))
		}
		e.publishNotification(ctx, domain.Notification{
			Kind:  domain.NotifyError,
			Title: "Order failed",
			Body:  fmt.Sprintf("%s %s: %v", req.Side, req.MarketSlug, err),
		})
	}

	removeBuy := (req.Side == domain.SideSell) == success
	side := domain.SideSell
	if removeBuy {
		side = domain.SideBuy
	}
	if err := e.requests.Remove(ctx, req.MarketSlug, req.AssetID, side); err != nil {
		e.logger.Warn("slot cleanup failed",
			slog.String("market", req.MarketSlug),
			slog.String("side", string(side)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) publishNotification(ctx context.Context, n domain.Notification) {
	nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.notify.Publish(nctx, n); err != nil {
		e.logger.Warn("notification publish failed", slog.String("error", err.Error()))
	}
}
