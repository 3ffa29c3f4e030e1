package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// TradeSubscriber listens to trade-record changes, writes confirmed fills to
// the relational sink, deactivates the opposite-side record when a position
// closes, and notifies the operator.
type TradeSubscriber struct {
	bus     domain.SignalBus
	channel string
	records domain.TradeRecordStore
	sink    domain.SnapshotSink
	notify  domain.NotificationPublisher
	logger  *slog.Logger
}

// NewTradeSubscriber wires the subscriber to the record store's events channel.
func NewTradeSubscriber(
	bus domain.SignalBus,
	eventsChannel string,
	records domain.TradeRecordStore,
	sink domain.SnapshotSink,
	notify domain.NotificationPublisher,
	logger *slog.Logger,
) *TradeSubscriber {
	return &TradeSubscriber{
		bus:     bus,
		channel: eventsChannel,
		records: records,
		sink:    sink,
		notify:  notify,
		logger:  logger.With(slog.String("component", "trade_subscriber")),
	}
}

// Run consumes record events until ctx is cancelled.
func (s *TradeSubscriber) Run(ctx context.Context) error {
	events, err := s.bus.Subscribe(ctx, s.channel)
	if err != nil {
		return fmt.Errorf("service: subscribe %s: %w", s.channel, err)
	}

	s.logger.Info("trade subscriber started", slog.String("channel", s.channel))

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
				s.logger.Warn("bad change event", slog.String("error", err.Error()))
				continue
			}
			if change.Op == domain.ChangeRemove {
				continue
			}

			var rec domain.TradeRecord
			if err := json.Unmarshal(change.Doc, &rec); err != nil {
				s.logger.Warn("bad record document",
					slog.String("key", change.Key),
					slog.String("error", err.Error()),
				)
				continue
			}

			if err := s.process(ctx, rec); err != nil {
				s.logger.Warn("record processing failed",
					slog.String("key", change.Key),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// process persists one record change. Only confirmed fills with a matched
// timestamp produce snapshot rows; the sink deduplicates replays on
// (order_id, matched_ts).
func (s *TradeSubscriber) process(ctx context.Context, rec domain.TradeRecord) error {
	if rec.Status != domain.TradeStatusConfirmed && rec.Status != domain.TradeStatusRedeemed {
		return nil
	}
	if rec.MatchedTS.IsZero() {
		return nil
	}

	if err := s.sink.InsertSnapshot(ctx, domain.SnapshotFromRecord(rec)); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	// A confirmed SELL closes the position: the BUY record on the same
	// asset stops being an open position.
	if rec.Side == domain.SideSell && rec.Status == domain.TradeStatusConfirmed {
		opens, err := s.records.GetActive(ctx, rec.MarketSlug)
		if err != nil {
			return fmt.Errorf("list open records: %w", err)
		}
		for _, open := range opens {
			if open.AssetID == rec.AssetID && open.Side == domain.SideBuy {
				if err := s.records.Deactivate(ctx, open.Key()); err != nil {
					s.logger.Warn("deactivate failed",
						slog.String("key", open.Key()),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}

	nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n := domain.Notification{
		Kind:  domain.NotifyTrade,
		Title: "Fill confirmed",
		Body: fmt.Sprintf("%s %s %.2f shares @ %.3f ($%.2f matched)",
			rec.Side, rec.MarketSlug, rec.OriginalSize, rec.Price, rec.Matched),
	}
	if err := s.notify.Publish(nctx, n); err != nil {
		s.logger.Warn("notification publish failed", slog.String("error", err.Error()))
	}
	return nil
}
