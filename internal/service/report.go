package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// Reporter periodically summarizes recent activity into an operator
// notification.
type Reporter struct {
	sink     domain.SnapshotSink
	records  domain.TradeRecordStore
	requests domain.OrderRequestStore
	notify   domain.NotificationPublisher
	window   time.Duration
	logger   *slog.Logger
}

// NewReporter builds the periodic report task. window is the lookback over
// the snapshot table, normally the report interval itself.
func NewReporter(
	sink domain.SnapshotSink,
	records domain.TradeRecordStore,
	requests domain.OrderRequestStore,
	notify domain.NotificationPublisher,
	window time.Duration,
	logger *slog.Logger,
) *Reporter {
	return &Reporter{
		sink:     sink,
		records:  records,
		requests: requests,
		notify:   notify,
		window:   window,
		logger:   logger.With(slog.String("component", "reporter")),
	}
}

// Report assembles and publishes one summary.
func (r *Reporter) Report(ctx context.Context) error {
	since := time.Now().UTC().Add(-r.window)

	snaps, err := r.sink.ListSnapshotsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("service: list snapshots: %w", err)
	}

	var bought, sold, redeemed float64
	fills := 0
	for _, snap := range snaps {
		switch {
		case snap.Status == domain.TradeStatusRedeemed:
			redeemed += snap.Matched
		case snap.Side == domain.SideBuy:
			bought += snap.Matched
			fills++
		case snap.Side == domain.SideSell:
			sold += snap.Matched
			fills++
		}
	}

	open, err := r.records.GetActive(ctx, "")
	if err != nil {
		return fmt.Errorf("service: list open records: %w", err)
	}
	pending, err := r.requests.GetActive(ctx, "")
	if err != nil {
		return fmt.Errorf("service: list pending intents: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Fills: %d (bought $%.2f, sold $%.2f)\n", fills, bought, sold)
	if redeemed > 0 {
		fmt.Fprintf(&b, "Redeemed: $%.2f\n", redeemed)
	}
	fmt.Fprintf(&b, "Open positions: %d, pending intents: %d", countPositions(open), len(pending))

	n := domain.Notification{
		Kind:  domain.NotifyReport,
		Title: fmt.Sprintf("Activity report (%s)", r.window),
		Body:  b.String(),
	}
	if err := r.notify.Publish(ctx, n); err != nil {
		return fmt.Errorf("service: publish report: %w", err)
	}

	r.logger.Info("report published",
		slog.Int("fills", fills),
		slog.Float64("bought", bought),
		slog.Float64("sold", sold),
		slog.Int("open", countPositions(open)),
	)
	return nil
}

func countPositions(records []domain.TradeRecord) int {
	count := 0
	for _, rec := range records {
		if rec.Side == domain.SideBuy && rec.Status == domain.TradeStatusConfirmed {
			count++
		}
	}
	return count
}
