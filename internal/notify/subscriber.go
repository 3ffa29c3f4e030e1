package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// Subscriber bridges the notifications pub/sub channel to the Notifier, so
// producers never block on slow delivery channels.
type Subscriber struct {
	bus      domain.SignalBus
	channel  string
	notifier *Notifier
	logger   *slog.Logger
}

// NewSubscriber wires the bridge to the given bus channel.
func NewSubscriber(bus domain.SignalBus, channel string, notifier *Notifier, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		bus:      bus,
		channel:  channel,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_subscriber")),
	}
}

// Run consumes notifications until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	messages, err := s.bus.Subscribe(ctx, s.channel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", s.channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-messages:
			if !ok {
				return nil
			}
			var msg domain.Notification
			if err := json.Unmarshal(payload, &msg); err != nil {
				s.logger.Warn("bad notification payload", slog.String("error", err.Error()))
				continue
			}
			if err := s.notifier.Notify(ctx, msg); err != nil {
				s.logger.Warn("delivery failed",
					slog.String("kind", string(msg.Kind)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
