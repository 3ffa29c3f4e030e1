// Package notify delivers operator notifications. Components publish
// domain.Notification values on the notifications channel; the subscriber in
// this package fans them out to all configured senders (Telegram, Discord),
// filtered by notification kind.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a
// set of allowed kinds; Notify only forwards notifications whose kind is in
// the allowed set, while NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	kinds   map[domain.NotificationKind]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// notifications whose kind appears in kinds are forwarded by Notify. If
// kinds is empty, everything passes.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.NotificationKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[domain.NotificationKind(strings.TrimSpace(k))] = true
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers a notification if its kind is in the allowed list. If no
// kinds were configured, all kinds pass.
func (n *Notifier) Notify(ctx context.Context, msg domain.Notification) error {
	if len(n.kinds) > 0 && !n.kinds[msg.Kind] {
		n.logger.DebugContext(ctx, "notification filtered out",
			slog.String("kind", string(msg.Kind)),
		)
		return nil
	}
	return n.dispatch(ctx, msg.Title, msg.Body)
}

// NotifyAll delivers a notification regardless of kind.
func (n *Notifier) NotifyAll(ctx context.Context, msg domain.Notification) error {
	return n.dispatch(ctx, msg.Title, msg.Body)
}

// dispatch sends to every sender. Individual failures are collected into a
// combined error so one bad channel does not block the others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
