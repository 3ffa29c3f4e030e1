package domain

import "time"

// NotificationKind groups notifications for operator-side filtering.
type NotificationKind string

const (
	NotifyTrade      NotificationKind = "trade"
	NotifyOrder      NotificationKind = "order"
	NotifyResolution NotificationKind = "resolution"
	NotifyReport     NotificationKind = "report"
	NotifyError      NotificationKind = "error"
)

// Notification is an operator-facing message published on the notifications
// channel and delivered by the configured senders.
type Notification struct {
	ID    string           `json:"id"`
	Kind  NotificationKind `json:"kind"`
	Title string           `json:"title"`
	Body  string           `json:"body"`
	At    time.Time        `json:"at"`
}
