package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ChangeOp is the operation announced on a store's events channel.
type ChangeOp string

const (
	ChangeAdd    ChangeOp = "add"
	ChangeUpdate ChangeOp = "update"
	ChangeRemove ChangeOp = "remove"
)

// ChangeEvent is the JSON payload published on store event channels whenever
// a document is added, updated, or removed.
type ChangeEvent struct {
	Op  ChangeOp        `json:"op"`
	Key string          `json:"key"`
	Doc json.RawMessage `json:"doc,omitempty"`
}

// SignalBus is a fire-and-forget pub/sub channel between components.
type SignalBus interface {
	// Publish sends a raw payload to a channel.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads. The subscription is torn
	// down and the returned channel closed when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// OrderRequestStore holds order intents, keyed by (market, asset, side).
// Mutations publish ChangeEvents on the store's events channel.
type OrderRequestStore interface {
	Add(ctx context.Context, req OrderRequest) error
	Remove(ctx context.Context, market, asset string, side Side) error
	Get(ctx context.Context, market, asset string, side Side) (OrderRequest, error)
	// GetActive returns all active intents, optionally filtered by market
	// (empty market matches all).
	GetActive(ctx context.Context, market string) ([]OrderRequest, error)
	// CleanupStalePointers removes set members whose document is gone.
	CleanupStalePointers(ctx context.Context) (int, error)
}

// TradeRecordStore holds fill records, keyed by (market, asset, side, order ID).
type TradeRecordStore interface {
	Add(ctx context.Context, rec TradeRecord) error
	Get(ctx context.Context, key string) (TradeRecord, error)
	GetActive(ctx context.Context, market string) ([]TradeRecord, error)
	// Deactivate clears the active flag without deleting the record.
	Deactivate(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
	CleanupStalePointers(ctx context.Context) (int, error)
}

// SlugStore holds the set of market slugs the hunter subscribes to.
type SlugStore interface {
	Add(ctx context.Context, slug string) error
	Remove(ctx context.Context, slug string) error
	List(ctx context.Context) ([]string, error)
}

// ContextStore caches the latest MarketContext per asset and publishes
// context updates on its events channel.
type ContextStore interface {
	Set(ctx context.Context, mc MarketContext) error
	Get(ctx context.Context, assetID string) (MarketContext, error)
}

// NotificationPublisher pushes notifications onto the notifications channel.
type NotificationPublisher interface {
	Publish(ctx context.Context, n Notification) error
}

// SnapshotSink is the relational sink for fills and trade events.
type SnapshotSink interface {
	// InsertSnapshot writes a fill row; duplicates on (order_id, matched_ts)
	// are silently skipped.
	InsertSnapshot(ctx context.Context, snap TradeSnapshot) error
	InsertEvent(ctx context.Context, ev TradeEvent) error
	// ListSnapshotsSince returns fills created at or after since.
	ListSnapshotsSince(ctx context.Context, since time.Time) ([]TradeSnapshot, error)
}

// OpenOrder is a resting order as reported by the exchange.
type OpenOrder struct {
	OrderID   string
	AssetID   string
	Side      Side
	Price     float64
	Size      float64
	Status    TradeStatus
	CreatedAt time.Time
}

// Position is a token position as reported by the Data API.
type Position struct {
	AssetID     string
	ConditionID string
	Size        float64
	AvgPrice    float64
	Redeemable  bool
	Outcome     string
}

// Exchange is the order-entry surface of the CLOB REST API.
type Exchange interface {
	// PlaceOrder signs and submits an order, returning the exchange order ID.
	PlaceOrder(ctx context.Context, req OrderRequest, negRisk bool) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	ListOpenOrders(ctx context.Context, market string) ([]OpenOrder, error)
	// Redeem claims winnings for a resolved condition.
	Redeem(ctx context.Context, conditionID string, negRisk bool) error
}

// MarketCatalog resolves market metadata from the Gamma API.
type MarketCatalog interface {
	MarketBySlug(ctx context.Context, slug string) (Market, error)
	// HourlyMarkets lists currently listed short-horizon markets.
	HourlyMarkets(ctx context.Context) ([]Market, error)
}

// PositionSource lists the wallet's current token positions.
type PositionSource interface {
	Positions(ctx context.Context) ([]Position, error)
}
