package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
	"github.com/hunterlabs/polyhunter/internal/feed"
)

// orderPayload is the user-channel order lifecycle event.
type orderPayload struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Type         string `json:"type"` // PLACEMENT, UPDATE, CANCELLATION
	Status       string `json:"status"`
}

// tradePayload is the user-channel fill event. Depending on which side of
// the cross we were on, our order ID is either the taker order or one of the
// maker orders.
type tradePayload struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	Status       string `json:"status"`
	TraderSide   string `json:"trader_side"` // TAKER or MAKER
	TakerOrderID string `json:"taker_order_id"`
	MakerOrders  []struct {
		OrderID       string `json:"order_id"`
		AssetID       string `json:"asset_id"`
		Side          string `json:"side"`
		MatchedAmount string `json:"matched_amount"`
		Price         string `json:"price"`
	} `json:"maker_orders"`
	MatchTime string `json:"match_time"`
}

// OrderHandler tracks order lifecycle events into trade records.
type OrderHandler struct {
	markets  MarketIndex
	requests domain.OrderRequestStore
	records  domain.TradeRecordStore
}

// NewOrderHandler wires the order lifecycle pipeline.
func NewOrderHandler(markets MarketIndex, requests domain.OrderRequestStore, records domain.TradeRecordStore) *OrderHandler {
	return &OrderHandler{markets: markets, requests: requests, records: records}
}

// Apply folds one order event into the record keyed by the order.
func (h *OrderHandler) Apply(ctx context.Context, ev feed.Event) error {
	var p orderPayload
	if err := json.Unmarshal(ev.Raw, &p); err != nil {
		return fmt.Errorf("handler: decode order event: %w", err)
	}
	if p.ID == "" || p.AssetID == "" {
		return fmt.Errorf("handler: order event missing id or asset")
	}

	market, ok := h.markets.MarketByAsset(p.AssetID)
	if !ok {
		return fmt.Errorf("handler: no market for asset %s", p.AssetID)
	}

	side := domain.Side(p.Side)
	key := domain.TradeRecord{
		MarketSlug: market.Slug, AssetID: p.AssetID, Side: side, OrderID: p.ID,
	}.Key()

	rec, err := h.records.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		rec = domain.TradeRecord{
			MarketSlug: market.Slug,
			AssetID:    p.AssetID,
			Side:       side,
			OrderID:    p.ID,
			Status:     domain.TradeStatusLive,
			CreatedAt:  ev.At,
			Active:     true,
		}
		// Carry the source over from the intent that produced this order.
		if intent, ierr := h.requests.Get(ctx, market.Slug, p.AssetID, side); ierr == nil {
			rec.Source = intent.Source
		}
	case err != nil:
		return fmt.Errorf("handler: load record: %w", err)
	}

	if px, perr := strconv.ParseFloat(p.Price, 64); perr == nil && px > 0 {
		rec.Price = px
	}
	if sz, serr := strconv.ParseFloat(p.OriginalSize, 64); serr == nil && sz > 0 {
		rec.OriginalSize = sz
	}

	switch p.Type {
	case "CANCELLATION":
		rec.Status = domain.TradeStatusCancelled
		rec.Active = false
	default:
		if matched, merr := strconv.ParseFloat(p.SizeMatched, 64); merr == nil && matched > 0 {
			rec.Status = domain.TradeStatusMatched
		}
	}

	rec.AppendEvent(ev.Raw)
	return h.records.Add(ctx, rec)
}

// TradeHandler merges fill events into trade records.
type TradeHandler struct {
	markets MarketIndex
	records domain.TradeRecordStore
}

// NewTradeHandler wires the fill pipeline.
func NewTradeHandler(markets MarketIndex, records domain.TradeRecordStore) *TradeHandler {
	return &TradeHandler{markets: markets, records: records}
}

// Apply merges one fill event. Only CONFIRMED fills settle into the record;
// earlier MATCHED/MINED stages are transient and get superseded.
func (h *TradeHandler) Apply(ctx context.Context, ev feed.Event) error {
	var p tradePayload
	if err := json.Unmarshal(ev.Raw, &p); err != nil {
		return fmt.Errorf("handler: decode trade event: %w", err)
	}
	if p.Status != string(domain.TradeStatusConfirmed) {
		return nil
	}

	market, ok := h.markets.MarketByAsset(p.AssetID)
	if !ok {
		return fmt.Errorf("handler: no market for asset %s", p.AssetID)
	}

	price, _ := strconv.ParseFloat(p.Price, 64)
	size, _ := strconv.ParseFloat(p.Size, 64)
	matchedAt := parseMatchTime(p.MatchTime, ev.At)

	// trader_side says which leg of the cross is ours: the taker order, or
	// one or more of the maker orders. Either way a fill for an order we
	// never saw placed (the placement event was missed) still creates the
	// record, so the position is tracked regardless.
	if p.TraderSide == "TAKER" && p.TakerOrderID != "" {
		rec, err := h.upsert(ctx, market.Slug, p.AssetID, domain.Side(p.Side), p.TakerOrderID, ev.At)
		if err != nil {
			return fmt.Errorf("handler: load taker record: %w", err)
		}
		return h.merge(ctx, rec, price, size, matchedAt, ev)
	}

	for _, mo := range p.MakerOrders {
		assetID := mo.AssetID
		if assetID == "" {
			assetID = p.AssetID
		}
		makerMarket, found := h.markets.MarketByAsset(assetID)
		if !found {
			continue
		}
		moPrice, _ := strconv.ParseFloat(mo.Price, 64)
		moSize, _ := strconv.ParseFloat(mo.MatchedAmount, 64)

		// The maker sits on the opposite side of the taker's print
		// unless the fill spells its side out.
		side := domain.Side(p.Side).Opposite()
		if mo.Side != "" {
			side = domain.Side(mo.Side)
		}
		rec, err := h.upsert(ctx, makerMarket.Slug, assetID, side, mo.OrderID, ev.At)
		if err != nil {
			return fmt.Errorf("handler: load maker record: %w", err)
		}
		if moPrice == 0 {
			moPrice = price
		}
		if err := h.merge(ctx, rec, moPrice, moSize, matchedAt, ev); err != nil {
			return err
		}
	}
	return nil
}

// upsert loads the record for one of our orders, creating it when the fill
// arrives before (or instead of) the placement event.
func (h *TradeHandler) upsert(ctx context.Context, slug, assetID string, side domain.Side, orderID string, at time.Time) (domain.TradeRecord, error) {
	key := domain.TradeRecord{
		MarketSlug: slug, AssetID: assetID, Side: side, OrderID: orderID,
	}.Key()
	rec, err := h.records.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TradeRecord{
			MarketSlug: slug,
			AssetID:    assetID,
			Side:       side,
			OrderID:    orderID,
			Status:     domain.TradeStatusConfirmed,
			CreatedAt:  at,
			Active:     true,
		}, nil
	}
	return rec, err
}

// merge folds one confirmed fill into a record. The matched timestamp only
// moves when the matched notional actually changes, so replays of the same
// confirmation do not look like new fills.
func (h *TradeHandler) merge(ctx context.Context, rec domain.TradeRecord, price, size float64, matchedAt time.Time, ev feed.Event) error {
	newMatched := rec.Matched
	if size > 0 && price > 0 {
		newMatched = size * price
	}

	if newMatched != rec.Matched {
		rec.Matched = newMatched
		rec.MatchedTS = matchedAt
		if size > 0 {
			rec.OriginalSize = size
		}
	}
	if price > 0 {
		rec.Price = price
	}
	rec.Status = domain.TradeStatusConfirmed
	rec.AppendEvent(ev.Raw)

	return h.records.Add(ctx, rec)
}

// parseMatchTime decodes the fill event's match_time epoch seconds.
func parseMatchTime(s string, fallback time.Time) time.Time {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return time.Unix(v, 0).UTC()
}
