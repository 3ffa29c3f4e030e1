package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
	"github.com/hunterlabs/polyhunter/internal/feed"
	"github.com/hunterlabs/polyhunter/internal/strategy"
	"github.com/hunterlabs/polyhunter/internal/trend"
)

// bookPayload is the full-snapshot market event.
type bookPayload struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// priceChangePayload carries incremental level updates.
type priceChangePayload struct {
	Changes []struct {
		Price string `json:"price"`
		Side  string `json:"side"`
		Size  string `json:"size"`
	} `json:"changes"`
}

// lastTradePayload is the tape print event.
type lastTradePayload struct {
	Price string `json:"price"`
}

// tickSizePayload announces a tick size change for the asset.
type tickSizePayload struct {
	NewTickSize string `json:"new_tick_size"`
}

// assetState is the per-asset market state. It is only mutated while holding
// its own lock, which in practice is uncontended: one actor owns the asset.
type assetState struct {
	mu        sync.Mutex
	book      *book
	filter    *trend.Filter
	lastTrade float64
	tickSize  float64
	context   domain.MarketContext
	hasCtx    bool
}

// PriceHandler maintains per-asset books and trend filters, and feeds the
// evaluator whenever the market state changes.
type PriceHandler struct {
	markets   MarketIndex
	evaluator *strategy.Evaluator
	contexts  domain.ContextStore
	requests  domain.OrderRequestStore
	records   domain.TradeRecordStore
	sink      domain.SnapshotSink

	mu     sync.Mutex
	assets map[string]*assetState
}

// NewPriceHandler wires the market-data pipeline.
func NewPriceHandler(
	markets MarketIndex,
	evaluator *strategy.Evaluator,
	contexts domain.ContextStore,
	requests domain.OrderRequestStore,
	records domain.TradeRecordStore,
	sink domain.SnapshotSink,
) *PriceHandler {
	return &PriceHandler{
		markets:   markets,
		evaluator: evaluator,
		contexts:  contexts,
		requests:  requests,
		records:   records,
		sink:      sink,
		assets:    make(map[string]*assetState),
	}
}

func (h *PriceHandler) state(assetID string) *assetState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.assets[assetID]
	if !ok {
		st = &assetState{book: newBook(), filter: trend.NewFilter()}
		h.assets[assetID] = st
	}
	return st
}

// Forget drops the per-asset state when an asset is unsubscribed.
func (h *PriceHandler) Forget(assetID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.assets, assetID)
}

// Depth returns the current sorted book for the control surface.
func (h *PriceHandler) Depth(assetID string) (bids, asks []PriceLevel, ok bool) {
	h.mu.Lock()
	st, found := h.assets[assetID]
	h.mu.Unlock()
	if !found {
		return nil, nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	bids, asks = st.book.depth()
	return bids, asks, true
}

// Apply folds one market event into the asset's state and refreshes the
// trend filter and context. It does not publish or evaluate; Publish does.
func (h *PriceHandler) Apply(ctx context.Context, assetID string, ev feed.Event) error {
	market, ok := h.markets.MarketByAsset(assetID)
	if !ok {
		return fmt.Errorf("handler: no market for asset %s", assetID)
	}

	st := h.state(assetID)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch ev.Type {
	case "book":
		var p bookPayload
		if err := json.Unmarshal(ev.Raw, &p); err != nil {
			return fmt.Errorf("handler: decode book: %w", err)
		}
		st.book.replace(p.Bids, p.Asks)

	case "price_change":
		var p priceChangePayload
		if err := json.Unmarshal(ev.Raw, &p); err != nil {
			return fmt.Errorf("handler: decode price_change: %w", err)
		}
		for _, ch := range p.Changes {
			px, err1 := strconv.ParseFloat(ch.Price, 64)
			sz, err2 := strconv.ParseFloat(ch.Size, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			st.book.applyChange(ch.Side, px, sz)
		}

	case "last_trade_price":
		var p lastTradePayload
		if err := json.Unmarshal(ev.Raw, &p); err != nil {
			return fmt.Errorf("handler: decode last_trade_price: %w", err)
		}
		if px, err := strconv.ParseFloat(p.Price, 64); err == nil && px > 0 {
			st.lastTrade = px
		}

	case "tick_size_change":
		var p tickSizePayload
		if err := json.Unmarshal(ev.Raw, &p); err != nil {
			return fmt.Errorf("handler: decode tick_size_change: %w", err)
		}
		if ts, err := strconv.ParseFloat(p.NewTickSize, 64); err == nil && ts > 0 {
			st.tickSize = ts
		}

	default:
		return nil
	}

	h.refreshContext(st, market, assetID, ev)
	return nil
}

// refreshContext recomputes the context and steps the trend filter when both
// sides of the book are present. Caller holds st.mu.
func (h *PriceHandler) refreshContext(st *assetState, market domain.Market, assetID string, ev feed.Event) {
	bidPx, bidSz, askPx, askSz := st.book.best()

	tick := st.tickSize
	if tick == 0 {
		tick = market.TickSize
	}
	if tick == 0 {
		tick = 0.01
	}

	mc := domain.MarketContext{
		MarketSlug:   market.Slug,
		AssetID:      assetID,
		BestBid:      bidPx,
		BestBidSize:  bidSz,
		BestAsk:      askPx,
		BestAskSize:  askSz,
		LastTrade:    st.lastTrade,
		TickSize:     tick,
		OrderMinSize: market.OrderMinSize,
		UpdatedAt:    ev.At,
		Seq:          ev.Seq,
	}
	if mc.HasBook() {
		mc.Mid = (bidPx + askPx) / 2
		mc.Spread = askPx - bidPx
		mc.Trend = st.filter.Step(trend.Observation{
			Price:    mc.Mid,
			Spread:   mc.Spread,
			TickSize: tick,
			At:       ev.At,
		})
	}

	st.context = mc
	st.hasCtx = true
}

// Publish stores the refreshed context and runs strategy evaluation against
// the current intents and records for the asset.
func (h *PriceHandler) Publish(ctx context.Context, assetID string) error {
	st := h.state(assetID)
	st.mu.Lock()
	mc := st.context
	hasCtx := st.hasCtx
	st.mu.Unlock()

	if !hasCtx {
		return nil
	}

	market, ok := h.markets.MarketByAsset(assetID)
	if !ok {
		return fmt.Errorf("handler: no market for asset %s", assetID)
	}

	if err := h.contexts.Set(ctx, mc); err != nil {
		return fmt.Errorf("handler: store context: %w", err)
	}

	if !mc.HasBook() || market.Ended(time.Now().UTC()) {
		return nil
	}

	intents, err := h.assetIntents(ctx, market.Slug, assetID)
	if err != nil {
		return err
	}
	records, err := h.assetRecords(ctx, market.Slug, assetID)
	if err != nil {
		return err
	}

	reqs, events := h.evaluator.Evaluate(time.Now().UTC(), market, mc, intents, records)
	for _, req := range reqs {
		if err := h.requests.Add(ctx, req); err != nil {
			return fmt.Errorf("handler: store intent: %w", err)
		}
	}
	for _, tev := range events {
		if err := h.sink.InsertEvent(ctx, tev); err != nil {
			return fmt.Errorf("handler: store event: %w", err)
		}
	}
	return nil
}

func (h *PriceHandler) assetIntents(ctx context.Context, market, assetID string) ([]domain.OrderRequest, error) {
	all, err := h.requests.GetActive(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("handler: list intents: %w", err)
	}
	out := all[:0]
	for _, req := range all {
		if req.AssetID == assetID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (h *PriceHandler) assetRecords(ctx context.Context, market, assetID string) ([]domain.TradeRecord, error) {
	all, err := h.records.GetActive(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("handler: list records: %w", err)
	}
	out := all[:0]
	for _, rec := range all {
		if rec.AssetID == assetID {
			out = append(out, rec)
		}
	}
	return out, nil
}
