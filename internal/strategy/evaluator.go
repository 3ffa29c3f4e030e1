package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hunterlabs/polyhunter/internal/config"
	"github.com/hunterlabs/polyhunter/internal/domain"
)

const (
	// takeProfitCeiling caps the take-profit trigger; a binary can never
	// trade at 1.00 so exits above 0.99 would sit forever.
	takeProfitCeiling = 0.99

	// stopLossFloor is the stop trigger used when a rule's stop-loss is 1.0
	// or more. Such a value cannot be an absolute price delta on a binary,
	// so the stop falls back to this fixed price.
	stopLossFloor = 0.5
)

// Evaluator turns a market context into order intents. It holds no per-asset
// state: entry parameters travel on the stored BUY intent, and the lockouts
// are windows before market expiry, not cooldowns.
type Evaluator struct {
	strategies     []Strategy
	enterLockout   time.Duration
	exitLockout    time.Duration
	reversalWindow time.Duration
}

// NewEvaluator builds an evaluator from parsed strategies and engine tunables.
func NewEvaluator(strategies []Strategy, engine config.EngineConfig) *Evaluator {
	return &Evaluator{
		strategies:     strategies,
		enterLockout:   engine.EnterLockout.Duration,
		exitLockout:    engine.ExitLockout.Duration,
		reversalWindow: engine.ReversalWindow.Duration,
	}
}

// Evaluate inspects the asset's current state and returns the intents to
// place plus the events describing anything that was blocked.
//
// The decision per asset is exclusive: an active BUY intent with no SELL
// intent puts the asset on the exit path; no intent on either side puts it
// on the entry path; any other combination is left alone until it settles.
func (e *Evaluator) Evaluate(
	now time.Time,
	market domain.Market,
	mc domain.MarketContext,
	intents []domain.OrderRequest,
	records []domain.TradeRecord,
) ([]domain.OrderRequest, []domain.TradeEvent) {
	if !mc.HasBook() {
		return nil, nil
	}

	var buyIntent *domain.OrderRequest
	hasSellIntent := false
	for i := range intents {
		req := &intents[i]
		if !req.Active {
			continue
		}
		switch req.Side {
		case domain.SideBuy:
			buyIntent = req
		case domain.SideSell:
			hasSellIntent = true
		}
	}

	switch {
	case buyIntent != nil && !hasSellIntent:
		return e.evaluateExit(now, market, mc, buyIntent, records)
	case buyIntent == nil && !hasSellIntent:
		return e.evaluateEntry(now, market, mc, records)
	default:
		return nil, nil
	}
}

// evaluateEntry scans the rules for an entry. The first rule whose predicate
// matches and whose enter band contains the ask wins; the winning rule's exit
// parameters ride along on the intent.
func (e *Evaluator) evaluateEntry(now time.Time, market domain.Market, mc domain.MarketContext, records []domain.TradeRecord) ([]domain.OrderRequest, []domain.TradeEvent) {
	// No new entries once the market is within the entry lockout of expiry:
	// a position opened that close to resolution cannot be managed out.
	if left, ok := timeLeft(market, now); ok && left <= e.enterLockout {
		return nil, []domain.TradeEvent{domain.NewTradeEvent(
			domain.EventLockout, domain.EventStateBlocked,
			market.Slug, mc.AssetID, domain.SideBuy,
			fmt.Sprintf("market expires in %s, inside entry lockout", left.Round(time.Second)),
		)}
	}

	rule, ok := e.matchRule(now, market, mc, func(r Rule) bool {
		return mc.BestAsk >= r.EnterMin && mc.BestAsk <= r.EnterMax
	})
	if !ok {
		return nil, nil
	}

	// Already long on this token: the exit path owns it.
	for i := range records {
		r := &records[i]
		if r.Active && r.Side == domain.SideBuy && r.Status == domain.TradeStatusConfirmed {
			return nil, nil
		}
	}

	// Entries follow the trend. A flat or freshly reversed filter blocks;
	// a DOWN trend never produces a long entry on this token.
	trend := mc.Trend
	switch {
	case trend.Direction == domain.TrendFlat:
		return nil, []domain.TradeEvent{domain.NewTradeEvent(
			domain.EventTrendFlat, domain.EventStateBlocked,
			market.Slug, mc.AssetID, domain.SideBuy,
			fmt.Sprintf("trend flat, t=%.2f", trend.TStat),
		)}
	case trend.ReversedWithin(now, e.reversalWindow):
		return nil, []domain.TradeEvent{domain.NewTradeEvent(
			domain.EventTrendReversal, domain.EventStateBlocked,
			market.Slug, mc.AssetID, domain.SideBuy,
			fmt.Sprintf("reversal %s ago", now.Sub(trend.LastReversal).Round(time.Second)),
		)}
	case trend.Direction == domain.TrendDown:
		return nil, []domain.TradeEvent{domain.NewTradeEvent(
			domain.EventTrendMismatch, domain.EventStateBlocked,
			market.Slug, mc.AssetID, domain.SideBuy,
			"trend DOWN blocks long entry",
		)}
	}

	size := rule.Size
	if mc.OrderMinSize > size {
		size = mc.OrderMinSize
	}

	req := domain.OrderRequest{
		ID:           uuid.NewString(),
		MarketSlug:   market.Slug,
		AssetID:      mc.AssetID,
		Side:         domain.SideBuy,
		Price:        mc.BestAsk,
		Size:         size,
		OrderType:    domain.OrderTypeGTC,
		Source:       domain.SourceStrategyEnter,
		StrategyName: rule.Strategy,
		StopLoss:     rule.StopLoss,
		TakeProfit:   rule.TakeProfit,
		Slippage:     rule.Slippage,
		CreatedAt:    now,
		Active:       true,
	}
	return []domain.OrderRequest{req}, nil
}

// evaluateExit checks the held position against the stop-loss and take-profit
// triggers carried on the entering intent. The parameters were fixed at entry
// time, so the position stays protected even after the price leaves the band
// that admitted it. Protective exits bypass the trend gate.
func (e *Evaluator) evaluateExit(now time.Time, market domain.Market, mc domain.MarketContext, intent *domain.OrderRequest, records []domain.TradeRecord) ([]domain.OrderRequest, []domain.TradeEvent) {
	var position *domain.TradeRecord
	for i := range records {
		r := &records[i]
		if r.Active && r.Side == domain.SideBuy && r.Status == domain.TradeStatusConfirmed {
			position = r
			break
		}
	}
	if position == nil {
		// Intent placed but not yet filled; nothing to protect.
		return nil, nil
	}

	entry := position.Price
	if entry == 0 {
		entry = intent.Price
	}

	slTrigger := entry - intent.StopLoss
	if intent.StopLoss >= 1 {
		slTrigger = stopLossFloor
	}
	tpTrigger := entry + intent.TakeProfit
	if tpTrigger > takeProfitCeiling {
		tpTrigger = takeProfitCeiling
	}

	bid := mc.BestBid
	var source domain.RequestSource

	switch {
	case intent.TakeProfit > 0 && bid >= tpTrigger:
		source = domain.SourceTakeProfit
	case intent.StopLoss > 0 && bid <= slTrigger:
		// A bid already through the stop by more than the allowed
		// slippage would fill far below the trigger; abandon.
		if bid < slTrigger-intent.Slippage {
			return nil, []domain.TradeEvent{domain.NewTradeEvent(
				domain.EventSlippage, domain.EventStateBlocked,
				market.Slug, mc.AssetID, domain.SideSell,
				fmt.Sprintf("bid %.3f beyond stop %.3f by more than %.3f", bid, slTrigger, intent.Slippage),
			)}
		}
		source = domain.SourceStopLoss
	default:
		return nil, nil
	}

	// Too close to expiry to exit: the market resolves on its own and the
	// resolution path settles the position.
	if left, ok := timeLeft(market, now); ok && left <= e.exitLockout {
		return nil, []domain.TradeEvent{domain.NewTradeEvent(
			domain.EventLockout, domain.EventStateBlocked,
			market.Slug, mc.AssetID, domain.SideSell,
			fmt.Sprintf("market expires in %s, inside exit lockout", left.Round(time.Second)),
		)}
	}

	req := domain.OrderRequest{
		ID:           uuid.NewString(),
		MarketSlug:   market.Slug,
		AssetID:      mc.AssetID,
		Side:         domain.SideSell,
		Price:        bid,
		Size:         position.OriginalSize,
		OrderType:    domain.OrderTypeGTC,
		Source:       source,
		StrategyName: intent.StrategyName,
		CreatedAt:    now,
		Active:       true,
	}
	return []domain.OrderRequest{req}, nil
}

// matchRule returns the first rule whose predicate matches the market and
// whose extra condition holds.
func (e *Evaluator) matchRule(now time.Time, market domain.Market, mc domain.MarketContext, extra func(Rule) bool) (Rule, bool) {
	for _, s := range e.strategies {
		for _, r := range s.Rules {
			if r.Predicate.Eval(market, mc, now) && extra(r) {
				return r, true
			}
		}
	}
	return Rule{}, false
}

// timeLeft reports how long until the market expires. ok is false when the
// market carries no end time, in which case the lockouts do not apply.
func timeLeft(market domain.Market, now time.Time) (left time.Duration, ok bool) {
	if market.EndTime.IsZero() {
		return 0, false
	}
	return market.EndTime.Sub(now), true
}
