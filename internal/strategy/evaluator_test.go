package strategy

import (
	"testing"
	"time"

	"github.com/hunterlabs/polyhunter/internal/config"
	"github.com/hunterlabs/polyhunter/internal/domain"
)

func testEngine() config.EngineConfig {
	cfg := config.Defaults()
	return cfg.Engine
}

func testEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	strategies, err := FromConfig([]config.StrategyConfig{{
		Name: "hourly-momentum",
		Rules: []config.RuleConfig{{
			Predicate:  `{"op":"has_tag","tag":"Crypto"}`,
			EnterMin:   0.80,
			EnterMax:   0.95,
			Size:       20,
			StopLoss:   0.10,
			TakeProfit: 0.08,
			Slippage:   0.03,
		}},
	}})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	return NewEvaluator(strategies, testEngine())
}

// testNow is an hour before testMarket's end time, clear of both lockouts.
func testNow() time.Time {
	return time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
}

func upTrend(now time.Time) domain.TrendPrediction {
	return domain.TrendPrediction{Direction: domain.TrendUp, TStat: 3.1, Confidence: 0.75, UpdatedAt: now}
}

func TestEvaluateEntryHappyPath(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()
	m := testMarket()
	mc := testContext(0.84, 0.85)
	mc.Trend = upTrend(now)
	mc.OrderMinSize = 5

	reqs, events := e.Evaluate(now, m, mc, nil, nil)
	if len(events) != 0 {
		t.Errorf("unexpected events: %+v", events)
	}
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}

	req := reqs[0]
	if req.Side != domain.SideBuy || req.Source != domain.SourceStrategyEnter {
		t.Errorf("req side=%s source=%s", req.Side, req.Source)
	}
	if req.Price != 0.85 {
		t.Errorf("entry price = %v, want best ask 0.85", req.Price)
	}
	if req.Size != 20 {
		t.Errorf("size = %v, want rule size 20", req.Size)
	}
	if !req.Active || req.ID == "" {
		t.Errorf("req not activated: %+v", req)
	}
	if req.StrategyName != "hourly-momentum" {
		t.Errorf("strategy name = %q", req.StrategyName)
	}
	if req.StopLoss != 0.10 || req.TakeProfit != 0.08 || req.Slippage != 0.03 {
		t.Errorf("exit params not carried on intent: %+v", req)
	}
}

func TestEvaluateEntryRespectsOrderMinSize(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()
	mc := testContext(0.84, 0.85)
	mc.Trend = upTrend(now)
	mc.OrderMinSize = 50 // exchange minimum above the rule size

	reqs, _ := e.Evaluate(now, testMarket(), mc, nil, nil)
	if len(reqs) != 1 || reqs[0].Size != 50 {
		t.Fatalf("reqs = %+v, want one request of size 50", reqs)
	}
}

func TestEvaluateEntryBlockedByFlatTrend(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()
	mc := testContext(0.84, 0.85)
	mc.Trend = domain.TrendPrediction{Direction: domain.TrendFlat, UpdatedAt: now}

	reqs, events := e.Evaluate(now, testMarket(), mc, nil, nil)
	if len(reqs) != 0 {
		t.Errorf("flat trend produced requests: %+v", reqs)
	}
	if len(events) != 1 || events[0].Code != domain.EventTrendFlat || events[0].State != domain.EventStateBlocked {
		t.Errorf("events = %+v, want one blocked TREND_FLAT", events)
	}
}

func TestEvaluateEntryBlockedByReversal(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()
	mc := testContext(0.84, 0.85)
	mc.Trend = upTrend(now)
	mc.Trend.LastReversal = now.Add(-30 * time.Second)

	_, events := e.Evaluate(now, testMarket(), mc, nil, nil)
	if len(events) != 1 || events[0].Code != domain.EventTrendReversal {
		t.Errorf("events = %+v, want TREND_REVERSAL", events)
	}

	// Outside the window the same reversal no longer blocks.
	later := now.Add(2 * time.Minute)
	reqs, events := e.Evaluate(later, testMarket(), mc, nil, nil)
	if len(reqs) != 1 {
		t.Errorf("aged reversal still blocks: reqs=%v events=%+v", reqs, events)
	}
}

func TestEvaluateEntryBlockedByDownTrend(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()
	mc := testContext(0.84, 0.85)
	mc.Trend = domain.TrendPrediction{Direction: domain.TrendDown, TStat: -3, UpdatedAt: now}

	_, events := e.Evaluate(now, testMarket(), mc, nil, nil)
	if len(events) != 1 || events[0].Code != domain.EventTrendMismatch {
		t.Errorf("events = %+v, want TREND_MISMATCH", events)
	}
}

func TestEvaluateEntryLockoutBeforeExpiry(t *testing.T) {
	e := testEvaluator(t)
	m := testMarket()
	mc := testContext(0.84, 0.85)

	// 60s before the end time, well inside the 180s entry lockout. The
	// trend is UP and the ask sits in the band; expiry alone must block.
	now := m.EndTime.Add(-60 * time.Second)
	mc.Trend = upTrend(now)

	reqs, events := e.Evaluate(now, m, mc, nil, nil)
	if len(reqs) != 0 {
		t.Errorf("entry inside pre-expiry lockout: %+v", reqs)
	}
	if len(events) != 1 || events[0].Code != domain.EventLockout {
		t.Errorf("events = %+v, want LOCKOUT", events)
	}

	// The same market past its end time stays blocked.
	after := m.EndTime.Add(time.Minute)
	mc.Trend = upTrend(after)
	reqs, events = e.Evaluate(after, m, mc, nil, nil)
	if len(reqs) != 0 || len(events) != 1 || events[0].Code != domain.EventLockout {
		t.Errorf("expired market: reqs=%+v events=%+v", reqs, events)
	}

	// Four minutes out the lockout has not started yet.
	early := m.EndTime.Add(-4 * time.Minute)
	mc.Trend = upTrend(early)
	reqs, _ = e.Evaluate(early, m, mc, nil, nil)
	if len(reqs) != 1 {
		t.Errorf("entry outside lockout produced %d requests", len(reqs))
	}
}

func TestEvaluateSkipsWhenPositionOpen(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()
	mc := testContext(0.84, 0.85)
	mc.Trend = upTrend(now)

	// Confirmed long but the BUY intent is gone (e.g. swept by hand): the
	// entry path must not stack a second position on the same token.
	reqs, events := e.Evaluate(now, testMarket(), mc, nil, position(0.85))
	if len(reqs) != 0 || len(events) != 0 {
		t.Errorf("open position not respected: reqs=%+v events=%+v", reqs, events)
	}
}

func TestEvaluateSkipsWhenSellIntentPending(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()
	mc := testContext(0.74, 0.76)

	pending := append(buyIntent(0.85), domain.OrderRequest{
		MarketSlug: "btc-hourly", AssetID: "asset-1",
		Side: domain.SideSell, Price: 0.74, Size: 20, Active: true,
	})

	reqs, events := e.Evaluate(now, testMarket(), mc, pending, position(0.85))
	if len(reqs) != 0 || len(events) != 0 {
		t.Errorf("pending sell intent not respected: reqs=%+v events=%+v", reqs, events)
	}
}

func position(entry float64) []domain.TradeRecord {
	return []domain.TradeRecord{{
		MarketSlug:   "btc-hourly",
		AssetID:      "asset-1",
		Side:         domain.SideBuy,
		OrderID:      "ord-1",
		Status:       domain.TradeStatusConfirmed,
		Price:        entry,
		OriginalSize: 20,
		Active:       true,
	}}
}

// buyIntent is the stored entry intent for position(entry), carrying the
// testEvaluator rule's exit parameters.
func buyIntent(entry float64) []domain.OrderRequest {
	return []domain.OrderRequest{{
		ID:           "req-1",
		MarketSlug:   "btc-hourly",
		AssetID:      "asset-1",
		Side:         domain.SideBuy,
		Price:        entry,
		Size:         20,
		Source:       domain.SourceStrategyEnter,
		StrategyName: "hourly-momentum",
		StopLoss:     0.10,
		TakeProfit:   0.08,
		Slippage:     0.03,
		Active:       true,
	}}
}

func TestEvaluateExitStopLoss(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()

	// Entry 0.85, stop 0.10 -> trigger 0.75. Bid 0.74 fires the stop.
	mc := testContext(0.74, 0.76)
	mc.Trend = domain.TrendPrediction{Direction: domain.TrendFlat} // exits ignore the trend gate

	reqs, events := e.Evaluate(now, testMarket(), mc, buyIntent(0.85), position(0.85))
	if len(events) != 0 {
		t.Errorf("unexpected events: %+v", events)
	}
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Side != domain.SideSell || req.Source != domain.SourceStopLoss {
		t.Errorf("req side=%s source=%s, want SELL/STOP_LOSS", req.Side, req.Source)
	}
	if req.Price != 0.74 {
		t.Errorf("exit price = %v, want best bid", req.Price)
	}
	if req.Size != 20 {
		t.Errorf("exit size = %v, want position size", req.Size)
	}
}

func TestEvaluateExitUsesIntentParamsOutsideEntryBand(t *testing.T) {
	// A rule gated on the entry price band: once the bid falls to 0.74 the
	// band no longer matches, but the exit must still fire because the
	// parameters were fixed on the intent at entry time.
	strategies, err := FromConfig([]config.StrategyConfig{{
		Name: "band-entry",
		Rules: []config.RuleConfig{{
			Predicate:  `{"op":"price_in","min":0.80,"max":0.95}`,
			EnterMin:   0.80, EnterMax: 0.95, Size: 20,
			StopLoss: 0.10, TakeProfit: 0.08, Slippage: 0.03,
		}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	e := NewEvaluator(strategies, testEngine())
	now := testNow()

	mc := testContext(0.74, 0.76)
	reqs, events := e.Evaluate(now, testMarket(), mc, buyIntent(0.85), position(0.85))
	if len(events) != 0 {
		t.Errorf("unexpected events: %+v", events)
	}
	if len(reqs) != 1 || reqs[0].Source != domain.SourceStopLoss {
		t.Fatalf("stop did not fire after price left the entry band: %+v", reqs)
	}
}

func TestEvaluateExitStopLossFloor(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()

	// A stop of 1.0 is not a price delta; the trigger is the fixed floor
	// of 0.5 regardless of the entry price.
	intent := buyIntent(0.85)
	intent[0].StopLoss = 1.0
	intent[0].Slippage = 0.05

	mc := testContext(0.49, 0.51)
	reqs, events := e.Evaluate(now, testMarket(), mc, intent, position(0.85))
	if len(events) != 0 {
		t.Errorf("unexpected events: %+v", events)
	}
	if len(reqs) != 1 || reqs[0].Source != domain.SourceStopLoss {
		t.Fatalf("floor stop did not fire at bid 0.49: %+v", reqs)
	}

	// Above the floor the position holds, even though entry-relative math
	// (0.85 * 0.5 = 0.425) would already have fired.
	mc = testContext(0.52, 0.54)
	reqs, events = e.Evaluate(now, testMarket(), mc, intent, position(0.85))
	if len(reqs) != 0 || len(events) != 0 {
		t.Errorf("bid above floor produced activity: reqs=%+v events=%+v", reqs, events)
	}
}

func TestEvaluateExitAbandonedOnSlippage(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()

	// Trigger 0.75, slippage 0.03: a bid below 0.72 is too far gone.
	mc := testContext(0.69, 0.71)

	reqs, events := e.Evaluate(now, testMarket(), mc, buyIntent(0.85), position(0.85))
	if len(reqs) != 0 {
		t.Errorf("gapped stop still sold: %+v", reqs)
	}
	if len(events) != 1 || events[0].Code != domain.EventSlippage {
		t.Errorf("events = %+v, want SLIPPAGE", events)
	}
}

func TestEvaluateExitTakeProfit(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()

	// Entry 0.85, TP 0.08 -> trigger 0.93.
	mc := testContext(0.93, 0.95)

	reqs, _ := e.Evaluate(now, testMarket(), mc, buyIntent(0.85), position(0.85))
	if len(reqs) != 1 || reqs[0].Side != domain.SideSell {
		t.Fatalf("take profit did not fire: %+v", reqs)
	}
	if reqs[0].Source != domain.SourceTakeProfit {
		t.Errorf("source = %s, want TAKE_PROFIT", reqs[0].Source)
	}
}

func TestEvaluateExitTakeProfitCapped(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()

	// Entry 0.92 + TP 0.20 would be 1.12; the trigger caps at 0.99.
	intent := buyIntent(0.92)
	intent[0].TakeProfit = 0.20

	mc := testContext(0.99, 0.995)
	reqs, _ := e.Evaluate(now, testMarket(), mc, intent, position(0.92))
	if len(reqs) != 1 || reqs[0].Source != domain.SourceTakeProfit {
		t.Fatalf("capped take profit did not fire at 0.99: %+v", reqs)
	}
}

func TestEvaluateExitHoldsBetweenTriggers(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()

	// Bid 0.84: above the stop (0.75), below the target (0.93).
	mc := testContext(0.84, 0.86)
	reqs, events := e.Evaluate(now, testMarket(), mc, buyIntent(0.85), position(0.85))
	if len(reqs) != 0 || len(events) != 0 {
		t.Errorf("hold produced activity: reqs=%+v events=%+v", reqs, events)
	}
}

func TestEvaluateExitLockoutBeforeExpiry(t *testing.T) {
	e := testEvaluator(t)
	m := testMarket()

	// Bid through the stop, but only 5s before expiry: inside the 10s exit
	// lockout the position rides into resolution instead of selling.
	now := m.EndTime.Add(-5 * time.Second)
	mc := testContext(0.74, 0.76)

	reqs, events := e.Evaluate(now, m, mc, buyIntent(0.85), position(0.85))
	if len(reqs) != 0 {
		t.Errorf("exit inside pre-expiry lockout: %+v", reqs)
	}
	if len(events) != 1 || events[0].Code != domain.EventLockout {
		t.Errorf("events = %+v, want LOCKOUT", events)
	}

	// 30s out the lockout has not started and the stop fires.
	earlier := m.EndTime.Add(-30 * time.Second)
	reqs, _ = e.Evaluate(earlier, m, mc, buyIntent(0.85), position(0.85))
	if len(reqs) != 1 || reqs[0].Source != domain.SourceStopLoss {
		t.Errorf("stop outside lockout did not fire: %+v", reqs)
	}
}

func TestEvaluateExitWaitsForFill(t *testing.T) {
	e := testEvaluator(t)
	now := testNow()

	// BUY intent placed, no confirmed record yet: nothing to protect.
	mc := testContext(0.74, 0.76)
	reqs, events := e.Evaluate(now, testMarket(), mc, buyIntent(0.85), nil)
	if len(reqs) != 0 || len(events) != 0 {
		t.Errorf("unfilled intent produced activity: reqs=%+v events=%+v", reqs, events)
	}
}
