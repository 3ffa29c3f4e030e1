package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// fakeBus is an in-process SignalBus.
type fakeBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string][]chan []byte)}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return ch, nil
}

type fakeRequests struct {
	mu      sync.Mutex
	docs    map[string]domain.OrderRequest
	removed []string
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{docs: make(map[string]domain.OrderRequest)}
}

func slotKey(market, asset string, side domain.Side) string {
	return fmt.Sprintf("%s:%s:%s", market, asset, side)
}

func (f *fakeRequests) Add(_ context.Context, req domain.OrderRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req.Active = true
	f.docs[req.Key()] = req
	return nil
}

func (f *fakeRequests) Remove(_ context.Context, market, asset string, side domain.Side) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := slotKey(market, asset, side)
	delete(f.docs, key)
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeRequests) Get(_ context.Context, market, asset string, side domain.Side) (domain.OrderRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.docs[slotKey(market, asset, side)]
	if !ok {
		return domain.OrderRequest{}, domain.ErrNotFound
	}
	return req, nil
}

func (f *fakeRequests) GetActive(_ context.Context, market string) ([]domain.OrderRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OrderRequest
	for key, req := range f.docs {
		if market != "" && !strings.HasPrefix(key, market+":") {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (f *fakeRequests) CleanupStalePointers(context.Context) (int, error) { return 0, nil }

func (f *fakeRequests) removedSlots() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.removed))
	copy(out, f.removed)
	return out
}

type fakeRecords struct {
	mu   sync.Mutex
	docs map[string]domain.TradeRecord
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{docs: make(map[string]domain.TradeRecord)}
}

func (f *fakeRecords) Add(_ context.Context, rec domain.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[rec.Key()] = rec
	return nil
}

func (f *fakeRecords) Get(_ context.Context, key string) (domain.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.docs[key]
	if !ok {
		return domain.TradeRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRecords) GetActive(_ context.Context, market string) ([]domain.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TradeRecord
	for key, rec := range f.docs {
		if market != "" && !strings.HasPrefix(key, market+":") {
			continue
		}
		if rec.Active {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRecords) Deactivate(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.docs[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Active = false
	f.docs[key] = rec
	return nil
}

func (f *fakeRecords) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, key)
	return nil
}

func (f *fakeRecords) CleanupStalePointers(context.Context) (int, error) { return 0, nil }

type fakeExchange struct {
	mu         sync.Mutex
	placeErr   error
	placed     []domain.OrderRequest
	cancelled  []string
	redeemed   []string
	openOrders []domain.OpenOrder
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req domain.OrderRequest, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed = append(f.placed, req)
	return fmt.Sprintf("ord-%d", len(f.placed)), nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeExchange) ListOpenOrders(context.Context, string) ([]domain.OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openOrders, nil
}

func (f *fakeExchange) Redeem(_ context.Context, conditionID string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeemed = append(f.redeemed, conditionID)
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	snaps  []domain.TradeSnapshot
	events []domain.TradeEvent
}

func (f *fakeSink) InsertSnapshot(_ context.Context, snap domain.TradeSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.snaps {
		if existing.OrderID == snap.OrderID && existing.MatchedTS.Equal(snap.MatchedTS) {
			return nil
		}
	}
	f.snaps = append(f.snaps, snap)
	return nil
}

func (f *fakeSink) InsertEvent(_ context.Context, ev domain.TradeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) ListSnapshotsSince(_ context.Context, since time.Time) ([]domain.TradeSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TradeSnapshot
	for _, snap := range f.snaps {
		if !snap.CreatedAt.Before(since) {
			out = append(out, snap)
		}
	}
	return out, nil
}

type fakeNotify struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (f *fakeNotify) Publish(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

type fakeSlugs struct{ slugs []string }

func (f *fakeSlugs) Add(context.Context, string) error      { return nil }
func (f *fakeSlugs) Remove(context.Context, string) error   { return nil }
func (f *fakeSlugs) List(context.Context) ([]string, error) { return f.slugs, nil }

type fakeCatalog struct{ markets map[string]domain.Market }

func (f *fakeCatalog) MarketBySlug(_ context.Context, slug string) (domain.Market, error) {
	m, ok := f.markets[slug]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeCatalog) HourlyMarkets(context.Context) ([]domain.Market, error) { return nil, nil }

type fakePositions struct{ positions []domain.Position }

func (f *fakePositions) Positions(context.Context) ([]domain.Position, error) {
	return f.positions, nil
}

type staticNegRisk bool

func (s staticNegRisk) NegRisk(string) bool { return bool(s) }

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func runExecutorOnce(t *testing.T, exchange *fakeExchange, req domain.OrderRequest) (*fakeRequests, *fakeSink, *fakeNotify) {
	t.Helper()

	bus := newFakeBus()
	requests := newFakeRequests()
	sink := &fakeSink{}
	notify := &fakeNotify{}

	exec := NewExecutor(bus, "hunter:order_requests:events", requests, exchange, staticNegRisk(false), sink, notify, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = exec.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)

	doc, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal(domain.ChangeEvent{Op: domain.ChangeAdd, Key: req.Key(), Doc: doc})
	if err := bus.Publish(ctx, "hunter:order_requests:events", payload); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	return requests, sink, notify
}

func intent(side domain.Side) domain.OrderRequest {
	return domain.OrderRequest{
		ID:         "req-1",
		MarketSlug: "btc-hourly",
		AssetID:    "asset-1",
		Side:       side,
		Price:      0.85,
		Size:       20,
		OrderType:  domain.OrderTypeGTC,
		Source:     domain.SourceStrategyEnter,
		CreatedAt:  time.Now().UTC(),
		Active:     true,
	}
}

func TestExecutorSlotRemoval(t *testing.T) {
	tests := []struct {
		name       string
		side       domain.Side
		placeErr   error
		wantRemove domain.Side
	}{
		{"buy success frees sell slot", domain.SideBuy, nil, domain.SideSell},
		{"buy failure frees buy slot", domain.SideBuy, domain.ErrExchange, domain.SideBuy},
		{"sell success frees buy slot", domain.SideSell, nil, domain.SideBuy},
		{"sell failure frees sell slot", domain.SideSell, domain.ErrExchange, domain.SideSell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchange := &fakeExchange{placeErr: tt.placeErr}
			requests, sink, _ := runExecutorOnce(t, exchange, intent(tt.side))

			removed := requests.removedSlots()
			want := slotKey("btc-hourly", "asset-1", tt.wantRemove)
			if len(removed) != 1 || removed[0] != want {
				t.Errorf("removed slots = %v, want [%s]", removed, want)
			}

			if tt.placeErr != nil {
				if len(sink.events) != 1 || sink.events[0].Code != domain.EventClobAPIError {
					t.Errorf("events = %+v, want one CLOB_API_ERROR", sink.events)
				}
			} else if len(exchange.placed) != 1 {
				t.Errorf("placed = %d, want 1", len(exchange.placed))
			}
		})
	}
}

func TestExecutorIgnoresRemovalsAndInactive(t *testing.T) {
	exchange := &fakeExchange{}
	bus := newFakeBus()
	requests := newFakeRequests()
	exec := NewExecutor(bus, "ch", requests, exchange, staticNegRisk(false), &fakeSink{}, &fakeNotify{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = exec.Run(ctx); close(done) }()
	time.Sleep(20 * time.Millisecond)

	// Removal events and inactive intents never reach the exchange.
	req := intent(domain.SideBuy)
	doc, _ := json.Marshal(req)
	removal, _ := json.Marshal(domain.ChangeEvent{Op: domain.ChangeRemove, Key: req.Key(), Doc: doc})
	_ = bus.Publish(ctx, "ch", removal)

	req.Active = false
	doc, _ = json.Marshal(req)
	inactive, _ := json.Marshal(domain.ChangeEvent{Op: domain.ChangeAdd, Key: req.Key(), Doc: doc})
	_ = bus.Publish(ctx, "ch", inactive)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if len(exchange.placed) != 0 {
		t.Errorf("placed = %+v, want none", exchange.placed)
	}
}

func TestTradeSubscriberSnapshotsAndClosesPosition(t *testing.T) {
	bus := newFakeBus()
	records := newFakeRecords()
	sink := &fakeSink{}
	notify := &fakeNotify{}

	sub := NewTradeSubscriber(bus, "ch", records, sink, notify, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = sub.Run(ctx); close(done) }()
	time.Sleep(20 * time.Millisecond)

	// An open BUY position that the SELL confirmation should close.
	buy := domain.TradeRecord{
		MarketSlug: "btc-hourly", AssetID: "asset-1", Side: domain.SideBuy,
		OrderID: "ord-1", Status: domain.TradeStatusConfirmed,
		Price: 0.85, OriginalSize: 20, Matched: 17, Active: true,
	}
	_ = records.Add(ctx, buy)

	sell := domain.TradeRecord{
		MarketSlug: "btc-hourly", AssetID: "asset-1", Side: domain.SideSell,
		OrderID: "ord-2", Status: domain.TradeStatusConfirmed,
		Price: 0.93, OriginalSize: 20, Matched: 18.6,
		MatchedTS: time.Now().UTC(), Active: true,
	}
	doc, _ := json.Marshal(sell)
	payload, _ := json.Marshal(domain.ChangeEvent{Op: domain.ChangeUpdate, Key: sell.Key(), Doc: doc})
	_ = bus.Publish(ctx, "ch", payload)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if len(sink.snaps) != 1 || sink.snaps[0].OrderID != "ord-2" {
		t.Fatalf("snapshots = %+v, want the sell fill", sink.snaps)
	}

	rec, err := records.Get(ctx, buy.Key())
	if err != nil {
		t.Fatal(err)
	}
	if rec.Active {
		t.Error("buy record still active after closing sell")
	}

	if len(notify.sent) != 1 || notify.sent[0].Kind != domain.NotifyTrade {
		t.Errorf("notifications = %+v", notify.sent)
	}
}

func TestTradeSubscriberSkipsUnmatchedRecords(t *testing.T) {
	bus := newFakeBus()
	sink := &fakeSink{}
	sub := NewTradeSubscriber(bus, "ch", newFakeRecords(), sink, &fakeNotify{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = sub.Run(ctx); close(done) }()
	time.Sleep(20 * time.Millisecond)

	// LIVE records and confirmed records without a matched timestamp are
	// not fills yet.
	live := domain.TradeRecord{
		MarketSlug: "m", AssetID: "a", Side: domain.SideBuy,
		OrderID: "ord-1", Status: domain.TradeStatusLive, Active: true,
	}
	doc, _ := json.Marshal(live)
	payload, _ := json.Marshal(domain.ChangeEvent{Op: domain.ChangeAdd, Key: live.Key(), Doc: doc})
	_ = bus.Publish(ctx, "ch", payload)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if len(sink.snaps) != 0 {
		t.Errorf("snapshots = %+v, want none", sink.snaps)
	}
}

func TestResolverRedeemsAndCancels(t *testing.T) {
	ended := time.Now().UTC().Add(-time.Hour)
	market := domain.Market{
		Slug:         "btc-hourly",
		ConditionID:  "0xcond",
		YesAssetID:   "asset-1",
		NoAssetID:    "asset-2",
		EndTime:      ended,
		Closed:       true,
		Resolved:     true,
		WinningAsset: "asset-1",
	}

	exchange := &fakeExchange{openOrders: []domain.OpenOrder{
		{
			OrderID: "stale-1", AssetID: "asset-1", Side: domain.SideSell,
			Status: domain.TradeStatusLive, CreatedAt: time.Now().UTC().Add(-10 * time.Minute),
		},
		{
			OrderID: "fresh-1", AssetID: "asset-1", Side: domain.SideSell,
			Status: domain.TradeStatusLive, CreatedAt: time.Now().UTC().Add(-time.Minute),
		},
	}}
	positions := &fakePositions{positions: []domain.Position{
		{AssetID: "asset-1", ConditionID: "0xcond", Size: 20, Redeemable: true, Outcome: "Yes"},
	}}
	records := newFakeRecords()
	requests := newFakeRequests()
	notify := &fakeNotify{}

	_ = records.Add(context.Background(), domain.TradeRecord{
		MarketSlug: "btc-hourly", AssetID: "asset-1", Side: domain.SideBuy,
		OrderID: "ord-1", Status: domain.TradeStatusConfirmed,
		Price: 0.85, OriginalSize: 20, Active: true,
	})

	r := NewResolver(
		&fakeSlugs{slugs: []string{"btc-hourly"}},
		&fakeCatalog{markets: map[string]domain.Market{"btc-hourly": market}},
		exchange, positions, records, requests, notify,
		5*time.Minute, testLogger(),
	)

	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if len(exchange.cancelled) != 1 || exchange.cancelled[0] != "stale-1" {
		t.Errorf("cancelled = %v, want only the stale order", exchange.cancelled)
	}
	if len(exchange.redeemed) != 1 || exchange.redeemed[0] != "0xcond" {
		t.Errorf("redeemed = %v", exchange.redeemed)
	}

	// A REDEEMED record with the winning payout was synthesized.
	redeemKey := "btc-hourly:asset-1:SELL:redeem-0xcond"
	rec, err := records.Get(context.Background(), redeemKey)
	if err != nil {
		t.Fatalf("redeem record missing: %v", err)
	}
	if rec.Status != domain.TradeStatusRedeemed || rec.Outcome != "WON" || rec.Matched != 20 {
		t.Errorf("redeem record = %+v", rec)
	}

	// The entry position was closed out.
	buy, _ := records.Get(context.Background(), "btc-hourly:asset-1:BUY:ord-1")
	if buy.Active {
		t.Error("buy record still active after redemption")
	}

	if len(notify.sent) == 0 || notify.sent[0].Kind != domain.NotifyResolution {
		t.Errorf("notifications = %+v", notify.sent)
	}
}

func TestResolverSkipsRunningMarkets(t *testing.T) {
	market := domain.Market{
		Slug:        "btc-hourly",
		ConditionID: "0xcond",
		EndTime:     time.Now().UTC().Add(time.Hour),
	}
	exchange := &fakeExchange{}

	r := NewResolver(
		&fakeSlugs{slugs: []string{"btc-hourly"}},
		&fakeCatalog{markets: map[string]domain.Market{"btc-hourly": market}},
		exchange, &fakePositions{}, newFakeRecords(), newFakeRequests(), &fakeNotify{},
		5*time.Minute, testLogger(),
	)

	if err := r.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(exchange.cancelled) != 0 || len(exchange.redeemed) != 0 {
		t.Error("resolver touched a market that is still trading")
	}
}

func TestReporterSummarizes(t *testing.T) {
	sink := &fakeSink{}
	now := time.Now().UTC()
	_ = sink.InsertSnapshot(context.Background(), domain.TradeSnapshot{
		OrderID: "ord-1", Side: domain.SideBuy, Matched: 17,
		Status: domain.TradeStatusConfirmed, MatchedTS: now, CreatedAt: now,
	})
	_ = sink.InsertSnapshot(context.Background(), domain.TradeSnapshot{
		OrderID: "ord-2", Side: domain.SideSell, Matched: 18.6,
		Status: domain.TradeStatusConfirmed, MatchedTS: now, CreatedAt: now,
	})

	notify := &fakeNotify{}
	rep := NewReporter(sink, newFakeRecords(), newFakeRequests(), notify, time.Hour, testLogger())

	if err := rep.Report(context.Background()); err != nil {
		t.Fatalf("Report: %v", err)
	}

	if len(notify.sent) != 1 || notify.sent[0].Kind != domain.NotifyReport {
		t.Fatalf("notifications = %+v", notify.sent)
	}
	body := notify.sent[0].Body
	if !strings.Contains(body, "Fills: 2") || !strings.Contains(body, "17.00") {
		t.Errorf("report body = %q", body)
	}
}
