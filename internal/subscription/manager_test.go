package subscription

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

type fakeSlugs struct {
	mu    sync.Mutex
	slugs []string
}

func (f *fakeSlugs) Add(context.Context, string) error    { return nil }
func (f *fakeSlugs) Remove(context.Context, string) error { return nil }
func (f *fakeSlugs) List(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.slugs...), nil
}

func (f *fakeSlugs) set(slugs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slugs = slugs
}

type fakeCatalog struct {
	mu      sync.Mutex
	markets map[string]domain.Market
	lookups int
}

func (f *fakeCatalog) MarketBySlug(_ context.Context, slug string) (domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	m, ok := f.markets[slug]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeCatalog) HourlyMarkets(context.Context) ([]domain.Market, error) { return nil, nil }

type fakeBus struct{}

func (fakeBus) Publish(context.Context, string, []byte) error { return nil }
func (fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

type captureUpdater struct {
	mu      sync.Mutex
	targets [][]string
}

func (c *captureUpdater) UpdateTargets(targets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets = append(c.targets, append([]string(nil), targets...))
}

func (c *captureUpdater) last() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.targets) == 0 {
		return nil
	}
	return c.targets[len(c.targets)-1]
}

type captureRetirer struct {
	mu      sync.Mutex
	retired []string
}

func (c *captureRetirer) Retire(assetIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retired = append(c.retired, assetIDs...)
}

func market(slug, condition, yes, no string) domain.Market {
	return domain.Market{
		Slug: slug, ConditionID: condition,
		YesAssetID: yes, NoAssetID: no,
		EndTime: time.Now().UTC().Add(time.Hour),
	}
}

func newTestManager(slugs *fakeSlugs, catalog *fakeCatalog) (*Manager, *captureUpdater, *captureUpdater, *captureRetirer) {
	marketFeed := &captureUpdater{}
	userFeed := &captureUpdater{}
	retirer := &captureRetirer{}
	m := NewManager(slugs, catalog, fakeBus{}, "hunter:slugs:events", marketFeed, userFeed, slog.New(slog.DiscardHandler))
	m.AddRetirer(retirer)
	return m, marketFeed, userFeed, retirer
}

func TestSyncResolvesAndSubscribes(t *testing.T) {
	slugs := &fakeSlugs{}
	slugs.set("btc-hourly", "eth-hourly")
	catalog := &fakeCatalog{markets: map[string]domain.Market{
		"btc-hourly": market("btc-hourly", "0xbtc", "a1", "a2"),
		"eth-hourly": market("eth-hourly", "0xeth", "b1", "b2"),
	}}
	m, marketFeed, userFeed, _ := newTestManager(slugs, catalog)

	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	wantAssets := []string{"a1", "a2", "b1", "b2"}
	if got := marketFeed.last(); !reflect.DeepEqual(got, wantAssets) {
		t.Errorf("market targets = %v, want %v", got, wantAssets)
	}
	wantConds := []string{"0xbtc", "0xeth"}
	if got := userFeed.last(); !reflect.DeepEqual(got, wantConds) {
		t.Errorf("user targets = %v, want %v", got, wantConds)
	}

	if mk, ok := m.MarketByAsset("b2"); !ok || mk.Slug != "eth-hourly" {
		t.Errorf("MarketByAsset(b2) = %+v, %v", mk, ok)
	}
	if m.NegRisk("btc-hourly") {
		t.Error("NegRisk true for a plain market")
	}
}

func TestSyncRetiresDroppedAssets(t *testing.T) {
	slugs := &fakeSlugs{}
	slugs.set("btc-hourly", "eth-hourly")
	catalog := &fakeCatalog{markets: map[string]domain.Market{
		"btc-hourly": market("btc-hourly", "0xbtc", "a1", "a2"),
		"eth-hourly": market("eth-hourly", "0xeth", "b1", "b2"),
	}}
	m, marketFeed, _, retirer := newTestManager(slugs, catalog)

	ctx := context.Background()
	if err := m.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	slugs.set("btc-hourly")
	if err := m.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"a1", "a2"}
	if got := marketFeed.last(); !reflect.DeepEqual(got, want) {
		t.Errorf("market targets = %v, want %v", got, want)
	}

	retired := append([]string(nil), retirer.retired...)
	if len(retired) != 2 {
		t.Fatalf("retired = %v, want b1 and b2", retired)
	}
	if _, ok := m.MarketByAsset("b1"); ok {
		t.Error("dropped asset still resolvable")
	}
}

func TestSyncSkipsFeedWhenUnchanged(t *testing.T) {
	slugs := &fakeSlugs{}
	slugs.set("btc-hourly")
	catalog := &fakeCatalog{markets: map[string]domain.Market{
		"btc-hourly": market("btc-hourly", "0xbtc", "a1", "a2"),
	}}
	m, marketFeed, _, _ := newTestManager(slugs, catalog)

	ctx := context.Background()
	_ = m.Sync(ctx)
	_ = m.Sync(ctx)

	marketFeed.mu.Lock()
	updates := len(marketFeed.targets)
	marketFeed.mu.Unlock()
	if updates != 1 {
		t.Errorf("feed updated %d times for an unchanged set, want 1", updates)
	}

	// The second sync should also reuse the cached resolution.
	catalog.mu.Lock()
	lookups := catalog.lookups
	catalog.mu.Unlock()
	if lookups != 1 {
		t.Errorf("catalog lookups = %d, want 1", lookups)
	}
}

func TestSyncToleratesResolutionFailure(t *testing.T) {
	slugs := &fakeSlugs{}
	slugs.set("btc-hourly", "ghost")
	catalog := &fakeCatalog{markets: map[string]domain.Market{
		"btc-hourly": market("btc-hourly", "0xbtc", "a1", "a2"),
	}}
	m, marketFeed, _, _ := newTestManager(slugs, catalog)

	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	want := []string{"a1", "a2"}
	if got := marketFeed.last(); !reflect.DeepEqual(got, want) {
		t.Errorf("market targets = %v, want %v (ghost skipped)", got, want)
	}
}
