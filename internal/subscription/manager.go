// Package subscription keeps the websocket subscriptions aligned with the
// slug set: it resolves slugs to markets, maintains the asset-to-market
// index, and rebuilds the feed connections when the set changes.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// FeedUpdater is the feed client surface the manager drives.
type FeedUpdater interface {
	UpdateTargets(targets []string)
}

// AssetRetirer is notified when assets leave the subscription set so their
// per-asset state can be torn down.
type AssetRetirer interface {
	Retire(assetIDs []string)
}

// Manager owns the slug-to-market resolution and the live subscription set.
// It implements the handler's market index.
type Manager struct {
	slugs      domain.SlugStore
	catalog    domain.MarketCatalog
	bus        domain.SignalBus
	slugEvents string
	market     FeedUpdater
	user       FeedUpdater
	retirers   []AssetRetirer
	logger     *slog.Logger

	mu      sync.RWMutex
	bySlug  map[string]domain.Market
	byAsset map[string]domain.Market
}

// NewManager builds the subscription manager. user may be nil in observe
// mode, where no user channel is connected.
func NewManager(
	slugs domain.SlugStore,
	catalog domain.MarketCatalog,
	bus domain.SignalBus,
	slugEventsChannel string,
	market FeedUpdater,
	user FeedUpdater,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		slugs:      slugs,
		catalog:    catalog,
		bus:        bus,
		slugEvents: slugEventsChannel,
		market:     market,
		user:       user,
		logger:     logger.With(slog.String("component", "subscription")),
		bySlug:     make(map[string]domain.Market),
		byAsset:    make(map[string]domain.Market),
	}
}

// AddRetirer registers a component to notify when assets are dropped.
func (m *Manager) AddRetirer(r AssetRetirer) {
	m.retirers = append(m.retirers, r)
}

// MarketByAsset resolves the market an asset belongs to.
func (m *Manager) MarketByAsset(assetID string) (domain.Market, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	market, ok := m.byAsset[assetID]
	return market, ok
}

// MarketBySlug returns the cached market for a subscribed slug.
func (m *Manager) MarketBySlug(slug string) (domain.Market, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	market, ok := m.bySlug[slug]
	return market, ok
}

// NegRisk reports whether a subscribed market settles through the
// negative-risk adapter. Unknown slugs report false.
func (m *Manager) NegRisk(slug string) bool {
	market, ok := m.MarketBySlug(slug)
	return ok && market.NegRisk
}

// Slugs lists the currently subscribed slugs.
func (m *Manager) Slugs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.bySlug))
	for slug := range m.bySlug {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Run performs the initial sync and then follows slug-set changes until ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	events, err := m.bus.Subscribe(ctx, m.slugEvents)
	if err != nil {
		return fmt.Errorf("subscription: subscribe %s: %w", m.slugEvents, err)
	}

	if err := m.Sync(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-events:
			if !ok {
				return nil
			}
			var change domain.ChangeEvent
			if err := json.Unmarshal(payload, &change); err != nil {
				m.logger.Warn("bad slug event", slog.String("error", err.Error()))
				continue
			}
			if err := m.Sync(ctx); err != nil {
				m.logger.Warn("resync failed",
					slog.String("slug", change.Key),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Sync resolves the current slug set and pushes the derived asset and
// condition lists to the feed clients.
func (m *Manager) Sync(ctx context.Context) error {
	slugs, err := m.slugs.List(ctx)
	if err != nil {
		return fmt.Errorf("subscription: list slugs: %w", err)
	}

	fresh := make(map[string]domain.Market, len(slugs))
	for _, slug := range slugs {
		// Reuse the cached resolution; market metadata is immutable for
		// our purposes once the market is listed.
		if cached, ok := m.MarketBySlug(slug); ok {
			fresh[slug] = cached
			continue
		}
		market, err := m.catalog.MarketBySlug(ctx, slug)
		if err != nil {
			m.logger.Warn("slug resolution failed",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
			continue
		}
		fresh[slug] = market
	}

	var retired []string
	changed := false

	m.mu.Lock()
	for slug := range m.bySlug {
		if _, ok := fresh[slug]; !ok {
			changed = true
		}
	}
	for slug := range fresh {
		if _, ok := m.bySlug[slug]; !ok {
			changed = true
		}
	}

	oldAssets := m.byAsset
	m.bySlug = fresh
	m.byAsset = make(map[string]domain.Market, 2*len(fresh))
	for _, market := range fresh {
		for _, assetID := range market.AssetIDs() {
			m.byAsset[assetID] = market
		}
	}
	for assetID := range oldAssets {
		if _, ok := m.byAsset[assetID]; !ok {
			retired = append(retired, assetID)
		}
	}

	assets := make([]string, 0, len(m.byAsset))
	for assetID := range m.byAsset {
		assets = append(assets, assetID)
	}
	conditions := make([]string, 0, len(fresh))
	for _, market := range fresh {
		if market.ConditionID != "" {
			conditions = append(conditions, market.ConditionID)
		}
	}
	m.mu.Unlock()

	sort.Strings(assets)
	sort.Strings(conditions)

	if !changed {
		return nil
	}

	m.logger.Info("subscription set changed",
		slog.Int("markets", len(fresh)),
		slog.Int("assets", len(assets)),
		slog.Int("retired", len(retired)),
	)

	m.market.UpdateTargets(assets)
	if m.user != nil {
		m.user.UpdateTargets(conditions)
	}
	for _, r := range m.retirers {
		r.Retire(retired)
	}
	return nil
}
