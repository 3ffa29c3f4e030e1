package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// MarketRefresh keeps the slug set aligned with the exchange's short-horizon
// market listing: new qualifying markets are added, markets that have ended
// or disappeared are pruned.
type MarketRefresh struct {
	catalog        domain.MarketCatalog
	slugs          domain.SlugStore
	excludedTags   []string
	includeNegRisk bool
	logger         *slog.Logger
}

// NewMarketRefresh builds the discovery task.
func NewMarketRefresh(
	catalog domain.MarketCatalog,
	slugs domain.SlugStore,
	excludedTags []string,
	includeNegRisk bool,
	logger *slog.Logger,
) *MarketRefresh {
	return &MarketRefresh{
		catalog:        catalog,
		slugs:          slugs,
		excludedTags:   excludedTags,
		includeNegRisk: includeNegRisk,
		logger:         logger.With(slog.String("component", "market_refresh")),
	}
}

// Refresh runs one discovery pass.
func (m *MarketRefresh) Refresh(ctx context.Context) error {
	listed, err := m.catalog.HourlyMarkets(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list hourly markets: %w", err)
	}

	now := time.Now().UTC()
	wanted := make(map[string]bool, len(listed))
	for _, market := range listed {
		if !m.eligible(market, now) {
			continue
		}
		wanted[market.Slug] = true
	}

	current, err := m.slugs.List(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list slugs: %w", err)
	}
	have := make(map[string]bool, len(current))
	for _, slug := range current {
		have[slug] = true
	}

	added, pruned := 0, 0
	for slug := range wanted {
		if have[slug] {
			continue
		}
		if err := m.slugs.Add(ctx, slug); err != nil {
			m.logger.Warn("slug add failed", slog.String("slug", slug), slog.String("error", err.Error()))
			continue
		}
		added++
	}
	for _, slug := range current {
		if wanted[slug] {
			continue
		}
		// Absent from the listing: either ended or delisted. Confirm
		// before pruning so a flaky listing does not drop live markets.
		market, err := m.catalog.MarketBySlug(ctx, slug)
		if err == nil && !market.Ended(now) {
			continue
		}
		if err := m.slugs.Remove(ctx, slug); err != nil {
			m.logger.Warn("slug remove failed", slog.String("slug", slug), slog.String("error", err.Error()))
			continue
		}
		pruned++
	}

	if added > 0 || pruned > 0 {
		m.logger.Info("market set refreshed",
			slog.Int("listed", len(listed)),
			slog.Int("added", added),
			slog.Int("pruned", pruned),
		)
	}
	return nil
}

// eligible applies the discovery filters: no ended markets, optionally no
// negative-risk markets, and none carrying an excluded tag.
func (m *MarketRefresh) eligible(market domain.Market, now time.Time) bool {
	if market.Slug == "" || market.Ended(now) {
		return false
	}
	if market.NegRisk && !m.includeNegRisk {
		return false
	}
	for _, tag := range m.excludedTags {
		if market.HasTag(tag) {
			return false
		}
	}
	return true
}
