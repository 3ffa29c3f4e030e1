package polymarket

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	rc *resty.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(perAttemptTimeout).
		SetHeader("Accept", "application/json")
	return &GammaClient{rc: rc}
}

// MarketBySlug returns a single market looked up by its URL slug.
func (g *GammaClient) MarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	var apiMarkets []APIMarket

	err := withRetry(ctx, "get market by slug", func(ctx context.Context) error {
		apiMarkets = apiMarkets[:0]
		resp, err := g.rc.R().
			SetContext(ctx).
			SetQueryParam("slug", slug).
			SetResult(&apiMarkets).
			Get("/markets")
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		return checkHTTPStatus(resp.StatusCode(), resp.Body())
	})
	if err != nil {
		return domain.Market{}, err
	}

	if len(apiMarkets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}
	return apiMarkets[0].ToDomainMarket(), nil
}

// HourlyMarkets lists open markets ending within the next hour, the
// short-horizon universe the market refresh task draws from.
func (g *GammaClient) HourlyMarkets(ctx context.Context) ([]domain.Market, error) {
	now := time.Now().UTC()

	var apiMarkets []APIMarket
	err := withRetry(ctx, "list hourly markets", func(ctx context.Context) error {
		apiMarkets = apiMarkets[:0]
		resp, err := g.rc.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"closed":       "false",
				"limit":        "200",
				"order":        "endDate",
				"ascending":    "true",
				"end_date_min": now.Format(time.RFC3339),
				"end_date_max": now.Add(time.Hour).Format(time.RFC3339),
			}).
			SetResult(&apiMarkets).
			Get("/markets")
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		return checkHTTPStatus(resp.StatusCode(), resp.Body())
	})
	if err != nil {
		return nil, err
	}

	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		markets = append(markets, apiMarkets[i].ToDomainMarket())
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketCatalog = (*GammaClient)(nil)
