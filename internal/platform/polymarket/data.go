package polymarket

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// DataClient is the REST client for the Polymarket Data API, used to read
// the wallet's current token positions.
type DataClient struct {
	rc     *resty.Client
	wallet string
}

// NewDataClient creates a new Data API client for the given wallet address.
//
// baseURL is the Data API root, e.g. "https://data-api.polymarket.com".
func NewDataClient(baseURL, wallet string) *DataClient {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(perAttemptTimeout).
		SetHeader("Accept", "application/json")
	return &DataClient{rc: rc, wallet: wallet}
}

// Positions returns the wallet's current token positions.
func (d *DataClient) Positions(ctx context.Context) ([]domain.Position, error) {
	var apiPositions []APIPosition

	err := withRetry(ctx, "list positions", func(ctx context.Context) error {
		apiPositions = apiPositions[:0]
		resp, err := d.rc.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"user":          d.wallet,
				"sizeThreshold": "0.1",
				"limit":         "500",
			}).
			SetResult(&apiPositions).
			Get("/positions")
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		return checkHTTPStatus(resp.StatusCode(), resp.Body())
	})
	if err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(apiPositions))
	for i := range apiPositions {
		positions = append(positions, apiPositions[i].ToDomainPosition())
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionSource = (*DataClient)(nil)
