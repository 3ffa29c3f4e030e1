// Package polymarket provides REST clients for the Polymarket CLOB, Gamma,
// and Data APIs.
package polymarket

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// APITag is a Gamma tag object.
type APITag struct {
	Label string `json:"label"`
}

// APIEventRef is the subset of an embedded Gamma event we care about.
type APIEventRef struct {
	NegRisk bool     `json:"negRisk"`
	Tags    []APITag `json:"tags"`
}

// APIMarket is the Gamma wire representation of a market. Numeric fields
// arrive as JSON strings in several places; conversions live in
// ToDomainMarket.
type APIMarket struct {
	Slug            string        `json:"slug"`
	ConditionID     string        `json:"conditionId"`
	Question        string        `json:"question"`
	ClobTokenIDs    string        `json:"clobTokenIds"` // JSON-encoded string array
	Outcomes        string        `json:"outcomes"`     // JSON-encoded string array
	OutcomePrices   string        `json:"outcomePrices"`
	NegRisk         bool          `json:"negRisk"`
	Closed          bool          `json:"closed"`
	EndDate         string        `json:"endDate"`
	TickSize        float64       `json:"orderPriceMinTickSize"`
	OrderMinSize    float64       `json:"orderMinSize"`
	UMAResolution   string        `json:"umaResolutionStatus"`
	Tags            []APITag      `json:"tags"`
	Events          []APIEventRef `json:"events"`
}

// stringArray decodes Gamma's JSON-encoded string arrays ("[\"a\",\"b\"]").
func stringArray(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// ToDomainMarket converts the wire form to the domain type.
func (m *APIMarket) ToDomainMarket() domain.Market {
	tokens := stringArray(m.ClobTokenIDs)
	prices := stringArray(m.OutcomePrices)

	out := domain.Market{
		Slug:         m.Slug,
		ConditionID:  m.ConditionID,
		Question:     m.Question,
		NegRisk:      m.NegRisk,
		Closed:       m.Closed,
		TickSize:     m.TickSize,
		OrderMinSize: m.OrderMinSize,
		Resolved:     m.UMAResolution == "resolved",
	}

	if len(tokens) > 0 {
		out.YesAssetID = tokens[0]
	}
	if len(tokens) > 1 {
		out.NoAssetID = tokens[1]
	}

	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			out.EndTime = t.UTC()
		}
	}

	// The winning asset is the token whose outcome price settled at 1.
	if out.Resolved {
		for i, p := range prices {
			if i >= len(tokens) {
				break
			}
			if v, err := strconv.ParseFloat(p, 64); err == nil && v >= 0.999 {
				out.WinningAsset = tokens[i]
				break
			}
		}
	}

	// Tags appear both on the market and on embedded events.
	seen := map[string]bool{}
	appendTag := func(label string) {
		if label != "" && !seen[label] {
			seen[label] = true
			out.Tags = append(out.Tags, label)
		}
	}
	for _, t := range m.Tags {
		appendTag(t.Label)
	}
	for _, e := range m.Events {
		if e.NegRisk {
			out.NegRisk = true
		}
		for _, t := range e.Tags {
			appendTag(t.Label)
		}
	}

	return out
}

// APIOpenOrder is the CLOB wire representation of a resting order.
type APIOpenOrder struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"` // unix seconds
}

// ToDomainOpenOrder converts the wire form to the domain type.
func (o *APIOpenOrder) ToDomainOpenOrder() domain.OpenOrder {
	price, _ := strconv.ParseFloat(o.Price, 64)
	size, _ := strconv.ParseFloat(o.OriginalSize, 64)

	out := domain.OpenOrder{
		OrderID: o.ID,
		AssetID: o.AssetID,
		Side:    domain.Side(o.Side),
		Price:   price,
		Size:    size,
		Status:  domain.TradeStatus(o.Status),
	}
	if o.CreatedAt > 0 {
		out.CreatedAt = time.Unix(o.CreatedAt, 0).UTC()
	}
	return out
}

// APIPosition is the Data API wire representation of a token position.
type APIPosition struct {
	Asset       string  `json:"asset"`
	ConditionID string  `json:"conditionId"`
	Size        float64 `json:"size"`
	AvgPrice    float64 `json:"avgPrice"`
	Redeemable  bool    `json:"redeemable"`
	Outcome     string  `json:"outcome"`
}

// ToDomainPosition converts the wire form to the domain type.
func (p *APIPosition) ToDomainPosition() domain.Position {
	return domain.Position{
		AssetID:     p.Asset,
		ConditionID: p.ConditionID,
		Size:        p.Size,
		AvgPrice:    p.AvgPrice,
		Redeemable:  p.Redeemable,
		Outcome:     p.Outcome,
	}
}

// apiOrderResult is the CLOB response to order placement.
type apiOrderResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}
