// Package domain defines the shared types, enums, and store interfaces used
// across the hunter. Backend packages (redis, postgres, polymarket) implement
// the interfaces declared here.
package domain

import "time"

// Side is the order side on the CLOB.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the CLOB order time-in-force.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC"
	OrderTypeFOK OrderType = "FOK"
	OrderTypeGTD OrderType = "GTD"
)

// Market is the metadata for a single binary market, resolved from the Gamma
// API by slug.
type Market struct {
	Slug         string    `json:"slug"`
	ConditionID  string    `json:"condition_id"`
	Question     string    `json:"question"`
	YesAssetID   string    `json:"yes_asset_id"`
	NoAssetID    string    `json:"no_asset_id"`
	NegRisk      bool      `json:"neg_risk"`
	Tags         []string  `json:"tags"`
	TickSize     float64   `json:"tick_size"`
	OrderMinSize float64   `json:"order_min_size"`
	EndTime      time.Time `json:"end_time"`
	Closed       bool      `json:"closed"`
	Resolved     bool      `json:"resolved"`
	WinningAsset string    `json:"winning_asset,omitempty"`
}

// AssetIDs returns the YES and NO token IDs, skipping empties.
func (m Market) AssetIDs() []string {
	ids := make([]string, 0, 2)
	if m.YesAssetID != "" {
		ids = append(ids, m.YesAssetID)
	}
	if m.NoAssetID != "" {
		ids = append(ids, m.NoAssetID)
	}
	return ids
}

// Ended reports whether the market's trading window has passed.
func (m Market) Ended(now time.Time) bool {
	return m.Closed || (!m.EndTime.IsZero() && now.After(m.EndTime))
}

// HasTag reports whether any of the market's tags matches tag (exact match).
func (m Market) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
