package domain

import "time"

// TrendDirection is the hysteresis-gated output of the trend filter.
type TrendDirection string

const (
	TrendUp   TrendDirection = "UP"
	TrendDown TrendDirection = "DOWN"
	TrendFlat TrendDirection = "FLAT"
)

// TrendPrediction is the trend filter output attached to a MarketContext.
type TrendPrediction struct {
	Direction  TrendDirection `json:"direction"`
	Confidence float64        `json:"confidence"` // |t|/(1+|t|), in [0,1)
	TStat      float64        `json:"t_stat"`
	Velocity   float64        `json:"velocity"` // logit units per second
	UpdatedAt  time.Time      `json:"updated_at"`

	// LastReversal is the time of the most recent UP/DOWN sign change.
	// Zero when no reversal has been observed.
	LastReversal time.Time `json:"last_reversal,omitempty"`
}

// ReversedWithin reports whether the direction flipped within window of now.
func (p TrendPrediction) ReversedWithin(now time.Time, window time.Duration) bool {
	return !p.LastReversal.IsZero() && now.Sub(p.LastReversal) < window
}
