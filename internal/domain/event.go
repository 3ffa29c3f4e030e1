package domain

import "time"

// EventCode classifies why an evaluation or execution produced no order, was
// blocked, or failed.
type EventCode string

const (
	EventTrendFlat        EventCode = "TREND_FLAT"
	EventTrendReversal    EventCode = "TREND_REVERSAL"
	EventTrendMismatch    EventCode = "TREND_MISMATCH"
	EventNoEnter          EventCode = "NO_ENTER"
	EventNoExit           EventCode = "NO_EXIT"
	EventSlippage         EventCode = "SLIPPAGE"
	EventLockout          EventCode = "LOCKOUT"
	EventClobAPIError     EventCode = "CLOB_API_ERROR"
	EventException        EventCode = "EXCEPTION"
	EventStructuralError  EventCode = "STRUCTURAL_ERROR"
	EventMissingDataError EventCode = "MISSING_DATA_ERROR"
)

// EventState is the disposition of the evaluation that produced the event.
type EventState string

const (
	EventStateValidated EventState = "VALIDATED"
	EventStateBlocked   EventState = "BLOCKED"
	EventStateFailed    EventState = "FAILED"
)

// TradeEvent records a non-order outcome of strategy evaluation or order
// execution. Events flow to the relational sink for later analysis.
type TradeEvent struct {
	Code       EventCode  `json:"code"`
	State      EventState `json:"state"`
	MarketSlug string     `json:"market_slug"`
	AssetID    string     `json:"asset_id"`
	Side       Side       `json:"side,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	At         time.Time  `json:"at"`
}

// NewTradeEvent builds an event stamped with now.
func NewTradeEvent(code EventCode, state EventState, market, asset string, side Side, detail string) TradeEvent {
	return TradeEvent{
		Code:       code,
		State:      state,
		MarketSlug: market,
		AssetID:    asset,
		Side:       side,
		Detail:     detail,
		At:         time.Now().UTC(),
	}
}
