// Package feed ingests the Polymarket CLOB market and user websocket
// channels, flattens frames into individual events, and hands them to the
// actor layer.
package feed

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event is one feed event after envelope parsing. Seq is assigned by the
// ingester at ingress and increases monotonically across the process, so
// per-asset watermarks can drop stale deliveries regardless of which
// connection produced them.
type Event struct {
	Channel string // "market" or "user"
	Type    string // event_type from the envelope
	AssetID string
	Market  string // condition id, when present
	At      time.Time
	Seq     uint64
	Raw     json.RawMessage
}

// envelope is the subset of every frame needed for routing.
type envelope struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// flattenFrame splits a raw websocket frame into individual JSON objects.
// The CLOB batches events into arrays; single objects pass through as a
// one-element slice. A nil return means the frame was not JSON.
func flattenFrame(raw []byte) []json.RawMessage {
	trimmed := trimLeftSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil
		}
		return items
	}

	if trimmed[0] != '{' {
		return nil
	}
	if !json.Valid(trimmed) {
		return nil
	}
	return []json.RawMessage{trimmed}
}

func trimLeftSpace(b []byte) []byte {
	for len(b) > 0 {
		switch b[0] {
		case ' ', '\t', '\n', '\r':
			b = b[1:]
		default:
			return b
		}
	}
	return b
}

// parseEvent extracts routing fields from one flattened object. The event
// timestamp is normalized at ingress: values above 1e11 are interpreted as
// milliseconds. A missing or unparseable timestamp falls back to now.
func parseEvent(channel string, raw json.RawMessage, now time.Time) (Event, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, false
	}

	ev := Event{
		Channel: channel,
		Type:    env.EventType,
		AssetID: env.AssetID,
		Market:  env.Market,
		At:      normalizeTimestamp(env.Timestamp, now),
		Raw:     raw,
	}
	return ev, true
}

// normalizeTimestamp handles the CLOB's mixed second/millisecond epoch
// encodings, which additionally arrive as either JSON numbers or strings.
func normalizeTimestamp(raw json.RawMessage, fallback time.Time) time.Time {
	if len(raw) == 0 {
		return fallback
	}

	s := string(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return fallback
	}

	// Epochs beyond 1e11 can only be milliseconds.
	if v > 1e11 {
		v /= 1000
	}

	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
