package strategy

import (
	"testing"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

func testMarket() domain.Market {
	return domain.Market{
		Slug:    "btc-hourly",
		Tags:    []string{"Crypto", "Hourly"},
		EndTime: time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC),
	}
}

func testContext(bid, ask float64) domain.MarketContext {
	return domain.MarketContext{
		MarketSlug: "btc-hourly",
		AssetID:    "asset-1",
		BestBid:    bid,
		BestBidSize: 100,
		BestAsk:    ask,
		BestAskSize: 100,
		Mid:        (bid + ask) / 2,
		Spread:     ask - bid,
	}
}

func TestParsePredicate(t *testing.T) {
	now := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	m := testMarket()
	mc := testContext(0.84, 0.86)

	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{"has_tag match", `{"op":"has_tag","tag":"Crypto"}`, true},
		{"has_tag miss", `{"op":"has_tag","tag":"Sports"}`, false},
		{"price_in match", `{"op":"price_in","min":0.8,"max":0.9}`, true},
		{"price_in miss", `{"op":"price_in","min":0.9,"max":0.95}`, false},
		{"spread_at_most match", `{"op":"spread_at_most","max":0.03}`, true},
		{"spread_at_most miss", `{"op":"spread_at_most","max":0.01}`, false},
		{"time_left match", `{"op":"time_left_at_least","d":"30m"}`, true},
		{"time_left miss", `{"op":"time_left_at_least","d":"2h"}`, false},
		{
			"all requires every child",
			`{"op":"all","args":[{"op":"has_tag","tag":"Crypto"},{"op":"price_in","min":0.8,"max":0.9}]}`,
			true,
		},
		{
			"all fails on one child",
			`{"op":"all","args":[{"op":"has_tag","tag":"Crypto"},{"op":"price_in","min":0.9,"max":0.95}]}`,
			false,
		},
		{
			"any needs one child",
			`{"op":"any","args":[{"op":"has_tag","tag":"Sports"},{"op":"has_tag","tag":"Hourly"}]}`,
			true,
		},
		{"not inverts", `{"op":"not","arg":{"op":"has_tag","tag":"Sports"}}`, true},
		{
			"nested tree",
			`{"op":"all","args":[
				{"op":"not","arg":{"op":"has_tag","tag":"Sports"}},
				{"op":"any","args":[{"op":"price_in","min":0.8,"max":0.9},{"op":"spread_at_most","max":0.001}]}
			]}`,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := ParsePredicate(tt.doc)
			if err != nil {
				t.Fatalf("ParsePredicate: %v", err)
			}
			if got := pred.Eval(m, mc, now); got != tt.want {
				t.Errorf("Eval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePredicateErrors(t *testing.T) {
	docs := []string{
		`{"op":"warp_drive"}`,
		`{"op":"has_tag"}`,
		`{"op":"price_in","min":0.9,"max":0.1}`,
		`{"op":"spread_at_most"}`,
		`{"op":"time_left_at_least","d":"soon"}`,
		`{"op":"all","args":[]}`,
		`{"op":"not"}`,
		`not json`,
	}

	for _, doc := range docs {
		if _, err := ParsePredicate(doc); err == nil {
			t.Errorf("ParsePredicate(%q) accepted an invalid document", doc)
		}
	}
}

func TestPriceInRequiresBook(t *testing.T) {
	pred, err := ParsePredicate(`{"op":"price_in","min":0,"max":1}`)
	if err != nil {
		t.Fatal(err)
	}
	// An empty book never matches, whatever the band.
	if pred.Eval(testMarket(), domain.MarketContext{}, time.Now()) {
		t.Error("price_in matched an empty book")
	}
}
