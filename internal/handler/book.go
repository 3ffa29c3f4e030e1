package handler

import (
	"sort"
	"strconv"
)

// PriceLevel is one side level as sent on the wire, with string-encoded
// numerics.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// book is the handler's local view of one asset's order book. It is owned by
// a single actor goroutine, so no locking.
type book struct {
	bids map[float64]float64
	asks map[float64]float64
}

func newBook() *book {
	return &book{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// replace installs a full snapshot, discarding previous state.
func (b *book) replace(bids, asks []PriceLevel) {
	clear(b.bids)
	clear(b.asks)
	applyLevels(b.bids, bids)
	applyLevels(b.asks, asks)
}

// applyChange applies one incremental level update. Size zero removes the
// level. The wire uses BUY for bid levels and SELL for ask levels.
func (b *book) applyChange(side string, price, size float64) {
	levels := b.bids
	if side == "SELL" {
		levels = b.asks
	}
	if size <= 0 {
		delete(levels, price)
		return
	}
	levels[price] = size
}

// best returns the top of book. Zero values mean the side is empty.
func (b *book) best() (bidPx, bidSz, askPx, askSz float64) {
	for px, sz := range b.bids {
		if px > bidPx {
			bidPx, bidSz = px, sz
		}
	}
	askPx = 2 // above any valid binary price
	for px, sz := range b.asks {
		if px < askPx {
			askPx, askSz = px, sz
		}
	}
	if askSz == 0 {
		askPx = 0
	}
	return bidPx, bidSz, askPx, askSz
}

// depth returns the sorted levels of both sides, bids descending and asks
// ascending, for the control surface.
func (b *book) depth() (bids, asks []PriceLevel) {
	bids = sortLevels(b.bids, true)
	asks = sortLevels(b.asks, false)
	return bids, asks
}

func applyLevels(dst map[float64]float64, levels []PriceLevel) {
	for _, l := range levels {
		px, err1 := strconv.ParseFloat(l.Price, 64)
		sz, err2 := strconv.ParseFloat(l.Size, 64)
		if err1 != nil || err2 != nil || px <= 0 || sz <= 0 {
			continue
		}
		dst[px] = sz
	}
}

func sortLevels(m map[float64]float64, descending bool) []PriceLevel {
	prices := make([]float64, 0, len(m))
	for px := range m {
		prices = append(prices, px)
	}
	sort.Float64s(prices)
	if descending {
		for i, j := 0, len(prices)-1; i < j; i, j = i+1, j-1 {
			prices[i], prices[j] = prices[j], prices[i]
		}
	}

	out := make([]PriceLevel, 0, len(prices))
	for _, px := range prices {
		out = append(out, PriceLevel{
			Price: strconv.FormatFloat(px, 'f', -1, 64),
			Size:  strconv.FormatFloat(m[px], 'f', -1, 64),
		})
	}
	return out
}
