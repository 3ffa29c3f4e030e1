package polymarket

import (
	"github.com/shopspring/decimal"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// usdcScale converts human units to the 6-decimal on-chain representation
// shared by USDC and conditional tokens.
var usdcScale = decimal.New(1, 6)

// orderAmounts computes the EIP-712 maker/taker amounts for a marketable
// limit order, as integer strings in 6-decimal units.
//
// Quantization follows the CLOB's rounding rules: for a BUY the maker amount
// (USDC spent) is rounded to 2 decimals and the taker amount (shares
// received) to 4; for a SELL the maker amount (shares sold) is rounded to 4
// decimals and the taker amount (USDC received) to 2. Rounding is always
// down so the order never overcommits.
func orderAmounts(side domain.Side, price, size float64) (maker, taker string) {
	p := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(size)

	if side == domain.SideBuy {
		usd := s.Mul(p).RoundDown(2)
		shares := s.RoundDown(4)
		return usd.Mul(usdcScale).Truncate(0).String(),
			shares.Mul(usdcScale).Truncate(0).String()
	}

	shares := s.RoundDown(4)
	usd := s.Mul(p).RoundDown(2)
	return shares.Mul(usdcScale).Truncate(0).String(),
		usd.Mul(usdcScale).Truncate(0).String()
}
