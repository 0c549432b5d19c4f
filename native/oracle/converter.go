package oracle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "stele/native/common"
)

// Converter prices one asset in terms of another by routing both legs through
// the base asset. The base asset's rate is always exactly one.
type Converter struct {
	base   common.Address
	source Source
}

// NewConverter binds a converter to the base asset and a rate source.
func NewConverter(base common.Address, source Source) *Converter {
	return &Converter{base: base, source: source}
}

// BaseAsset returns the asset every rate is denominated in.
func (c *Converter) BaseAsset() common.Address { return c.base }

func (c *Converter) rate(asset common.Address) (*big.Rat, error) {
	if asset == c.base {
		return big.NewRat(1, 1), nil
	}
	if c.source == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrNoQuote)
	}
	quote, err := c.source.Rate(asset)
	if err != nil {
		return nil, err
	}
	if quote.Rate == nil || quote.Rate.Sign() <= 0 {
		return nil, ErrInvalidRate
	}
	return quote.Rate, nil
}

// Quote returns floor(amount * rate(from) / rate(to)). Both rate fractions are
// folded into a single multiply-then-divide so no intermediate is rounded.
func (c *Converter) Quote(from, to common.Address, amount *big.Int) (*big.Int, error) {
	if c == nil {
		return nil, fmt.Errorf("converter not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("oracle: amount must be non-negative")
	}
	if from == to {
		return new(big.Int).Set(amount), nil
	}
	rFrom, err := c.rate(from)
	if err != nil {
		return nil, err
	}
	rTo, err := c.rate(to)
	if err != nil {
		return nil, err
	}
	num := new(big.Int).Mul(rFrom.Num(), rTo.Denom())
	den := new(big.Int).Mul(rFrom.Denom(), rTo.Num())
	return nativecommon.MulDiv(amount, num, den)
}
