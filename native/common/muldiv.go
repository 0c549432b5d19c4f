package common

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrDivisionByZero = errors.New("muldiv: division by zero")
	ErrOverflow       = errors.New("muldiv: result overflows 256 bits")
	ErrNegative       = errors.New("muldiv: negative operand")
)

// MulDiv returns floor(x*y/d). The product is held at 512 bits so the
// intermediate never truncates; only the final quotient must fit in 256 bits.
func MulDiv(x, y, d *big.Int) (*big.Int, error) {
	if x == nil || y == nil || d == nil {
		return nil, ErrNegative
	}
	if d.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if x.Sign() < 0 || y.Sign() < 0 || d.Sign() < 0 {
		return nil, ErrNegative
	}
	ux, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ErrOverflow
	}
	uy, overflow := uint256.FromBig(y)
	if overflow {
		return nil, ErrOverflow
	}
	ud, overflow := uint256.FromBig(d)
	if overflow {
		return nil, ErrOverflow
	}
	out, overflow := new(uint256.Int).MulDivOverflow(ux, uy, ud)
	if overflow {
		return nil, ErrOverflow
	}
	return out.ToBig(), nil
}

// Percent returns floor(amount*pct/100).
func Percent(amount *big.Int, pct uint64) (*big.Int, error) {
	return MulDiv(amount, new(big.Int).SetUint64(pct), big.NewInt(100))
}

// Clone returns a copy of v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
