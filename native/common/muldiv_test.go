package common

import (
	"errors"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestMulDivFloors(t *testing.T) {
	got, err := MulDiv(big.NewInt(100), big.NewInt(1), big.NewInt(3))
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if got.Int64() != 33 {
		t.Fatalf("expected 33, got %s", got)
	}
}

func TestMulDivKeepsWideIntermediate(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	got, err := MulDiv(max, max, max)
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if got.Cmp(max) != 0 {
		t.Fatalf("expected max uint256, got %s", got)
	}
	if _, err := MulDiv(max, big.NewInt(2), big.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestMulDivRejectsBadOperands(t *testing.T) {
	if _, err := MulDiv(big.NewInt(1), big.NewInt(1), big.NewInt(0)); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := MulDiv(big.NewInt(-1), big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected negative operand error, got %v", err)
	}
}

func TestPercentMatchesRewardTiers(t *testing.T) {
	pool := big.NewInt(30_000_001)
	want := []int64{15_000_000, 7_800_000, 3_900_000, 2_100_000, 1_200_000}
	for i, pct := range []uint64{50, 26, 13, 7, 4} {
		got, err := Percent(pool, pct)
		if err != nil {
			t.Fatalf("percent: %v", err)
		}
		if got.Int64() != want[i] {
			t.Fatalf("tier %d: expected %d, got %s", i+1, want[i], got)
		}
	}
}

func TestMulDivNeverExceedsExactQuotient(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("floor(x*y/d)*d <= x*y", prop.ForAll(
		func(x, y, d uint64) bool {
			bx, by, bd := new(big.Int).SetUint64(x), new(big.Int).SetUint64(y), new(big.Int).SetUint64(d)
			got, err := MulDiv(bx, by, bd)
			if err != nil {
				return false
			}
			product := new(big.Int).Mul(bx, by)
			lower := new(big.Int).Mul(got, bd)
			upper := new(big.Int).Add(lower, bd)
			return lower.Cmp(product) <= 0 && upper.Cmp(product) > 0
		},
		gen.UInt64Range(0, 1<<62),
		gen.UInt64Range(0, 1<<62),
		gen.UInt64Range(1, 1<<62),
	))
	properties.TestingRun(t)
}
