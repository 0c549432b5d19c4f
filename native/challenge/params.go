package challenge

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxAssets bounds the distinct assets a portfolio may hold.
	MaxAssets = 10
	// RankingSize is the number of leaderboard slots and paid tiers.
	RankingSize = 5
	// BaseDecimals is the precision of the base asset.
	BaseDecimals = 6

	day = 24 * time.Hour
)

// RewardRatios are the percentage shares of the pool paid to ranks 1 through 5.
var RewardRatios = [RankingSize]uint64{50, 26, 13, 7, 4}

var baseUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(BaseDecimals), nil)

// DefaultEntryFee is 10 base tokens.
func DefaultEntryFee() *big.Int { return new(big.Int).Mul(big.NewInt(10), baseUnit) }

// DefaultSeedAmount is 1,000 base tokens.
func DefaultSeedAmount() *big.Int { return new(big.Int).Mul(big.NewInt(1_000), baseUnit) }

// DurationClass selects the fixed length of a challenge.
type DurationClass uint8

const (
	OneWeek DurationClass = iota
	OneMonth
	ThreeMonths
	SixMonths
	OneYear
)

var durationClasses = []struct {
	class   DurationClass
	name    string
	aliases []string
	length  time.Duration
}{
	{OneWeek, "1w", []string{"week", "oneweek", "one_week"}, 7 * day},
	{OneMonth, "1mo", []string{"month", "onemonth", "one_month"}, 30 * day},
	{ThreeMonths, "3mo", []string{"threemonths", "three_months"}, 90 * day},
	{SixMonths, "6mo", []string{"sixmonths", "six_months"}, 180 * day},
	{OneYear, "1y", []string{"year", "oneyear", "one_year"}, 365 * day},
}

// Valid reports whether c names a known class.
func (c DurationClass) Valid() bool { return int(c) < len(durationClasses) }

// Duration returns the challenge length for the class.
func (c DurationClass) Duration() time.Duration {
	if !c.Valid() {
		return 0
	}
	return durationClasses[c].length
}

func (c DurationClass) String() string {
	if !c.Valid() {
		return fmt.Sprintf("class(%d)", uint8(c))
	}
	return durationClasses[c].name
}

// ParseDurationClass accepts the short names ("1w", "1mo", "3mo", "6mo", "1y")
// and a few spelled-out aliases.
func ParseDurationClass(value string) (DurationClass, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, entry := range durationClasses {
		if normalized == entry.name {
			return entry.class, nil
		}
		for _, alias := range entry.aliases {
			if normalized == alias {
				return entry.class, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: unknown duration class %q", ErrInvalidArgument, value)
}

// Params holds the engine-wide configuration. EntryFee and SeedAmount are
// copied into each challenge when it is created; later changes only affect
// new challenges.
type Params struct {
	Admin      common.Address
	BaseAsset  common.Address
	EntryFee   *big.Int
	SeedAmount *big.Int
	NextID     uint64
}

// DefaultParams returns the production defaults for the given admin and base asset.
func DefaultParams(admin, base common.Address) Params {
	return Params{
		Admin:      admin,
		BaseAsset:  base,
		EntryFee:   DefaultEntryFee(),
		SeedAmount: DefaultSeedAmount(),
		NextID:     1,
	}
}

// Validate checks that the params can bootstrap an engine.
func (p Params) Validate() error {
	if p.Admin == (common.Address{}) {
		return fmt.Errorf("%w: admin required", ErrInvalidArgument)
	}
	if p.BaseAsset == (common.Address{}) {
		return fmt.Errorf("%w: base asset required", ErrInvalidArgument)
	}
	if p.EntryFee == nil || p.EntryFee.Sign() <= 0 {
		return fmt.Errorf("%w: entry fee must be positive", ErrInvalidArgument)
	}
	if p.SeedAmount == nil || p.SeedAmount.Sign() <= 0 {
		return fmt.Errorf("%w: seed amount must be positive", ErrInvalidArgument)
	}
	return nil
}

func (p *Params) normalize() {
	if p.EntryFee == nil {
		p.EntryFee = big.NewInt(0)
	}
	if p.SeedAmount == nil {
		p.SeedAmount = big.NewInt(0)
	}
	if p.NextID == 0 {
		p.NextID = 1
	}
}
