package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"stele/core/types"
)

const (
	// TypeChallengeCreated is emitted when a new challenge opens.
	TypeChallengeCreated = "challenge.created"
	// TypeChallengeJoined is emitted when a participant pays the entry fee and
	// receives the seed balance.
	TypeChallengeJoined = "challenge.joined"
	// TypeChallengeSwap is emitted for every committed portfolio swap.
	TypeChallengeSwap = "challenge.swap"
	// TypeChallengeRanked is emitted whenever a participant's score is
	// recomputed against the leaderboard.
	TypeChallengeRanked = "challenge.ranked"
	// TypeChallengeRewardClaimed is emitted on a participant's first claim.
	TypeChallengeRewardClaimed = "challenge.reward.claimed"
	// TypeChallengeBadgeAuthorized is emitted when a top finisher is cleared
	// to mint a performance badge.
	TypeChallengeBadgeAuthorized = "challenge.badge.authorized"
	// TypeInvestableAssetUpdated is emitted when the allow-list changes.
	TypeInvestableAssetUpdated = "challenge.asset.updated"
	// TypeChallengeParamsUpdated is emitted when an administrative parameter changes.
	TypeChallengeParamsUpdated = "challenge.params.updated"
)

type ChallengeCreated struct {
	ChallengeID uint64
	Class       string
	Creator     common.Address
	StartTime   uint64
	EndTime     uint64
	EntryFee    *big.Int
	SeedAmount  *big.Int
}

func (ChallengeCreated) EventType() string { return TypeChallengeCreated }

func (e ChallengeCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeCreated,
		Attributes: map[string]string{
			"challengeId": formatUint(e.ChallengeID),
			"class":       e.Class,
			"creator":     formatAddress(e.Creator),
			"startTime":   formatUint(e.StartTime),
			"endTime":     formatUint(e.EndTime),
			"entryFee":    formatAmount(e.EntryFee),
			"seedAmount":  formatAmount(e.SeedAmount),
		},
	}
}

type ChallengeJoined struct {
	ChallengeID       uint64
	Participant       common.Address
	EntryFee          *big.Int
	SeedAmount        *big.Int
	TotalParticipants uint64
	TotalRewards      *big.Int
}

func (ChallengeJoined) EventType() string { return TypeChallengeJoined }

func (e ChallengeJoined) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeJoined,
		Attributes: map[string]string{
			"challengeId":       formatUint(e.ChallengeID),
			"participant":       formatAddress(e.Participant),
			"entryFee":          formatAmount(e.EntryFee),
			"seedAmount":        formatAmount(e.SeedAmount),
			"totalParticipants": formatUint(e.TotalParticipants),
			"totalRewards":      formatAmount(e.TotalRewards),
		},
	}
}

// ChallengeSwap reports both legs of a swap. FromPrice and ToPrice carry the
// oracle's base-asset valuation of each leg at execution time.
type ChallengeSwap struct {
	ChallengeID uint64
	Participant common.Address
	FromAsset   common.Address
	ToAsset     common.Address
	FromAmount  *big.Int
	ToAmount    *big.Int
	FromPrice   *big.Int
	ToPrice     *big.Int
}

func (ChallengeSwap) EventType() string { return TypeChallengeSwap }

func (e ChallengeSwap) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeSwap,
		Attributes: map[string]string{
			"challengeId": formatUint(e.ChallengeID),
			"participant": formatAddress(e.Participant),
			"fromAsset":   formatAddress(e.FromAsset),
			"toAsset":     formatAddress(e.ToAsset),
			"fromAmount":  formatAmount(e.FromAmount),
			"toAmount":    formatAmount(e.ToAmount),
			"fromPrice":   formatAmount(e.FromPrice),
			"toPrice":     formatAmount(e.ToPrice),
		},
	}
}

type ChallengeRanked struct {
	ChallengeID uint64
	Participant common.Address
	Score       *big.Int
	// Rank is 1-based; zero means the score did not make the leaderboard.
	Rank int
}

func (ChallengeRanked) EventType() string { return TypeChallengeRanked }

func (e ChallengeRanked) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeRanked,
		Attributes: map[string]string{
			"challengeId": formatUint(e.ChallengeID),
			"participant": formatAddress(e.Participant),
			"score":       formatAmount(e.Score),
			"rank":        strconv.Itoa(e.Rank),
		},
	}
}

type ChallengeRewardClaimed struct {
	ChallengeID uint64
	Participant common.Address
	Rank        int
	Amount      *big.Int
}

func (ChallengeRewardClaimed) EventType() string { return TypeChallengeRewardClaimed }

func (e ChallengeRewardClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeRewardClaimed,
		Attributes: map[string]string{
			"challengeId": formatUint(e.ChallengeID),
			"participant": formatAddress(e.Participant),
			"rank":        strconv.Itoa(e.Rank),
			"amount":      formatAmount(e.Amount),
		},
	}
}

type ChallengeBadgeAuthorized struct {
	ChallengeID   uint64
	Participant   common.Address
	BadgeID       common.Hash
	Rank          int
	Score         *big.Int
	ReturnRateBps int64
}

func (ChallengeBadgeAuthorized) EventType() string { return TypeChallengeBadgeAuthorized }

func (e ChallengeBadgeAuthorized) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeBadgeAuthorized,
		Attributes: map[string]string{
			"challengeId":   formatUint(e.ChallengeID),
			"participant":   formatAddress(e.Participant),
			"badgeId":       e.BadgeID.Hex(),
			"rank":          strconv.Itoa(e.Rank),
			"score":         formatAmount(e.Score),
			"returnRateBps": strconv.FormatInt(e.ReturnRateBps, 10),
		},
	}
}

type InvestableAssetUpdated struct {
	Asset   common.Address
	Added   bool
	Version uint64
}

func (InvestableAssetUpdated) EventType() string { return TypeInvestableAssetUpdated }

func (e InvestableAssetUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeInvestableAssetUpdated,
		Attributes: map[string]string{
			"asset":   formatAddress(e.Asset),
			"added":   strconv.FormatBool(e.Added),
			"version": formatUint(e.Version),
		},
	}
}

type ChallengeParamsUpdated struct {
	Field string
	Value string
}

func (ChallengeParamsUpdated) EventType() string { return TypeChallengeParamsUpdated }

func (e ChallengeParamsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeParamsUpdated,
		Attributes: map[string]string{
			"field": e.Field,
			"value": e.Value,
		},
	}
}
