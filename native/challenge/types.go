package challenge

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is the stored distribution progress of a challenge.
type Phase uint8

const (
	PhaseActive Phase = iota
	// PhaseDistributing is entered by the first claim; the leaderboard is frozen.
	PhaseDistributing
	// PhaseDistributed is entered once every ranked finisher has claimed.
	PhaseDistributed
)

// State is the lifecycle state observed at a point in time.
type State uint8

const (
	StateOpen State = iota + 1
	StateEnded
	StateDistributing
	StateDistributed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateEnded:
		return "ended"
	case StateDistributing:
		return "distributing"
	case StateDistributed:
		return "distributed"
	default:
		return "unknown"
	}
}

// Challenge is the per-challenge aggregate. Everything except the counters and
// the phase is fixed at creation.
type Challenge struct {
	ID                uint64
	Class             DurationClass
	Creator           common.Address
	StartTime         uint64
	EndTime           uint64
	EntryFee          *big.Int
	SeedAmount        *big.Int
	TotalParticipants uint64
	TotalRewards      *big.Int
	TotalPaid         *big.Int
	Phase             Phase
	RankedClaims      uint64
}

// StateAt derives the lifecycle state at the given unix time.
func (c *Challenge) StateAt(now int64) State {
	switch c.Phase {
	case PhaseDistributed:
		return StateDistributed
	case PhaseDistributing:
		return StateDistributing
	}
	if now < 0 || uint64(now) < c.EndTime {
		return StateOpen
	}
	return StateEnded
}

func (c *Challenge) isOpen(now int64) bool { return c.StateAt(now) == StateOpen }

func (c *Challenge) normalize() {
	if c.EntryFee == nil {
		c.EntryFee = big.NewInt(0)
	}
	if c.SeedAmount == nil {
		c.SeedAmount = big.NewInt(0)
	}
	if c.TotalRewards == nil {
		c.TotalRewards = big.NewInt(0)
	}
	if c.TotalPaid == nil {
		c.TotalPaid = big.NewInt(0)
	}
}

// Clone returns a deep copy.
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	out := *c
	out.EntryFee = cloneBig(c.EntryFee)
	out.SeedAmount = cloneBig(c.SeedAmount)
	out.TotalRewards = cloneBig(c.TotalRewards)
	out.TotalPaid = cloneBig(c.TotalPaid)
	return &out
}

// ChallengeInfo is the read model returned to callers.
type ChallengeInfo struct {
	*Challenge
	State     State
	Remaining time.Duration
}

// Status is the one-shot progress of a participant. Each action moves the
// record strictly forward.
type Status uint8

const (
	StatusNone Status = iota
	StatusJoined
	StatusClaimed
	StatusBadgeMinted
)

func (s Status) String() string {
	switch s {
	case StatusJoined:
		return "joined"
	case StatusClaimed:
		return "claimed"
	case StatusBadgeMinted:
		return "badge_minted"
	default:
		return "none"
	}
}

// Participant is the membership record of one address in one challenge.
type Participant struct {
	ChallengeID uint64
	Address     common.Address
	Status      Status
	JoinedAt    uint64
	// Rank and Reward are set by the claim; Rank 0 means unranked.
	Rank   uint8
	Reward *big.Int
}

func (p *Participant) normalize() {
	if p.Reward == nil {
		p.Reward = big.NewInt(0)
	}
}

// Holding is one (asset, amount) position.
type Holding struct {
	Asset  common.Address
	Amount *big.Int
}

// RankEntry is one leaderboard slot. Seq is assigned when the participant
// first enters the board and orders equal scores.
type RankEntry struct {
	Participant common.Address
	Score       *big.Int
	Seq         uint64
}

// Ranking is the zero-padded public view of a leaderboard.
type Ranking struct {
	Participants [RankingSize]common.Address
	Scores       [RankingSize]*big.Int
}

// BadgeAuthorization is forwarded to the badge issuer when a top finisher
// requests their performance badge.
type BadgeAuthorization struct {
	ID            common.Hash
	ChallengeID   uint64
	Participant   common.Address
	Class         DurationClass
	Rank          int
	Score         *big.Int
	SeedAmount    *big.Int
	ReturnRateBps int64
	StartTime     uint64
	EndTime       uint64
	IssuedAt      uint64
}

// InvestableSet is the versioned allow-list of swap assets. The base asset is
// implicitly eligible and never stored.
type InvestableSet struct {
	Version uint64
	Assets  []common.Address
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
