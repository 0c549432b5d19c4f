package rpc

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stele/indexer"
	"stele/native/challenge"
)

// ChallengeResult summarises a challenge for RPC consumers. Amounts are
// decimal strings in smallest base-asset units.
type ChallengeResult struct {
	ID                uint64 `json:"id"`
	DurationClass     string `json:"durationClass"`
	Creator           string `json:"creator"`
	StartTime         uint64 `json:"startTime"`
	EndTime           uint64 `json:"endTime"`
	EntryFee          string `json:"entryFee"`
	SeedAmount        string `json:"seedAmount"`
	TotalParticipants uint64 `json:"totalParticipants"`
	TotalRewards      string `json:"totalRewards"`
	TotalPaid         string `json:"totalPaid"`
	State             string `json:"state"`
	RemainingSeconds  int64  `json:"remainingSeconds"`
}

type ParticipantResult struct {
	ChallengeID uint64 `json:"challengeId"`
	Address     string `json:"address"`
	Status      string `json:"status"`
	JoinedAt    uint64 `json:"joinedAt,omitempty"`
	Rank        uint8  `json:"rank,omitempty"`
	Reward      string `json:"reward"`
}

type ParticipantsResult struct {
	Total        uint64              `json:"total"`
	Participants []ParticipantResult `json:"participants"`
}

type HoldingResult struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type RankingEntryResult struct {
	Rank        int    `json:"rank"`
	Participant string `json:"participant"`
	Score       string `json:"score"`
}

type SwapResult struct {
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
}

type RegisterResult struct {
	Rank  int    `json:"rank"`
	Score string `json:"score"`
}

type ClaimResult struct {
	Amount string `json:"amount"`
}

type BadgeResult struct {
	ID            string `json:"id"`
	ChallengeID   uint64 `json:"challengeId"`
	Participant   string `json:"participant"`
	DurationClass string `json:"durationClass"`
	Rank          int    `json:"rank"`
	Score         string `json:"score"`
	SeedAmount    string `json:"seedAmount"`
	ReturnRateBps int64  `json:"returnRateBps"`
	StartTime     uint64 `json:"startTime"`
	EndTime       uint64 `json:"endTime"`
	IssuedAt      uint64 `json:"issuedAt"`
}

type InvestableResult struct {
	Version uint64   `json:"version"`
	Assets  []string `json:"assets"`
}

type ParamsResult struct {
	Admin      string `json:"admin"`
	BaseAsset  string `json:"baseAsset"`
	EntryFee   string `json:"entryFee"`
	SeedAmount string `json:"seedAmount"`
	NextID     uint64 `json:"nextId"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type EventResult struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

func challengeResult(info *challenge.ChallengeInfo) ChallengeResult {
	return ChallengeResult{
		ID:                info.ID,
		DurationClass:     info.Class.String(),
		Creator:           addressString(info.Creator),
		StartTime:         info.StartTime,
		EndTime:           info.EndTime,
		EntryFee:          amountString(info.EntryFee),
		SeedAmount:        amountString(info.SeedAmount),
		TotalParticipants: info.TotalParticipants,
		TotalRewards:      amountString(info.TotalRewards),
		TotalPaid:         amountString(info.TotalPaid),
		State:             info.State.String(),
		RemainingSeconds:  int64(info.Remaining / time.Second),
	}
}

func participantResult(p *challenge.Participant) ParticipantResult {
	return ParticipantResult{
		ChallengeID: p.ChallengeID,
		Address:     addressString(p.Address),
		Status:      p.Status.String(),
		JoinedAt:    p.JoinedAt,
		Rank:        p.Rank,
		Reward:      amountString(p.Reward),
	}
}

// rankingResult lists occupied slots only.
func rankingResult(r challenge.Ranking) []RankingEntryResult {
	out := make([]RankingEntryResult, 0, challenge.RankingSize)
	for i, participant := range r.Participants {
		if participant == (common.Address{}) {
			continue
		}
		out = append(out, RankingEntryResult{
			Rank:        i + 1,
			Participant: participant.Hex(),
			Score:       amountString(r.Scores[i]),
		})
	}
	return out
}

func badgeResult(b *challenge.BadgeAuthorization) BadgeResult {
	return BadgeResult{
		ID:            b.ID.Hex(),
		ChallengeID:   b.ChallengeID,
		Participant:   b.Participant.Hex(),
		DurationClass: b.Class.String(),
		Rank:          b.Rank,
		Score:         amountString(b.Score),
		SeedAmount:    amountString(b.SeedAmount),
		ReturnRateBps: b.ReturnRateBps,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		IssuedAt:      b.IssuedAt,
	}
}

func eventResult(rec indexer.EventRecord) (EventResult, error) {
	evt, err := rec.Decode()
	if err != nil {
		return EventResult{}, err
	}
	return EventResult{
		Sequence:   rec.Sequence,
		Type:       evt.Type,
		Attributes: evt.Attributes,
		CreatedAt:  rec.CreatedAt,
	}, nil
}
