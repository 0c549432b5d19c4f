package challenge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stele/core/events"
	"stele/core/state"
)

// Register rescores the caller at current prices without trading. It is
// accepted until the first claim freezes the leaderboard.
func (e *Engine) Register(ctx context.Context, caller common.Address, id uint64) (int, *big.Int, error) {
	var (
		rank  int
		score *big.Int
	)
	err := e.execute(ctx, "register", challengeAttrs(id, caller), func(_ context.Context, tx *state.Tx, fx *effects) error {
		params, err := loadParams(tx)
		if err != nil {
			return err
		}
		c, err := loadChallenge(tx, id)
		if err != nil {
			return err
		}
		member, err := loadParticipant(tx, id, caller)
		if err != nil {
			return err
		}
		if member.Status == StatusNone {
			return ErrNotJoined
		}
		if c.Phase != PhaseActive {
			return ErrAlreadyDistributed
		}
		portfolio, err := NewPortfolioStore(tx).Get(id, caller)
		if err != nil {
			return err
		}
		entry, err := e.rescore(tx, fx, params, c, caller, portfolio)
		if err != nil {
			return err
		}
		rank, score = entry.rank, entry.score
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return rank, score, nil
}

// GetRanking returns the current top five, zero-padded, best first.
func (e *Engine) GetRanking(id uint64) (Ranking, error) {
	var out Ranking
	err := e.view(func(kv state.KV) error {
		if _, err := loadChallenge(kv, id); err != nil {
			return err
		}
		lb, err := loadLeaderboard(kv, id)
		if err != nil {
			return err
		}
		out = lb.Ranking()
		return nil
	})
	return out, err
}

// PortfolioValue values holdings in base-asset terms, summing each position's
// floored quote.
func (e *Engine) PortfolioValue(base common.Address, p *Portfolio) (*big.Int, error) {
	total := big.NewInt(0)
	for _, h := range p.Holdings {
		if h.Amount == nil || h.Amount.Sign() == 0 {
			continue
		}
		if h.Asset == base {
			total.Add(total, h.Amount)
			continue
		}
		value, err := e.quote(h.Asset, base, h.Amount)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

type rescoreResult struct {
	rank   int
	score  *big.Int
	result RankResult
}

// rescore values the portfolio and applies the score to the leaderboard. A
// frozen leaderboard is left untouched.
func (e *Engine) rescore(tx *state.Tx, fx *effects, params *Params, c *Challenge, participant common.Address, p *Portfolio) (rescoreResult, error) {
	score, err := e.PortfolioValue(params.BaseAsset, p)
	if err != nil {
		return rescoreResult{}, err
	}
	out := rescoreResult{score: score}
	if c.Phase != PhaseActive {
		return out, nil
	}
	lb, err := loadLeaderboard(tx, c.ID)
	if err != nil {
		return rescoreResult{}, err
	}
	out.rank, out.result = lb.Update(participant, score)
	e.metrics.RecordRanking(out.result.String())
	if out.result != RankDiscarded {
		if err := tx.KVPut(rankingKey(c.ID), lb); err != nil {
			return rescoreResult{}, err
		}
	}
	fx.emit(events.ChallengeRanked{
		ChallengeID: c.ID,
		Participant: participant,
		Score:       cloneBig(score),
		Rank:        out.rank,
	})
	return out, nil
}
