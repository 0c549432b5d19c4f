package challenge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stele/core/events"
	"stele/core/state"
	nativecommon "stele/native/common"
)

// RewardFor returns floor(pool * ratio / 100) for a 1-based rank; ranks
// outside the paid tiers receive zero.
func RewardFor(pool *big.Int, rank int) (*big.Int, error) {
	if rank < 1 || rank > RankingSize {
		return big.NewInt(0), nil
	}
	return nativecommon.Percent(cloneBig(pool), RewardRatios[rank-1])
}

// Claim pays the caller's tier share once the challenge has ended. The first
// claim freezes the leaderboard; every later payout is computed from that
// frozen snapshot. Unranked participants receive zero but are still marked
// as claimed.
func (e *Engine) Claim(ctx context.Context, caller common.Address, id uint64) (*big.Int, error) {
	var payout *big.Int
	err := e.execute(ctx, "claim", challengeAttrs(id, caller), func(ctx context.Context, tx *state.Tx, fx *effects) error {
		c, err := loadChallenge(tx, id)
		if err != nil {
			return err
		}
		if c.StateAt(e.now()) == StateOpen {
			return ErrNotEnded
		}
		member, err := loadParticipant(tx, id, caller)
		if err != nil {
			return err
		}
		switch member.Status {
		case StatusNone:
			return ErrNotJoined
		case StatusClaimed, StatusBadgeMinted:
			return ErrAlreadyDistributed
		}
		lb, err := loadLeaderboard(tx, id)
		if err != nil {
			return err
		}
		if c.Phase == PhaseActive {
			c.Phase = PhaseDistributing
		}

		rank := lb.Position(caller)
		amount, err := RewardFor(c.TotalRewards, rank)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		member.Status = StatusClaimed
		member.Rank = uint8(rank)
		member.Reward = cloneBig(amount)
		c.TotalPaid = new(big.Int).Add(c.TotalPaid, amount)
		if rank > 0 {
			c.RankedClaims++
		}
		if c.RankedClaims >= uint64(lb.Size) {
			c.Phase = PhaseDistributed
		}
		if err := tx.KVPut(challengeKey(id), c); err != nil {
			return err
		}
		if err := tx.KVPut(participantKey(id, caller), member); err != nil {
			return err
		}

		if amount.Sign() > 0 {
			if e.treasury == nil {
				return fmt.Errorf("%w: treasury not configured", ErrFundsTransfer)
			}
			if err := e.treasury.Disburse(ctx, caller, amount); err != nil {
				return fmt.Errorf("%w: %w", ErrFundsTransfer, err)
			}
			fx.onRollback(func(ctx context.Context) error {
				return e.treasury.Collect(ctx, caller, amount)
			})
		}
		payout = amount
		fx.emit(events.ChallengeRewardClaimed{
			ChallengeID: id,
			Participant: caller,
			Rank:        rank,
			Amount:      cloneBig(amount),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.AddPaid(payout)
	return payout, nil
}
