package challenge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stele/core/events"
	"stele/core/state"
)

// Join charges the challenge's entry fee, adds it to the pool and seeds the
// caller's portfolio with the challenge's seed amount of the base asset.
func (e *Engine) Join(ctx context.Context, caller common.Address, id uint64) error {
	var fee *big.Int
	err := e.execute(ctx, "join", challengeAttrs(id, caller), func(ctx context.Context, tx *state.Tx, fx *effects) error {
		if caller == (common.Address{}) {
			return fmt.Errorf("%w: caller required", ErrInvalidArgument)
		}
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
		if member.Status != StatusNone {
			return ErrAlreadyJoined
		}
		now := e.now()
		if !c.isOpen(now) {
			return ErrChallengeNotOpen
		}
		if e.treasury == nil {
			return fmt.Errorf("%w: treasury not configured", ErrFundsTransfer)
		}

		fee = cloneBig(c.EntryFee)
		index := c.TotalParticipants
		c.TotalParticipants++
		c.TotalRewards = new(big.Int).Add(c.TotalRewards, fee)
		member.Status = StatusJoined
		member.JoinedAt = uint64(now)

		portfolio := &Portfolio{}
		if err := portfolio.Credit(params.BaseAsset, c.SeedAmount); err != nil {
			return err
		}
		if err := tx.KVPut(challengeKey(id), c); err != nil {
			return err
		}
		if err := tx.KVPut(participantKey(id, caller), member); err != nil {
			return err
		}
		if err := tx.KVPut(memberKey(id, index), caller); err != nil {
			return err
		}
		if err := NewPortfolioStore(tx).Put(id, caller, portfolio); err != nil {
			return err
		}

		if fee.Sign() > 0 {
			if err := e.treasury.Collect(ctx, caller, fee); err != nil {
				return fmt.Errorf("%w: %w", ErrFundsTransfer, err)
			}
			fx.onRollback(func(ctx context.Context) error {
				return e.treasury.Disburse(ctx, caller, fee)
			})
		}
		fx.emit(events.ChallengeJoined{
			ChallengeID:       id,
			Participant:       caller,
			EntryFee:          cloneBig(fee),
			SeedAmount:        cloneBig(c.SeedAmount),
			TotalParticipants: c.TotalParticipants,
			TotalRewards:      cloneBig(c.TotalRewards),
		})
		return nil
	})
	if err == nil {
		e.metrics.AddPooled(fee)
	}
	return err
}
