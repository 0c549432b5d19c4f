package challenge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"stele/core/events"
	"stele/core/state"
)

// Swap converts amount of from into to inside the caller's portfolio at the
// oracle's quoted rate and rescores the caller. It returns the amounts that
// left and entered the portfolio.
func (e *Engine) Swap(ctx context.Context, caller common.Address, id uint64, from, to common.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	var amountIn, amountOut *big.Int
	attrs := append(challengeAttrs(id, caller),
		attribute.String("swap.from", from.Hex()),
		attribute.String("swap.to", to.Hex()),
	)
	err := e.execute(ctx, "swap", attrs, func(_ context.Context, tx *state.Tx, fx *effects) error {
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("%w: swap amount must be positive", ErrInvalidArgument)
		}
		if from == to {
			return fmt.Errorf("%w: swap legs must differ", ErrInvalidArgument)
		}
		params, err := loadParams(tx)
		if err != nil {
			return err
		}
		c, err := loadChallenge(tx, id)
		if err != nil {
			return err
		}
		if !c.isOpen(e.now()) {
			return ErrChallengeNotOpen
		}
		member, err := loadParticipant(tx, id, caller)
		if err != nil {
			return err
		}
		if member.Status == StatusNone {
			return ErrNotJoined
		}
		store := NewPortfolioStore(tx)
		portfolio, err := store.Get(id, caller)
		if err != nil {
			return err
		}
		if portfolio.Balance(from).Cmp(amount) < 0 {
			return ErrInsufficientFunds
		}
		set, err := loadInvestable(tx)
		if err != nil {
			return err
		}
		if !set.eligible(params.BaseAsset, from) || !set.eligible(params.BaseAsset, to) {
			return ErrAssetNotInvestable
		}

		out, err := e.quote(from, to, amount)
		if err != nil {
			return err
		}
		if out.Sign() <= 0 {
			return fmt.Errorf("%w: quote for %s rounds to zero", ErrOraclePriceUnavailable, amount)
		}
		fromValue, err := e.quote(from, params.BaseAsset, amount)
		if err != nil {
			return err
		}
		toValue, err := e.quote(to, params.BaseAsset, out)
		if err != nil {
			return err
		}

		if err := portfolio.Debit(from, amount); err != nil {
			return err
		}
		if err := portfolio.Credit(to, out); err != nil {
			return err
		}
		if err := store.Put(id, caller, portfolio); err != nil {
			return err
		}
		amountIn, amountOut = cloneBig(amount), out
		fx.emit(events.ChallengeSwap{
			ChallengeID: id,
			Participant: caller,
			FromAsset:   from,
			ToAsset:     to,
			FromAmount:  cloneBig(amountIn),
			ToAmount:    cloneBig(amountOut),
			FromPrice:   fromValue,
			ToPrice:     toValue,
		})
		_, err = e.rescore(tx, fx, params, c, caller, portfolio)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return amountIn, amountOut, nil
}

// GetUserPortfolio returns the participant's holdings. Non-members have none.
func (e *Engine) GetUserPortfolio(id uint64, participant common.Address) ([]Holding, error) {
	var out []Holding
	err := e.view(func(kv state.KV) error {
		if _, err := loadChallenge(kv, id); err != nil {
			return err
		}
		p, err := NewPortfolioStore(kv).Get(id, participant)
		if err != nil {
			return err
		}
		out = p.Clone().Holdings
		return nil
	})
	return out, err
}

func (e *Engine) quote(from, to common.Address, amount *big.Int) (*big.Int, error) {
	if e.oracle == nil {
		return nil, fmt.Errorf("%w: oracle not configured", ErrOraclePriceUnavailable)
	}
	out, err := e.oracle.Quote(from, to, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOraclePriceUnavailable, err)
	}
	if out == nil || out.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid quote", ErrOraclePriceUnavailable)
	}
	return out, nil
}
