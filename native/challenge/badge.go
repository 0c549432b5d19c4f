package challenge

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stele/core/events"
	"stele/core/state"
)

// BadgeID is the deterministic authorization id for (challenge, participant).
func BadgeID(id uint64, participant common.Address) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return ethcrypto.Keccak256Hash(buf[:], participant.Bytes())
}

// ReturnRateBps is (score - seed) * 10000 / seed, truncated toward zero and
// clamped to the int64 range.
func ReturnRateBps(score, seed *big.Int) int64 {
	if seed == nil || seed.Sign() <= 0 {
		return 0
	}
	delta := new(big.Int).Sub(cloneBig(score), seed)
	delta.Mul(delta, big.NewInt(10_000))
	delta.Quo(delta, seed)
	if !delta.IsInt64() {
		if delta.Sign() > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return delta.Int64()
}

// RequestBadge authorizes a one-time performance badge for a top finisher
// who has already claimed.
func (e *Engine) RequestBadge(ctx context.Context, caller common.Address, id uint64) (*BadgeAuthorization, error) {
	var out *BadgeAuthorization
	err := e.execute(ctx, "requestBadge", challengeAttrs(id, caller), func(ctx context.Context, tx *state.Tx, fx *effects) error {
		c, err := loadChallenge(tx, id)
		if err != nil {
			return err
		}
		member, err := loadParticipant(tx, id, caller)
		if err != nil {
			return err
		}
		switch member.Status {
		case StatusNone:
			return ErrNotJoined
		case StatusBadgeMinted:
			return ErrAlreadyMinted
		case StatusJoined:
			return ErrRewardsNotClaimed
		}
		lb, err := loadLeaderboard(tx, id)
		if err != nil {
			return err
		}
		rank := lb.Position(caller)
		if rank == 0 {
			return ErrNotTopTier
		}
		entry, _ := lb.Entry(rank)
		auth := &BadgeAuthorization{
			ID:            BadgeID(id, caller),
			ChallengeID:   id,
			Participant:   caller,
			Class:         c.Class,
			Rank:          rank,
			Score:         entry.Score,
			SeedAmount:    cloneBig(c.SeedAmount),
			ReturnRateBps: ReturnRateBps(entry.Score, c.SeedAmount),
			StartTime:     c.StartTime,
			EndTime:       c.EndTime,
			IssuedAt:      uint64(e.now()),
		}
		member.Status = StatusBadgeMinted
		if err := tx.KVPut(participantKey(id, caller), member); err != nil {
			return err
		}
		if e.badges != nil {
			if err := e.badges.AuthorizeMint(ctx, *auth); err != nil {
				return fmt.Errorf("%w: %w", ErrBadgeIssuer, err)
			}
			if revoker, ok := e.badges.(BadgeRevoker); ok {
				fx.onRollback(func(ctx context.Context) error {
					return revoker.RevokeMint(ctx, auth.ID)
				})
			}
		}
		out = auth
		fx.emit(events.ChallengeBadgeAuthorized{
			ChallengeID:   id,
			Participant:   caller,
			BadgeID:       auth.ID,
			Rank:          rank,
			Score:         cloneBig(auth.Score),
			ReturnRateBps: auth.ReturnRateBps,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
