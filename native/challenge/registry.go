package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"stele/core/events"
	"stele/core/state"
)

// MaxParticipantPage bounds GetParticipants.
const MaxParticipantPage = 100

// CreateChallenge opens a new challenge of the given class starting now. The
// current entry fee and seed amount are fixed into the challenge.
func (e *Engine) CreateChallenge(ctx context.Context, caller common.Address, class DurationClass) (uint64, error) {
	var id uint64
	attrs := []attribute.KeyValue{attribute.String("challenge.class", class.String())}
	err := e.execute(ctx, "create", attrs, func(_ context.Context, tx *state.Tx, fx *effects) error {
		if !class.Valid() {
			return fmt.Errorf("%w: unknown duration class %d", ErrInvalidArgument, uint8(class))
		}
		params, err := loadParams(tx)
		if err != nil {
			return err
		}
		start := e.now()
		if start < 0 {
			return fmt.Errorf("%w: clock before epoch", ErrInvalidArgument)
		}
		id = params.NextID
		c := &Challenge{
			ID:           id,
			Class:        class,
			Creator:      caller,
			StartTime:    uint64(start),
			EndTime:      uint64(start) + uint64(class.Duration()/time.Second),
			EntryFee:     cloneBig(params.EntryFee),
			SeedAmount:   cloneBig(params.SeedAmount),
			TotalRewards: cloneBig(nil),
			TotalPaid:    cloneBig(nil),
			Phase:        PhaseActive,
		}
		params.NextID++
		if err := tx.KVPut(paramsKey, params); err != nil {
			return err
		}
		if err := tx.KVPut(challengeKey(id), c); err != nil {
			return err
		}
		if err := tx.KVPut(latestKey(class), id); err != nil {
			return err
		}
		fx.emit(events.ChallengeCreated{
			ChallengeID: id,
			Class:       class.String(),
			Creator:     caller,
			StartTime:   c.StartTime,
			EndTime:     c.EndTime,
			EntryFee:    cloneBig(c.EntryFee),
			SeedAmount:  cloneBig(c.SeedAmount),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.metrics.RecordCreated()
	return id, nil
}

// ChallengeInfo returns totals, timing and the derived lifecycle state.
func (e *Engine) ChallengeInfo(id uint64) (*ChallengeInfo, error) {
	var info *ChallengeInfo
	err := e.view(func(kv state.KV) error {
		c, err := loadChallenge(kv, id)
		if err != nil {
			return err
		}
		now := e.now()
		info = &ChallengeInfo{Challenge: c, State: c.StateAt(now)}
		if info.State == StateOpen {
			info.Remaining = time.Duration(int64(c.EndTime)-now) * time.Second
		}
		return nil
	})
	return info, err
}

// LatestChallenge returns the id of the most recently created challenge of
// class, or 0 when none exists.
func (e *Engine) LatestChallenge(class DurationClass) (uint64, error) {
	if !class.Valid() {
		return 0, fmt.Errorf("%w: unknown duration class %d", ErrInvalidArgument, uint8(class))
	}
	var id uint64
	err := e.view(func(kv state.KV) error {
		_, err := kv.KVGet(latestKey(class), &id)
		return err
	})
	return id, err
}

// GetParticipant returns the membership record of addr. Non-members are
// reported with StatusNone.
func (e *Engine) GetParticipant(id uint64, addr common.Address) (*Participant, error) {
	var out *Participant
	err := e.view(func(kv state.KV) error {
		if _, err := loadChallenge(kv, id); err != nil {
			return err
		}
		p, err := loadParticipant(kv, id, addr)
		out = p
		return err
	})
	return out, err
}

// GetParticipants lists members in join order along with the total count.
func (e *Engine) GetParticipants(id uint64, offset, limit uint64) ([]*Participant, uint64, error) {
	if limit == 0 || limit > MaxParticipantPage {
		limit = MaxParticipantPage
	}
	var (
		out   []*Participant
		total uint64
	)
	err := e.view(func(kv state.KV) error {
		c, err := loadChallenge(kv, id)
		if err != nil {
			return err
		}
		total = c.TotalParticipants
		for i := offset; i < total && uint64(len(out)) < limit; i++ {
			var addr common.Address
			ok, err := kv.KVGet(memberKey(id, i), &addr)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("challenge %d: member index %d missing", id, i)
			}
			p, err := loadParticipant(kv, id, addr)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	return out, total, err
}
