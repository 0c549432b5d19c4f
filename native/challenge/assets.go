package challenge

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"stele/core/events"
	"stele/core/state"
)

func (s *InvestableSet) contains(asset common.Address) bool {
	i := sort.Search(len(s.Assets), func(i int) bool {
		return bytes.Compare(s.Assets[i].Bytes(), asset.Bytes()) >= 0
	})
	return i < len(s.Assets) && s.Assets[i] == asset
}

func (s *InvestableSet) eligible(base, asset common.Address) bool {
	return asset == base || s.contains(asset)
}

func (s *InvestableSet) add(asset common.Address) bool {
	if s.contains(asset) {
		return false
	}
	s.Assets = append(s.Assets, asset)
	sort.Slice(s.Assets, func(i, j int) bool {
		return bytes.Compare(s.Assets[i].Bytes(), s.Assets[j].Bytes()) < 0
	})
	s.Version++
	return true
}

func (s *InvestableSet) remove(asset common.Address) bool {
	for i, existing := range s.Assets {
		if existing == asset {
			s.Assets = append(s.Assets[:i], s.Assets[i+1:]...)
			s.Version++
			return true
		}
	}
	return false
}

// SetInvestableAsset adds asset to the swap allow-list. Re-adding a listed
// asset, or the base asset, changes nothing.
func (e *Engine) SetInvestableAsset(ctx context.Context, auth Authority, asset common.Address) error {
	return e.execute(ctx, "setInvestableAsset", nil, func(_ context.Context, tx *state.Tx, fx *effects) error {
		params, err := e.authorize(tx, auth)
		if err != nil {
			return err
		}
		if asset == (common.Address{}) {
			return fmt.Errorf("%w: asset required", ErrInvalidArgument)
		}
		if asset == params.BaseAsset {
			return nil
		}
		set, err := loadInvestable(tx)
		if err != nil {
			return err
		}
		if !set.add(asset) {
			return nil
		}
		if err := tx.KVPut(investableKey, set); err != nil {
			return err
		}
		fx.emit(events.InvestableAssetUpdated{Asset: asset, Added: true, Version: set.Version})
		return nil
	})
}

// RemoveInvestableAsset delists asset. Existing holdings are unaffected but
// can no longer be swapped. The base asset cannot be delisted.
func (e *Engine) RemoveInvestableAsset(ctx context.Context, auth Authority, asset common.Address) error {
	return e.execute(ctx, "removeInvestableAsset", nil, func(_ context.Context, tx *state.Tx, fx *effects) error {
		params, err := e.authorize(tx, auth)
		if err != nil {
			return err
		}
		if asset == params.BaseAsset {
			return fmt.Errorf("%w: base asset is always investable", ErrInvalidArgument)
		}
		set, err := loadInvestable(tx)
		if err != nil {
			return err
		}
		if !set.remove(asset) {
			return nil
		}
		if err := tx.KVPut(investableKey, set); err != nil {
			return err
		}
		fx.emit(events.InvestableAssetUpdated{Asset: asset, Added: false, Version: set.Version})
		return nil
	})
}

// IsInvestable reports whether asset may be used as a swap leg.
func (e *Engine) IsInvestable(asset common.Address) (bool, error) {
	var ok bool
	err := e.view(func(kv state.KV) error {
		params, err := loadParams(kv)
		if err != nil {
			return err
		}
		set, err := loadInvestable(kv)
		if err != nil {
			return err
		}
		ok = set.eligible(params.BaseAsset, asset)
		return nil
	})
	return ok, err
}

// InvestableAssets returns a copy of the allow-list and its version.
func (e *Engine) InvestableAssets() (InvestableSet, error) {
	var out InvestableSet
	err := e.view(func(kv state.KV) error {
		set, err := loadInvestable(kv)
		if err != nil {
			return err
		}
		out = InvestableSet{Version: set.Version, Assets: append([]common.Address{}, set.Assets...)}
		return nil
	})
	return out, err
}

// SetEntryFee changes the fee charged by challenges created afterwards.
func (e *Engine) SetEntryFee(ctx context.Context, auth Authority, fee *big.Int) error {
	return e.updateParams(ctx, auth, "setEntryFee", "entryFee", func(p *Params) (string, error) {
		if fee == nil || fee.Sign() <= 0 {
			return "", fmt.Errorf("%w: entry fee must be positive", ErrInvalidArgument)
		}
		p.EntryFee = cloneBig(fee)
		return fee.String(), nil
	})
}

// SetSeedAmount changes the seed balance of challenges created afterwards.
func (e *Engine) SetSeedAmount(ctx context.Context, auth Authority, seed *big.Int) error {
	return e.updateParams(ctx, auth, "setSeedAmount", "seedAmount", func(p *Params) (string, error) {
		if seed == nil || seed.Sign() <= 0 {
			return "", fmt.Errorf("%w: seed amount must be positive", ErrInvalidArgument)
		}
		p.SeedAmount = cloneBig(seed)
		return seed.String(), nil
	})
}

// TransferAdmin hands the administrative capability to next, typically a
// governance timelock.
func (e *Engine) TransferAdmin(ctx context.Context, auth Authority, next common.Address) error {
	return e.updateParams(ctx, auth, "transferAdmin", "admin", func(p *Params) (string, error) {
		if next == (common.Address{}) {
			return "", fmt.Errorf("%w: admin required", ErrInvalidArgument)
		}
		p.Admin = next
		return next.Hex(), nil
	})
}

func (e *Engine) updateParams(ctx context.Context, auth Authority, op, field string, apply func(*Params) (string, error)) error {
	return e.execute(ctx, op, nil, func(_ context.Context, tx *state.Tx, fx *effects) error {
		params, err := e.authorize(tx, auth)
		if err != nil {
			return err
		}
		value, err := apply(params)
		if err != nil {
			return err
		}
		if err := tx.KVPut(paramsKey, params); err != nil {
			return err
		}
		fx.emit(events.ChallengeParamsUpdated{Field: field, Value: value})
		return nil
	})
}
