package challenge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stele/core/state"
)

// Portfolio is an ordered set of unique-asset holdings. Zero balances are
// pruned, except that a lone entry is kept so a portfolio never becomes empty
// once seeded.
type Portfolio struct {
	Holdings []Holding
}

func (p *Portfolio) index(asset common.Address) int {
	for i := range p.Holdings {
		if p.Holdings[i].Asset == asset {
			return i
		}
	}
	return -1
}

// Balance returns the held amount of asset, zero when absent.
func (p *Portfolio) Balance(asset common.Address) *big.Int {
	if p == nil {
		return big.NewInt(0)
	}
	if i := p.index(asset); i >= 0 {
		return cloneBig(p.Holdings[i].Amount)
	}
	return big.NewInt(0)
}

// Credit adds amount of asset, opening a new position if needed.
func (p *Portfolio) Credit(asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: credit amount must be positive", ErrInvalidArgument)
	}
	if i := p.index(asset); i >= 0 {
		p.Holdings[i].Amount = new(big.Int).Add(cloneBig(p.Holdings[i].Amount), amount)
		return nil
	}
	p.compact()
	if p.distinct() >= MaxAssets {
		return ErrAssetCapExceeded
	}
	p.Holdings = append(p.Holdings, Holding{Asset: asset, Amount: new(big.Int).Set(amount)})
	p.compact()
	return nil
}

// Debit removes amount of asset. The position is pruned at zero.
func (p *Portfolio) Debit(asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: debit amount must be positive", ErrInvalidArgument)
	}
	i := p.index(asset)
	if i < 0 || p.Holdings[i].Amount == nil || p.Holdings[i].Amount.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	p.Holdings[i].Amount = new(big.Int).Sub(p.Holdings[i].Amount, amount)
	p.compact()
	return nil
}

// distinct counts positions with a non-zero balance.
func (p *Portfolio) distinct() int {
	n := 0
	for _, h := range p.Holdings {
		if h.Amount != nil && h.Amount.Sign() > 0 {
			n++
		}
	}
	return n
}

func (p *Portfolio) compact() {
	if len(p.Holdings) <= 1 {
		return
	}
	kept := p.Holdings[:0]
	for _, h := range p.Holdings {
		if h.Amount != nil && h.Amount.Sign() > 0 {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, Holding{Asset: p.Holdings[0].Asset, Amount: big.NewInt(0)})
	}
	p.Holdings = kept
}

// Clone returns a deep copy.
func (p *Portfolio) Clone() *Portfolio {
	out := &Portfolio{Holdings: make([]Holding, len(p.Holdings))}
	for i, h := range p.Holdings {
		out.Holdings[i] = Holding{Asset: h.Asset, Amount: cloneBig(h.Amount)}
	}
	return out
}

// PortfolioStore reads and writes portfolios through a KV view, typically a
// staged state transaction.
type PortfolioStore struct {
	kv state.KV
}

// NewPortfolioStore binds a store to kv.
func NewPortfolioStore(kv state.KV) *PortfolioStore {
	return &PortfolioStore{kv: kv}
}

// Get loads the portfolio, returning an empty one when none is stored.
func (s *PortfolioStore) Get(id uint64, participant common.Address) (*Portfolio, error) {
	var p Portfolio
	ok, err := s.kv.KVGet(portfolioKey(id, participant), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Portfolio{}, nil
	}
	for i := range p.Holdings {
		if p.Holdings[i].Amount == nil {
			p.Holdings[i].Amount = big.NewInt(0)
		}
	}
	return &p, nil
}

// Put stores the portfolio.
func (s *PortfolioStore) Put(id uint64, participant common.Address, p *Portfolio) error {
	if p == nil {
		return fmt.Errorf("portfolio: nil value")
	}
	return s.kv.KVPut(portfolioKey(id, participant), p)
}

// Credit adds amount of asset to the participant's portfolio.
func (s *PortfolioStore) Credit(id uint64, participant, asset common.Address, amount *big.Int) error {
	p, err := s.Get(id, participant)
	if err != nil {
		return err
	}
	if err := p.Credit(asset, amount); err != nil {
		return err
	}
	return s.Put(id, participant, p)
}

// Debit removes amount of asset from the participant's portfolio.
func (s *PortfolioStore) Debit(id uint64, participant, asset common.Address, amount *big.Int) error {
	p, err := s.Get(id, participant)
	if err != nil {
		return err
	}
	if err := p.Debit(asset, amount); err != nil {
		return err
	}
	return s.Put(id, participant, p)
}
