package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"stele/core/state"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the available balance.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("bank: invalid amount")
)

var balancePrefix = []byte("bank/balance/")

func balanceKey(addr common.Address) []byte {
	buf := make([]byte, len(balancePrefix)+common.AddressLength)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], addr.Bytes())
	return buf
}

// Ledger keeps base-asset balances for participants and the prize vault. It
// backs the challenge engine's entry fee collection and reward payouts.
type Ledger struct {
	mu    sync.Mutex
	state *state.Manager
	vault common.Address
}

// NewLedger creates a ledger whose pooled funds are held by vault.
func NewLedger(st *state.Manager, vault common.Address) *Ledger {
	return &Ledger{state: st, vault: vault}
}

// Vault returns the pool account.
func (l *Ledger) Vault() common.Address { return l.vault }

// BalanceOf returns the balance of addr.
func (l *Ledger) BalanceOf(addr common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, fmt.Errorf("bank: state manager required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return readBalance(l.state, addr)
}

// Deposit mints amount into addr. It funds test and operator accounts.
func (l *Ledger) Deposit(_ context.Context, addr common.Address, amount *big.Int) error {
	return l.apply(func(kv state.KV) error {
		if err := validAmount(amount); err != nil {
			return err
		}
		return adjust(kv, addr, amount)
	})
}

// Collect moves amount from the participant into the vault.
func (l *Ledger) Collect(_ context.Context, from common.Address, amount *big.Int) error {
	return l.transfer(from, l.vault, amount)
}

// Disburse moves amount from the vault to the participant.
func (l *Ledger) Disburse(_ context.Context, to common.Address, amount *big.Int) error {
	return l.transfer(l.vault, to, amount)
}

func (l *Ledger) transfer(from, to common.Address, amount *big.Int) error {
	return l.apply(func(kv state.KV) error {
		if err := validAmount(amount); err != nil {
			return err
		}
		if from == to || amount.Sign() == 0 {
			return nil
		}
		if err := adjust(kv, from, new(big.Int).Neg(amount)); err != nil {
			return err
		}
		return adjust(kv, to, amount)
	})
}

func (l *Ledger) apply(fn func(kv state.KV) error) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: state manager required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := l.state.Begin()
	if err := fn(tx); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func readBalance(kv state.KV, addr common.Address) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := kv.KVGet(balanceKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func adjust(kv state.KV, addr common.Address, delta *big.Int) error {
	balance, err := readBalance(kv, addr)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(balance, delta)
	if next.Sign() < 0 {
		return fmt.Errorf("%w: %s has %s", ErrInsufficientBalance, addr.Hex(), balance)
	}
	return kv.KVPut(balanceKey(addr), next)
}
