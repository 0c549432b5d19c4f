package bank

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"stele/core/state"
	"stele/storage"
)

var (
	vault = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	user  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
)

func TestLedgerCollectAndDisburse(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()), vault)
	ctx := context.Background()
	if err := ledger.Deposit(ctx, user, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ledger.Collect(ctx, user, big.NewInt(30)); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if err := ledger.Disburse(ctx, user, big.NewInt(10)); err != nil {
		t.Fatalf("disburse: %v", err)
	}
	userBal, _ := ledger.BalanceOf(user)
	vaultBal, _ := ledger.BalanceOf(vault)
	if userBal.Int64() != 80 || vaultBal.Int64() != 20 {
		t.Fatalf("unexpected balances user=%s vault=%s", userBal, vaultBal)
	}
}

func TestLedgerRejectsOverdraftAtomically(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()), vault)
	ctx := context.Background()
	if err := ledger.Deposit(ctx, user, big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ledger.Collect(ctx, user, big.NewInt(6)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Disburse(ctx, user, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected empty vault to reject payout, got %v", err)
	}
	if err := ledger.Deposit(ctx, user, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	userBal, _ := ledger.BalanceOf(user)
	vaultBal, _ := ledger.BalanceOf(vault)
	if userBal.Int64() != 5 || vaultBal.Sign() != 0 {
		t.Fatalf("balances changed after failed transfers: user=%s vault=%s", userBal, vaultBal)
	}
}
