package state

import (
	"math/big"
	"testing"

	"stele/storage"
)

type sampleRecord struct {
	Name   string
	Amount *big.Int
	Count  uint64
}

func TestManagerKVRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	if err := mgr.KVPut([]byte("sample/1"), sampleRecord{Name: "a", Amount: big.NewInt(42), Count: 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out sampleRecord
	ok, err := mgr.KVGet([]byte("sample/1"), &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to exist")
	}
	if out.Name != "a" || out.Amount.Cmp(big.NewInt(42)) != 0 || out.Count != 3 {
		t.Fatalf("unexpected record: %+v", out)
	}

	ok, err = mgr.KVGet([]byte("sample/missing"), &out)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatalf("expected missing record")
	}
	if _, err := mgr.KVGet(nil, &out); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestTxReadsOwnWritesAndCommits(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("counter"), uint64(1)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tx := mgr.Begin()
	if err := tx.KVPut([]byte("counter"), uint64(2)); err != nil {
		t.Fatalf("tx put: %v", err)
	}
	if err := tx.KVPut([]byte("other"), uint64(7)); err != nil {
		t.Fatalf("tx put: %v", err)
	}
	var staged uint64
	if ok, err := tx.KVGet([]byte("counter"), &staged); err != nil || !ok || staged != 2 {
		t.Fatalf("expected staged read 2, got %d ok=%v err=%v", staged, ok, err)
	}
	var committed uint64
	if _, err := mgr.KVGet([]byte("counter"), &committed); err != nil || committed != 1 {
		t.Fatalf("staged write leaked before commit: %d err=%v", committed, err)
	}
	if tx.Pending() != 2 {
		t.Fatalf("expected 2 pending writes, got %d", tx.Pending())
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := mgr.KVGet([]byte("counter"), &committed); err != nil || committed != 2 {
		t.Fatalf("expected committed 2, got %d err=%v", committed, err)
	}
	if err := tx.Commit(); err != ErrTxClosed {
		t.Fatalf("expected ErrTxClosed on double commit, got %v", err)
	}
}

func TestTxDiscardLeavesStateUntouched(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("keep"), uint64(5)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tx := mgr.Begin()
	if err := tx.KVDelete([]byte("keep")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := tx.KVGet([]byte("keep"), nil); ok {
		t.Fatalf("expected staged delete to hide the record")
	}
	if err := tx.KVPut([]byte("new"), uint64(9)); err != nil {
		t.Fatalf("put: %v", err)
	}
	tx.Discard()

	var value uint64
	ok, err := mgr.KVGet([]byte("keep"), &value)
	if err != nil || !ok || value != 5 {
		t.Fatalf("expected untouched record, got %d ok=%v err=%v", value, ok, err)
	}
	if ok, _ := mgr.KVGet([]byte("new"), nil); ok {
		t.Fatalf("discarded write must not persist")
	}
	if err := tx.KVPut([]byte("late"), uint64(1)); err != ErrTxClosed {
		t.Fatalf("expected ErrTxClosed, got %v", err)
	}
}
