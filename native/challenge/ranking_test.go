package challenge

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func participant(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0xa000 + n)))
}

func TestLeaderboardKeepsBestFive(t *testing.T) {
	var lb Leaderboard
	for i, score := range []int64{10, 50, 30, 20, 40} {
		lb.Update(participant(i), big.NewInt(score))
	}
	if lb.Size != RankingSize {
		t.Fatalf("expected full board, got %d", lb.Size)
	}
	want := []int64{50, 40, 30, 20, 10}
	for i, score := range want {
		if lb.Entries[i].Score.Int64() != score {
			t.Fatalf("slot %d: expected %d, got %s", i, score, lb.Entries[i].Score)
		}
	}

	if rank, res := lb.Update(participant(9), big.NewInt(5)); rank != 0 || res != RankDiscarded {
		t.Fatalf("expected discard, got rank %d (%s)", rank, res)
	}
	if rank, res := lb.Update(participant(9), big.NewInt(35)); rank != 3 || res != RankInserted {
		t.Fatalf("expected insert at 3, got rank %d (%s)", rank, res)
	}
	if lb.Position(participant(0)) != 0 {
		t.Fatalf("lowest entry should have been evicted")
	}
}

func TestLeaderboardTieAtFifthSlotKeepsIncumbent(t *testing.T) {
	var lb Leaderboard
	for i := 0; i < RankingSize; i++ {
		lb.Update(participant(i), big.NewInt(int64(100-i)))
	}
	fifth := lb.Entries[RankingSize-1]
	if rank, res := lb.Update(participant(7), new(big.Int).Set(fifth.Score)); rank != 0 || res != RankDiscarded {
		t.Fatalf("equal score must not evict the incumbent, got rank %d (%s)", rank, res)
	}
	if lb.Entries[RankingSize-1].Participant != fifth.Participant {
		t.Fatalf("fifth slot changed")
	}
}

func TestLeaderboardEqualScoresOrderedByEntry(t *testing.T) {
	var lb Leaderboard
	lb.Update(participant(1), big.NewInt(10))
	lb.Update(participant(2), big.NewInt(20))
	// participant 1 entered first, so matching participant 2 puts it ahead.
	if rank, res := lb.Update(participant(1), big.NewInt(20)); rank != 1 || res != RankUpdated {
		t.Fatalf("expected earlier entrant to take rank 1, got %d (%s)", rank, res)
	}
	// A later entrant with the same score lands behind both.
	if rank, _ := lb.Update(participant(3), big.NewInt(20)); rank != 3 {
		t.Fatalf("expected later entrant at rank 3, got %d", rank)
	}
	// Dropping and recovering the score does not forfeit seniority.
	lb.Update(participant(1), big.NewInt(1))
	if rank, _ := lb.Update(participant(1), big.NewInt(20)); rank != 1 {
		t.Fatalf("expected seniority to be kept, got rank %d", rank)
	}
}

func TestLeaderboardRankingIsZeroPadded(t *testing.T) {
	var lb Leaderboard
	lb.Update(participant(1), big.NewInt(7))
	view := lb.Ranking()
	if view.Participants[0] != participant(1) || view.Scores[0].Int64() != 7 {
		t.Fatalf("unexpected first slot: %v %v", view.Participants[0], view.Scores[0])
	}
	for i := 1; i < RankingSize; i++ {
		if view.Participants[i] != (common.Address{}) || view.Scores[i].Sign() != 0 {
			t.Fatalf("slot %d should be empty", i)
		}
	}
}

func TestPortfolioPrunesAndCaps(t *testing.T) {
	p := &Portfolio{}
	if err := p.Credit(baseAsset, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := p.Debit(baseAsset, big.NewInt(100)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if len(p.Holdings) != 1 || p.Holdings[0].Amount.Sign() != 0 {
		t.Fatalf("lone position should be kept at zero, got %+v", p.Holdings)
	}
	if err := p.Debit(baseAsset, big.NewInt(1)); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	for i := 0; i < MaxAssets; i++ {
		if err := p.Credit(participant(i), big.NewInt(1)); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}
	if len(p.Holdings) != MaxAssets {
		t.Fatalf("expected %d positions, got %d", MaxAssets, len(p.Holdings))
	}
	if err := p.Credit(assetX, big.NewInt(1)); err != ErrAssetCapExceeded {
		t.Fatalf("expected ErrAssetCapExceeded, got %v", err)
	}
	if err := p.Credit(participant(0), big.NewInt(1)); err != nil {
		t.Fatalf("topping up an existing position should succeed: %v", err)
	}
}
