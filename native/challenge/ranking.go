package challenge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Leaderboard is the best-K snapshot for one challenge: a fixed-capacity
// array kept sorted by score descending, then Seq ascending. Seq is assigned
// once, when a participant first enters the board, so among equal scores the
// earlier entrant keeps the higher rank, including after its own rescoring.
type Leaderboard struct {
	Entries [RankingSize]RankEntry
	Size    uint8
	NextSeq uint64
}

// RankResult describes what an Update did.
type RankResult uint8

const (
	RankDiscarded RankResult = iota
	RankInserted
	RankUpdated
)

func (r RankResult) String() string {
	switch r {
	case RankInserted:
		return "inserted"
	case RankUpdated:
		return "updated"
	default:
		return "discarded"
	}
}

func (lb *Leaderboard) normalize() {
	for i := range lb.Entries {
		if lb.Entries[i].Score == nil {
			lb.Entries[i].Score = big.NewInt(0)
		}
	}
}

// ranksBefore reports whether a belongs strictly ahead of b.
func ranksBefore(a, b RankEntry) bool {
	if cmp := a.Score.Cmp(b.Score); cmp != 0 {
		return cmp > 0
	}
	return a.Seq < b.Seq
}

// Position returns the 1-based rank of participant, or 0 when absent.
func (lb *Leaderboard) Position(participant common.Address) int {
	for i := 0; i < int(lb.Size); i++ {
		if lb.Entries[i].Participant == participant {
			return i + 1
		}
	}
	return 0
}

// Update applies a new score for participant and returns the resulting rank
// (0 when not on the board) along with the kind of change made.
func (lb *Leaderboard) Update(participant common.Address, score *big.Int) (int, RankResult) {
	entry := RankEntry{Participant: participant, Score: cloneBig(score)}
	if pos := lb.Position(participant); pos > 0 {
		entry.Seq = lb.Entries[pos-1].Seq
		lb.removeAt(pos - 1)
		return lb.insert(entry), RankUpdated
	}
	if int(lb.Size) < RankingSize {
		entry.Seq = lb.NextSeq
		lb.NextSeq++
		return lb.insert(entry), RankInserted
	}
	last := lb.Entries[RankingSize-1]
	if entry.Score.Cmp(last.Score) <= 0 {
		return 0, RankDiscarded
	}
	lb.removeAt(RankingSize - 1)
	entry.Seq = lb.NextSeq
	lb.NextSeq++
	return lb.insert(entry), RankInserted
}

func (lb *Leaderboard) removeAt(i int) {
	n := int(lb.Size)
	copy(lb.Entries[i:n-1], lb.Entries[i+1:n])
	lb.Entries[n-1] = RankEntry{Score: big.NewInt(0)}
	lb.Size--
}

// insert places entry at its sorted position. The caller guarantees a free slot.
func (lb *Leaderboard) insert(entry RankEntry) int {
	n := int(lb.Size)
	pos := n
	for i := 0; i < n; i++ {
		if ranksBefore(entry, lb.Entries[i]) {
			pos = i
			break
		}
	}
	copy(lb.Entries[pos+1:n+1], lb.Entries[pos:n])
	lb.Entries[pos] = entry
	lb.Size++
	return pos + 1
}

// Entry returns the entry at 1-based rank.
func (lb *Leaderboard) Entry(rank int) (RankEntry, bool) {
	if rank < 1 || rank > int(lb.Size) {
		return RankEntry{}, false
	}
	e := lb.Entries[rank-1]
	return RankEntry{Participant: e.Participant, Score: cloneBig(e.Score), Seq: e.Seq}, true
}

// Ranking renders the zero-padded public view.
func (lb *Leaderboard) Ranking() Ranking {
	var out Ranking
	for i := 0; i < RankingSize; i++ {
		out.Scores[i] = big.NewInt(0)
		if i < int(lb.Size) {
			out.Participants[i] = lb.Entries[i].Participant
			out.Scores[i] = cloneBig(lb.Entries[i].Score)
		}
	}
	return out
}
