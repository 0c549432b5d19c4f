package metrics

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestChallengeMetricsObserve(t *testing.T) {
	m := Challenge()
	before := testutil.ToFloat64(m.OperationsVec().WithLabelValues("join", "error", "AJ"))
	m.Observe("join", "AJ", time.Millisecond)
	if got := testutil.ToFloat64(m.OperationsVec().WithLabelValues("join", "error", "AJ")); got != before+1 {
		t.Fatalf("expected error counter to increase by one, got %v -> %v", before, got)
	}

	pooled := testutil.ToFloat64(m.PooledCounter())
	m.AddPooled(big.NewInt(10_000_000))
	m.AddPooled(big.NewInt(-5))
	if got := testutil.ToFloat64(m.PooledCounter()); got != pooled+10_000_000 {
		t.Fatalf("unexpected pooled total %v", got)
	}
}

func TestNilChallengeMetricsIsSafe(t *testing.T) {
	var m *ChallengeMetrics
	m.Observe("swap", "", time.Second)
	m.AddPaid(big.NewInt(1))
	m.RecordRanking("inserted")
	m.RecordCreated()
}
