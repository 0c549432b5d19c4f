package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"stele/core/events"
)

func TestEventsCountsByType(t *testing.T) {
	registry := Events()
	var emitter events.Emitter = registry
	before := testutil.ToFloat64(registry.Emitted().WithLabelValues(events.TypeChallengeJoined))
	emitter.Emit(events.ChallengeJoined{})
	emitter.Emit(events.ChallengeJoined{})
	after := testutil.ToFloat64(registry.Emitted().WithLabelValues(events.TypeChallengeJoined))
	if after-before != 2 {
		t.Fatalf("expected two joined events, got %v", after-before)
	}
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.Requests().WithLabelValues("challenge", "challenge_join", "error"))
	m.Observe("challenge", "challenge_join", -32010, 5*time.Millisecond)
	after := testutil.ToFloat64(m.Requests().WithLabelValues("challenge", "challenge_join", "error"))
	if after-before != 1 {
		t.Fatalf("expected one error request, got %v", after-before)
	}
	m.RecordThrottle("", "")
	if got := testutil.ToFloat64(m.Throttles().WithLabelValues("unknown", "unspecified")); got < 1 {
		t.Fatalf("expected throttle recorded under fallback labels, got %v", got)
	}
}

func TestNilRegistriesAreSafe(t *testing.T) {
	var m *moduleMetrics
	m.Observe("a", "b", 0, time.Second)
	var o *OracleMetrics
	o.RecordLookup("sheet", "ok")
	o.RecordAge("sheet", time.Second)
	var e *eventMetrics
	e.Emit(events.ChallengeSwap{})
}
