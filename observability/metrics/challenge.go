package metrics

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ChallengeMetrics tracks engine operations and prize pool flows.
type ChallengeMetrics struct {
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	pooled         prometheus.Counter
	paid           prometheus.Counter
	rankingUpdates *prometheus.CounterVec
	created        prometheus.Counter
}

var (
	challengeOnce     sync.Once
	challengeRegistry *ChallengeMetrics
)

// Challenge returns the lazily registered challenge engine metrics.
func Challenge() *ChallengeMetrics {
	challengeOnce.Do(func() {
		challengeRegistry = &ChallengeMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stele",
				Subsystem: "challenge",
				Name:      "operations_total",
				Help:      "Challenge engine operations segmented by operation, outcome and error code.",
			}, []string{"operation", "outcome", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stele",
				Subsystem: "challenge",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for challenge engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			pooled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stele",
				Subsystem: "challenge",
				Name:      "pooled_rewards_total",
				Help:      "Entry fees accumulated into prize pools, in smallest base units.",
			}),
			paid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stele",
				Subsystem: "challenge",
				Name:      "rewards_paid_total",
				Help:      "Rewards disbursed to claimants, in smallest base units.",
			}),
			rankingUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stele",
				Subsystem: "challenge",
				Name:      "ranking_updates_total",
				Help:      "Leaderboard rescoring outcomes.",
			}, []string{"result"}),
			created: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stele",
				Subsystem: "challenge",
				Name:      "created_total",
				Help:      "Number of challenges created since process start.",
			}),
		}
		prometheus.MustRegister(
			challengeRegistry.operations,
			challengeRegistry.latency,
			challengeRegistry.pooled,
			challengeRegistry.paid,
			challengeRegistry.rankingUpdates,
			challengeRegistry.created,
		)
	})
	return challengeRegistry
}

// Observe records the outcome of one engine operation. code is the taxonomy
// code of the failure, empty on success.
func (m *ChallengeMetrics) Observe(operation, code string, duration time.Duration) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if code != "" {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome, code).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *ChallengeMetrics) AddPooled(amount *big.Int) {
	if m == nil {
		return
	}
	m.pooled.Add(bigToFloat(amount))
}

func (m *ChallengeMetrics) AddPaid(amount *big.Int) {
	if m == nil {
		return
	}
	m.paid.Add(bigToFloat(amount))
}

// RecordRanking counts a rescore. result is one of "inserted", "updated" or
// "discarded".
func (m *ChallengeMetrics) RecordRanking(result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.rankingUpdates.WithLabelValues(result).Inc()
}

func (m *ChallengeMetrics) RecordCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *ChallengeMetrics) OperationsVec() *prometheus.CounterVec { return m.operations }

func (m *ChallengeMetrics) RankingVec() *prometheus.CounterVec { return m.rankingUpdates }

func (m *ChallengeMetrics) PooledCounter() prometheus.Counter { return m.pooled }

func (m *ChallengeMetrics) PaidCounter() prometheus.Counter { return m.paid }

func bigToFloat(value *big.Int) float64 {
	if value == nil || value.Sign() <= 0 {
		return 0
	}
	floatVal, _ := new(big.Float).SetInt(value).Float64()
	if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
		return 0
	}
	return floatVal
}
