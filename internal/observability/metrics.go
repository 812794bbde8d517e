package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: All metrics are defined globally here, so every binary exports the full set
// (HTTP metrics stay at zero in the gRPC service and vice versa).

// namespace defines the global prefix for all metrics (e.g., phishguard_...).
const namespace = "phishguard"

// lowLatencyBuckets defines custom buckets for hot-path operations.
// Standard buckets are too coarse (starting at 5ms), so we add sub-millisecond resolution.
var lowLatencyBuckets = []float64{.0001, .00025, .0005, .001, .002, .005, .010, .025, .050, .100, .500}

// Verdict labels used by EvaluationsTotal.
const (
	VerdictPhishing   = "phishing"
	VerdictLegitimate = "legitimate"
)

// Reload status labels used by RuleSetReloadsTotal.
const (
	ReloadSuccess   = "success"
	ReloadUnchanged = "unchanged"
	ReloadFailed    = "fail"
)

var (
	// -------------------------------------------------------------------------
	// HTTP API
	// -------------------------------------------------------------------------

	// HTTPReqDuration measures the latency of HTTP requests.
	// Metric: phishguard_http_handling_seconds
	HTTPReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// HTTPReqTotal counts the total number of HTTP requests.
	// Metric: phishguard_http_requests_total
	HTTPReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// gRPC API
	// -------------------------------------------------------------------------

	// GRPCDuration measures the latency of gRPC requests.
	// Metric: phishguard_grpc_handling_seconds
	GRPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "handling_seconds",
		Help:      "Time taken to handle gRPC requests",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "code"})

	// GRPCTotal counts the total number of gRPC requests.
	// Metric: phishguard_grpc_requests_total
	GRPCTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "Total gRPC requests",
	}, []string{"method", "code"})

	// -------------------------------------------------------------------------
	// ENGINE
	// -------------------------------------------------------------------------

	// EvaluationsTotal counts verdicts by candidate kind and outcome.
	// Metric: phishguard_engine_evaluations_total
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "evaluations_total",
		Help:      "Total candidates evaluated, by kind and verdict",
	}, []string{"kind", "verdict"})

	// EvaluationDuration measures rule evaluation time, excluding cache hits.
	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "evaluation_seconds",
		Help:      "Time taken to evaluate a candidate against the active rule set",
		Buckets:   lowLatencyBuckets,
	}, []string{"kind"})

	// ScoreDistribution records normalized scores.
	ScoreDistribution = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "score",
		Help:      "Distribution of normalized phishing scores",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	}, []string{"kind"})

	// InvalidCandidatesTotal counts candidates rejected before evaluation.
	InvalidCandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "invalid_candidates_total",
		Help:      "Total candidates rejected by input validation",
	}, []string{"kind"})

	// PredicateFailuresTotal counts rules that errored or panicked (treated as non-matches).
	PredicateFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "predicate_failures_total",
		Help:      "Total rule predicates that failed during evaluation",
	}, []string{"rule", "reason"}) // reason: error, panic

	// --- Verdict Cache (L1, Otter) ---

	VerdictCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "verdict_cache_hits_total",
		Help:      "Total verdict cache hits (in-memory)",
	})

	VerdictCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "verdict_cache_misses_total",
		Help:      "Total verdict cache misses",
	})

	// VerdictCacheItems reports the S3-FIFO item count; otter tracks items, not bytes.
	VerdictCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "verdict_cache_items_count",
		Help:      "Current number of verdicts in the L1 cache",
	})

	// -------------------------------------------------------------------------
	// RULES (Syncer + Management)
	// -------------------------------------------------------------------------

	// RuleSetReloadsTotal counts reload cycles by outcome.
	// Metric: phishguard_rules_reloads_total
	RuleSetReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "reloads_total",
		Help:      "Total rule set reload cycles",
	}, []string{"status"}) // success, unchanged, fail

	RuleSetReloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "reload_duration_seconds",
		Help:      "Time taken to read, compile and swap rule sets",
		Buckets:   prometheus.DefBuckets,
	})

	// ActiveRules reports the number of rules in the active set per kind.
	ActiveRules = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "active_count",
		Help:      "Number of rules in the active rule set",
	}, []string{"kind"})

	RuleEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "events_published_total",
		Help:      "Total rule change notifications published via PubSub",
	}, []string{"status"}) // success, fail

	RuleEventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "events_received_total",
		Help:      "Total rule change notifications received via PubSub",
	})

	// -------------------------------------------------------------------------
	// HISTORY
	// -------------------------------------------------------------------------

	HistoryAppendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "append_failures_total",
		Help:      "Total verdicts that could not be written to history",
	}, []string{"backend"})

	// -------------------------------------------------------------------------
	// DATABASE POOL
	// -------------------------------------------------------------------------

	// DBPoolConnections reports pgxpool connection counts.
	// Metric: phishguard_database_pool_connections{state="total|idle|in_use|max"}
	DBPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Current database pool connections by state",
	}, []string{"state"})

	DBPoolAcquireCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Cumulative count of successful connection acquires",
	})

	DBPoolAcquireDuration = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	DBPoolWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Cumulative count of acquires that had to wait for a connection",
	})

	// -------------------------------------------------------------------------
	// REDIS POOL
	// -------------------------------------------------------------------------

	// RedisPoolConnections reports go-redis pool connection counts.
	// Metric: phishguard_redis_pool_connections{state="total|idle|stale"}
	RedisPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_connections",
		Help:      "Current Redis pool connections by state",
	}, []string{"state"})

	RedisPoolHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_hits_total",
		Help:      "Times a free connection was found in the pool",
	})

	RedisPoolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_misses_total",
		Help:      "Times a free connection was not found in the pool",
	})

	RedisPoolTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_timeouts_total",
		Help:      "Times a wait for a pool connection timed out",
	})
)

// VerdictLabel maps a classification to the EvaluationsTotal verdict label.
func VerdictLabel(isPhishing bool) string {
	if isPhishing {
		return VerdictPhishing
	}
	return VerdictLegitimate
}
