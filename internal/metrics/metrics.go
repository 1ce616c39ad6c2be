// Package metrics provides Prometheus instrumentation for RiskLens.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risklens",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "risklens",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// VerdictsTotal counts verdicts by producing path and label.
	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risklens",
			Name:      "verdicts_total",
			Help:      "Total risk verdicts by source and label.",
		},
		[]string{"source", "label"},
	)

	// HeuristicScore observes the distribution of heuristic scores.
	HeuristicScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "risklens",
		Name:      "heuristic_score",
		Help:      "Distribution of capped heuristic risk scores.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.3, 0.5, 0.55, 0.75, 0.8, 0.99},
	})

	// MLPredictionsTotal counts model predictions by risk tier.
	MLPredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risklens",
			Name:      "ml_predictions_total",
			Help:      "Total model predictions by risk level.",
		},
		[]string{"risk_level"},
	)

	// ScorerLoaded is 1 when a model is loaded, 0 in simulation mode.
	ScorerLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "risklens",
		Name:      "scorer_loaded",
		Help:      "Whether a trained scorer is loaded (1) or the service runs in simulation mode (0).",
	})

	// ActiveReplaySessions tracks open replay streams.
	ActiveReplaySessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "risklens",
		Name:      "active_replay_sessions",
		Help:      "Number of currently open replay sessions.",
	})

	// ReplayPayloadsTotal counts payloads emitted by replay sessions.
	ReplayPayloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "risklens",
		Name:      "replay_payloads_total",
		Help:      "Total scored payloads emitted by replay sessions.",
	})

	// ReplaySessionsTotal counts finished replay sessions by outcome.
	ReplaySessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risklens",
			Name:      "replay_sessions_total",
			Help:      "Total replay sessions by outcome (exhausted, disconnected, dataset_missing, failed).",
		},
		[]string{"outcome"},
	)

	// ActiveFeedClients tracks connected live feed websocket clients.
	ActiveFeedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "risklens",
		Name:      "active_feed_clients",
		Help:      "Number of currently connected live feed clients.",
	})

	// AuditWriteFailuresTotal counts verdict audit records that could not be stored.
	AuditWriteFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "risklens",
		Name:      "audit_write_failures_total",
		Help:      "Total verdict audit records dropped after retries.",
	})

	// CircuitState reports each breaker's state: 0 closed, 1 open, 2 half-open.
	CircuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "risklens",
		Name:      "circuit_state",
		Help:      "Circuit breaker state by guarded dependency.",
	}, []string{"name"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		VerdictsTotal,
		HeuristicScore,
		MLPredictionsTotal,
		ScorerLoaded,
		ActiveReplaySessions,
		ReplayPayloadsTotal,
		ReplaySessionsTotal,
		ActiveFeedClients,
		AuditWriteFailuresTotal,
		CircuitState,
	)
}

// ObserveVerdict records a verdict produced by source.
func ObserveVerdict(source, label string, score float64, heuristic bool) {
	VerdictsTotal.WithLabelValues(source, label).Inc()
	if heuristic {
		HeuristicScore.Observe(score)
	}
}

// Middleware records request counts and latency per route pattern.
// Requests that match no route share the "unmatched" label.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, statusBucket(c.Writer.Status())).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket collapses a status code to its class ("2xx", "5xx").
func statusBucket(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
