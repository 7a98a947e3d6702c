package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registerOnce sync.Once

	confirmationPollsHist prometheus.Histogram
	sessionsStarted       *prometheus.CounterVec
	sessionStartRetries   prometheus.Counter
	trustViolations       prometheus.Counter
	messagesSent          prometheus.Counter
	tokensEstimated       prometheus.Counter
)

func ensureMetrics() {
	registerOnce.Do(func() {
		confirmationPollsHist = promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fabstir",
			Subsystem: "wallet",
			Name:      "confirmation_polls",
			Help:      "Number of status polls before a call bundle confirmed or timed out",
			Buckets:   prometheus.LinearBuckets(1, 3, 10),
		})

		sessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabstir",
			Subsystem: "session",
			Name:      "starts_total",
			Help:      "Session start attempts by outcome",
		}, []string{"outcome"})

		sessionStartRetries = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "fabstir",
			Subsystem: "session",
			Name:      "start_retries_total",
			Help:      "Transient-race retries performed inside start",
		})

		trustViolations = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "fabstir",
			Subsystem: "host",
			Name:      "trust_violations_total",
			Help:      "Host endpoint identity mismatches detected before commitment",
		})

		messagesSent = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "fabstir",
			Subsystem: "session",
			Name:      "messages_total",
			Help:      "Prompts sent through active sessions",
		})

		tokensEstimated = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "fabstir",
			Subsystem: "session",
			Name:      "tokens_estimated_total",
			Help:      "Locally estimated tokens consumed (display accounting, not settlement)",
		})
	})
}

// ObserveConfirmationPolls records how many polls a bundle needed.
func ObserveConfirmationPolls(attempts int) {
	ensureMetrics()
	confirmationPollsHist.Observe(float64(attempts))
}

// CountSessionStart records a start attempt outcome ("ok", "failed",
// "rate_limited", "trust_violation").
func CountSessionStart(outcome string) {
	ensureMetrics()
	sessionsStarted.WithLabelValues(outcome).Inc()
}

// CountStartRetry records one transient-race retry.
func CountStartRetry() {
	ensureMetrics()
	sessionStartRetries.Inc()
}

// CountTrustViolation records a rejected host endpoint.
func CountTrustViolation() {
	ensureMetrics()
	trustViolations.Inc()
}

// CountMessage records one sent prompt and its estimated token consumption.
func CountMessage(tokens int) {
	ensureMetrics()
	messagesSent.Inc()
	tokensEstimated.Add(float64(tokens))
}
