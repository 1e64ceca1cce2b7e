package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 业务指标
	QuizAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillpath_quiz_attempts_total",
			Help: "Quiz attempts by outcome",
		},
		[]string{"passed"},
	)

	UnitCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillpath_unit_completions_total",
			Help: "Unit completions by kind and whether XP was newly awarded",
		},
		[]string{"kind", "awarded"},
	)

	XPAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skillpath_xp_awarded_total",
			Help: "Sum of XP written to the ledger",
		},
	)

	CredentialsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skillpath_credentials_issued_total",
			Help: "Credentials created",
		},
	)

	CredentialTaskFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillpath_credential_task_failures_total",
			Help: "Credential outbox fulfilment failures by stage",
		},
		[]string{"stage"},
	)

	CompletionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skillpath_completion_tx_seconds",
			Help:    "Duration of the completion transaction",
			Buckets: prometheus.DefBuckets,
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			QuizAttempts,
			UnitCompletions,
			XPAwarded,
			CredentialsIssued,
			CredentialTaskFailures,
			CompletionDuration,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
