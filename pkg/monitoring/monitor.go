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
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"method", "endpoint"},
	)

	ChallengeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_outcomes_total",
			Help: "Challenge submissions by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	ReactionTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reaction_time_ms",
			Help:    "Accepted server-measured reaction times",
			Buckets: []float64{100, 150, 200, 250, 300, 400, 500, 750, 1000, 2000, 5000},
		},
		[]string{"mode"},
	)

	RateLimitDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_denials_total",
			Help: "Calls denied by the per-user cooldown",
		},
		[]string{"bucket"},
	)

	AuditWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit records that could not be delivered",
		},
		[]string{"sink"},
	)

	LeaderboardSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leaderboard_ws_subscribers",
			Help: "Open live leaderboard connections",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			ChallengeOutcomes,
			ReactionTime,
			RateLimitDenials,
			AuditWriteFailures,
			LeaderboardSubscribers,
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
