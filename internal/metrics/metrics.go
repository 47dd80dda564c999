// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashback",
		Name:      "redemptions_total",
		Help:      "Coupon redemption attempts by outcome.",
	}, []string{"outcome"})

	LedgerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashback",
		Name:      "ledger_transitions_total",
		Help:      "Cashback transaction status transitions.",
	}, []string{"to"})

	Withdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashback",
		Name:      "withdrawals_total",
		Help:      "Withdrawal requests and settlements by outcome.",
	}, []string{"outcome"})

	SweeperTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashback",
		Name:      "sweeper_ticks_total",
		Help:      "Sweeper ticks by result.",
	}, []string{"result"})

	SweeperConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cashback",
		Name:      "sweeper_confirmed_total",
		Help:      "Transactions confirmed by the sweeper.",
	})

	ReconciliationNeeded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cashback",
		Name:      "reconciliation_needed_total",
		Help:      "Usage count compensations that failed and need an operator.",
	})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cashback",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Middleware records request latency keyed by the matched route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
