package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/compliance-engine/compliance"
)

const (
	metricPrefix = "compliance_"

	resultSuccess = "success"
	resultError   = "error"
	resultInvalid = "invalid"
)

var (
	registerOnce sync.Once

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec

	warmerRuns     *prometheus.CounterVec
	warmerBalances prometheus.Counter
)

// InitMetrics registers the server metrics with the default registry.
// Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by route pattern, method and status",
			},
			[]string{"route", "method", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		)

		operationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total engine operations (bank, apply, pool, ...) by result",
			},
			[]string{"operation", "result"},
		)
		operationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Engine operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)

		warmerRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "warmer_runs_total",
				Help: "Total balance warmer passes by result",
			},
			[]string{"result"},
		)
		warmerBalances = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "warmer_balances_total",
				Help: "Total balances materialized by the warmer",
			},
		)

		prometheus.MustRegister(
			httpRequests,
			httpLatency,
			operationTotal,
			operationLatency,
			warmerRuns,
			warmerBalances,
		)
	})
}

// resultOf classifies an operation error for the result label.
func resultOf(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, compliance.ErrInvalidOperation), errors.Is(err, compliance.ErrNotFound):
		return resultInvalid
	default:
		return resultError
	}
}

// ObserveOperation records one engine operation.
func ObserveOperation(operation string, err error, duration time.Duration) {
	result := resultOf(err)
	if operationTotal != nil {
		operationTotal.WithLabelValues(operation, result).Inc()
	}
	if operationLatency != nil {
		operationLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// ObserveWarmerRun records one warmer pass.
func ObserveWarmerRun(materialized int, err error) {
	if warmerRuns != nil {
		warmerRuns.WithLabelValues(resultOf(err)).Inc()
	}
	if warmerBalances != nil && materialized > 0 {
		warmerBalances.Add(float64(materialized))
	}
}

// metricsMiddleware counts requests per chi route pattern, so path
// parameters do not explode label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if httpRequests == nil {
			return
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpLatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
