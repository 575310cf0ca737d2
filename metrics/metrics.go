// Package metrics provides Prometheus instrumentation for the trade book.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FillsTotal counts fills applied to trades, by OPEN/ADD/TRIM/CLOSE.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebook_fills_total",
		Help: "Total number of fills applied",
	}, []string{"kind"})

	// FillRejections counts fills the ledger refused.
	FillRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebook_fill_rejections_total",
		Help: "Fills rejected by the ledger",
	}, []string{"reason"})

	// RealizedPnL accumulates realized profit and loss in dollars.
	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradebook_realized_pnl",
		Help: "Cumulative realized PnL of exits recorded by this process",
	})

	OpenTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradebook_open_trades",
		Help: "Open trades as of the last listing",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebook_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradebook_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics, labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// route pattern rather than raw path keeps trade ids out of the labels
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
