// Package metrics exposes Prometheus instrumentation for the automation
// engine. All Record methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Automation metrics
	Enrollments      *prometheus.CounterVec
	TriggerScans     *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	Engagement       *prometheus.CounterVec
	StatsReconciled  prometheus.Counter
}

// New registers every metric with reg. Passing nil uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		Enrollments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_enrollments_total",
				Help: "Recipients enrolled into campaign sequences, by trigger kind and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		TriggerScans: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_trigger_scans_total",
				Help: "Trigger evaluator runs, by trigger kind and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		Deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_deliveries_total",
				Help: "Delivery record transitions, by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		DispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automation_dispatch_tick_seconds",
				Help:    "Duration of one dispatch tick",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
			},
			[]string{"channel"},
		),
		Engagement: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_engagement_events_total",
				Help: "Tracked opens and clicks, by kind and whether the tracking id matched",
			},
			[]string{"kind", "matched"},
		),
		StatsReconciled: f.NewCounter(prometheus.CounterOpts{
			Name: "automation_stats_reconciled_total",
			Help: "Campaigns whose counters were recomputed from delivery records",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordEnrollment counts one enrollment attempt. outcome is enrolled,
// duplicate, not_targeted or error.
func (m *Metrics) RecordEnrollment(trigger, outcome string) {
	if m == nil {
		return
	}
	m.Enrollments.WithLabelValues(trigger, outcome).Inc()
}

// RecordTriggerScan counts one evaluator run.
func (m *Metrics) RecordTriggerScan(trigger string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.TriggerScans.WithLabelValues(trigger, outcome).Inc()
}

// RecordDelivery counts one record transition. outcome is sent, failed,
// skipped or deferred.
func (m *Metrics) RecordDelivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(channel, outcome).Inc()
}

// ObserveDispatch records the duration of one dispatch tick.
func (m *Metrics) ObserveDispatch(channel string, d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.WithLabelValues(channel).Observe(d.Seconds())
}

// RecordEngagement counts one open or click.
func (m *Metrics) RecordEngagement(kind string, matched bool) {
	if m == nil {
		return
	}
	m.Engagement.WithLabelValues(kind, strconv.FormatBool(matched)).Inc()
}

// RecordReconciled counts campaigns whose stats were recomputed.
func (m *Metrics) RecordReconciled(n int) {
	if m == nil {
		return
	}
	m.StatsReconciled.Add(float64(n))
}
