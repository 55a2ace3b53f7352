package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/calendar2youtube/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	runTotal        *prometheus.CounterVec
	runDuration     prometheus.Observer
	ledgerMutations *prometheus.CounterVec
	broadcastTotal  *prometheus.CounterVec
	outcomeTotal    *prometheus.CounterVec
	lastRunSuccess  prometheus.Gauge
	tokenCache      *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	requestCount         uint64
	requestDurationTotal uint64
	runCount             uint64

	mu      sync.RWMutex
	lastRun *models.SyncRun
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	runTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runs_total",
		Help: "Total number of sync runs by trigger and status",
	}, []string{"trigger", "status"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_run_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	ledgerMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_mutations_total",
		Help: "Ledger mutations applied or failed",
	}, []string{"kind"})

	broadcastTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_actions_total",
		Help: "Broadcast actions by decision and result",
	}, []string{"action", "result"})

	outcomeTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_outcomes_total",
		Help: "Reported reconciliation outcomes",
	}, []string{"component", "action", "level"})

	lastRunSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sync_last_run_success_timestamp_seconds",
		Help: "Unix time of the last succeeded sync run",
	})

	tokenCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_token_cache_total",
		Help: "OAuth token store lookups by result",
	}, []string{"result"})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, runTotal, runDuration, ledgerMutations, broadcastTotal, outcomeTotal, lastRunSuccess, tokenCache, dbQueryDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		runTotal:        runTotal,
		runDuration:     runDuration,
		ledgerMutations: ledgerMutations,
		broadcastTotal:  broadcastTotal,
		outcomeTotal:    outcomeTotal,
		lastRunSuccess:  lastRunSuccess,
		tokenCache:      tokenCache,
		dbQueryDuration: dbQueryDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the registry for tests and custom collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveSyncRun records the result of a finished run.
func (m *MetricsService) ObserveSyncRun(run models.SyncRun) {
	if m == nil {
		return
	}
	m.runTotal.WithLabelValues(string(run.Trigger), string(run.Status)).Inc()
	if !run.FinishedAt.IsZero() {
		m.runDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
	if !run.DryRun {
		m.ledgerMutations.WithLabelValues("create").Add(float64(run.LedgerCreated))
		m.ledgerMutations.WithLabelValues("update").Add(float64(run.LedgerUpdated))
		m.ledgerMutations.WithLabelValues("delete").Add(float64(run.LedgerDeleted))
		m.ledgerMutations.WithLabelValues("failed").Add(float64(run.LedgerFailed))
		m.broadcastTotal.WithLabelValues(string(run.BroadcastAction), string(run.BroadcastResult)).Inc()
	}
	if run.Status == models.SyncStatusSucceeded {
		m.lastRunSuccess.Set(float64(run.FinishedAt.Unix()))
	}
	atomic.AddUint64(&m.runCount, 1)
	m.mu.Lock()
	last := run
	m.lastRun = &last
	m.mu.Unlock()
}

// RecordTokenLookup counts token store hits and misses.
func (m *MetricsService) RecordTokenLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.tokenCache.WithLabelValues("hit").Inc()
		return
	}
	m.tokenCache.WithLabelValues("miss").Inc()
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// Reporter returns a reporter counting outcomes, or nil when metrics are disabled.
func (m *MetricsService) Reporter() Reporter {
	if m == nil {
		return nil
	}
	return metricsReporter{counter: m.outcomeTotal}
}

type metricsReporter struct {
	counter *prometheus.CounterVec
}

func (r metricsReporter) Report(o Outcome) {
	r.counter.WithLabelValues(o.Component, o.Action, o.Level.String()).Inc()
}

// Snapshot returns aggregated metrics suitable for the status endpoint.
func (m *MetricsService) Snapshot() models.StatusSnapshot {
	if m == nil {
		return models.StatusSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	m.mu.RLock()
	var last *models.SyncRun
	if m.lastRun != nil {
		copied := *m.lastRun
		last = &copied
	}
	m.mu.RUnlock()

	return models.StatusSnapshot{
		RunsTotal:                atomic.LoadUint64(&m.runCount),
		LastRun:                  last,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
