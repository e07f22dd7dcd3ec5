package observability

import (
	"time"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	degraded        *prometheus.CounterVec
	skippedRows     *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
	invalidatedKeys prometheus.Counter
	formulaFailures prometheus.Counter
	salaryQueries   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleetpay_operation_duration_seconds",
				Help:    "Duration of engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpay_external_errors_total",
				Help: "Total errors from collaborators (rows provider, config store).",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpay_cache_hits_total",
				Help: "Total record cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpay_cache_misses_total",
				Help: "Total record cache misses.",
			},
			[]string{"cache"},
		),
		degraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpay_degraded_reports_total",
				Help: "Reports served empty because a collaborator failed.",
			},
			[]string{"report"},
		),
		skippedRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpay_skipped_rows_total",
				Help: "Rows skipped for data-quality reasons.",
			},
			[]string{"table"},
		),
		invalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpay_cache_invalidations_total",
				Help: "Cache invalidation sweeps by trigger.",
			},
			[]string{"trigger"},
		),
		invalidatedKeys: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fleetpay_cache_invalidated_keys_total",
				Help: "Cache keys removed by invalidation sweeps.",
			},
		),
		formulaFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fleetpay_formula_failures_total",
				Help: "Commission formulas that failed to evaluate.",
			},
		),
		salaryQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpay_salary_queries_total",
				Help: "Salary computations by compensation model.",
			},
			[]string{"model"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetpay_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrDegraded counts a report served in degraded mode.
func (m *Metrics) IncrDegraded(report string) {
	m.degraded.WithLabelValues(report).Inc()
}

// AddSkippedRows counts rows dropped from a table.
func (m *Metrics) AddSkippedRows(table string, n int) {
	if n <= 0 {
		return
	}
	m.skippedRows.WithLabelValues(table).Add(float64(n))
}

// RecordInvalidation counts a sweep and the keys it removed.
func (m *Metrics) RecordInvalidation(trigger string, removed int) {
	m.invalidations.WithLabelValues(trigger).Inc()
	if removed > 0 {
		m.invalidatedKeys.Add(float64(removed))
	}
}

// IncrFormulaFailure counts a commission formula that could not be evaluated.
func (m *Metrics) IncrFormulaFailure() {
	m.formulaFailures.Inc()
}

// IncrSalaryQuery counts a salary computation.
func (m *Metrics) IncrSalaryQuery(model string) {
	m.salaryQueries.WithLabelValues(model).Inc()
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// GetEngineSnapshot returns cumulative counters suitable for the
// GET /v1/metrics/engine endpoint.
func (m *Metrics) GetEngineSnapshot(liveCacheEntries int) *domain.EngineMetrics {
	hits := sumCounterVec(m.cacheHits)
	misses := sumCounterVec(m.cacheMisses)

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.EngineMetrics{
		CacheHits:        int64(hits),
		CacheMisses:      int64(misses),
		CacheHitRate:     hitRate,
		DegradedReports:  int64(sumCounterVec(m.degraded)),
		SkippedRows:      int64(sumCounterVec(m.skippedRows)),
		Invalidations:    int64(sumCounterVec(m.invalidations)),
		InvalidatedKeys:  int64(counterValue(m.invalidatedKeys)),
		FormulaFailures:  int64(counterValue(m.formulaFailures)),
		SalaryQueries:    int64(sumCounterVec(m.salaryQueries)),
		LiveCacheEntries: liveCacheEntries,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return counterValue(cv.WithLabelValues(label))
}

func counterValue(c prometheus.Metric) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounterVec adds up every label combination of a CounterVec.
func sumCounterVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	total := float64(0)
	for metric := range ch {
		total += counterValue(metric)
	}
	return total
}
