package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual collaborator.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// EngineMetrics is returned by GET /v1/metrics/engine.
type EngineMetrics struct {
	CacheHits        int64   `json:"cacheHits"`
	CacheMisses      int64   `json:"cacheMisses"`
	CacheHitRate     float64 `json:"cacheHitRate"`
	DegradedReports  int64   `json:"degradedReports"`
	SkippedRows      int64   `json:"skippedRows"`
	Invalidations    int64   `json:"invalidations"`
	InvalidatedKeys  int64   `json:"invalidatedKeys"`
	FormulaFailures  int64   `json:"formulaFailures"`
	SalaryQueries    int64   `json:"salaryQueries"`
	LiveCacheEntries int     `json:"liveCacheEntries"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// InvalidationResult reports what a cache sweep removed.
type InvalidationResult struct {
	EventID string   `json:"eventId,omitempty"`
	Tags    []string `json:"tags"`
	Removed int      `json:"removed"`

	Warnings []string `json:"warnings,omitempty"`
}
