package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/infra/observability"
	"github.com/boddenberg/fleetpay-go/internal/port"
	"github.com/boddenberg/fleetpay-go/internal/service"
)

var tracer = otel.Tracer("handler")

// Probe is a named collaborator health check.
type Probe struct {
	Name string
	Ping func(ctx context.Context) error
}

// Deps are the collaborators of the HTTP layer. Nil services disable their
// routes' handlers with 503.
type Deps struct {
	Owners       *service.OwnershipResolver
	Aggregation  *service.AggregationService
	Compensation *service.CompensationService
	Admin        *service.AdminService
	Cache        port.Cache
	Metrics      *observability.Metrics
	Probes       []Probe
	JWTSecret    string
	DefaultTopN  int
	Logger       *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Probes))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(d.JWTSecret, logger))

		r.Get("/metrics/engine", engineMetricsHandler(metrics, d.Cache))

		// Supervisor-scoped reads. A supervisor token may only read its own code.
		r.Route("/supervisors", func(r chi.Router) {
			r.With(RequireAdmin(logger)).Get("/", listSupervisorsHandler(d.Owners, logger))
			r.Get("/{code}/riders", ridersHandler(d.Owners, logger))
			r.Get("/{code}/performance", performanceHandler(d.Aggregation, d.DefaultTopN, logger))
			r.Get("/{code}/debts", debtsHandler(d.Aggregation, logger))
			r.Get("/{code}/advances", advancesHandler(d.Aggregation, logger))
			r.Get("/{code}/salary", salaryHandler(d.Compensation, logger))
		})

		// Administrative writes.
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(logger))
			r.Put("/riders/{id}", upsertRiderHandler(d.Admin, logger))
			r.Delete("/riders/{id}", unassignRiderHandler(d.Admin, logger))
			r.Put("/supervisors/{code}", upsertSupervisorHandler(d.Admin, logger))
			r.Delete("/supervisors/{code}", deleteSupervisorHandler(d.Admin, logger))
			r.Put("/supervisors/{code}/salary-config", salaryConfigHandler(d.Admin, logger))
			r.Put("/supervisors/{code}/equipment-limits", equipmentLimitsHandler(d.Admin, logger))
			r.Put("/equipment-prices", equipmentPricesHandler(d.Admin, logger))
			r.Put("/settings", settingsHandler(d.Admin, logger))
			r.Post("/performance/clear", clearPerformanceHandler(d.Admin, logger))
			r.Post("/debts/import", importDebtsHandler(d.Admin, logger))
			r.Post("/advances/import", importAdvancesHandler(d.Admin, logger))
			r.Post("/cache/invalidate", invalidateCacheHandler(d.Admin, logger))
		})
	})

	return r
}

// ============================================================
// Operational endpoints
// ============================================================

func healthzHandler(probes []Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "fleetpay-api", Status: "healthy", LastChecked: now},
		}
		for _, p := range probes {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			start := time.Now()
			err := p.Ping(ctx)
			cancel()

			sh := domain.ServiceHealth{
				Name:        p.Name,
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				sh.Status = "degraded"
				sh.Error = err.Error()
			}
			services = append(services, sh)
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func engineMetricsHandler(metrics *observability.Metrics, c port.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live := 0
		if c != nil {
			live = len(c.Keys(r.Context()))
		}
		writeJSON(w, http.StatusOK, metrics.GetEngineSnapshot(live))
	}
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" not configured")
}
