package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/service"
)

// ============================================================
// Supervisor-scoped reads
// ============================================================

func listSupervisorsHandler(owners *service.OwnershipResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/supervisors")
		defer span.End()

		if owners == nil {
			unavailable(w, "ownership resolver")
			return
		}
		supervisors, err := owners.Supervisors(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"supervisors": supervisors, "total": len(supervisors)})
	}
}

// GET /v1/supervisors/{code}/riders?fresh=true
func ridersHandler(owners *service.OwnershipResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/supervisors/{code}/riders")
		defer span.End()

		code := chi.URLParam(r, "code")
		span.SetAttributes(attribute.String("supervisor.code", code))
		if err := authorizeSupervisor(ctx, code); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if owners == nil {
			unavailable(w, "ownership resolver")
			return
		}

		fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))
		riders, err := owners.RidersOf(ctx, code, fresh)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"supervisorCode": code,
			"riders":         riders,
			"total":          len(riders),
		})
	}
}

// GET /v1/supervisors/{code}/performance?start=&end=&top=
func performanceHandler(agg *service.AggregationService, defaultTop int, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/supervisors/{code}/performance")
		defer span.End()

		code := chi.URLParam(r, "code")
		span.SetAttributes(attribute.String("supervisor.code", code))
		if err := authorizeSupervisor(ctx, code); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if agg == nil {
			unavailable(w, "aggregation")
			return
		}

		top, err := parseTop(r, defaultTop)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		q := r.URL.Query()
		report, err := agg.PerformanceOf(ctx, code, q.Get("start"), q.Get("end"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		out := *report
		out.TopRiders = service.TopRiders(report.Riders, top)
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /v1/supervisors/{code}/debts
func debtsHandler(agg *service.AggregationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/supervisors/{code}/debts")
		defer span.End()

		code := chi.URLParam(r, "code")
		if err := authorizeSupervisor(ctx, code); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if agg == nil {
			unavailable(w, "aggregation")
			return
		}

		report, err := agg.DebtsOf(ctx, code)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// GET /v1/supervisors/{code}/advances?start=&end=
func advancesHandler(agg *service.AggregationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/supervisors/{code}/advances")
		defer span.End()

		code := chi.URLParam(r, "code")
		if err := authorizeSupervisor(ctx, code); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if agg == nil {
			unavailable(w, "aggregation")
			return
		}

		q := r.URL.Query()
		report, err := agg.AdvancesOf(ctx, code, q.Get("start"), q.Get("end"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// GET /v1/supervisors/{code}/salary?start=&end=&equipment=helmet:2,jacket:1
func salaryHandler(comp *service.CompensationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/supervisors/{code}/salary")
		defer span.End()

		code := chi.URLParam(r, "code")
		span.SetAttributes(attribute.String("supervisor.code", code))
		if err := authorizeSupervisor(ctx, code); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if comp == nil {
			unavailable(w, "compensation")
			return
		}

		q := r.URL.Query()
		equipment, err := parseEquipment(q.Get("equipment"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		breakdown, err := comp.CalculateSalary(ctx, domain.SalaryRequest{
			SupervisorCode: code,
			StartDate:      q.Get("start"),
			EndDate:        q.Get("end"),
			Equipment:      equipment,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, breakdown)
	}
}
