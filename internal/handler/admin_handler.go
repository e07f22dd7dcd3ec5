package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/service"
)

// ============================================================
// Administrative writes
// ============================================================

// PUT /v1/admin/riders/{id}
func upsertRiderHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/riders/{id}")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}

		var in service.RiderInput
		if err := decodeJSON(w, r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		id, err := pathMatchesBody("id", chi.URLParam(r, "id"), in.ID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		in.ID = id
		span.SetAttributes(attribute.String("rider.id", id))

		res, err := admin.UpsertRider(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// DELETE /v1/admin/riders/{id}
func unassignRiderHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/admin/riders/{id}")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}
		res, err := admin.UnassignRider(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// PUT /v1/admin/supervisors/{code}
func upsertSupervisorHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/supervisors/{code}")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}

		var in service.SupervisorInput
		if err := decodeJSON(w, r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		code, err := pathMatchesBody("code", chi.URLParam(r, "code"), in.Code)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		in.Code = code

		res, err := admin.UpsertSupervisor(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// DELETE /v1/admin/supervisors/{code}
func deleteSupervisorHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/admin/supervisors/{code}")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}
		res, err := admin.DeleteSupervisor(ctx, chi.URLParam(r, "code"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// PUT /v1/admin/supervisors/{code}/salary-config
func salaryConfigHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/supervisors/{code}/salary-config")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}

		var in service.SalaryConfigInput
		if err := decodeJSON(w, r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		res, err := admin.SetSalaryConfig(ctx, chi.URLParam(r, "code"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// PUT /v1/admin/supervisors/{code}/equipment-limits
func equipmentLimitsHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/supervisors/{code}/equipment-limits")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}

		var in map[string]any
		if err := decodeJSON(w, r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		res, err := admin.SetEquipmentLimits(ctx, chi.URLParam(r, "code"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// PUT /v1/admin/equipment-prices
func equipmentPricesHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/equipment-prices")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}

		var in map[string]float64
		if err := decodeJSON(w, r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		res, err := admin.SetEquipmentPrices(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// PUT /v1/admin/settings
func settingsHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/settings")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}

		var in service.SettingsInput
		if err := decodeJSON(w, r, &in); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		res, err := admin.SetSettings(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /v1/admin/performance/clear
func clearPerformanceHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/performance/clear")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}
		res, err := admin.ClearPerformance(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		logger.Info("performance table cleared", zap.Int("removed", res.Removed))
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /v1/admin/debts/import
func importDebtsHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/debts/import")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}
		rows, err := decodeLedger(w, r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("rows", len(rows)))

		res, err := admin.ImportDebts(ctx, rows)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /v1/admin/advances/import
func importAdvancesHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/advances/import")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}
		rows, err := decodeLedger(w, r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("rows", len(rows)))

		res, err := admin.ImportAdvances(ctx, rows)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type invalidateRequest struct {
	Tags []string `json:"tags"`
}

// POST /v1/admin/cache/invalidate
// An empty body or an empty tag list clears the whole cache.
func invalidateCacheHandler(admin *service.AdminService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/cache/invalidate")
		defer span.End()

		if admin == nil {
			unavailable(w, "admin")
			return
		}

		var req invalidateRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &req); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}
		res := admin.Invalidate(ctx, req.Tags)
		logger.Info("cache invalidated",
			zap.Strings("tags", res.Tags),
			zap.Int("removed", res.Removed),
		)
		writeJSON(w, http.StatusOK, res)
	}
}

// pathMatchesBody reconciles the identifier in the URL with the one in the
// body. An empty body value takes the path value.
func pathMatchesBody(field, path, body string) (string, error) {
	path = strings.TrimSpace(path)
	body = strings.TrimSpace(body)
	if body != "" && body != path {
		return "", &domain.ErrValidation{Field: field, Message: "does not match the path"}
	}
	return path, nil
}

type ledgerImport struct {
	Rows []service.LedgerInput `json:"rows"`
}

// decodeLedger accepts either {"rows": [...]} or a bare array.
func decodeLedger(w http.ResponseWriter, r *http.Request) ([]service.LedgerInput, error) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []service.LedgerInput
		if err := dec.Decode(&rows); err != nil {
			return nil, &domain.ErrValidation{Field: "body", Message: err.Error()}
		}
		return rows, nil
	}

	var body ledgerImport
	if err := dec.Decode(&body); err != nil {
		return nil, &domain.ErrValidation{Field: "body", Message: err.Error()}
	}
	return body.Rows, nil
}
