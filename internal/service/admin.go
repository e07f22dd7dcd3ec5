package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/boddenberg/fleetpay-go/internal/dateparse"
	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/formula"
	"github.com/boddenberg/fleetpay-go/internal/port"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// RiderInput is the body of a rider upsert.
type RiderInput struct {
	ID             string `json:"id" validate:"required,max=64"`
	Name           string `json:"name" validate:"required,max=128"`
	Region         string `json:"region" validate:"max=64"`
	SupervisorCode string `json:"supervisorCode" validate:"max=64"`
	Phone          string `json:"phone" validate:"max=32"`
	JoinDate       string `json:"joinDate"`
	Status         string `json:"status" validate:"max=32"`
}

// SupervisorInput is the body of a supervisor upsert.
type SupervisorInput struct {
	Code   string `json:"code" validate:"required,max=64"`
	Name   string `json:"name" validate:"required,max=128"`
	Region string `json:"region" validate:"max=64"`
	Phone  string `json:"phone" validate:"max=32"`
}

// LedgerInput is one debt or advance row of an import.
type LedgerInput struct {
	RiderID string  `json:"riderId" validate:"required,max=64"`
	Amount  float64 `json:"amount" validate:"gte=0"`
	Date    string  `json:"date"`
	Note    string  `json:"note" validate:"max=256"`
}

// SalaryConfigInput is the body of a salary configuration write.
type SalaryConfigInput struct {
	SalaryType        string  `json:"salaryType" validate:"required,oneof=fixed commission custom legacy"`
	SalaryAmount      float64 `json:"salaryAmount" validate:"gte=0"`
	CommissionFormula string  `json:"commissionFormula" validate:"required_if=SalaryType commission,max=512"`
	Bonus             float64 `json:"bonus" validate:"gte=0"`
}

// SettingsInput is the body of a policy settings write.
type SettingsInput struct {
	SecurityCost              float64 `json:"securityCost" validate:"gte=0"`
	LegacyOrderRate           float64 `json:"legacyOrderRate" validate:"gte=0"`
	LegacyBonusMultiplier     float64 `json:"legacyBonusMultiplier" validate:"gte=0"`
	LegacyAcceptanceThreshold float64 `json:"legacyAcceptanceThreshold" validate:"gte=0,lte=100"`
}

// AdminService is the administrative write path. Every write goes through
// the rows provider or the config store and then fires the invalidation
// coordinator with the matching mutation event.
type AdminService struct {
	rows   port.RowsProvider
	store  port.ConfigStore
	owners *OwnershipResolver
	coord  *InvalidationCoordinator
	logger *zap.Logger

	// Table rewrites are read-modify-write.
	mu sync.Mutex
}

// NewAdminService creates the administrative write path.
func NewAdminService(
	rows port.RowsProvider,
	store port.ConfigStore,
	owners *OwnershipResolver,
	coord *InvalidationCoordinator,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{
		rows:   rows,
		store:  store,
		owners: owners,
		coord:  coord,
		logger: logger,
	}
}

// UpsertRider inserts or replaces a rider row keyed by ID. A reassignment
// stales the views of both the previous and the new supervisor.
func (a *AdminService) UpsertRider(ctx context.Context, in RiderInput) (domain.InvalidationResult, error) {
	in = trimRider(in)
	if err := validateStruct(in); err != nil {
		return domain.InvalidationResult{}, err
	}
	if in.JoinDate != "" {
		d, ok := dateparse.Normalize(in.JoinDate)
		if !ok {
			return domain.InvalidationResult{}, &domain.ErrValidation{Field: "joinDate", Message: "is not a recognizable date"}
		}
		in.JoinDate = d
	}

	ctx, span := tracer.Start(ctx, "Admin.UpsertRider")
	defer span.End()
	span.SetAttributes(attribute.String("rider.id", in.ID))

	a.mu.Lock()
	defer a.mu.Unlock()

	riders, err := a.owners.AllRiders(ctx)
	if err != nil {
		return domain.InvalidationResult{}, err
	}

	rider := domain.Rider(in)
	codes := []string{in.SupervisorCode}
	replaced := false
	for i := range riders {
		if riders[i].ID == in.ID {
			codes = append(codes, riders[i].SupervisorCode)
			riders[i] = rider
			replaced = true
			break
		}
	}
	if !replaced {
		riders = append(riders, rider)
	}

	if err := a.rows.WriteRows(ctx, sheet.TableRiders, sheet.EncodeRiders(riders)); err != nil {
		return domain.InvalidationResult{}, fmt.Errorf("writing riders: %w", err)
	}
	a.logger.Info("rider upserted", zap.String("rider_id", in.ID), zap.Bool("replaced", replaced))
	return a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationRiderUpserted, SupervisorCodes: codes}), nil
}

// UnassignRider clears the rider's supervisor field and keeps the row.
func (a *AdminService) UnassignRider(ctx context.Context, riderID string) (domain.InvalidationResult, error) {
	id := strings.TrimSpace(riderID)
	if id == "" {
		return domain.InvalidationResult{}, &domain.ErrValidation{Field: "id", Message: "is required"}
	}

	ctx, span := tracer.Start(ctx, "Admin.UnassignRider")
	defer span.End()
	span.SetAttributes(attribute.String("rider.id", id))

	a.mu.Lock()
	defer a.mu.Unlock()

	riders, err := a.owners.AllRiders(ctx)
	if err != nil {
		return domain.InvalidationResult{}, err
	}

	idx := -1
	for i := range riders {
		if riders[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.InvalidationResult{}, &domain.ErrNotFound{Resource: "rider", ID: id}
	}

	previous := riders[idx].SupervisorCode
	riders[idx].SupervisorCode = ""
	if err := a.rows.WriteRows(ctx, sheet.TableRiders, sheet.EncodeRiders(riders)); err != nil {
		return domain.InvalidationResult{}, fmt.Errorf("writing riders: %w", err)
	}
	a.logger.Info("rider unassigned", zap.String("rider_id", id), zap.String("previous_supervisor", previous))
	return a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationRiderUnassigned, SupervisorCodes: []string{previous}}), nil
}

// UpsertSupervisor inserts or replaces a supervisor row keyed by code.
func (a *AdminService) UpsertSupervisor(ctx context.Context, in SupervisorInput) (domain.InvalidationResult, error) {
	in = SupervisorInput{
		Code:   strings.TrimSpace(in.Code),
		Name:   strings.TrimSpace(in.Name),
		Region: strings.TrimSpace(in.Region),
		Phone:  strings.TrimSpace(in.Phone),
	}
	if err := validateStruct(in); err != nil {
		return domain.InvalidationResult{}, err
	}

	ctx, span := tracer.Start(ctx, "Admin.UpsertSupervisor")
	defer span.End()
	span.SetAttributes(attribute.String("supervisor.code", in.Code))

	a.mu.Lock()
	defer a.mu.Unlock()

	supervisors, err := a.owners.readSupervisors(ctx)
	if err != nil {
		return domain.InvalidationResult{}, err
	}
	sup := domain.Supervisor(in)
	replaced := false
	for i := range supervisors {
		if supervisors[i].Code == in.Code {
			supervisors[i] = sup
			replaced = true
			break
		}
	}
	if !replaced {
		supervisors = append(supervisors, sup)
	}

	if err := a.rows.WriteRows(ctx, sheet.TableSupervisors, sheet.EncodeSupervisors(supervisors)); err != nil {
		return domain.InvalidationResult{}, fmt.Errorf("writing supervisors: %w", err)
	}
	a.logger.Info("supervisor upserted", zap.String("code", in.Code), zap.Bool("replaced", replaced))
	return a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationSupervisorUpserted, SupervisorCodes: []string{in.Code}}), nil
}

// DeleteSupervisor removes the supervisor row, unassigns its riders and
// drops its compensation configuration. Every step is attempted; failures
// are combined.
func (a *AdminService) DeleteSupervisor(ctx context.Context, code string) (domain.InvalidationResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.InvalidationResult{}, &domain.ErrValidation{Field: "code", Message: "is required"}
	}

	ctx, span := tracer.Start(ctx, "Admin.DeleteSupervisor")
	defer span.End()
	span.SetAttributes(attribute.String("supervisor.code", code))

	a.mu.Lock()
	defer a.mu.Unlock()

	supervisors, err := a.owners.readSupervisors(ctx)
	if err != nil {
		return domain.InvalidationResult{}, err
	}
	riders, err := a.owners.AllRiders(ctx)
	if err != nil {
		return domain.InvalidationResult{}, err
	}

	kept := make([]domain.Supervisor, 0, len(supervisors))
	for _, s := range supervisors {
		if s.Code != code {
			kept = append(kept, s)
		}
	}
	unassigned := 0
	for i := range riders {
		if riders[i].SupervisorCode == code {
			riders[i].SupervisorCode = ""
			unassigned++
		}
	}
	if len(kept) == len(supervisors) && unassigned == 0 {
		return domain.InvalidationResult{}, &domain.ErrNotFound{Resource: "supervisor", ID: code}
	}

	var errs error
	if len(kept) != len(supervisors) {
		if err := a.rows.WriteRows(ctx, sheet.TableSupervisors, sheet.EncodeSupervisors(kept)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("writing supervisors: %w", err))
		}
	}
	if unassigned > 0 {
		if err := a.rows.WriteRows(ctx, sheet.TableRiders, sheet.EncodeRiders(riders)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("unassigning riders: %w", err))
		}
	}
	if err := a.store.DeleteSupervisorConfig(ctx, code); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("deleting salary config: %w", err))
	}

	// Partial writes still stale the cache.
	result := a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationSupervisorDeleted, SupervisorCodes: []string{code}})
	if errs != nil {
		a.logger.Error("supervisor delete incomplete", zap.String("code", code), zap.Error(errs))
		return result, errs
	}
	a.logger.Info("supervisor deleted", zap.String("code", code), zap.Int("riders_unassigned", unassigned))
	return result, nil
}

// ClearPerformance empties the performance table, keeping its header.
func (a *AdminService) ClearPerformance(ctx context.Context) (domain.InvalidationResult, error) {
	ctx, span := tracer.Start(ctx, "Admin.ClearPerformance")
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rows.WriteRows(ctx, sheet.TablePerformance, sheet.HeaderOnly(sheet.PerformanceSchema)); err != nil {
		return domain.InvalidationResult{}, fmt.Errorf("clearing performance: %w", err)
	}
	a.logger.Info("performance table cleared")
	return a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationPerformanceCleared}), nil
}

// ImportDebts appends debt rows to the debts table.
func (a *AdminService) ImportDebts(ctx context.Context, rows []LedgerInput) (domain.InvalidationResult, error) {
	entries, err := validateLedger(rows)
	if err != nil {
		return domain.InvalidationResult{}, err
	}

	ctx, span := tracer.Start(ctx, "Admin.ImportDebts")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(entries)))

	debts := make([]domain.DebtRecord, len(entries))
	for i, e := range entries {
		debts[i] = domain.DebtRecord(e)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.rows.AppendRows(ctx, sheet.TableDebts, sheet.EncodeDebts(debts)); err != nil {
		return domain.InvalidationResult{}, fmt.Errorf("appending debts: %w", err)
	}
	a.logger.Info("debts imported", zap.Int("rows", len(debts)))
	return a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationDebtsImported}), nil
}

// ImportAdvances appends advance rows to the advances table.
func (a *AdminService) ImportAdvances(ctx context.Context, rows []LedgerInput) (domain.InvalidationResult, error) {
	entries, err := validateLedger(rows)
	if err != nil {
		return domain.InvalidationResult{}, err
	}

	ctx, span := tracer.Start(ctx, "Admin.ImportAdvances")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(entries)))

	advances := make([]domain.AdvanceRecord, len(entries))
	for i, e := range entries {
		advances[i] = domain.AdvanceRecord(e)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.rows.AppendRows(ctx, sheet.TableAdvances, sheet.EncodeAdvances(advances)); err != nil {
		return domain.InvalidationResult{}, fmt.Errorf("appending advances: %w", err)
	}
	a.logger.Info("advances imported", zap.Int("rows", len(advances)))
	return a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationAdvancesImported}), nil
}

// SetSalaryConfig validates and stores a supervisor's compensation model.
// A commission formula must compile.
func (a *AdminService) SetSalaryConfig(ctx context.Context, code string, in SalaryConfigInput) (domain.InvalidationResult, error) {
	code = strings.TrimSpace(code)
	in.SalaryType = strings.ToLower(strings.TrimSpace(in.SalaryType))
	in.CommissionFormula = strings.TrimSpace(in.CommissionFormula)

	var errs error
	if code == "" {
		errs = multierr.Append(errs, &domain.ErrValidation{Field: "supervisorCode", Message: "is required"})
	}
	errs = multierr.Append(errs, validateStruct(in))
	if in.SalaryType == string(domain.ModelCommission) && in.CommissionFormula != "" {
		if _, err := formula.Compile(in.CommissionFormula); err != nil {
			errs = multierr.Append(errs, &domain.ErrValidation{Field: "commissionFormula", Message: err.Error()})
		}
	}
	if errs != nil {
		return domain.InvalidationResult{}, errs
	}

	ctx, span := tracer.Start(ctx, "Admin.SetSalaryConfig")
	defer span.End()
	span.SetAttributes(attribute.String("supervisor.code", code), attribute.String("model", in.SalaryType))

	cfg := &domain.SalaryConfig{
		SupervisorCode:    code,
		Model:             domain.CompensationModel(in.SalaryType),
		Amount:            decimal.NewFromFloat(in.SalaryAmount),
		CommissionFormula: in.CommissionFormula,
		Bonus:             decimal.NewFromFloat(in.Bonus),
	}
	if err := a.store.SaveSalaryConfig(ctx, cfg); err != nil {
		return domain.InvalidationResult{}, err
	}
	a.logger.Info("salary config set", zap.String("code", code), zap.String("model", in.SalaryType))
	return a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationCompensationSet, SupervisorCodes: []string{code}}), nil
}

// SetEquipmentLimits merges the given caps into the supervisor's limits.
// Unknown kinds reject the request. A negative or non-numeric quantity keeps
// the stored cap (0 when unset) and is reported as a warning.
func (a *AdminService) SetEquipmentLimits(ctx context.Context, code string, in map[string]any) (domain.InvalidationResult, error) {
	code = strings.TrimSpace(code)
	var errs error
	if code == "" {
		errs = multierr.Append(errs, &domain.ErrValidation{Field: "supervisorCode", Message: "is required"})
	}
	if len(in) == 0 {
		errs = multierr.Append(errs, &domain.ErrValidation{Field: "limits", Message: "must not be empty"})
	}

	update := make(domain.EquipmentLimits, len(in))
	var ignored []domain.EquipmentKind
	for name, raw := range in {
		kind, ok := domain.ParseEquipmentKind(name)
		if !ok {
			errs = multierr.Append(errs, &domain.ErrValidation{Field: name, Message: "unknown equipment kind"})
			continue
		}
		qty, ok := limitQuantity(raw)
		if !ok {
			ignored = append(ignored, kind)
			continue
		}
		update[kind] = qty
	}
	if errs != nil {
		return domain.InvalidationResult{}, errs
	}

	ctx, span := tracer.Start(ctx, "Admin.SetEquipmentLimits")
	defer span.End()
	span.SetAttributes(attribute.String("supervisor.code", code))

	current, err := a.store.GetEquipmentLimits(ctx, code)
	if err != nil {
		return domain.InvalidationResult{}, err
	}
	merged := current.Normalized()
	for k, v := range update {
		merged[k] = v
	}

	sort.Slice(ignored, func(i, j int) bool { return ignored[i] < ignored[j] })
	warnings := make([]string, 0, len(ignored))
	for _, kind := range ignored {
		warnings = append(warnings, fmt.Sprintf("%s: invalid quantity ignored, keeping %d", kind, merged.Limit(kind)))
	}

	if err := a.store.SaveEquipmentLimits(ctx, code, merged); err != nil {
		return domain.InvalidationResult{}, err
	}
	a.logger.Info("equipment limits set",
		zap.String("code", code),
		zap.Int("kinds", len(update)),
		zap.Int("ignored", len(ignored)),
	)
	res := a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationCompensationSet, SupervisorCodes: []string{code}})
	if len(warnings) > 0 {
		res.Warnings = warnings
	}
	return res, nil
}

// limitQuantity accepts whole non-negative numbers, including numeric strings.
func limitQuantity(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n >= 0
	case float64:
		if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 || i > math.MaxInt32 {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || i < 0 {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// SetEquipmentPrices stores unit prices. Prices are global, so the settings
// view is staled.
func (a *AdminService) SetEquipmentPrices(ctx context.Context, in map[string]float64) (domain.InvalidationResult, error) {
	var errs error
	if len(in) == 0 {
		errs = multierr.Append(errs, &domain.ErrValidation{Field: "prices", Message: "must not be empty"})
	}
	prices := make(domain.EquipmentPrices, len(in))
	for name, price := range in {
		kind, ok := domain.ParseEquipmentKind(name)
		if !ok {
			errs = multierr.Append(errs, &domain.ErrValidation{Field: name, Message: "unknown equipment kind"})
			continue
		}
		if price < 0 {
			errs = multierr.Append(errs, &domain.ErrValidation{Field: name, Message: "must not be negative"})
			continue
		}
		prices[kind] = decimal.NewFromFloat(price)
	}
	if errs != nil {
		return domain.InvalidationResult{}, errs
	}

	ctx, span := tracer.Start(ctx, "Admin.SetEquipmentPrices")
	defer span.End()

	if err := a.store.SaveEquipmentPrices(ctx, prices); err != nil {
		return domain.InvalidationResult{}, err
	}
	a.logger.Info("equipment prices set", zap.Int("kinds", len(prices)))
	return a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationSettingsSet}), nil
}

// SetSettings replaces the policy settings.
func (a *AdminService) SetSettings(ctx context.Context, in SettingsInput) (domain.InvalidationResult, error) {
	if err := validateStruct(in); err != nil {
		return domain.InvalidationResult{}, err
	}

	ctx, span := tracer.Start(ctx, "Admin.SetSettings")
	defer span.End()

	s := &domain.PolicySettings{
		SecurityCost:              decimal.NewFromFloat(in.SecurityCost),
		LegacyOrderRate:           decimal.NewFromFloat(in.LegacyOrderRate),
		LegacyBonusMultiplier:     decimal.NewFromFloat(in.LegacyBonusMultiplier),
		LegacyAcceptanceThreshold: in.LegacyAcceptanceThreshold,
	}
	if err := a.store.SaveSettings(ctx, s); err != nil {
		return domain.InvalidationResult{}, err
	}
	a.logger.Info("policy settings set")
	return a.coord.Handle(ctx, domain.MutationEvent{Kind: domain.MutationSettingsSet}), nil
}

// Invalidate exposes a manual cache sweep. No tags clears everything.
func (a *AdminService) Invalidate(ctx context.Context, tags []string) domain.InvalidationResult {
	removed := a.coord.Invalidate(ctx, tags...)
	if tags == nil {
		tags = []string{}
	}
	return domain.InvalidationResult{Tags: tags, Removed: removed}
}

func trimRider(in RiderInput) RiderInput {
	return RiderInput{
		ID:             strings.TrimSpace(in.ID),
		Name:           strings.TrimSpace(in.Name),
		Region:         strings.TrimSpace(in.Region),
		SupervisorCode: strings.TrimSpace(in.SupervisorCode),
		Phone:          strings.TrimSpace(in.Phone),
		JoinDate:       strings.TrimSpace(in.JoinDate),
		Status:         strings.TrimSpace(in.Status),
	}
}

type ledgerRow struct {
	RiderID string
	Amount  float64
	Date    string
	Note    string
}

func validateLedger(rows []LedgerInput) ([]ledgerRow, error) {
	if len(rows) == 0 {
		return nil, &domain.ErrValidation{Field: "rows", Message: "must not be empty"}
	}
	var errs error
	out := make([]ledgerRow, 0, len(rows))
	for i, r := range rows {
		r.RiderID = strings.TrimSpace(r.RiderID)
		r.Note = strings.TrimSpace(r.Note)
		if err := validateStruct(r); err != nil {
			errs = multierr.Append(errs, prefixed(fmt.Sprintf("rows[%d]", i), err))
			continue
		}
		date := ""
		if strings.TrimSpace(r.Date) != "" {
			d, ok := dateparse.Normalize(r.Date)
			if !ok {
				errs = multierr.Append(errs, &domain.ErrValidation{Field: fmt.Sprintf("rows[%d].date", i), Message: "is not a recognizable date"})
				continue
			}
			date = d
		}
		out = append(out, ledgerRow{RiderID: r.RiderID, Amount: r.Amount, Date: date, Note: r.Note})
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

// validateStruct runs the struct tags and converts failures into
// domain.ErrValidation values combined with multierr.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &domain.ErrValidation{Field: "body", Message: err.Error()}
	}
	var errs error
	for _, fe := range fieldErrs {
		errs = multierr.Append(errs, &domain.ErrValidation{Field: fe.Field(), Message: validationMessage(fe)})
	}
	return errs
}

func prefixed(prefix string, err error) error {
	var out error
	for _, e := range multierr.Errors(err) {
		var ve *domain.ErrValidation
		if errors.As(e, &ve) {
			out = multierr.Append(out, &domain.ErrValidation{Field: prefix + "." + ve.Field, Message: ve.Message})
			continue
		}
		out = multierr.Append(out, e)
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}
