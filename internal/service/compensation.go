package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/formula"
	"github.com/boddenberg/fleetpay-go/internal/infra/cache"
	"github.com/boddenberg/fleetpay-go/internal/infra/observability"
	"github.com/boddenberg/fleetpay-go/internal/port"
)

// configBundle is the cached per-supervisor slice of the config store.
type configBundle struct {
	Config domain.SalaryConfig    `json:"config"`
	Limits domain.EquipmentLimits `json:"limits"`
}

// settingsBundle is the cached global slice of the config store.
type settingsBundle struct {
	Settings domain.PolicySettings  `json:"settings"`
	Prices   domain.EquipmentPrices `json:"prices"`
}

// CompensationService computes salary breakdowns. Nothing it computes is
// persisted.
type CompensationService struct {
	store     port.ConfigStore
	agg       *AggregationService
	cache     port.Cache
	configTTL time.Duration
	defaults  domain.PolicySettings
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewCompensationService creates the compensation engine. defaults are used
// when the config store cannot be read.
func NewCompensationService(
	store port.ConfigStore,
	agg *AggregationService,
	c port.Cache,
	configTTL time.Duration,
	defaults domain.PolicySettings,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CompensationService {
	return &CompensationService{
		store:     store,
		agg:       agg,
		cache:     c,
		configTTL: configTTL,
		defaults:  defaults,
		metrics:   metrics,
		logger:    logger,
	}
}

// CalculateSalary produces the breakdown for one supervisor and window.
// Only validation and cancellation are errors; collaborator failures
// degrade the breakdown and add warnings.
func (s *CompensationService) CalculateSalary(ctx context.Context, req domain.SalaryRequest) (*domain.SalaryBreakdown, error) {
	code, start, end, err := ValidateWindow(req.SupervisorCode, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Compensation.CalculateSalary")
	defer span.End()
	span.SetAttributes(
		attribute.String("supervisor.code", code),
		attribute.String("range.start", start),
		attribute.String("range.end", end),
	)

	began := time.Now()
	defer func() { s.metrics.RecordRequestDuration("salary", time.Since(began)) }()

	var (
		cfgB     *configBundle
		setB     *settingsBundle
		cfgErr   error
		setErr   error
		perf     *domain.PerformanceReport
		debts    *domain.DebtReport
		advances *domain.AdvanceReport
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfgB, cfgErr = s.loadConfig(gCtx, code)
		return nil
	})
	g.Go(func() error {
		setB, setErr = s.loadSettings(gCtx)
		return nil
	})
	g.Go(func() error {
		var err error
		perf, err = s.agg.PerformanceOf(gCtx, code, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		debts, err = s.agg.DebtsOf(gCtx, code)
		return err
	})
	g.Go(func() error {
		var err error
		advances, err = s.agg.AdvancesOf(gCtx, code, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := &domain.SalaryBreakdown{
		SupervisorCode: code,
		StartDate:      start,
		EndDate:        end,
		Equipment:      []domain.EquipmentDeduction{},
		Warnings:       []string{},
	}

	if cfgErr != nil {
		s.logger.Error("compensation: salary config unavailable", zap.String("supervisor", code), zap.Error(cfgErr))
		b.Degraded = true
		b.Warnings = append(b.Warnings, "salary configuration unavailable; legacy defaults applied")
		cfgB = &configBundle{
			Config: domain.SalaryConfig{SupervisorCode: code, Model: domain.ModelLegacy},
			Limits: domain.EquipmentLimits{}.Normalized(),
		}
	}
	if setErr != nil {
		s.logger.Error("compensation: settings unavailable", zap.Error(setErr))
		b.Degraded = true
		b.Warnings = append(b.Warnings, "policy settings unavailable; defaults applied")
		setB = &settingsBundle{Settings: s.defaults, Prices: domain.EquipmentPrices{}}
	}

	for _, deg := range []struct {
		degraded bool
		warnings []string
	}{
		{perf.Degraded, perf.Warnings},
		{debts.Degraded, debts.Warnings},
		{advances.Degraded, advances.Warnings},
	} {
		b.Degraded = b.Degraded || deg.degraded
		b.Warnings = append(b.Warnings, deg.warnings...)
	}

	cfg := cfgB.Config
	settings := setB.Settings

	model := domain.ParseCompensationModel(string(cfg.Model))
	if cfg.Model != "" && !cfg.Model.IsKnown() {
		b.Warnings = append(b.Warnings, fmt.Sprintf("unknown salary type %q; legacy rule applied", cfg.Model))
	}
	b.CompensationModel = model

	b.TotalOrders = perf.Totals.Orders
	b.TotalHours = perf.Totals.Hours
	b.RidersCount = perf.RidersCount

	base, commission, rate, multiplier, warns := s.pay(model, cfg, settings, perf)
	b.Warnings = append(b.Warnings, warns...)
	b.BaseSalary = base.Round(2)
	b.Commission = commission.Round(2)
	b.CommissionRate = rate
	b.Multiplier = multiplier
	b.Bonus = cfg.Bonus.Round(2)
	b.TotalSalary = b.BaseSalary.Add(b.Commission).Add(b.Bonus)

	lines, equipmentCost, capped := EquipmentCost(req.Equipment, cfgB.Limits, setB.Prices)
	b.Equipment = lines
	b.EquipmentCost = equipmentCost.Round(2)
	for _, kind := range capped {
		b.Warnings = append(b.Warnings, fmt.Sprintf("%s quantity capped at limit %d", kind, cfgB.Limits.Limit(kind)))
	}

	b.Debts = decimal.NewFromFloat(debts.Total).Add(decimal.NewFromFloat(perf.Totals.WalletTotal)).Round(2)
	b.Advances = decimal.NewFromFloat(advances.Total).Round(2)
	b.SecurityCost = settings.SecurityCost.Round(2)
	b.Deductions = b.Debts.Add(b.Advances).Add(b.SecurityCost).Add(b.EquipmentCost)

	b.NetBeforeClamp = b.TotalSalary.Sub(b.Deductions)
	b.NetSalary = decimal.Max(decimal.Zero, b.NetBeforeClamp)

	s.metrics.IncrSalaryQuery(string(model))
	if b.Degraded {
		s.metrics.IncrDegraded("salary")
	}
	s.logger.Debug("compensation: salary computed",
		zap.String("supervisor", code),
		zap.String("model", string(model)),
		zap.String("net", b.NetSalary.StringFixed(2)),
		zap.Bool("degraded", b.Degraded),
	)
	return b, nil
}

// pay derives base and commission for the model.
func (s *CompensationService) pay(
	model domain.CompensationModel,
	cfg domain.SalaryConfig,
	settings domain.PolicySettings,
	perf *domain.PerformanceReport,
) (base, commission, rate, multiplier decimal.Decimal, warnings []string) {
	orders := decimal.NewFromInt(int64(perf.Totals.Orders))
	multiplier = decimal.NewFromInt(1)

	switch model {
	case domain.ModelFixed, domain.ModelCustom:
		return cfg.Amount, decimal.Zero, decimal.Zero, multiplier, nil

	case domain.ModelCommission:
		f, err := formula.Compile(cfg.CommissionFormula)
		if err != nil {
			s.metrics.IncrFormulaFailure()
			s.logger.Warn("compensation: malformed commission formula",
				zap.String("supervisor", cfg.SupervisorCode),
				zap.String("formula", cfg.CommissionFormula),
				zap.Error(err),
			)
			return decimal.Zero, decimal.Zero, decimal.Zero, multiplier,
				[]string{"commission formula is malformed; commission set to 0"}
		}
		if r, ok := f.Rate(); ok {
			rate = decimal.NewFromFloat(r)
		}
		value, err := f.Eval(formula.Vars{
			Orders:      float64(perf.Totals.Orders),
			Hours:       perf.Totals.Hours,
			Acceptance:  perf.Totals.AcceptanceAverage,
			RidersCount: float64(perf.RidersCount),
		})
		if err != nil {
			s.metrics.IncrFormulaFailure()
			s.logger.Warn("compensation: commission formula failed",
				zap.String("supervisor", cfg.SupervisorCode),
				zap.Error(err),
			)
			return decimal.Zero, decimal.Zero, rate, multiplier,
				[]string{"commission formula could not be evaluated; commission set to 0"}
		}
		if value < 0 {
			return decimal.Zero, decimal.Zero, rate, multiplier,
				[]string{"commission formula returned a negative value; commission set to 0"}
		}
		return decimal.Zero, decimal.NewFromFloat(value), rate, multiplier, nil

	default:
		rate = settings.LegacyOrderRate
		if perf.Totals.AcceptanceAverage >= settings.LegacyAcceptanceThreshold {
			multiplier = settings.LegacyBonusMultiplier
		}
		return cfg.Amount, orders.Mul(rate).Mul(multiplier), rate, multiplier, nil
	}
}

// EquipmentCost clamps each requested quantity to [0, limit] and prices it.
// capped lists the kinds whose request exceeded the limit.
func EquipmentCost(
	requested map[domain.EquipmentKind]int,
	limits domain.EquipmentLimits,
	prices domain.EquipmentPrices,
) (lines []domain.EquipmentDeduction, total decimal.Decimal, capped []domain.EquipmentKind) {
	lines = []domain.EquipmentDeduction{}
	total = decimal.Zero
	for _, kind := range domain.EquipmentKinds {
		qty, ok := requested[kind]
		if !ok || qty <= 0 {
			continue
		}
		limit := limits.Limit(kind)
		deducted := qty
		if deducted > limit {
			deducted = limit
			capped = append(capped, kind)
		}
		unit := prices.Price(kind)
		cost := unit.Mul(decimal.NewFromInt(int64(deducted)))
		lines = append(lines, domain.EquipmentDeduction{
			Kind:      kind,
			Requested: qty,
			Limit:     limit,
			Deducted:  deducted,
			UnitPrice: unit,
			Cost:      cost,
			Capped:    qty > limit,
		})
		total = total.Add(cost)
	}
	return lines, total, capped
}

func (s *CompensationService) loadConfig(ctx context.Context, code string) (*configBundle, error) {
	key := compensationKey(code)
	if cached, ok := cache.GetJSON[*configBundle](ctx, s.cache, key); ok && cached != nil {
		s.metrics.IncrCacheHit("compensation")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("compensation")

	cfg, err := s.store.GetSalaryConfig(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("salary config: %w", err)
	}
	limits, err := s.store.GetEquipmentLimits(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("equipment limits: %w", err)
	}

	bundle := &configBundle{Config: *cfg, Limits: limits.Normalized()}
	if err := cache.SetJSON(ctx, s.cache, key, bundle, s.configTTL); err != nil {
		s.logger.Warn("compensation: failed to cache config", zap.String("key", key), zap.Error(err))
	}
	return bundle, nil
}

func (s *CompensationService) loadSettings(ctx context.Context) (*settingsBundle, error) {
	if cached, ok := cache.GetJSON[*settingsBundle](ctx, s.cache, keySettings); ok && cached != nil {
		s.metrics.IncrCacheHit("settings")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("settings")

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	prices, err := s.store.GetEquipmentPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("equipment prices: %w", err)
	}
	if prices == nil {
		prices = domain.EquipmentPrices{}
	}

	bundle := &settingsBundle{Settings: *settings, Prices: prices}
	if err := cache.SetJSON(ctx, s.cache, keySettings, bundle, s.configTTL); err != nil {
		s.logger.Warn("compensation: failed to cache settings", zap.Error(err))
	}
	return bundle, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
