package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/boddenberg/fleetpay-go/internal/dateparse"
	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/infra/cache"
	"github.com/boddenberg/fleetpay-go/internal/infra/observability"
	"github.com/boddenberg/fleetpay-go/internal/port"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

// AggregationTTLs are the cache lifetimes of aggregated reports.
type AggregationTTLs struct {
	Performance time.Duration
	Debts       time.Duration
}

// AggregationService produces supervisor-scoped, date-filtered reports.
type AggregationService struct {
	rows    port.RowsProvider
	owners  *OwnershipResolver
	cache   port.Cache
	ttl     AggregationTTLs
	topN    int
	metrics *observability.Metrics
	logger  *zap.Logger
	flight  singleflight.Group
}

// NewAggregationService creates the aggregation layer.
func NewAggregationService(
	rows port.RowsProvider,
	owners *OwnershipResolver,
	c port.Cache,
	ttl AggregationTTLs,
	topN int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AggregationService {
	return &AggregationService{
		rows:    rows,
		owners:  owners,
		cache:   c,
		ttl:     ttl,
		topN:    topN,
		metrics: metrics,
		logger:  logger,
	}
}

// sharedComputeTimeout bounds a deduplicated computation once it no longer
// follows any caller's context.
const sharedComputeTimeout = 30 * time.Second

// shared runs fn once per key for all concurrent callers. The computation
// runs on a context detached from the caller that started it, so one caller
// giving up does not fail the others; each caller still returns as soon as
// its own context is done.
func shared[T any](ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	ch := g.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedComputeTimeout)
		defer cancel()
		return fn(fctx)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// ValidateWindow checks the supervisor code and an inclusive YYYY-MM-DD
// window, returning the trimmed values.
func ValidateWindow(supervisorCode, start, end string) (string, string, string, error) {
	code := strings.TrimSpace(supervisorCode)
	if code == "" {
		return "", "", "", &domain.ErrValidation{Field: "supervisorCode", Message: "is required"}
	}
	s, err := dateparse.MustDate(start)
	if err != nil {
		return "", "", "", &domain.ErrValidation{Field: "start", Message: err.Error()}
	}
	e, err := dateparse.MustDate(end)
	if err != nil {
		return "", "", "", &domain.ErrValidation{Field: "end", Message: err.Error()}
	}
	if s.After(e) {
		return "", "", "", &domain.ErrValidation{Field: "start", Message: "must not be after end"}
	}
	return code, s.Format(dateparse.Layout), e.Format(dateparse.Layout), nil
}

// PerformanceOf aggregates the performance records of the supervisor's
// current riders whose date falls inside [start, end].
//
// When a collaborator fails the report comes back empty and Degraded, with a
// warning; degraded reports are not cached.
func (a *AggregationService) PerformanceOf(ctx context.Context, supervisorCode, start, end string) (*domain.PerformanceReport, error) {
	code, start, end, err := ValidateWindow(supervisorCode, start, end)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Aggregation.PerformanceOf")
	defer span.End()
	span.SetAttributes(
		attribute.String("supervisor.code", code),
		attribute.String("range.start", start),
		attribute.String("range.end", end),
	)

	began := time.Now()
	defer func() { a.metrics.RecordRequestDuration("performance", time.Since(began)) }()

	key := performanceKey(code, start, end)
	if cached, ok := cache.GetJSON[*domain.PerformanceReport](ctx, a.cache, key); ok && cached != nil {
		a.metrics.IncrCacheHit("performance")
		return cached, nil
	}
	a.metrics.IncrCacheMiss("performance")

	return shared(ctx, &a.flight, key, func(ctx context.Context) (*domain.PerformanceReport, error) {
		report, err := a.computePerformance(ctx, code, start, end)
		if err != nil {
			return nil, err
		}
		if !report.Degraded {
			if err := cache.SetJSON(ctx, a.cache, key, report, a.ttl.Performance); err != nil {
				a.logger.Warn("aggregation: failed to cache performance", zap.String("key", key), zap.Error(err))
			}
		}
		return report, nil
	})
}

func (a *AggregationService) computePerformance(ctx context.Context, code, start, end string) (*domain.PerformanceReport, error) {
	report := &domain.PerformanceReport{
		SupervisorCode: code,
		StartDate:      start,
		EndDate:        end,
		TopRiders:      []domain.RiderPerformance{},
		Riders:         []domain.RiderPerformance{},
		Records:        []domain.PerformanceRecord{},
	}

	var (
		owned map[string]domain.Rider
		raw   [][]any
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := a.owners.RiderIDs(gCtx, code, false)
		if err != nil {
			return fmt.Errorf("ownership: %w", err)
		}
		owned = ids
		return nil
	})
	g.Go(func() error {
		rows, err := a.rows.ReadRows(gCtx, sheet.TablePerformance)
		var missing *domain.ErrTableMissing
		if errors.As(err, &missing) {
			return nil
		}
		if err != nil {
			a.metrics.IncrExternalError(a.rows.Name())
			return fmt.Errorf("performance fetch: %w", err)
		}
		raw = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return a.degradePerformance(report, err), nil
	}
	if raw == nil {
		report.Warnings = append(report.Warnings, "performance table not found; totals are zero")
	}

	records, issues := sheet.ParsePerformance(raw)
	reportIssues(a.logger, a.metrics, sheet.TablePerformance, issues)
	report.SkippedRows = len(issues)

	for _, r := range owned {
		if r.IsActive() {
			report.RidersCount++
		}
	}

	scoped := make([]domain.PerformanceRecord, 0, len(records))
	for _, rec := range records {
		if !dateparse.InRange(rec.Date, start, end) {
			continue
		}
		if _, ok := owned[rec.RiderID]; !ok {
			continue
		}
		scoped = append(scoped, rec)
	}
	sort.SliceStable(scoped, func(i, j int) bool {
		if scoped[i].Date != scoped[j].Date {
			return scoped[i].Date < scoped[j].Date
		}
		return scoped[i].RiderID < scoped[j].RiderID
	})

	report.Records = scoped
	report.Totals, report.Riders = summarize(scoped, owned)
	report.TopRiders = TopRiders(report.Riders, a.topN)
	return report, nil
}

func (a *AggregationService) degradePerformance(report *domain.PerformanceReport, err error) *domain.PerformanceReport {
	a.logger.Error("aggregation: performance degraded",
		zap.String("supervisor", report.SupervisorCode),
		zap.Error(err),
	)
	a.metrics.IncrDegraded("performance")
	report.Degraded = true
	report.Warnings = append(report.Warnings, "performance data unavailable: "+err.Error())
	return report
}

type riderAcc struct {
	perf           domain.RiderPerformance
	acceptanceSum  float64
	acceptanceDays int
	dates          map[string]struct{}
}

// summarize computes window totals and per-rider summaries. The acceptance
// average covers non-absent records only. Active riders without records are
// listed with zero metrics.
func summarize(records []domain.PerformanceRecord, owned map[string]domain.Rider) (domain.PerformanceTotals, []domain.RiderPerformance) {
	var (
		totals        domain.PerformanceTotals
		acceptanceSum float64
		acceptanceN   int
		activeDates   = map[string]struct{}{}
		byRider       = map[string]*riderAcc{}
	)

	for _, rec := range records {
		totals.Records++
		totals.Orders += rec.Orders
		totals.Hours += rec.Hours
		totals.BreakTotal += rec.BreakMinutes
		totals.DelayTotal += rec.DelayMinutes
		totals.WalletTotal += rec.Wallet

		acc, ok := byRider[rec.RiderID]
		if !ok {
			name := rec.RiderName
			if r, found := owned[rec.RiderID]; found && r.Name != "" {
				name = r.Name
			}
			acc = &riderAcc{
				perf:  domain.RiderPerformance{RiderID: rec.RiderID, RiderName: name},
				dates: map[string]struct{}{},
			}
			byRider[rec.RiderID] = acc
		}
		acc.perf.Orders += rec.Orders
		acc.perf.Hours += rec.Hours
		acc.dates[rec.Date] = struct{}{}

		if rec.IsAbsent() {
			totals.AbsenceCount++
			acc.perf.AbsenceCount++
			continue
		}
		activeDates[rec.Date] = struct{}{}
		acceptanceSum += rec.Acceptance
		acceptanceN++
		acc.acceptanceSum += rec.Acceptance
		acc.acceptanceDays++
	}

	totals.ActiveDays = len(activeDates)
	if acceptanceN > 0 {
		totals.AcceptanceAverage = round2(acceptanceSum / float64(acceptanceN))
	}
	totals.Hours = round2(totals.Hours)
	totals.BreakTotal = round2(totals.BreakTotal)
	totals.DelayTotal = round2(totals.DelayTotal)
	totals.WalletTotal = round2(totals.WalletTotal)

	for id, r := range owned {
		if _, seen := byRider[id]; !seen && r.IsActive() {
			byRider[id] = &riderAcc{perf: domain.RiderPerformance{RiderID: id, RiderName: r.Name}}
		}
	}

	riders := make([]domain.RiderPerformance, 0, len(byRider))
	for _, acc := range byRider {
		p := acc.perf
		p.Days = len(acc.dates)
		p.Hours = round2(p.Hours)
		if acc.acceptanceDays > 0 {
			p.AcceptanceAverage = round2(acc.acceptanceSum / float64(acc.acceptanceDays))
		}
		riders = append(riders, p)
	}
	sort.Slice(riders, func(i, j int) bool {
		if riders[i].Orders != riders[j].Orders {
			return riders[i].Orders > riders[j].Orders
		}
		return riders[i].RiderID < riders[j].RiderID
	})
	return totals, riders
}

// TopRiders returns the first n riders of an orders-descending list.
func TopRiders(riders []domain.RiderPerformance, n int) []domain.RiderPerformance {
	if n <= 0 || len(riders) == 0 {
		return []domain.RiderPerformance{}
	}
	if n > len(riders) {
		n = len(riders)
	}
	out := make([]domain.RiderPerformance, n)
	copy(out, riders[:n])
	return out
}

// DebtsOf sums the debts-sheet entries of the supervisor's current riders.
// Debts carry no period: every entry counts.
func (a *AggregationService) DebtsOf(ctx context.Context, supervisorCode string) (*domain.DebtReport, error) {
	code := strings.TrimSpace(supervisorCode)
	if code == "" {
		return nil, &domain.ErrValidation{Field: "supervisorCode", Message: "is required"}
	}

	ctx, span := tracer.Start(ctx, "Aggregation.DebtsOf")
	defer span.End()
	span.SetAttributes(attribute.String("supervisor.code", code))

	key := debtsKey(code)
	if cached, ok := cache.GetJSON[*domain.DebtReport](ctx, a.cache, key); ok && cached != nil {
		a.metrics.IncrCacheHit("debts")
		return cached, nil
	}
	a.metrics.IncrCacheMiss("debts")

	return shared(ctx, &a.flight, key, func(ctx context.Context) (*domain.DebtReport, error) {
		report, err := a.computeDebts(ctx, code)
		if err != nil {
			return nil, err
		}
		if !report.Degraded {
			if err := cache.SetJSON(ctx, a.cache, key, report, a.ttl.Debts); err != nil {
				a.logger.Warn("aggregation: failed to cache debts", zap.String("key", key), zap.Error(err))
			}
		}
		return report, nil
	})
}

func (a *AggregationService) computeDebts(ctx context.Context, code string) (*domain.DebtReport, error) {
	report := &domain.DebtReport{
		SupervisorCode: code,
		Riders:         []domain.RiderDebt{},
		Records:        []domain.DebtRecord{},
	}

	owned, raw, missing, err := a.ownedAndTable(ctx, code, sheet.TableDebts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Error("aggregation: debts degraded", zap.String("supervisor", code), zap.Error(err))
		a.metrics.IncrDegraded("debts")
		report.Degraded = true
		report.Warnings = append(report.Warnings, "debt data unavailable: "+err.Error())
		return report, nil
	}
	if missing {
		report.Warnings = append(report.Warnings, "debts table not found; total is zero")
		return report, nil
	}

	debts, issues := sheet.ParseDebts(raw)
	reportIssues(a.logger, a.metrics, sheet.TableDebts, issues)

	byRider := map[string]*domain.RiderDebt{}
	var total float64
	for _, d := range debts {
		r, ok := owned[d.RiderID]
		if !ok {
			continue
		}
		report.Records = append(report.Records, d)
		total += d.Amount

		acc, ok := byRider[d.RiderID]
		if !ok {
			acc = &domain.RiderDebt{RiderID: d.RiderID, RiderName: r.Name}
			byRider[d.RiderID] = acc
		}
		acc.Amount += d.Amount
		acc.Entries++
	}

	for _, acc := range byRider {
		acc.Amount = round2(acc.Amount)
		report.Riders = append(report.Riders, *acc)
	}
	sort.Slice(report.Riders, func(i, j int) bool {
		if report.Riders[i].Amount != report.Riders[j].Amount {
			return report.Riders[i].Amount > report.Riders[j].Amount
		}
		return report.Riders[i].RiderID < report.Riders[j].RiderID
	})
	report.Total = round2(total)
	return report, nil
}

// AdvancesOf sums the advances of the supervisor's current riders dated
// inside [start, end]. Undated advances cannot be placed in a period and are
// left out with a warning.
func (a *AggregationService) AdvancesOf(ctx context.Context, supervisorCode, start, end string) (*domain.AdvanceReport, error) {
	code, start, end, err := ValidateWindow(supervisorCode, start, end)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Aggregation.AdvancesOf")
	defer span.End()
	span.SetAttributes(attribute.String("supervisor.code", code))

	key := advancesKey(code, start, end)
	if cached, ok := cache.GetJSON[*domain.AdvanceReport](ctx, a.cache, key); ok && cached != nil {
		a.metrics.IncrCacheHit("advances")
		return cached, nil
	}
	a.metrics.IncrCacheMiss("advances")

	return shared(ctx, &a.flight, key, func(ctx context.Context) (*domain.AdvanceReport, error) {
		report, err := a.computeAdvances(ctx, code, start, end)
		if err != nil {
			return nil, err
		}
		if !report.Degraded {
			if err := cache.SetJSON(ctx, a.cache, key, report, a.ttl.Debts); err != nil {
				a.logger.Warn("aggregation: failed to cache advances", zap.String("key", key), zap.Error(err))
			}
		}
		return report, nil
	})
}

func (a *AggregationService) computeAdvances(ctx context.Context, code, start, end string) (*domain.AdvanceReport, error) {
	report := &domain.AdvanceReport{
		SupervisorCode: code,
		StartDate:      start,
		EndDate:        end,
		Records:        []domain.AdvanceRecord{},
	}

	owned, raw, missing, err := a.ownedAndTable(ctx, code, sheet.TableAdvances)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Error("aggregation: advances degraded", zap.String("supervisor", code), zap.Error(err))
		a.metrics.IncrDegraded("advances")
		report.Degraded = true
		report.Warnings = append(report.Warnings, "advance data unavailable: "+err.Error())
		return report, nil
	}
	if missing {
		report.Warnings = append(report.Warnings, "advances table not found; total is zero")
		return report, nil
	}

	advances, issues := sheet.ParseAdvances(raw)
	reportIssues(a.logger, a.metrics, sheet.TableAdvances, issues)

	var (
		total   float64
		undated int
	)
	for _, adv := range advances {
		if _, ok := owned[adv.RiderID]; !ok {
			continue
		}
		if adv.Date == "" {
			undated++
			continue
		}
		if !dateparse.InRange(adv.Date, start, end) {
			continue
		}
		report.Records = append(report.Records, adv)
		total += adv.Amount
	}
	if undated > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d undated advance(s) excluded", undated))
	}
	report.Total = round2(total)
	return report, nil
}

// ownedAndTable resolves ownership and reads a table concurrently. missing
// reports an absent table, which is not an error.
func (a *AggregationService) ownedAndTable(ctx context.Context, code string, table sheet.Table) (map[string]domain.Rider, [][]any, bool, error) {
	var (
		owned   map[string]domain.Rider
		raw     [][]any
		missing bool
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := a.owners.RiderIDs(gCtx, code, false)
		if err != nil {
			return fmt.Errorf("ownership: %w", err)
		}
		owned = ids
		return nil
	})
	g.Go(func() error {
		rows, err := a.rows.ReadRows(gCtx, table)
		var tm *domain.ErrTableMissing
		if errors.As(err, &tm) {
			missing = true
			return nil
		}
		if err != nil {
			a.metrics.IncrExternalError(a.rows.Name())
			return fmt.Errorf("%s fetch: %w", table, err)
		}
		raw = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, false, err
	}
	return owned, raw, missing, nil
}
