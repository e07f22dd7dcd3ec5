package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/infra/cache"
	"github.com/boddenberg/fleetpay-go/internal/infra/observability"
	"github.com/boddenberg/fleetpay-go/internal/port"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

var tracer = otel.Tracer("service")

// OwnershipResolver answers "which riders belong to supervisor X right now".
// Ownership is the rider's current supervisor field; there is no history.
type OwnershipResolver struct {
	rows    port.RowsProvider
	cache   port.Cache
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewOwnershipResolver creates the resolver.
func NewOwnershipResolver(rows port.RowsProvider, c port.Cache, ttl time.Duration, metrics *observability.Metrics, logger *zap.Logger) *OwnershipResolver {
	return &OwnershipResolver{
		rows:    rows,
		cache:   c,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// RidersOf returns the riders whose trimmed supervisor field equals the
// trimmed code (case-sensitive), in sheet order. fresh skips the cache
// lookup; the fresh result still replaces the cached one.
func (o *OwnershipResolver) RidersOf(ctx context.Context, supervisorCode string, fresh bool) ([]domain.Rider, error) {
	ctx, span := tracer.Start(ctx, "Ownership.RidersOf")
	defer span.End()

	code := strings.TrimSpace(supervisorCode)
	if code == "" {
		return nil, &domain.ErrValidation{Field: "supervisorCode", Message: "is required"}
	}
	span.SetAttributes(attribute.String("supervisor.code", code), attribute.Bool("fresh", fresh))

	key := ridersKey(code)
	if !fresh {
		if cached, ok := cache.GetJSON[[]domain.Rider](ctx, o.cache, key); ok {
			o.metrics.IncrCacheHit("riders")
			return cached, nil
		}
	}
	o.metrics.IncrCacheMiss("riders")

	all, err := o.AllRiders(ctx)
	if err != nil {
		return nil, err
	}

	owned := make([]domain.Rider, 0)
	for _, r := range all {
		if r.SupervisorCode == code {
			owned = append(owned, r)
		}
	}

	if err := cache.SetJSON(ctx, o.cache, key, owned, o.ttl); err != nil {
		o.logger.Warn("ownership: failed to cache riders", zap.String("supervisor", code), zap.Error(err))
	}
	return owned, nil
}

// RiderIDs is RidersOf projected to a set keyed by rider ID.
func (o *OwnershipResolver) RiderIDs(ctx context.Context, supervisorCode string, fresh bool) (map[string]domain.Rider, error) {
	riders, err := o.RidersOf(ctx, supervisorCode, fresh)
	if err != nil {
		return nil, err
	}
	set := make(map[string]domain.Rider, len(riders))
	for _, r := range riders {
		set[r.ID] = r
	}
	return set, nil
}

// AllRiders reads the whole riders table, uncached. A missing table reads
// as no riders.
func (o *OwnershipResolver) AllRiders(ctx context.Context) ([]domain.Rider, error) {
	rows, err := o.rows.ReadRows(ctx, sheet.TableRiders)
	var missing *domain.ErrTableMissing
	if errors.As(err, &missing) {
		o.logger.Warn("ownership: riders table missing")
		return nil, nil
	}
	if err != nil {
		o.metrics.IncrExternalError(o.rows.Name())
		return nil, fmt.Errorf("riders fetch: %w", err)
	}

	riders, issues := sheet.ParseRiders(rows)
	o.reportIssues(sheet.TableRiders, issues)
	return riders, nil
}

// Supervisors lists the supervisors table sorted by code.
func (o *OwnershipResolver) Supervisors(ctx context.Context) ([]domain.Supervisor, error) {
	ctx, span := tracer.Start(ctx, "Ownership.Supervisors")
	defer span.End()

	if cached, ok := cache.GetJSON[[]domain.Supervisor](ctx, o.cache, keySupervisors); ok {
		o.metrics.IncrCacheHit("supervisors")
		return cached, nil
	}
	o.metrics.IncrCacheMiss("supervisors")

	supervisors, err := o.readSupervisors(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(supervisors, func(i, j int) bool { return supervisors[i].Code < supervisors[j].Code })

	if err := cache.SetJSON(ctx, o.cache, keySupervisors, supervisors, o.ttl); err != nil {
		o.logger.Warn("ownership: failed to cache supervisors", zap.Error(err))
	}
	return supervisors, nil
}

func (o *OwnershipResolver) readSupervisors(ctx context.Context) ([]domain.Supervisor, error) {
	rows, err := o.rows.ReadRows(ctx, sheet.TableSupervisors)
	var missing *domain.ErrTableMissing
	if errors.As(err, &missing) {
		return []domain.Supervisor{}, nil
	}
	if err != nil {
		o.metrics.IncrExternalError(o.rows.Name())
		return nil, fmt.Errorf("supervisors fetch: %w", err)
	}
	supervisors, issues := sheet.ParseSupervisors(rows)
	o.reportIssues(sheet.TableSupervisors, issues)
	return supervisors, nil
}

func (o *OwnershipResolver) reportIssues(table sheet.Table, issues []sheet.RowIssue) {
	reportIssues(o.logger, o.metrics, table, issues)
}

// reportIssues logs skipped rows: one Warn with the count, details at Debug.
func reportIssues(logger *zap.Logger, metrics *observability.Metrics, table sheet.Table, issues []sheet.RowIssue) {
	if len(issues) == 0 {
		return
	}
	metrics.AddSkippedRows(string(table), len(issues))
	logger.Warn("rows skipped or defaulted",
		zap.String("table", string(table)),
		zap.Int("count", len(issues)),
	)
	for _, is := range issues {
		logger.Debug("row issue", zap.String("issue", is.String()))
	}
}
