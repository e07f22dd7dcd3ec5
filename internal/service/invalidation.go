package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/infra/observability"
	"github.com/boddenberg/fleetpay-go/internal/port"
)

// Invalidation tags. A tag matches every cache key containing it.
const (
	TagPerformance  = "performance"
	TagRiders       = "riders"
	TagDebts        = "debts"
	TagAdvances     = "advances"
	TagSupervisors  = "supervisors"
	TagCompensation = "compensation"
	TagSettings     = "settings"
)

// InvalidationCoordinator removes cache entries staled by administrative
// writes. Matching is by substring, so a tag like "S1" also removes keys of
// "S10"; over-invalidation only costs a recompute.
type InvalidationCoordinator struct {
	cache   port.Cache
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewInvalidationCoordinator creates the coordinator.
func NewInvalidationCoordinator(c port.Cache, metrics *observability.Metrics, logger *zap.Logger) *InvalidationCoordinator {
	return &InvalidationCoordinator{cache: c, metrics: metrics, logger: logger, now: time.Now}
}

// Invalidate deletes every live key containing any of tags and returns how
// many were removed. With no tags the whole cache is cleared.
func (ic *InvalidationCoordinator) Invalidate(ctx context.Context, tags ...string) int {
	return ic.invalidate(ctx, "manual", tags)
}

func (ic *InvalidationCoordinator) invalidate(ctx context.Context, trigger string, tags []string) int {
	ctx, span := tracer.Start(ctx, "Invalidation.Invalidate")
	defer span.End()

	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	span.SetAttributes(attribute.StringSlice("tags", clean))

	keys := ic.cache.Keys(ctx)
	if len(clean) == 0 {
		ic.cache.Clear(ctx)
		ic.metrics.RecordInvalidation(trigger, len(keys))
		ic.logger.Info("cache cleared", zap.String("trigger", trigger), zap.Int("removed", len(keys)))
		return len(keys)
	}

	removed := 0
	for _, key := range keys {
		for _, tag := range clean {
			if strings.Contains(key, tag) {
				ic.cache.Delete(ctx, key)
				removed++
				break
			}
		}
	}
	ic.metrics.RecordInvalidation(trigger, removed)
	ic.logger.Info("cache invalidated",
		zap.String("trigger", trigger),
		zap.Strings("tags", clean),
		zap.Int("removed", removed),
	)
	return removed
}

// Handle stamps a mutation event and invalidates the tags it stales.
func (ic *InvalidationCoordinator) Handle(ctx context.Context, ev domain.MutationEvent) domain.InvalidationResult {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = ic.now().UTC()
	}

	tags := TagsFor(ev)
	ic.logger.Info("mutation event",
		zap.String("event_id", ev.ID),
		zap.String("kind", string(ev.Kind)),
		zap.Strings("supervisors", ev.SupervisorCodes),
	)
	// An event that maps to no tag must not wipe the cache.
	removed := 0
	if len(tags) > 0 {
		removed = ic.invalidate(ctx, string(ev.Kind), tags)
	}
	return domain.InvalidationResult{EventID: ev.ID, Tags: tags, Removed: removed}
}

// TagsFor maps a mutation to the tags it stales.
func TagsFor(ev domain.MutationEvent) []string {
	var tags []string
	switch ev.Kind {
	case domain.MutationPerformanceCleared:
		tags = []string{TagPerformance}
	case domain.MutationRiderUpserted, domain.MutationRiderUnassigned:
		// Reports of the affected supervisors embed rider membership.
		tags = []string{TagRiders}
		tags = append(tags, ev.SupervisorCodes...)
	case domain.MutationSupervisorUpserted, domain.MutationSupervisorDeleted:
		tags = []string{TagSupervisors}
		tags = append(tags, ev.SupervisorCodes...)
	case domain.MutationDebtsImported:
		tags = []string{TagDebts}
	case domain.MutationAdvancesImported:
		tags = []string{TagAdvances}
	case domain.MutationCompensationSet:
		tags = []string{TagCompensation}
		tags = append(tags, ev.SupervisorCodes...)
	case domain.MutationSettingsSet:
		tags = []string{TagSettings}
	}

	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
