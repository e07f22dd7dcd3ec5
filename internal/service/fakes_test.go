package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/infra/cache"
	"github.com/boddenberg/fleetpay-go/internal/infra/observability"
	"github.com/boddenberg/fleetpay-go/internal/service"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

// --- Mocks ---

type fakeRows struct {
	mu      sync.Mutex
	tables  map[sheet.Table][][]any
	failOn  map[sheet.Table]error
	reads   map[sheet.Table]int
	gates   map[sheet.Table]*readGate
	writes  int
	appends int
}

// readGate parks reads of one table until released.
type readGate struct {
	entered chan struct{}
	release chan struct{}
}

func newFakeRows() *fakeRows {
	return &fakeRows{
		tables: map[sheet.Table][][]any{},
		failOn: map[sheet.Table]error{},
		reads:  map[sheet.Table]int{},
		gates:  map[sheet.Table]*readGate{},
	}
}

func (f *fakeRows) ReadRows(ctx context.Context, table sheet.Table) ([][]any, error) {
	f.mu.Lock()
	gate := f.gates[table]
	f.mu.Unlock()
	if gate != nil {
		select {
		case gate.entered <- struct{}{}:
		default:
		}
		select {
		case <-gate.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[table]++
	if err := f.failOn[table]; err != nil {
		return nil, err
	}
	rows, ok := f.tables[table]
	if !ok {
		return nil, &domain.ErrTableMissing{Table: string(table)}
	}
	return copyRows(rows), nil
}

func (f *fakeRows) WriteRows(_ context.Context, table sheet.Table, rows [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.tables[table] = copyRows(rows)
	return nil
}

func (f *fakeRows) AppendRows(_ context.Context, table sheet.Table, rows [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	existing, ok := f.tables[table]
	if !ok {
		schema, _ := sheet.SchemaFor(table)
		existing = [][]any{schema.Header()}
	}
	f.tables[table] = append(existing, copyRows(rows)...)
	return nil
}

func (f *fakeRows) Name() string { return "fake" }

func (f *fakeRows) set(table sheet.Table, rows [][]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = rows
}

func (f *fakeRows) fail(table sheet.Table, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[table] = err
}

func (f *fakeRows) hold(table sheet.Table) *readGate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &readGate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f.gates[table] = g
	return g
}

func (f *fakeRows) readCount(table sheet.Table) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[table]
}

func copyRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

type memStore struct {
	mu       sync.Mutex
	configs  map[string]domain.SalaryConfig
	limits   map[string]domain.EquipmentLimits
	prices   domain.EquipmentPrices
	settings domain.PolicySettings
	err      error
}

func newMemStore(settings domain.PolicySettings) *memStore {
	return &memStore{
		configs:  map[string]domain.SalaryConfig{},
		limits:   map[string]domain.EquipmentLimits{},
		prices:   domain.EquipmentPrices{},
		settings: settings,
	}
}

func (m *memStore) GetSalaryConfig(_ context.Context, code string) (*domain.SalaryConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if cfg, ok := m.configs[code]; ok {
		return &cfg, nil
	}
	return &domain.SalaryConfig{SupervisorCode: code, Model: domain.ModelLegacy}, nil
}

func (m *memStore) SaveSalaryConfig(_ context.Context, cfg *domain.SalaryConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.configs[cfg.SupervisorCode] = *cfg
	return nil
}

func (m *memStore) GetEquipmentLimits(_ context.Context, code string) (domain.EquipmentLimits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.limits[code].Normalized(), nil
}

func (m *memStore) SaveEquipmentLimits(_ context.Context, code string, limits domain.EquipmentLimits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.limits[code] = limits.Normalized()
	return nil
}

func (m *memStore) GetEquipmentPrices(_ context.Context) (domain.EquipmentPrices, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := domain.EquipmentPrices{}
	for k, v := range m.prices {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SaveEquipmentPrices(_ context.Context, prices domain.EquipmentPrices) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for k, v := range prices {
		m.prices[k] = v
	}
	return nil
}

func (m *memStore) GetSettings(_ context.Context) (*domain.PolicySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := m.settings
	return &s, nil
}

func (m *memStore) SaveSettings(_ context.Context, s *domain.PolicySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.settings = *s
	return nil
}

func (m *memStore) DeleteSupervisorConfig(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.configs, code)
	delete(m.limits, code)
	return nil
}

func (m *memStore) Ping(_ context.Context) error { return m.err }

// --- Fixture ---

func defaultSettings() domain.PolicySettings {
	return domain.PolicySettings{
		SecurityCost:              decimal.Zero,
		LegacyOrderRate:           decimal.NewFromInt(2),
		LegacyBonusMultiplier:     decimal.NewFromFloat(1.2),
		LegacyAcceptanceThreshold: 90,
	}
}

type fixture struct {
	rows    *fakeRows
	store   *memStore
	cache   *cache.Memory
	metrics *observability.Metrics
	owners  *service.OwnershipResolver
	agg     *service.AggregationService
	comp    *service.CompensationService
	coord   *service.InvalidationCoordinator
	admin   *service.AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rows:    newFakeRows(),
		store:   newMemStore(defaultSettings()),
		cache:   cache.New(),
		metrics: observability.NewMetrics(),
	}
	logger := zap.NewNop()
	f.owners = service.NewOwnershipResolver(f.rows, f.cache, 5*time.Minute, f.metrics, logger)
	f.agg = service.NewAggregationService(f.rows, f.owners, f.cache,
		service.AggregationTTLs{Performance: 2 * time.Minute, Debts: 2 * time.Minute}, 5, f.metrics, logger)
	f.comp = service.NewCompensationService(f.store, f.agg, f.cache, 10*time.Minute, defaultSettings(), f.metrics, logger)
	f.coord = service.NewInvalidationCoordinator(f.cache, f.metrics, logger)
	f.admin = service.NewAdminService(f.rows, f.store, f.owners, f.coord, logger)
	return f
}

func ridersTable(riders ...domain.Rider) [][]any {
	return sheet.EncodeRiders(riders)
}

// perfRow builds a performance row in canonical column order.
func perfRow(date, riderID string, orders int, hours, acceptance float64) []any {
	return []any{date, riderID, "", hours, 0.0, 0.0, "", orders, acceptance, 0.0}
}

func perfTable(rows ...[]any) [][]any {
	return append([][]any{sheet.PerformanceSchema.Header()}, rows...)
}

func debtsTable(debts ...domain.DebtRecord) [][]any {
	return append([][]any{sheet.DebtsSchema.Header()}, sheet.EncodeDebts(debts)...)
}

// seedS1 loads supervisor S1 owning R1 and R2, with S2 owning R3.
func (f *fixture) seedS1() {
	f.rows.set(sheet.TableRiders, ridersTable(
		domain.Rider{ID: "R1", Name: "Ali", SupervisorCode: "S1"},
		domain.Rider{ID: "R2", Name: "Badr", SupervisorCode: "S1"},
		domain.Rider{ID: "R3", Name: "Chadi", SupervisorCode: "S2"},
	))
	f.rows.set(sheet.TablePerformance, perfTable(
		perfRow("2024-01-05", "R1", 10, 8, 95),
		perfRow("2024-01-06", "R2", 5, 6, 85),
		perfRow("2024-01-06", "R3", 40, 9, 99),
	))
	f.rows.set(sheet.TableDebts, debtsTable(
		domain.DebtRecord{RiderID: "R1", Amount: 200},
		domain.DebtRecord{RiderID: "R3", Amount: 999},
	))
	f.rows.set(sheet.TableAdvances, [][]any{sheet.AdvancesSchema.Header()})
}
