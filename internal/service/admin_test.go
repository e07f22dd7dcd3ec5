package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/service"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

func isValidation(err error) bool {
	var ve *domain.ErrValidation
	return errors.As(err, &ve)
}

func TestUpsertRider_ReassignmentMovesOwnership(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	ctx := context.Background()

	before, err := f.agg.PerformanceOf(ctx, "S2", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	require.Equal(t, 40, before.Totals.Orders)

	res, err := f.admin.UpsertRider(ctx, service.RiderInput{ID: "R1", Name: "Ali", SupervisorCode: "S2", JoinDate: "13/01/2024"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"riders", "S2", "S1"}, res.Tags)

	s2, err := f.agg.PerformanceOf(ctx, "S2", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, 50, s2.Totals.Orders)

	s1, err := f.agg.PerformanceOf(ctx, "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, 5, s1.Totals.Orders)

	riders, err := f.owners.AllRiders(ctx)
	require.NoError(t, err)
	require.Len(t, riders, 3)
	assert.Equal(t, "2024-01-13", riders[0].JoinDate)
}

func TestUpsertRider_AppendsNewRider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.admin.UpsertRider(ctx, service.RiderInput{ID: " R7 ", Name: "Dina", SupervisorCode: "S1"})
	require.NoError(t, err)

	riders, err := f.owners.RidersOf(ctx, "S1", true)
	require.NoError(t, err)
	require.Len(t, riders, 1)
	assert.Equal(t, "R7", riders[0].ID)
}

func TestUpsertRider_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.admin.UpsertRider(ctx, service.RiderInput{})
	require.Error(t, err)
	assert.True(t, isValidation(err))
	assert.Len(t, multierr.Errors(err), 2)

	_, err = f.admin.UpsertRider(ctx, service.RiderInput{ID: "R1", Name: "x", JoinDate: "someday"})
	assert.True(t, isValidation(err))
	assert.Zero(t, f.rows.writes)
}

func TestUnassignRider(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	ctx := context.Background()

	_, err := f.owners.RidersOf(ctx, "S1", false)
	require.NoError(t, err)

	res, err := f.admin.UnassignRider(ctx, "R2")
	require.NoError(t, err)
	assert.Equal(t, []string{"riders", "S1"}, res.Tags)

	riders, err := f.owners.RidersOf(ctx, "S1", false)
	require.NoError(t, err)
	require.Len(t, riders, 1)
	assert.Equal(t, "R1", riders[0].ID)

	all, err := f.owners.AllRiders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.admin.UnassignRider(ctx, "R404")
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestSupervisorLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	ctx := context.Background()
	f.store.configs["S1"] = domain.SalaryConfig{SupervisorCode: "S1", Model: domain.ModelFixed, Amount: dec(3000)}

	_, err := f.admin.UpsertSupervisor(ctx, service.SupervisorInput{Code: "S1", Name: "Samir"})
	require.NoError(t, err)
	_, err = f.admin.UpsertSupervisor(ctx, service.SupervisorInput{Code: "S2", Name: "Hana"})
	require.NoError(t, err)
	_, err = f.admin.UpsertSupervisor(ctx, service.SupervisorInput{Code: "S1", Name: "Samir K."})
	require.NoError(t, err)

	sups, err := f.owners.Supervisors(ctx)
	require.NoError(t, err)
	require.Len(t, sups, 2)
	assert.Equal(t, "Samir K.", sups[0].Name)

	res, err := f.admin.DeleteSupervisor(ctx, "S1")
	require.NoError(t, err)
	assert.Contains(t, res.Tags, "S1")

	sups, err = f.owners.Supervisors(ctx)
	require.NoError(t, err)
	require.Len(t, sups, 1)
	assert.Equal(t, "S2", sups[0].Code)

	owned, err := f.owners.RidersOf(ctx, "S1", false)
	require.NoError(t, err)
	assert.Empty(t, owned)
	_, ok := f.store.configs["S1"]
	assert.False(t, ok)

	_, err = f.admin.DeleteSupervisor(ctx, "S1")
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestDeleteSupervisor_CombinesFailures(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	f.store.err = errors.New("store offline")

	_, err := f.admin.DeleteSupervisor(context.Background(), "S1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")

	riders, rerr := f.owners.RidersOf(context.Background(), "S1", true)
	require.NoError(t, rerr)
	assert.Empty(t, riders)
}

func TestImportDebts(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	ctx := context.Background()

	before, err := f.agg.DebtsOf(ctx, "S1")
	require.NoError(t, err)
	require.InDelta(t, 200.0, before.Total, 1e-9)

	res, err := f.admin.ImportDebts(ctx, []service.LedgerInput{
		{RiderID: "R2", Amount: 75.5, Date: "2024-01-03"},
		{RiderID: "R1", Amount: 24.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)

	after, err := f.agg.DebtsOf(ctx, "S1")
	require.NoError(t, err)
	assert.InDelta(t, 300.0, after.Total, 1e-9)
}

func TestImportLedger_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.admin.ImportAdvances(ctx, nil)
	assert.True(t, isValidation(err))

	_, err = f.admin.ImportAdvances(ctx, []service.LedgerInput{
		{RiderID: "", Amount: 10},
		{RiderID: "R1", Amount: -5},
		{RiderID: "R1", Amount: 5, Date: "soon"},
	})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
	assert.Contains(t, err.Error(), "rows[0].riderId")
	assert.Contains(t, err.Error(), "rows[2].date")
	assert.Zero(t, f.rows.appends)
}

func TestSetSalaryConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.admin.SetSalaryConfig(ctx, "S1", service.SalaryConfigInput{SalaryType: "Commission", CommissionFormula: "orders * 2"})
	require.NoError(t, err)
	assert.Equal(t, domain.ModelCommission, f.store.configs["S1"].Model)

	invalid := []service.SalaryConfigInput{
		{SalaryType: "hourly"},
		{SalaryType: "fixed", SalaryAmount: -1},
		{SalaryType: "commission"},
		{SalaryType: "commission", CommissionFormula: "orders * salary"},
	}
	for _, in := range invalid {
		_, err := f.admin.SetSalaryConfig(ctx, "S1", in)
		assert.True(t, isValidation(err), "%+v: %v", in, err)
	}

	_, err = f.admin.SetSalaryConfig(ctx, " ", service.SalaryConfigInput{SalaryType: "fixed"})
	assert.True(t, isValidation(err))
}

func TestSetSalaryConfig_InvalidatesCachedConfig(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	ctx := context.Background()

	_, err := f.admin.SetSalaryConfig(ctx, "S1", service.SalaryConfigInput{SalaryType: "fixed", SalaryAmount: 1000})
	require.NoError(t, err)
	b, err := f.comp.CalculateSalary(ctx, january("S1"))
	require.NoError(t, err)
	assertDecimal(t, 800, b.NetSalary, "net")

	_, err = f.admin.SetSalaryConfig(ctx, "S1", service.SalaryConfigInput{SalaryType: "fixed", SalaryAmount: 3000})
	require.NoError(t, err)
	b, err = f.comp.CalculateSalary(ctx, january("S1"))
	require.NoError(t, err)
	assertDecimal(t, 2800, b.NetSalary, "net")
}

func TestSetEquipmentLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.admin.SetEquipmentLimits(ctx, "S1", map[string]any{"helmet": 2, "T-Shirt": 3})
	require.NoError(t, err)
	_, err = f.admin.SetEquipmentLimits(ctx, "S1", map[string]any{"jacket": float64(1)})
	require.NoError(t, err)

	limits := f.store.limits["S1"]
	assert.Equal(t, 2, limits.Limit(domain.EquipmentHelmet))
	assert.Equal(t, 3, limits.Limit(domain.EquipmentTShirt))
	assert.Equal(t, 1, limits.Limit(domain.EquipmentJacket))

	_, err = f.admin.SetEquipmentLimits(ctx, "S1", map[string]any{"rocket": 1, "helmet": 4, "": 1})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, 2, f.store.limits["S1"].Limit(domain.EquipmentHelmet))
}

func TestSetEquipmentLimits_InvalidQuantityKeepsStoredValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.limits["S1"] = domain.EquipmentLimits{domain.EquipmentHelmet: 2, domain.EquipmentJacket: 1}

	res, err := f.admin.SetEquipmentLimits(ctx, "S1", map[string]any{
		"helmet":   -1,
		"jacket":   "lots",
		"t-shirt":  5,
		"bike_box": float64(-3),
	})
	require.NoError(t, err)

	limits := f.store.limits["S1"]
	assert.Equal(t, 2, limits.Limit(domain.EquipmentHelmet))
	assert.Equal(t, 1, limits.Limit(domain.EquipmentJacket))
	assert.Equal(t, 5, limits.Limit(domain.EquipmentTShirt))
	assert.Equal(t, 0, limits.Limit(domain.EquipmentBicycleBox))
	assert.Equal(t, []string{
		"bicycle_box: invalid quantity ignored, keeping 0",
		"helmet: invalid quantity ignored, keeping 2",
		"jacket: invalid quantity ignored, keeping 1",
	}, res.Warnings)
}

func TestSetEquipmentPricesAndSettings(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	ctx := context.Background()
	f.store.configs["S1"] = domain.SalaryConfig{SupervisorCode: "S1", Model: domain.ModelFixed, Amount: dec(3000)}
	f.store.limits["S1"] = domain.EquipmentLimits{domain.EquipmentHelmet: 1}

	req := january("S1")
	req.Equipment = map[domain.EquipmentKind]int{domain.EquipmentHelmet: 1}
	b, err := f.comp.CalculateSalary(ctx, req)
	require.NoError(t, err)
	assertDecimal(t, 0, b.EquipmentCost, "equipment")

	_, err = f.admin.SetEquipmentPrices(ctx, map[string]float64{"helmet": 80})
	require.NoError(t, err)
	_, err = f.admin.SetSettings(ctx, service.SettingsInput{SecurityCost: 20, LegacyOrderRate: 2, LegacyBonusMultiplier: 1.2, LegacyAcceptanceThreshold: 90})
	require.NoError(t, err)

	b, err = f.comp.CalculateSalary(ctx, req)
	require.NoError(t, err)
	assertDecimal(t, 80, b.EquipmentCost, "equipment")
	assertDecimal(t, 20, b.SecurityCost, "security")
	assertDecimal(t, 2700, b.NetSalary, "net")

	_, err = f.admin.SetEquipmentPrices(ctx, map[string]float64{"helmet": -1})
	assert.True(t, isValidation(err))
	_, err = f.admin.SetSettings(ctx, service.SettingsInput{LegacyAcceptanceThreshold: 120})
	assert.True(t, isValidation(err))
}

func TestAdminInvalidate_ClearsEverythingWithoutTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache.Set(ctx, "a", []byte("1"), time.Minute)
	f.cache.Set(ctx, "b", []byte("1"), time.Minute)

	res := f.admin.Invalidate(ctx, nil)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, []string{}, res.Tags)
	assert.Zero(t, f.cache.Len())
}

func TestClearPerformance_KeepsHeader(t *testing.T) {
	f := newFixture(t)
	f.seedS1()

	_, err := f.admin.ClearPerformance(context.Background())
	require.NoError(t, err)
	rows, err := f.rows.ReadRows(context.Background(), sheet.TablePerformance)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, sheet.PerformanceSchema.Header(), rows[0])
}
