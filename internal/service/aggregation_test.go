package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/service"
	"github.com/boddenberg/fleetpay-go/internal/sheet"
)

func TestPerformanceOf_ScopesToSupervisor(t *testing.T) {
	f := newFixture(t)
	f.seedS1()

	report, err := f.agg.PerformanceOf(context.Background(), "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)

	assert.False(t, report.Degraded)
	assert.Equal(t, 15, report.Totals.Orders)
	assert.Equal(t, 2, report.Totals.Records)
	assert.Equal(t, 2, report.Totals.ActiveDays)
	assert.InDelta(t, 14.0, report.Totals.Hours, 1e-9)
	assert.InDelta(t, 90.0, report.Totals.AcceptanceAverage, 1e-9)
	assert.Equal(t, 2, report.RidersCount)

	require.Len(t, report.Records, 2)
	assert.Equal(t, "R1", report.Records[0].RiderID)
	assert.Equal(t, "R2", report.Records[1].RiderID)

	require.Len(t, report.TopRiders, 2)
	assert.Equal(t, "R1", report.TopRiders[0].RiderID)
	assert.Equal(t, "Ali", report.TopRiders[0].RiderName)
	assert.Equal(t, 10, report.TopRiders[0].Orders)
}

func TestPerformanceOf_OwnershipIsolation(t *testing.T) {
	f := newFixture(t)
	f.seedS1()

	s2, err := f.agg.PerformanceOf(context.Background(), "S2", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	require.Len(t, s2.Records, 1)
	assert.Equal(t, "R3", s2.Records[0].RiderID)
	assert.Equal(t, 40, s2.Totals.Orders)

	unknown, err := f.agg.PerformanceOf(context.Background(), "S9", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Empty(t, unknown.Records)
	assert.Zero(t, unknown.Totals.Orders)
	assert.Zero(t, unknown.RidersCount)
}

func TestPerformanceOf_DuplicateRiderCountedOnce(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	f.rows.set(sheet.TableRiders, ridersTable(
		domain.Rider{ID: "R1", Name: "Ali", SupervisorCode: "S1"},
		domain.Rider{ID: "R2", Name: "Badr", SupervisorCode: "S1"},
		domain.Rider{ID: "R3", Name: "Chadi", SupervisorCode: "S2"},
		domain.Rider{ID: "R1", Name: "Ali", SupervisorCode: "S2"},
	))
	ctx := context.Background()

	s1, err := f.agg.PerformanceOf(ctx, "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	s2, err := f.agg.PerformanceOf(ctx, "S2", "2024-01-01", "2024-01-31")
	require.NoError(t, err)

	assert.Equal(t, 5, s1.Totals.Orders)
	assert.Equal(t, 1, s1.RidersCount)
	assert.Equal(t, 50, s2.Totals.Orders)
	assert.Equal(t, 2, s2.RidersCount)
}

func TestPerformanceOf_RangeBoundariesInclusive(t *testing.T) {
	f := newFixture(t)
	f.rows.set(sheet.TableRiders, ridersTable(domain.Rider{ID: "R1", Name: "Ali", SupervisorCode: "S1"}))
	f.rows.set(sheet.TablePerformance, perfTable(
		perfRow("2024-01-09", "R1", 1, 1, 90),
		perfRow("2024-01-10", "R1", 10, 1, 90),
		perfRow("2024-01-20", "R1", 100, 1, 90),
		perfRow("2024-01-21", "R1", 1000, 1, 90),
	))

	report, err := f.agg.PerformanceOf(context.Background(), "S1", "2024-01-10", "2024-01-20")
	require.NoError(t, err)
	assert.Equal(t, 110, report.Totals.Orders)
	assert.Len(t, report.Records, 2)
}

func TestPerformanceOf_DayFirstDateKept(t *testing.T) {
	f := newFixture(t)
	f.rows.set(sheet.TableRiders, ridersTable(domain.Rider{ID: "R1", SupervisorCode: "S1"}))
	f.rows.set(sheet.TablePerformance, perfTable(
		perfRow("13/01/2024", "R1", 7, 5, 90),
		perfRow("not a date", "R1", 50, 5, 90),
	))

	report, err := f.agg.PerformanceOf(context.Background(), "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "2024-01-13", report.Records[0].Date)
	assert.Equal(t, 7, report.Totals.Orders)
	assert.Equal(t, 1, report.SkippedRows)
}

func TestPerformanceOf_AbsenceExcludedFromAcceptance(t *testing.T) {
	f := newFixture(t)
	f.rows.set(sheet.TableRiders, ridersTable(domain.Rider{ID: "R1", SupervisorCode: "S1"}))
	f.rows.set(sheet.TablePerformance, perfTable(
		perfRow("2024-01-02", "R1", 10, 8, 80),
		[]any{"2024-01-03", "R1", "", 0.0, 0.0, 0.0, "A", 0, 0.0, 0.0},
	))

	report, err := f.agg.PerformanceOf(context.Background(), "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Totals.AbsenceCount)
	assert.InDelta(t, 80.0, report.Totals.AcceptanceAverage, 1e-9)
	assert.Equal(t, 1, report.Totals.ActiveDays)
	assert.Equal(t, 2, report.Totals.Records)
}

func TestPerformanceOf_IdempotentAndCached(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	ctx := context.Background()

	first, err := f.agg.PerformanceOf(ctx, "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	second, err := f.agg.PerformanceOf(ctx, " S1 ", "2024-01-01", "2024-01-31")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.rows.readCount(sheet.TablePerformance))
}

func TestPerformanceOf_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name, code, start, end string
	}{
		{"empty code", "  ", "2024-01-01", "2024-01-31"},
		{"start after end", "S1", "2024-02-01", "2024-01-31"},
		{"bad start", "S1", "01/01/2024", "2024-01-31"},
		{"bad end", "S1", "2024-01-01", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.agg.PerformanceOf(ctx, tc.code, tc.start, tc.end)
			var ve *domain.ErrValidation
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}

func TestPerformanceOf_MissingTableIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.rows.set(sheet.TableRiders, ridersTable(domain.Rider{ID: "R1", SupervisorCode: "S1"}))

	report, err := f.agg.PerformanceOf(context.Background(), "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.False(t, report.Degraded)
	assert.Zero(t, report.Totals.Orders)
	assert.NotEmpty(t, report.Warnings)
	assert.Equal(t, 1, report.RidersCount)
}

func TestPerformanceOf_ProviderFailureDegradesWithoutCaching(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	f.rows.fail(sheet.TablePerformance, errors.New("upstream unavailable"))
	ctx := context.Background()

	report, err := f.agg.PerformanceOf(ctx, "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.True(t, report.Degraded)
	assert.Zero(t, report.Totals.Orders)
	assert.NotEmpty(t, report.Warnings)

	f.rows.fail(sheet.TablePerformance, nil)
	report, err = f.agg.PerformanceOf(ctx, "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.False(t, report.Degraded)
	assert.Equal(t, 15, report.Totals.Orders)

	snap := f.metrics.GetEngineSnapshot(0)
	assert.EqualValues(t, 1, snap.DegradedReports)
}

func TestPerformanceOf_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	f.rows.fail(sheet.TablePerformance, context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.agg.PerformanceOf(ctx, "S1", "2024-01-01", "2024-01-31")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPerformanceOf_CallerCancelDoesNotFailSharedWaiters(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	gate := f.rows.hold(sheet.TablePerformance)

	type result struct {
		report *domain.PerformanceReport
		err    error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		r, err := f.agg.PerformanceOf(ctx, "S1", "2024-01-01", "2024-01-31")
		first <- result{r, err}
	}()

	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("performance read never started")
	}

	go func() {
		r, err := f.agg.PerformanceOf(context.Background(), "S1", "2024-01-01", "2024-01-31")
		second <- result{r, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case res := <-first:
		assert.ErrorIs(t, res.err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return while the read was parked")
	}

	close(gate.release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.False(t, res.report.Degraded, "warnings: %v", res.report.Warnings)
		assert.Equal(t, 15, res.report.Totals.Orders)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting caller never returned")
	}
	assert.Equal(t, 1, f.rows.readCount(sheet.TablePerformance))

	cached, err := f.agg.PerformanceOf(context.Background(), "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, 15, cached.Totals.Orders)
	assert.Equal(t, 1, f.rows.readCount(sheet.TablePerformance))
}

func TestTopRiders_TiesBrokenByID(t *testing.T) {
	f := newFixture(t)
	f.rows.set(sheet.TableRiders, ridersTable(
		domain.Rider{ID: "R9", SupervisorCode: "S1"},
		domain.Rider{ID: "R2", SupervisorCode: "S1"},
		domain.Rider{ID: "R5", SupervisorCode: "S1"},
	))
	f.rows.set(sheet.TablePerformance, perfTable(
		perfRow("2024-01-02", "R9", 10, 1, 90),
		perfRow("2024-01-02", "R2", 10, 1, 90),
		perfRow("2024-01-02", "R5", 30, 1, 90),
	))

	report, err := f.agg.PerformanceOf(context.Background(), "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	ids := []string{}
	for _, r := range report.TopRiders {
		ids = append(ids, r.RiderID)
	}
	assert.Equal(t, []string{"R5", "R2", "R9"}, ids)

	assert.Len(t, service.TopRiders(report.Riders, 1), 1)
	assert.Empty(t, service.TopRiders(report.Riders, 0))
}

func TestDebtsOf(t *testing.T) {
	f := newFixture(t)
	f.seedS1()

	report, err := f.agg.DebtsOf(context.Background(), "S1")
	require.NoError(t, err)
	assert.InDelta(t, 200.0, report.Total, 1e-9)
	require.Len(t, report.Riders, 1)
	assert.Equal(t, "R1", report.Riders[0].RiderID)
	assert.Equal(t, 1, report.Riders[0].Entries)
}

func TestDebtsOf_MissingTable(t *testing.T) {
	f := newFixture(t)
	f.rows.set(sheet.TableRiders, ridersTable(domain.Rider{ID: "R1", SupervisorCode: "S1"}))

	report, err := f.agg.DebtsOf(context.Background(), "S1")
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.False(t, report.Degraded)
	assert.NotEmpty(t, report.Warnings)
}

func TestAdvancesOf_DateFilteredAndUndatedExcluded(t *testing.T) {
	f := newFixture(t)
	f.seedS1()
	f.rows.set(sheet.TableAdvances, append([][]any{sheet.AdvancesSchema.Header()}, sheet.EncodeAdvances([]domain.AdvanceRecord{
		{RiderID: "R1", Amount: 100, Date: "2024-01-15"},
		{RiderID: "R2", Amount: 50, Date: "2024-02-15"},
		{RiderID: "R2", Amount: 70},
		{RiderID: "R3", Amount: 300, Date: "2024-01-15"},
	})...))

	report, err := f.agg.AdvancesOf(context.Background(), "S1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, report.Total, 1e-9)
	assert.Len(t, report.Records, 1)
	assert.Len(t, report.Warnings, 1)
}
