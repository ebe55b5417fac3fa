package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desco95/dvdrental/internal/domain"
	"github.com/desco95/dvdrental/internal/rental"
	"github.com/desco95/dvdrental/internal/report"
	"github.com/desco95/dvdrental/internal/repository"
	"github.com/desco95/dvdrental/internal/store"
	"github.com/desco95/dvdrental/internal/testutil"
)

var reportTime = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

type reportEnv struct {
	ctx        context.Context
	clock      *testutil.Clock
	rentals    *rental.Service
	aggregator *report.Aggregator
}

func newReportEnv(t *testing.T, fx *store.Fixture) *reportEnv {
	t.Helper()

	db := testutil.NewPostgres(t, fx)
	repo := repository.New(db.Store)
	clock := testutil.NewClock(reportTime)

	return &reportEnv{
		ctx:     db.Ctx,
		clock:   clock,
		rentals: rental.NewService(db.Store, repo, rental.Options{Clock: clock.Now}),
		aggregator: report.NewAggregator(db.Store, repo, report.Options{
			Clock: func() time.Time { return reportTime },
		}),
	}
}

// rentAt opens a rental at the given time and optionally returns it after d.
func (e *reportEnv) rentAt(t *testing.T, at time.Time, customerID, filmID, staffID int32, returnAfter time.Duration) domain.RentalRecord {
	t.Helper()
	e.clock.Set(at)
	rec, err := e.rentals.Create(e.ctx, rental.CreateRequest{CustomerID: customerID, FilmID: filmID, StaffID: staffID})
	require.NoError(t, err)
	if returnAfter > 0 {
		e.clock.Set(at.Add(returnAfter))
		_, err := e.rentals.Return(e.ctx, rec.RentalID)
		require.NoError(t, err)
	}
	return rec
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestReportsOnEmptyLedger(t *testing.T) {
	env := newReportEnv(t, testutil.DefaultFixture())

	unreturned, err := env.aggregator.Unreturned(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, unreturned.Entries)
	assert.Zero(t, unreturned.OverdueCount)
	assert.Equal(t, reportTime, unreturned.GeneratedAt)

	popular, err := env.aggregator.MostRented(env.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, popular.Entries)

	revenue, err := env.aggregator.StaffRevenue(env.ctx)
	require.NoError(t, err)
	require.Len(t, revenue.Entries, 2)
	for _, e := range revenue.Entries {
		assert.Zero(t, e.TotalRentals)
		assert.Zero(t, e.TotalPayments)
		assert.True(t, e.TotalRevenue.IsZero())
		assert.True(t, e.AveragePayment.IsZero())
	}
	assert.True(t, revenue.TotalRevenueAll.IsZero())
}

func TestUnreturnedComputesDaysOverdue(t *testing.T) {
	fx := testutil.DefaultFixture()
	fx.Inventory = append(fx.Inventory, store.FixtureInventory{ID: 5, FilmID: testutil.FilmSingleCopy})
	env := newReportEnv(t, fx)

	late := env.rentAt(t, reportTime.AddDate(0, 0, -5), testutil.CustomerMary, testutil.FilmSingleCopy, testutil.StaffMike, 0)
	recent := env.rentAt(t, reportTime.AddDate(0, 0, -1), testutil.CustomerIdle, testutil.FilmSingleCopy, testutil.StaffJon, 0)
	env.rentAt(t, reportTime.AddDate(0, 0, -10), testutil.CustomerPatricia, testutil.FilmTwoCopies, testutil.StaffJon, 48*time.Hour)

	got, err := env.aggregator.Unreturned(env.ctx)
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, 1, got.OverdueCount)

	first := got.Entries[0]
	assert.Equal(t, late.RentalID, first.RentalID)
	assert.Equal(t, "Academy Dinosaur", first.FilmTitle)
	assert.Equal(t, "Mary Smith", first.CustomerName)
	require.NotNil(t, first.CustomerEmail)
	assert.Equal(t, "mary.smith@example.com", *first.CustomerEmail)
	assert.True(t, reportTime.AddDate(0, 0, -2).Equal(first.ExpectedReturnDate))
	assert.Equal(t, 2, first.DaysOverdue)
	assertMoney(t, "4.99", first.RentalRate)

	second := got.Entries[1]
	assert.Equal(t, recent.RentalID, second.RentalID)
	assert.Nil(t, second.CustomerEmail)
	assert.Equal(t, -2, second.DaysOverdue)
}

func TestMostRentedOrdersByCountThenRevenue(t *testing.T) {
	env := newReportEnv(t, testutil.DefaultFixture())

	base := reportTime.AddDate(0, 0, -20)
	env.rentAt(t, base, testutil.CustomerMary, testutil.FilmSingleCopy, testutil.StaffMike, 24*time.Hour)
	env.rentAt(t, base.AddDate(0, 0, 2), testutil.CustomerPatricia, testutil.FilmSingleCopy, testutil.StaffMike, 0)
	env.rentAt(t, base, testutil.CustomerMary, testutil.FilmCheap, testutil.StaffJon, 0)
	env.rentAt(t, base, testutil.CustomerIdle, testutil.FilmTwoCopies, testutil.StaffJon, 0)

	got, err := env.aggregator.MostRented(env.ctx, 0)
	require.NoError(t, err)
	require.Len(t, got.Entries, 3)

	assert.Equal(t, testutil.FilmSingleCopy, got.Entries[0].FilmID)
	assert.Equal(t, int64(2), got.Entries[0].TotalRentals)
	assertMoney(t, "9.98", got.Entries[0].TotalRevenue)
	require.NotNil(t, got.Entries[0].Category)
	assert.Equal(t, "Action", *got.Entries[0].Category)

	// Equal counts fall back to revenue: 2.50 before 0.99.
	assert.Equal(t, testutil.FilmTwoCopies, got.Entries[1].FilmID)
	assertMoney(t, "2.50", got.Entries[1].TotalRevenue)
	assert.Equal(t, testutil.FilmCheap, got.Entries[2].FilmID)
	assert.Nil(t, got.Entries[2].Category)

	top, err := env.aggregator.MostRented(env.ctx, 1)
	require.NoError(t, err)
	require.Len(t, top.Entries, 1)
	assert.Equal(t, testutil.FilmSingleCopy, top.Entries[0].FilmID)
}

func TestStaffRevenue(t *testing.T) {
	env := newReportEnv(t, testutil.DefaultFixture())

	base := reportTime.AddDate(0, 0, -30)
	env.rentAt(t, base, testutil.CustomerMary, testutil.FilmTwoCopies, testutil.StaffMike, 7*24*time.Hour)
	env.rentAt(t, base, testutil.CustomerPatricia, testutil.FilmSingleCopy, testutil.StaffMike, 24*time.Hour)
	env.rentAt(t, base.AddDate(0, 0, 10), testutil.CustomerIdle, testutil.FilmCheap, testutil.StaffMike, 0)

	got, err := env.aggregator.StaffRevenue(env.ctx)
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)

	mike := got.Entries[0]
	assert.Equal(t, testutil.StaffMike, mike.StaffID)
	assert.Equal(t, "Mike Hillyer", mike.StaffName)
	assert.Equal(t, int64(3), mike.TotalRentals)
	assert.Equal(t, int64(2), mike.TotalPayments)
	assertMoney(t, "22.49", mike.TotalRevenue)
	assertMoney(t, "11.25", mike.AveragePayment)

	jon := got.Entries[1]
	assert.Equal(t, testutil.StaffJon, jon.StaffID)
	assert.Zero(t, jon.TotalRentals)
	assert.Zero(t, jon.TotalPayments)
	assert.True(t, jon.TotalRevenue.IsZero())
	assert.True(t, jon.AveragePayment.IsZero())

	assertMoney(t, "22.49", got.TotalRevenueAll)
}

func TestStaffRevenueByID(t *testing.T) {
	env := newReportEnv(t, testutil.DefaultFixture())

	base := reportTime.AddDate(0, 0, -30)
	older := env.rentAt(t, base, testutil.CustomerMary, testutil.FilmTwoCopies, testutil.StaffMike, 7*24*time.Hour)
	newer := env.rentAt(t, base.AddDate(0, 0, 10), testutil.CustomerIdle, testutil.FilmCheap, testutil.StaffMike, 0)

	detail, err := env.aggregator.StaffRevenueByID(env.ctx, testutil.StaffMike)
	require.NoError(t, err)
	assert.Equal(t, testutil.StaffMike, detail.Entry.StaffID)
	assertMoney(t, "17.50", detail.Entry.TotalRevenue)
	require.Len(t, detail.RecentRentals, 2)
	assert.Equal(t, newer.RentalID, detail.RecentRentals[0].RentalID)
	assert.Nil(t, detail.RecentRentals[0].PaymentAmount)
	assert.Equal(t, older.RentalID, detail.RecentRentals[1].RentalID)
	require.NotNil(t, detail.RecentRentals[1].PaymentAmount)
	assertMoney(t, "17.50", *detail.RecentRentals[1].PaymentAmount)

	idle, err := env.aggregator.StaffRevenueByID(env.ctx, testutil.StaffJon)
	require.NoError(t, err)
	assert.Zero(t, idle.Entry.TotalRentals)
	assert.Empty(t, idle.RecentRentals)

	_, err = env.aggregator.StaffRevenueByID(env.ctx, 99)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestCustomerRentals(t *testing.T) {
	env := newReportEnv(t, testutil.DefaultFixture())

	base := reportTime.AddDate(0, 0, -30)
	env.rentAt(t, base, testutil.CustomerMary, testutil.FilmTwoCopies, testutil.StaffMike, 7*24*time.Hour)
	env.rentAt(t, base.AddDate(0, 0, 10), testutil.CustomerMary, testutil.FilmCheap, testutil.StaffJon, 0)
	env.rentAt(t, base, testutil.CustomerPatricia, testutil.FilmSingleCopy, testutil.StaffJon, 24*time.Hour)

	got, err := env.aggregator.CustomerRentals(env.ctx, testutil.CustomerMary)
	require.NoError(t, err)
	assert.Equal(t, "Mary Smith", got.Customer.FullName())
	assert.Equal(t, 2, got.TotalRentals)
	assert.Equal(t, 1, got.ActiveRentals)
	assertMoney(t, "17.50", got.TotalSpent)
	require.Len(t, got.Rentals, 2)
	assert.Equal(t, "Adaptation Holes", got.Rentals[0].FilmTitle)

	idle, err := env.aggregator.CustomerRentals(env.ctx, testutil.CustomerIdle)
	require.NoError(t, err)
	assert.Zero(t, idle.TotalRentals)
	assert.True(t, idle.TotalSpent.IsZero())

	_, err = env.aggregator.CustomerRentals(env.ctx, 999)
	assert.True(t, domain.IsNotFound(err))
}

func TestNormalizeMostRentedLimit(t *testing.T) {
	assert.Equal(t, report.DefaultMostRentedLimit, report.NormalizeMostRentedLimit(0))
	assert.Equal(t, 5, report.NormalizeMostRentedLimit(5))
	assert.Equal(t, report.MaxMostRentedLimit, report.NormalizeMostRentedLimit(500))
}
