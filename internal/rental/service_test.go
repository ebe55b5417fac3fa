package rental

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desco95/dvdrental/internal/domain"
	"github.com/desco95/dvdrental/internal/events"
	"github.com/desco95/dvdrental/internal/repository"
	"github.com/desco95/dvdrental/internal/testutil"
)

var start = time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)

type serviceEnv struct {
	ctx       context.Context
	db        *testutil.DB
	repo      *repository.Repository
	clock     *testutil.Clock
	publisher *events.Recorder
	svc       *Service
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	db := testutil.NewPostgres(t, testutil.DefaultFixture())
	repo := repository.New(db.Store)
	clock := testutil.NewClock(start)
	publisher := &events.Recorder{}

	return &serviceEnv{
		ctx:       db.Ctx,
		db:        db,
		repo:      repo,
		clock:     clock,
		publisher: publisher,
		svc: NewService(db.Store, repo, Options{
			Clock:     clock.Now,
			Publisher: publisher,
		}),
	}
}

func (e *serviceEnv) create(t *testing.T, customerID, filmID int32) domain.RentalRecord {
	t.Helper()
	rec, err := e.svc.Create(e.ctx, CreateRequest{CustomerID: customerID, FilmID: filmID, StaffID: testutil.StaffMike})
	require.NoError(t, err)
	return rec
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestCreateReturnsJoinedRecord(t *testing.T) {
	env := newServiceEnv(t)

	rec := env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)

	assert.NotZero(t, rec.RentalID)
	assert.Equal(t, int32(1), rec.InventoryID)
	assert.Equal(t, testutil.FilmSingleCopy, rec.FilmID)
	assert.Equal(t, "Academy Dinosaur", rec.FilmTitle)
	assert.Equal(t, "Mary Smith", rec.CustomerName)
	assert.Equal(t, "Mike Hillyer", rec.StaffName)
	assertMoney(t, "4.99", rec.RentalRate)
	assert.Equal(t, 3, rec.RentalDuration)
	assert.True(t, start.Equal(rec.RentalDate))
	assert.True(t, start.AddDate(0, 0, 3).Equal(rec.ExpectedReturnDate))
	assert.Nil(t, rec.ReturnDate)

	published := env.publisher.Events()
	require.Len(t, published, 1)
	assert.Equal(t, events.RentalCreated, published[0].Type)
	assert.Equal(t, rec.RentalID, published[0].RentalID)
	assert.Equal(t, rec.InventoryID, published[0].InventoryID)
}

func TestCreateSingleCopyTwiceConflicts(t *testing.T) {
	env := newServiceEnv(t)

	env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)

	_, err := env.svc.Create(env.ctx, CreateRequest{
		CustomerID: testutil.CustomerPatricia,
		FilmID:     testutil.FilmSingleCopy,
		StaffID:    testutil.StaffJon,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoAvailableCopy)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	active, err := env.repo.Rentals.CountActiveByInventory(env.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}

func TestCreateFilmWithoutInventoryConflicts(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.svc.Create(env.ctx, CreateRequest{
		CustomerID: testutil.CustomerMary,
		FilmID:     testutil.FilmNoCopies,
		StaffID:    testutil.StaffMike,
	})
	assert.ErrorIs(t, err, domain.ErrNoAvailableCopy)
}

func TestCreatePicksLowestFreeCopy(t *testing.T) {
	env := newServiceEnv(t)

	first := env.create(t, testutil.CustomerMary, testutil.FilmTwoCopies)
	second := env.create(t, testutil.CustomerPatricia, testutil.FilmTwoCopies)
	assert.Equal(t, int32(2), first.InventoryID)
	assert.Equal(t, int32(3), second.InventoryID)

	_, err := env.svc.Cancel(env.ctx, first.RentalID)
	require.NoError(t, err)

	third := env.create(t, testutil.CustomerIdle, testutil.FilmTwoCopies)
	assert.Equal(t, int32(2), third.InventoryID)
}

func TestCreateUnknownReferencesAreNotFound(t *testing.T) {
	tests := []struct {
		name   string
		req    CreateRequest
		entity string
	}{
		{
			name:   "customer",
			req:    CreateRequest{CustomerID: 999, FilmID: testutil.FilmSingleCopy, StaffID: testutil.StaffMike},
			entity: "customer",
		},
		{
			name:   "staff",
			req:    CreateRequest{CustomerID: testutil.CustomerMary, FilmID: testutil.FilmSingleCopy, StaffID: 999},
			entity: "staff",
		},
		{
			name:   "film",
			req:    CreateRequest{CustomerID: testutil.CustomerMary, FilmID: 999, StaffID: testutil.StaffMike},
			entity: "film",
		},
	}

	env := newServiceEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Create(env.ctx, tt.req)
			require.Error(t, err)
			assert.True(t, domain.IsNotFound(err))

			var nf *domain.NotFoundError
			require.True(t, errors.As(err, &nf))
			assert.Equal(t, tt.entity, nf.Entity)
			assert.Equal(t, int32(999), nf.ID)
		})
	}

	total, err := env.repo.Rentals.Count(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, env.publisher.Events())
}

func TestConcurrentCreatesNeverDoubleAllocate(t *testing.T) {
	env := newServiceEnv(t)

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []domain.RentalRecord
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := env.svc.Create(env.ctx, CreateRequest{
				CustomerID: testutil.CustomerMary,
				FilmID:     testutil.FilmTwoCopies,
				StaffID:    testutil.StaffMike,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes = append(successes, rec)
		}()
	}
	wg.Wait()

	require.Len(t, successes, 2)
	assert.NotEqual(t, successes[0].InventoryID, successes[1].InventoryID)
	for _, err := range failures {
		assert.ErrorIs(t, err, domain.ErrNoAvailableCopy)
	}

	for _, inventoryID := range []int32{2, 3} {
		active, err := env.repo.Rentals.CountActiveByInventory(env.ctx, inventoryID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), active, "inventory %d", inventoryID)
	}
}

func TestReturnBillsElapsedDays(t *testing.T) {
	env := newServiceEnv(t)

	rec := env.create(t, testutil.CustomerMary, testutil.FilmTwoCopies)
	env.clock.Advance(7*24*time.Hour + 3*time.Hour)

	res, err := env.svc.Return(env.ctx, rec.RentalID)
	require.NoError(t, err)
	assert.Equal(t, rec.RentalID, res.RentalID)
	assert.Equal(t, 7, res.DaysRented)
	assertMoney(t, "17.50", res.TotalAmount)
	assert.True(t, env.clock.Now().Equal(res.ReturnDate))

	payments, err := env.repo.Rentals.PaymentsForRental(env.ctx, rec.RentalID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assertMoney(t, "17.50", payments[0].Amount)
	assert.Equal(t, testutil.CustomerMary, payments[0].CustomerID)
	assert.Equal(t, testutil.StaffMike, payments[0].StaffID)

	stored, err := env.repo.Rentals.GetRecord(env.ctx, rec.RentalID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReturnDate)

	// The copy is free again.
	again := env.create(t, testutil.CustomerPatricia, testutil.FilmTwoCopies)
	assert.Equal(t, rec.InventoryID, again.InventoryID)

	published := env.publisher.Events()
	require.Len(t, published, 3)
	assert.Equal(t, events.RentalReturned, published[1].Type)
	require.NotNil(t, published[1].Amount)
	assertMoney(t, "17.50", *published[1].Amount)
}

func TestReturnSameDayBillsOneDay(t *testing.T) {
	env := newServiceEnv(t)

	rec := env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)
	env.clock.Advance(time.Duration(0.2 * float64(24*time.Hour)))

	res, err := env.svc.Return(env.ctx, rec.RentalID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DaysRented)
	assertMoney(t, "4.99", res.TotalAmount)
}

func TestReturnTwiceIsInvalidState(t *testing.T) {
	env := newServiceEnv(t)

	rec := env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)
	env.clock.Advance(48 * time.Hour)

	_, err := env.svc.Return(env.ctx, rec.RentalID)
	require.NoError(t, err)

	_, err = env.svc.Return(env.ctx, rec.RentalID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyReturned)
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))

	payments, err := env.repo.Rentals.PaymentsForRental(env.ctx, rec.RentalID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestConcurrentReturnsCollectOnePayment(t *testing.T) {
	env := newServiceEnv(t)

	rec := env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)
	env.clock.Advance(48 * time.Hour)

	const workers = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Return(env.ctx, rec.RentalID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrAlreadyReturned):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, rejected)

	payments, err := env.repo.Rentals.PaymentsForRental(env.ctx, rec.RentalID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestReturnUnknownRental(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.svc.Return(env.ctx, 4242)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestCancelActiveRental(t *testing.T) {
	env := newServiceEnv(t)

	rec := env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)

	snap, err := env.svc.Cancel(env.ctx, rec.RentalID)
	require.NoError(t, err)
	assert.Equal(t, domain.CancelSnapshot{
		RentalID:     rec.RentalID,
		FilmTitle:    "Academy Dinosaur",
		CustomerName: "Mary Smith",
		StaffName:    "Mike Hillyer",
	}, snap)

	_, err = env.repo.Rentals.GetRecord(env.ctx, rec.RentalID)
	assert.True(t, domain.IsNotFound(err))

	payments, err := env.repo.Rentals.PaymentsForRental(env.ctx, rec.RentalID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	again := env.create(t, testutil.CustomerPatricia, testutil.FilmSingleCopy)
	assert.Equal(t, rec.InventoryID, again.InventoryID)

	published := env.publisher.Events()
	require.Len(t, published, 3)
	assert.Equal(t, events.RentalCanceled, published[1].Type)
}

func TestCancelReturnedRentalIsRejected(t *testing.T) {
	env := newServiceEnv(t)

	rec := env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)
	env.clock.Advance(24 * time.Hour)
	_, err := env.svc.Return(env.ctx, rec.RentalID)
	require.NoError(t, err)

	_, err = env.svc.Cancel(env.ctx, rec.RentalID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCannotCancelReturned)
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))

	stored, err := env.repo.Rentals.GetRecord(env.ctx, rec.RentalID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ReturnDate)
}

func TestCancelTwiceIsNotFound(t *testing.T) {
	env := newServiceEnv(t)

	rec := env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)
	_, err := env.svc.Cancel(env.ctx, rec.RentalID)
	require.NoError(t, err)

	_, err = env.svc.Cancel(env.ctx, rec.RentalID)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestPublishFailureDoesNotUndoCommit(t *testing.T) {
	env := newServiceEnv(t)
	env.publisher.Err = errors.New("broker unavailable")

	rec := env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)

	stored, err := env.repo.Rentals.GetRecord(env.ctx, rec.RentalID)
	require.NoError(t, err)
	assert.Equal(t, rec.RentalID, stored.RentalID)
}

func TestListNewestFirstWithTotal(t *testing.T) {
	env := newServiceEnv(t)

	first := env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)
	env.clock.Advance(time.Hour)
	second := env.create(t, testutil.CustomerMary, testutil.FilmTwoCopies)
	env.clock.Advance(time.Hour)
	third := env.create(t, testutil.CustomerPatricia, testutil.FilmCheap)

	list, err := env.svc.List(env.ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.Total)
	require.Len(t, list.Items, 3)
	assert.Equal(t, []int32{third.RentalID, second.RentalID, first.RentalID}, []int32{
		list.Items[0].RentalID, list.Items[1].RentalID, list.Items[2].RentalID,
	})

	page, err := env.svc.List(env.ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.RentalID, page.Items[0].RentalID)

	empty, err := env.svc.List(env.ctx, 10, 50)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, int64(3), empty.Total)
}

func TestCustomerHistory(t *testing.T) {
	env := newServiceEnv(t)

	older := env.create(t, testutil.CustomerMary, testutil.FilmTwoCopies)
	env.clock.Advance(3 * 24 * time.Hour)
	_, err := env.svc.Return(env.ctx, older.RentalID)
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	newer := env.create(t, testutil.CustomerMary, testutil.FilmSingleCopy)
	env.create(t, testutil.CustomerPatricia, testutil.FilmCheap)

	customer, entries, err := env.svc.CustomerHistory(env.ctx, testutil.CustomerMary)
	require.NoError(t, err)
	assert.Equal(t, "Mary Smith", customer.FullName())
	require.Len(t, entries, 2)

	assert.Equal(t, newer.RentalID, entries[0].RentalID)
	assert.Nil(t, entries[0].ReturnDate)
	assert.Nil(t, entries[0].PaymentAmount)
	assert.Nil(t, entries[0].DaysRented)

	assert.Equal(t, older.RentalID, entries[1].RentalID)
	assert.Equal(t, "Ace Goldfinger", entries[1].FilmTitle)
	require.NotNil(t, entries[1].DaysRented)
	assert.Equal(t, 3, *entries[1].DaysRented)
	require.NotNil(t, entries[1].PaymentAmount)
	assertMoney(t, "7.50", *entries[1].PaymentAmount)

	_, entries, err = env.svc.CustomerHistory(env.ctx, testutil.CustomerIdle)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, _, err = env.svc.CustomerHistory(env.ctx, 999)
	assert.True(t, domain.IsNotFound(err))
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name                  string
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{name: "defaults", limit: 0, offset: 0, wantLimit: DefaultListLimit, wantOffset: 0},
		{name: "in range", limit: 25, offset: 50, wantLimit: 25, wantOffset: 50},
		{name: "limit too large", limit: 5000, offset: 0, wantLimit: MaxListLimit, wantOffset: 0},
		{name: "negative values", limit: -1, offset: -10, wantLimit: DefaultListLimit, wantOffset: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset := NormalizePage(tt.limit, tt.offset)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
