// Package report computes read-only aggregates over the rental ledger. Each
// report reads one consistent snapshot and is stamped with the time it was
// generated.
package report

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/desco95/dvdrental/internal/domain"
	"github.com/desco95/dvdrental/internal/repository"
	"github.com/desco95/dvdrental/internal/store"
)

const (
	DefaultMostRentedLimit = 10
	MaxMostRentedLimit     = 100
	RecentRentalsLimit     = 10
)

// Options carries the optional collaborators of an Aggregator.
type Options struct {
	Clock  func() time.Time
	Logger *zap.Logger
	Tracer trace.Tracer
}

// Aggregator builds the overdue, popularity, revenue and customer reports.
type Aggregator struct {
	store  *store.Store
	repo   *repository.Repository
	now    func() time.Time
	logger *zap.Logger
	tracer trace.Tracer
}

// NewAggregator wires an Aggregator.
func NewAggregator(st *store.Store, repo *repository.Repository, opts Options) *Aggregator {
	a := &Aggregator{
		store:  st,
		repo:   repo,
		now:    opts.Clock,
		logger: opts.Logger,
		tracer: opts.Tracer,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer("github.com/desco95/dvdrental/internal/report")
	}
	return a
}

// Unreturned lists every active rental with how many days it is overdue.
// DaysOverdue is negative for rentals not yet due; only positive values count
// towards OverdueCount.
func (a *Aggregator) Unreturned(ctx context.Context) (domain.UnreturnedReport, error) {
	ctx, span := a.tracer.Start(ctx, "report.Unreturned")
	defer span.End()

	report := domain.UnreturnedReport{GeneratedAt: a.now().UTC()}
	err := a.store.WithReadTx(ctx, func(tx pgx.Tx) error {
		entries, err := a.repo.WithTx(tx).Reports.Unreturned(ctx)
		if err != nil {
			return err
		}
		report.Entries = entries
		return nil
	})
	if err != nil {
		return domain.UnreturnedReport{}, a.fail(span, err)
	}

	for i := range report.Entries {
		e := &report.Entries[i]
		e.DaysOverdue = domain.DaysOverdue(e.ExpectedReturnDate, report.GeneratedAt)
		if e.DaysOverdue > 0 {
			report.OverdueCount++
		}
	}

	span.SetAttributes(
		attribute.Int("report.entries", len(report.Entries)),
		attribute.Int("report.overdue", report.OverdueCount),
	)
	span.SetStatus(codes.Ok, "")
	return report, nil
}

// MostRented ranks films by rental count, then by the count-based revenue
// proxy. Out-of-range limits are clamped.
func (a *Aggregator) MostRented(ctx context.Context, limit int) (domain.MostRentedReport, error) {
	limit = NormalizeMostRentedLimit(limit)

	ctx, span := a.tracer.Start(ctx, "report.MostRented", trace.WithAttributes(
		attribute.Int("report.limit", limit),
	))
	defer span.End()

	report := domain.MostRentedReport{GeneratedAt: a.now().UTC()}
	err := a.store.WithReadTx(ctx, func(tx pgx.Tx) error {
		entries, err := a.repo.WithTx(tx).Reports.MostRented(ctx, limit)
		if err != nil {
			return err
		}
		report.Entries = entries
		return nil
	})
	if err != nil {
		return domain.MostRentedReport{}, a.fail(span, err)
	}

	span.SetAttributes(attribute.Int("report.entries", len(report.Entries)))
	span.SetStatus(codes.Ok, "")
	return report, nil
}

// StaffRevenue reports collected revenue for every staff member, including
// those with no rentals.
func (a *Aggregator) StaffRevenue(ctx context.Context) (domain.StaffRevenueReport, error) {
	ctx, span := a.tracer.Start(ctx, "report.StaffRevenue")
	defer span.End()

	report := domain.StaffRevenueReport{
		GeneratedAt:     a.now().UTC(),
		TotalRevenueAll: decimal.Zero,
	}
	err := a.store.WithReadTx(ctx, func(tx pgx.Tx) error {
		entries, err := a.repo.WithTx(tx).Reports.StaffRevenue(ctx, nil)
		if err != nil {
			return err
		}
		report.Entries = entries
		return nil
	})
	if err != nil {
		return domain.StaffRevenueReport{}, a.fail(span, err)
	}

	for _, e := range report.Entries {
		report.TotalRevenueAll = report.TotalRevenueAll.Add(e.TotalRevenue)
	}

	span.SetAttributes(attribute.Int("report.entries", len(report.Entries)))
	span.SetStatus(codes.Ok, "")
	return report, nil
}

// StaffRevenueByID reports one staff member's revenue with their latest
// rentals.
func (a *Aggregator) StaffRevenueByID(ctx context.Context, staffID int32) (domain.StaffRevenueDetail, error) {
	ctx, span := a.tracer.Start(ctx, "report.StaffRevenueByID", trace.WithAttributes(
		attribute.Int("staff.id", int(staffID)),
	))
	defer span.End()

	detail := domain.StaffRevenueDetail{GeneratedAt: a.now().UTC()}
	err := a.store.WithReadTx(ctx, func(tx pgx.Tx) error {
		repo := a.repo.WithTx(tx)

		entries, err := repo.Reports.StaffRevenue(ctx, &staffID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return domain.NewNotFound("staff", staffID)
		}
		detail.Entry = entries[0]

		detail.RecentRentals, err = repo.Rentals.RecentByStaff(ctx, staffID, RecentRentalsLimit)
		return err
	})
	if err != nil {
		return domain.StaffRevenueDetail{}, a.fail(span, err)
	}

	span.SetStatus(codes.Ok, "")
	return detail, nil
}

// CustomerRentals summarises a customer's rentals and spending.
func (a *Aggregator) CustomerRentals(ctx context.Context, customerID int32) (domain.CustomerRentalReport, error) {
	ctx, span := a.tracer.Start(ctx, "report.CustomerRentals", trace.WithAttributes(
		attribute.Int("customer.id", int(customerID)),
	))
	defer span.End()

	report := domain.CustomerRentalReport{
		GeneratedAt: a.now().UTC(),
		TotalSpent:  decimal.Zero,
	}
	err := a.store.WithReadTx(ctx, func(tx pgx.Tx) error {
		repo := a.repo.WithTx(tx)

		var err error
		if report.Customer, err = repo.Catalog.GetCustomer(ctx, customerID); err != nil {
			return err
		}
		report.Rentals, err = repo.Rentals.ListByCustomer(ctx, customerID)
		return err
	})
	if err != nil {
		return domain.CustomerRentalReport{}, a.fail(span, err)
	}

	report.TotalRentals = len(report.Rentals)
	for _, r := range report.Rentals {
		if r.ReturnDate == nil {
			report.ActiveRentals++
		}
		if r.PaymentAmount != nil {
			report.TotalSpent = report.TotalSpent.Add(*r.PaymentAmount)
		}
	}

	span.SetStatus(codes.Ok, "")
	return report, nil
}

// NormalizeMostRentedLimit applies the default and bounds of the popularity
// report size.
func NormalizeMostRentedLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultMostRentedLimit
	case limit > MaxMostRentedLimit:
		return MaxMostRentedLimit
	default:
		return limit
	}
}

func (a *Aggregator) fail(span trace.Span, err error) error {
	if !domain.IsNotFound(err) {
		a.logger.Warn("report: query failed",
			zap.String("kind", domain.KindOf(err).String()),
			zap.Error(err),
		)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
