// Package rental drives rentals through their lifecycle: allocation of a
// physical copy, return with fee collection, and cancellation.
package rental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/desco95/dvdrental/internal/domain"
	"github.com/desco95/dvdrental/internal/events"
	"github.com/desco95/dvdrental/internal/repository"
	"github.com/desco95/dvdrental/internal/store"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// CreateRequest identifies who rents which title and who handles it.
type CreateRequest struct {
	CustomerID int32
	FilmID     int32
	StaffID    int32
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Clock     func() time.Time
	Publisher events.Publisher
	Logger    *zap.Logger
	Tracer    trace.Tracer
}

// Service is the rental lifecycle manager.
type Service struct {
	store     *store.Store
	repo      *repository.Repository
	now       func() time.Time
	publisher events.Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewService wires a Service. Missing options fall back to the wall clock, a
// no-op publisher, a no-op logger and the global tracer.
func NewService(st *store.Store, repo *repository.Repository, opts Options) *Service {
	s := &Service{
		store:     st,
		repo:      repo,
		now:       opts.Clock,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/desco95/dvdrental/internal/rental")
	}
	return s
}

// timestamptz keeps microseconds.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Create allocates a free copy of the film to the customer. A lost
// allocation race or a transient store failure retries the whole operation
// once; a second race is reported as domain.ErrNoAvailableCopy.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.RentalRecord, error) {
	ctx, span := s.tracer.Start(ctx, "rental.Create", trace.WithAttributes(
		attribute.Int("customer.id", int(req.CustomerID)),
		attribute.Int("film.id", int(req.FilmID)),
		attribute.Int("staff.id", int(req.StaffID)),
	))
	defer span.End()

	rec, err := s.create(ctx, req)
	if domain.IsRetryable(err) {
		s.logger.Info("rental: retrying create",
			zap.Int32("film_id", req.FilmID),
			zap.String("kind", domain.KindOf(err).String()),
			zap.Error(err),
		)
		span.AddEvent("retry")
		rec, err = s.create(ctx, req)
		if errors.Is(err, domain.ErrAllocationRace) {
			err = fmt.Errorf("film %d: %w", req.FilmID, domain.ErrNoAvailableCopy)
		}
	}
	if err != nil {
		recordError(span, err)
		return domain.RentalRecord{}, err
	}

	span.SetAttributes(
		attribute.Int("rental.id", int(rec.RentalID)),
		attribute.Int("inventory.id", int(rec.InventoryID)),
	)
	span.SetStatus(codes.Ok, "")
	s.logger.Info("rental: created",
		zap.Int32("rental_id", rec.RentalID),
		zap.Int32("inventory_id", rec.InventoryID),
		zap.Int32("customer_id", rec.CustomerID),
	)

	event := events.NewRentalEvent(events.RentalCreated, rec.RentalID, rec.RentalDate)
	event.InventoryID = rec.InventoryID
	event.FilmID = rec.FilmID
	event.CustomerID = rec.CustomerID
	event.StaffID = rec.StaffID
	s.publish(ctx, event)

	return rec, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest) (domain.RentalRecord, error) {
	var rec domain.RentalRecord
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.Catalog.GetCustomer(ctx, req.CustomerID); err != nil {
			return err
		}
		if _, err := repo.Catalog.GetStaff(ctx, req.StaffID); err != nil {
			return err
		}
		if _, err := repo.Catalog.GetFilm(ctx, req.FilmID); err != nil {
			return err
		}

		inventoryID, err := NewAllocator(repo).Allocate(ctx, req.FilmID)
		if err != nil {
			return err
		}

		rentalID, err := repo.Rentals.Insert(ctx, repository.RentalInsertParams{
			InventoryID: inventoryID,
			CustomerID:  req.CustomerID,
			StaffID:     req.StaffID,
			RentalDate:  s.clock(),
		})
		if err != nil {
			return err
		}

		rec, err = repo.Rentals.GetRecord(ctx, rentalID)
		return err
	})
	return rec, err
}

// Return closes an active rental, bills it and records the payment.
func (s *Service) Return(ctx context.Context, rentalID int32) (domain.ReturnResult, error) {
	ctx, span := s.tracer.Start(ctx, "rental.Return", trace.WithAttributes(
		attribute.Int("rental.id", int(rentalID)),
	))
	defer span.End()

	var (
		result domain.ReturnResult
		rec    domain.RentalRecord
	)
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)

		var err error
		rec, err = repo.Rentals.LockRecord(ctx, rentalID)
		if err != nil {
			return err
		}
		if rec.Status() == domain.StatusReturned {
			return fmt.Errorf("rental %d: %w", rentalID, domain.ErrAlreadyReturned)
		}

		returnDate := s.clock()
		days, total := domain.ComputeFee(rec.RentalRate, rec.RentalDate, returnDate)

		if err := repo.Rentals.MarkReturned(ctx, rentalID, returnDate); err != nil {
			return err
		}
		_, err = repo.Rentals.InsertPayment(ctx, domain.Payment{
			RentalID:    rentalID,
			CustomerID:  rec.CustomerID,
			StaffID:     rec.StaffID,
			Amount:      total,
			PaymentDate: returnDate,
		})
		if err != nil {
			return err
		}

		result = domain.ReturnResult{
			RentalID:    rentalID,
			ReturnDate:  returnDate,
			DaysRented:  days,
			TotalAmount: total,
		}
		return nil
	})
	if err != nil {
		recordError(span, err)
		return domain.ReturnResult{}, err
	}

	span.SetAttributes(
		attribute.Int("rental.days", result.DaysRented),
		attribute.String("rental.amount", result.TotalAmount.StringFixed(2)),
	)
	span.SetStatus(codes.Ok, "")
	s.logger.Info("rental: returned",
		zap.Int32("rental_id", rentalID),
		zap.Int("days_rented", result.DaysRented),
		zap.String("total_amount", result.TotalAmount.StringFixed(2)),
	)

	event := events.NewRentalEvent(events.RentalReturned, rentalID, result.ReturnDate)
	event.InventoryID = rec.InventoryID
	event.FilmID = rec.FilmID
	event.CustomerID = rec.CustomerID
	event.StaffID = rec.StaffID
	event.Amount = &result.TotalAmount
	s.publish(ctx, event)

	return result, nil
}

// Cancel removes an active rental and reports what was canceled. Returned
// rentals cannot be canceled.
func (s *Service) Cancel(ctx context.Context, rentalID int32) (domain.CancelSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "rental.Cancel", trace.WithAttributes(
		attribute.Int("rental.id", int(rentalID)),
	))
	defer span.End()

	var (
		snapshot domain.CancelSnapshot
		rec      domain.RentalRecord
	)
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)

		var err error
		rec, err = repo.Rentals.LockRecord(ctx, rentalID)
		if err != nil {
			return err
		}
		if rec.Status() == domain.StatusReturned {
			return fmt.Errorf("rental %d: %w", rentalID, domain.ErrCannotCancelReturned)
		}

		snapshot = domain.CancelSnapshot{
			RentalID:     rec.RentalID,
			FilmTitle:    rec.FilmTitle,
			CustomerName: rec.CustomerName,
			StaffName:    rec.StaffName,
		}
		return repo.Rentals.Delete(ctx, rentalID)
	})
	if err != nil {
		recordError(span, err)
		return domain.CancelSnapshot{}, err
	}

	span.SetStatus(codes.Ok, "")
	s.logger.Info("rental: canceled",
		zap.Int32("rental_id", rentalID),
		zap.Int32("inventory_id", rec.InventoryID),
	)

	event := events.NewRentalEvent(events.RentalCanceled, rentalID, s.clock())
	event.InventoryID = rec.InventoryID
	event.FilmID = rec.FilmID
	event.CustomerID = rec.CustomerID
	event.StaffID = rec.StaffID
	s.publish(ctx, event)

	return snapshot, nil
}

// List returns a page of rentals, newest first, and the ledger size, both
// read from the same snapshot. Out-of-range paging values are clamped.
func (s *Service) List(ctx context.Context, limit, offset int) (domain.RentalList, error) {
	limit, offset = NormalizePage(limit, offset)

	ctx, span := s.tracer.Start(ctx, "rental.List", trace.WithAttributes(
		attribute.Int("page.limit", limit),
		attribute.Int("page.offset", offset),
	))
	defer span.End()

	var list domain.RentalList
	err := s.store.WithReadTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)

		items, err := repo.Rentals.List(ctx, limit, offset)
		if err != nil {
			return err
		}
		total, err := repo.Rentals.Count(ctx)
		if err != nil {
			return err
		}
		list = domain.RentalList{Items: items, Total: total}
		return nil
	})
	if err != nil {
		recordError(span, err)
		return domain.RentalList{}, err
	}
	return list, nil
}

// CustomerHistory returns a customer and every rental they made, newest first.
func (s *Service) CustomerHistory(ctx context.Context, customerID int32) (domain.Customer, []domain.RentalHistoryEntry, error) {
	ctx, span := s.tracer.Start(ctx, "rental.CustomerHistory", trace.WithAttributes(
		attribute.Int("customer.id", int(customerID)),
	))
	defer span.End()

	var (
		customer domain.Customer
		entries  []domain.RentalHistoryEntry
	)
	err := s.store.WithReadTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)

		var err error
		if customer, err = repo.Catalog.GetCustomer(ctx, customerID); err != nil {
			return err
		}
		entries, err = repo.Rentals.ListByCustomer(ctx, customerID)
		return err
	})
	if err != nil {
		recordError(span, err)
		return domain.Customer{}, nil, err
	}
	return customer, entries, nil
}

// NormalizePage applies the default and bounds of list paging.
func NormalizePage(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// publish runs after commit; a delivery failure never undoes the ledger write.
func (s *Service) publish(ctx context.Context, event events.RentalEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("rental: event publish failed",
			zap.String("type", string(event.Type)),
			zap.Int32("rental_id", event.RentalID),
			zap.Error(err),
		)
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.kind", domain.KindOf(err).String()))
}
