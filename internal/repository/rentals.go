package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/desco95/dvdrental/internal/domain"
)

// RentalsRepository reads and writes the rental and payment ledger.
type RentalsRepository struct {
	db DBTX
}

const rentalRecordSelect = `
    SELECT
        r.rental_id,
        r.rental_date,
        r.return_date,
        r.inventory_id,
        r.customer_id,
        r.staff_id,
        i.film_id,
        f.title,
        CONCAT(c.first_name, ' ', c.last_name),
        CONCAT(s.first_name, ' ', s.last_name),
        f.rental_rate::text,
        f.rental_duration
    FROM rental r
    JOIN inventory i ON i.inventory_id = r.inventory_id
    JOIN film f ON f.film_id = i.film_id
    JOIN customer c ON c.customer_id = r.customer_id
    JOIN staff s ON s.staff_id = r.staff_id
`

// RentalInsertParams bundles the fields required to open a rental.
type RentalInsertParams struct {
	InventoryID int32
	CustomerID  int32
	StaffID     int32
	RentalDate  time.Time
}

// FindAvailableCopy locks and returns the lowest-numbered copy of filmID that
// no active rental references. Copies locked by concurrent allocations are
// skipped rather than waited on.
func (r *RentalsRepository) FindAvailableCopy(ctx context.Context, filmID int32) (int32, error) {
	const query = `
        SELECT i.inventory_id
        FROM inventory i
        WHERE i.film_id = $1
          AND NOT EXISTS (
              SELECT 1
              FROM rental r
              WHERE r.inventory_id = i.inventory_id
                AND r.return_date IS NULL
          )
        ORDER BY i.inventory_id
        LIMIT 1
        FOR UPDATE OF i SKIP LOCKED
    `
	var inventoryID int32
	if err := r.db.QueryRow(ctx, query, filmID).Scan(&inventoryID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNoAvailableCopy
		}
		return 0, fmt.Errorf("find available copy: %w", err)
	}
	return inventoryID, nil
}

// Insert opens a rental row and returns its generated id.
func (r *RentalsRepository) Insert(ctx context.Context, params RentalInsertParams) (int32, error) {
	const query = `
        INSERT INTO rental (rental_date, inventory_id, customer_id, staff_id)
        VALUES ($1, $2, $3, $4)
        RETURNING rental_id
    `
	var id int32
	err := r.db.QueryRow(ctx, query, params.RentalDate, params.InventoryID, params.CustomerID, params.StaffID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert rental: %w", err)
	}
	return id, nil
}

// GetRecord fetches the joined view of a rental.
func (r *RentalsRepository) GetRecord(ctx context.Context, rentalID int32) (domain.RentalRecord, error) {
	return r.getRecord(ctx, rentalRecordSelect+` WHERE r.rental_id = $1`, rentalID)
}

// LockRecord fetches the joined view of a rental and holds a row lock on the
// rental until the surrounding transaction ends.
func (r *RentalsRepository) LockRecord(ctx context.Context, rentalID int32) (domain.RentalRecord, error) {
	return r.getRecord(ctx, rentalRecordSelect+` WHERE r.rental_id = $1 FOR UPDATE OF r`, rentalID)
}

func (r *RentalsRepository) getRecord(ctx context.Context, query string, rentalID int32) (domain.RentalRecord, error) {
	rec, err := scanRentalRecord(r.db.QueryRow(ctx, query, rentalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RentalRecord{}, domain.NewNotFound("rental", rentalID)
		}
		return domain.RentalRecord{}, fmt.Errorf("load rental %d: %w", rentalID, err)
	}
	return rec, nil
}

// MarkReturned sets the return date of an active rental.
func (r *RentalsRepository) MarkReturned(ctx context.Context, rentalID int32, returnDate time.Time) error {
	const query = `
        UPDATE rental
        SET return_date = $2, last_update = now()
        WHERE rental_id = $1 AND return_date IS NULL
    `
	tag, err := r.db.Exec(ctx, query, rentalID, returnDate)
	if err != nil {
		return fmt.Errorf("mark rental returned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyReturned
	}
	return nil
}

// InsertPayment records the payment collected for a returned rental.
func (r *RentalsRepository) InsertPayment(ctx context.Context, p domain.Payment) (int32, error) {
	const query = `
        INSERT INTO payment (customer_id, staff_id, rental_id, amount, payment_date)
        VALUES ($1, $2, $3, $4::numeric, $5)
        RETURNING payment_id
    `
	var id int32
	err := r.db.QueryRow(ctx, query, p.CustomerID, p.StaffID, p.RentalID, p.Amount.String(), p.PaymentDate).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return id, nil
}

// Delete removes an active rental. Returned rentals are history and are
// never deleted.
func (r *RentalsRepository) Delete(ctx context.Context, rentalID int32) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rental WHERE rental_id = $1 AND return_date IS NULL`, rentalID)
	if err != nil {
		return fmt.Errorf("delete rental: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCannotCancelReturned
	}
	return nil
}

// List returns a page of rentals, newest first.
func (r *RentalsRepository) List(ctx context.Context, limit, offset int) ([]domain.RentalRecord, error) {
	query := rentalRecordSelect + ` ORDER BY r.rental_date DESC, r.rental_id DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list rentals: %w", err)
	}
	defer rows.Close()

	items := make([]domain.RentalRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRentalRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns the number of rental rows.
func (r *RentalsRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM rental`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count rentals: %w", err)
	}
	return total, nil
}

// CountActiveByInventory returns how many unreturned rentals reference a copy.
func (r *RentalsRepository) CountActiveByInventory(ctx context.Context, inventoryID int32) (int64, error) {
	const query = `SELECT COUNT(*) FROM rental WHERE inventory_id = $1 AND return_date IS NULL`
	var n int64
	if err := r.db.QueryRow(ctx, query, inventoryID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active rentals: %w", err)
	}
	return n, nil
}

// PaymentsForRental lists the payments recorded against a rental.
func (r *RentalsRepository) PaymentsForRental(ctx context.Context, rentalID int32) ([]domain.Payment, error) {
	const query = `
        SELECT payment_id, rental_id, customer_id, staff_id, amount::text, payment_date
        FROM payment
        WHERE rental_id = $1
        ORDER BY payment_id
    `
	rows, err := r.db.Query(ctx, query, rentalID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var (
			p      domain.Payment
			amount string
		)
		if err := rows.Scan(&p.ID, &p.RentalID, &p.CustomerID, &p.StaffID, &amount, &p.PaymentDate); err != nil {
			return nil, err
		}
		if p.Amount, err = parseMoney(amount); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListByCustomer returns every rental of a customer, newest first, with the
// payment collected for it when returned.
func (r *RentalsRepository) ListByCustomer(ctx context.Context, customerID int32) ([]domain.RentalHistoryEntry, error) {
	const query = `
        SELECT
            r.rental_id,
            f.title,
            f.rental_rate::text,
            r.rental_date,
            r.return_date,
            p.amount::text
        FROM rental r
        JOIN inventory i ON i.inventory_id = r.inventory_id
        JOIN film f ON f.film_id = i.film_id
        LEFT JOIN payment p ON p.rental_id = r.rental_id
        WHERE r.customer_id = $1
        ORDER BY r.rental_date DESC, r.rental_id DESC
    `
	rows, err := r.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("list customer rentals: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.RentalHistoryEntry, 0)
	for rows.Next() {
		var (
			e      domain.RentalHistoryEntry
			rate   string
			amount *string
		)
		if err := rows.Scan(&e.RentalID, &e.FilmTitle, &rate, &e.RentalDate, &e.ReturnDate, &amount); err != nil {
			return nil, err
		}
		if e.RentalRate, err = parseMoney(rate); err != nil {
			return nil, err
		}
		if e.PaymentAmount, err = parseOptionalMoney(amount); err != nil {
			return nil, err
		}
		e.RentalDate = e.RentalDate.UTC()
		e.ReturnDate = utcPtr(e.ReturnDate)
		if e.ReturnDate != nil {
			days := domain.BillableDays(e.RentalDate, *e.ReturnDate)
			e.DaysRented = &days
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// RecentByStaff returns the latest rentals handled by a staff member.
func (r *RentalsRepository) RecentByStaff(ctx context.Context, staffID int32, limit int) ([]domain.StaffRecentRental, error) {
	const query = `
        SELECT
            r.rental_id,
            f.title,
            r.rental_date,
            r.return_date,
            p.amount::text
        FROM rental r
        JOIN inventory i ON i.inventory_id = r.inventory_id
        JOIN film f ON f.film_id = i.film_id
        LEFT JOIN payment p ON p.rental_id = r.rental_id
        WHERE r.staff_id = $1
        ORDER BY r.rental_date DESC, r.rental_id DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, staffID, limit)
	if err != nil {
		return nil, fmt.Errorf("list staff rentals: %w", err)
	}
	defer rows.Close()

	items := make([]domain.StaffRecentRental, 0, limit)
	for rows.Next() {
		var (
			item   domain.StaffRecentRental
			amount *string
		)
		if err := rows.Scan(&item.RentalID, &item.FilmTitle, &item.RentalDate, &item.ReturnDate, &amount); err != nil {
			return nil, err
		}
		if item.PaymentAmount, err = parseOptionalMoney(amount); err != nil {
			return nil, err
		}
		item.RentalDate = item.RentalDate.UTC()
		item.ReturnDate = utcPtr(item.ReturnDate)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanRentalRecord(row pgx.Row) (domain.RentalRecord, error) {
	var (
		rec  domain.RentalRecord
		rate string
	)
	err := row.Scan(
		&rec.RentalID,
		&rec.RentalDate,
		&rec.ReturnDate,
		&rec.InventoryID,
		&rec.CustomerID,
		&rec.StaffID,
		&rec.FilmID,
		&rec.FilmTitle,
		&rec.CustomerName,
		&rec.StaffName,
		&rate,
		&rec.RentalDuration,
	)
	if err != nil {
		return domain.RentalRecord{}, err
	}
	if rec.RentalRate, err = parseMoney(rate); err != nil {
		return domain.RentalRecord{}, err
	}
	rec.RentalDate = rec.RentalDate.UTC()
	rec.ReturnDate = utcPtr(rec.ReturnDate)
	rec.ExpectedReturnDate = domain.ExpectedReturn(rec.RentalDate, rec.RentalDuration)
	return rec, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
