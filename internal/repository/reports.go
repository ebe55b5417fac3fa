package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/desco95/dvdrental/internal/domain"
)

// ReportsRepository runs the aggregate queries behind the report endpoints.
type ReportsRepository struct {
	db DBTX
}

// Unreturned returns every active rental, oldest first. DaysOverdue is left
// for the caller to derive against its own report timestamp.
func (r *ReportsRepository) Unreturned(ctx context.Context) ([]domain.UnreturnedEntry, error) {
	const query = `
        SELECT
            r.rental_id,
            f.title,
            CONCAT(c.first_name, ' ', c.last_name),
            c.email,
            r.rental_date,
            f.rental_duration,
            f.rental_rate::text
        FROM rental r
        JOIN inventory i ON i.inventory_id = r.inventory_id
        JOIN film f ON f.film_id = i.film_id
        JOIN customer c ON c.customer_id = r.customer_id
        WHERE r.return_date IS NULL
        ORDER BY r.rental_date ASC, r.rental_id ASC
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query unreturned rentals: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.UnreturnedEntry, 0)
	for rows.Next() {
		var (
			e        domain.UnreturnedEntry
			duration int
			rate     string
		)
		if err := rows.Scan(&e.RentalID, &e.FilmTitle, &e.CustomerName, &e.CustomerEmail, &e.RentalDate, &duration, &rate); err != nil {
			return nil, err
		}
		if e.RentalRate, err = parseMoney(rate); err != nil {
			return nil, err
		}
		e.RentalDate = e.RentalDate.UTC()
		e.ExpectedReturnDate = domain.ExpectedReturn(e.RentalDate, duration)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// MostRented ranks films by rental count. Films never rented are omitted.
// A film in several categories reports the alphabetically first one.
func (r *ReportsRepository) MostRented(ctx context.Context, limit int) ([]domain.MostRentedEntry, error) {
	const query = `
        SELECT
            f.film_id,
            f.title,
            (
                SELECT MIN(c.name)
                FROM film_category fc
                JOIN category c ON c.category_id = fc.category_id
                WHERE fc.film_id = f.film_id
            ),
            COUNT(r.rental_id),
            f.rental_rate::text,
            (COUNT(r.rental_id) * f.rental_rate)::text
        FROM film f
        JOIN inventory i ON i.film_id = f.film_id
        JOIN rental r ON r.inventory_id = i.inventory_id
        GROUP BY f.film_id, f.title, f.rental_rate
        ORDER BY COUNT(r.rental_id) DESC, COUNT(r.rental_id) * f.rental_rate DESC, f.film_id ASC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query most rented: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.MostRentedEntry, 0, limit)
	for rows.Next() {
		var (
			e             domain.MostRentedEntry
			rate, revenue string
		)
		if err := rows.Scan(&e.FilmID, &e.Title, &e.Category, &e.TotalRentals, &rate, &revenue); err != nil {
			return nil, err
		}
		if e.RentalRate, err = parseMoney(rate); err != nil {
			return nil, err
		}
		if e.TotalRevenue, err = parseMoney(revenue); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// StaffRevenue aggregates rentals and payments per staff member. Staff with
// no activity are included with zero totals. A non-nil staffID restricts the
// result to that member.
func (r *ReportsRepository) StaffRevenue(ctx context.Context, staffID *int32) ([]domain.StaffRevenueEntry, error) {
	const query = `
        SELECT
            s.staff_id,
            CONCAT(s.first_name, ' ', s.last_name),
            s.email,
            COUNT(DISTINCT r.rental_id),
            COUNT(p.payment_id),
            COALESCE(SUM(p.amount), 0)::text,
            ROUND(COALESCE(AVG(p.amount), 0), 2)::text
        FROM staff s
        LEFT JOIN rental r ON r.staff_id = s.staff_id
        LEFT JOIN payment p ON p.rental_id = r.rental_id
        WHERE $1::integer IS NULL OR s.staff_id = $1::integer
        GROUP BY s.staff_id, s.first_name, s.last_name, s.email
        ORDER BY COALESCE(SUM(p.amount), 0) DESC, s.staff_id ASC
    `
	rows, err := r.db.Query(ctx, query, staffID)
	if err != nil {
		return nil, fmt.Errorf("query staff revenue: %w", err)
	}
	defer rows.Close()

	entries, err := pgx.CollectRows(rows, scanStaffRevenue)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.StaffRevenueEntry{}
	}
	return entries, nil
}

func scanStaffRevenue(row pgx.CollectableRow) (domain.StaffRevenueEntry, error) {
	var (
		e                domain.StaffRevenueEntry
		revenue, average string
	)
	if err := row.Scan(&e.StaffID, &e.StaffName, &e.Email, &e.TotalRentals, &e.TotalPayments, &revenue, &average); err != nil {
		return domain.StaffRevenueEntry{}, err
	}
	var err error
	if e.TotalRevenue, err = parseMoney(revenue); err != nil {
		return domain.StaffRevenueEntry{}, err
	}
	if e.AveragePayment, err = parseMoney(average); err != nil {
		return domain.StaffRevenueEntry{}, err
	}
	return e, nil
}
