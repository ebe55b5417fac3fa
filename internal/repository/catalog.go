package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/desco95/dvdrental/internal/domain"
)

// CatalogRepository reads the customer, staff and film rows a rental refers to.
type CatalogRepository struct {
	db DBTX
}

// GetCustomer fetches a customer by id.
func (r *CatalogRepository) GetCustomer(ctx context.Context, id int32) (domain.Customer, error) {
	const query = `
        SELECT customer_id, first_name, last_name, email, activebool
        FROM customer
        WHERE customer_id = $1
    `
	var c domain.Customer
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Customer{}, domain.NewNotFound("customer", id)
		}
		return domain.Customer{}, err
	}
	return c, nil
}

// GetStaff fetches a staff member by id.
func (r *CatalogRepository) GetStaff(ctx context.Context, id int32) (domain.Staff, error) {
	const query = `
        SELECT staff_id, first_name, last_name, email, active
        FROM staff
        WHERE staff_id = $1
    `
	var s domain.Staff
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Staff{}, domain.NewNotFound("staff", id)
		}
		return domain.Staff{}, err
	}
	return s, nil
}

// GetFilm fetches a film with its billing terms.
func (r *CatalogRepository) GetFilm(ctx context.Context, id int32) (domain.Film, error) {
	const query = `
        SELECT film_id, title, rental_rate::text, rental_duration
        FROM film
        WHERE film_id = $1
    `
	var (
		f    domain.Film
		rate string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&f.ID, &f.Title, &rate, &f.RentalDuration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Film{}, domain.NewNotFound("film", id)
		}
		return domain.Film{}, err
	}
	if f.RentalRate, err = parseMoney(rate); err != nil {
		return domain.Film{}, err
	}
	return f, nil
}
