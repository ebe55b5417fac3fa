package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/desco95/dvdrental/internal/store"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so every query can run either
// standalone or inside a transaction opened by the store.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Catalog *CatalogRepository
	Rentals *RentalsRepository
	Reports *ReportsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithDB(st.Pool())
}

// NewWithDB builds repositories over any DBTX.
func NewWithDB(db DBTX) *Repository {
	return &Repository{
		Catalog: &CatalogRepository{db: db},
		Rentals: &RentalsRepository{db: db},
		Reports: &ReportsRepository{db: db},
	}
}

// WithTx returns repositories bound to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return NewWithDB(tx)
}

// Money columns are selected as text and parsed here so that no value ever
// passes through a float.
func parseMoney(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d, nil
}

func parseOptionalMoney(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := parseMoney(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
