package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Fixture is a catalog snapshot used to populate development and test
// databases. IDs are explicit so that callers can reference them.
type Fixture struct {
	Categories []FixtureCategory  `json:"categories"`
	Films      []FixtureFilm      `json:"films"`
	Customers  []FixturePerson    `json:"customers"`
	Staff      []FixturePerson    `json:"staff"`
	Inventory  []FixtureInventory `json:"inventory"`
}

// FixtureCategory is a film category row.
type FixtureCategory struct {
	ID   int32  `json:"category_id"`
	Name string `json:"name"`
}

// FixtureFilm is a film row; CategoryID is optional.
type FixtureFilm struct {
	ID             int32           `json:"film_id"`
	Title          string          `json:"title"`
	RentalRate     decimal.Decimal `json:"rental_rate"`
	RentalDuration int             `json:"rental_duration"`
	CategoryID     *int32          `json:"category_id,omitempty"`
}

// FixturePerson is shared by customer and staff rows.
type FixturePerson struct {
	ID        int32   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     *string `json:"email,omitempty"`
}

// FixtureInventory is one physical copy of a film.
type FixtureInventory struct {
	ID     int32 `json:"inventory_id"`
	FilmID int32 `json:"film_id"`
}

// LoadFixture reads a JSON fixture file.
func LoadFixture(path string) (Fixture, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(payload, &fx); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return fx, nil
}

// Seed inserts the fixture rows in one transaction and advances the serial
// sequences past the explicit IDs.
func (s *Store) Seed(ctx context.Context, fx Fixture) error {
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, c := range fx.Categories {
			if _, err := tx.Exec(ctx, `INSERT INTO category (category_id, name) VALUES ($1, $2)`, c.ID, c.Name); err != nil {
				return fmt.Errorf("seed category %d: %w", c.ID, err)
			}
		}
		for _, f := range fx.Films {
			_, err := tx.Exec(ctx, `
                INSERT INTO film (film_id, title, rental_rate, rental_duration)
                VALUES ($1, $2, $3::numeric, $4)
            `, f.ID, f.Title, f.RentalRate.String(), f.RentalDuration)
			if err != nil {
				return fmt.Errorf("seed film %d: %w", f.ID, err)
			}
			if f.CategoryID != nil {
				if _, err := tx.Exec(ctx, `INSERT INTO film_category (film_id, category_id) VALUES ($1, $2)`, f.ID, *f.CategoryID); err != nil {
					return fmt.Errorf("seed film category %d: %w", f.ID, err)
				}
			}
		}
		for _, c := range fx.Customers {
			_, err := tx.Exec(ctx, `
                INSERT INTO customer (customer_id, first_name, last_name, email)
                VALUES ($1, $2, $3, $4)
            `, c.ID, c.FirstName, c.LastName, c.Email)
			if err != nil {
				return fmt.Errorf("seed customer %d: %w", c.ID, err)
			}
		}
		for _, st := range fx.Staff {
			_, err := tx.Exec(ctx, `
                INSERT INTO staff (staff_id, first_name, last_name, email)
                VALUES ($1, $2, $3, $4)
            `, st.ID, st.FirstName, st.LastName, st.Email)
			if err != nil {
				return fmt.Errorf("seed staff %d: %w", st.ID, err)
			}
		}
		for _, inv := range fx.Inventory {
			if _, err := tx.Exec(ctx, `INSERT INTO inventory (inventory_id, film_id) VALUES ($1, $2)`, inv.ID, inv.FilmID); err != nil {
				return fmt.Errorf("seed inventory %d: %w", inv.ID, err)
			}
		}
		return resetSequences(ctx, tx)
	})
	if err != nil {
		return err
	}
	s.logger.Info("store: fixture loaded",
		zap.Int("films", len(fx.Films)),
		zap.Int("customers", len(fx.Customers)),
		zap.Int("staff", len(fx.Staff)),
		zap.Int("inventory", len(fx.Inventory)),
	)
	return nil
}

var serialColumns = [][2]string{
	{"category", "category_id"},
	{"film", "film_id"},
	{"customer", "customer_id"},
	{"staff", "staff_id"},
	{"inventory", "inventory_id"},
}

func resetSequences(ctx context.Context, tx pgx.Tx) error {
	for _, tc := range serialColumns {
		query := fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', '%[2]s'), COALESCE((SELECT MAX(%[2]s) FROM %[1]s), 0) + 1, false)`,
			tc[0], tc[1],
		)
		if _, err := tx.Exec(ctx, query); err != nil {
			return fmt.Errorf("reset sequence %s.%s: %w", tc[0], tc[1], err)
		}
	}
	return nil
}
