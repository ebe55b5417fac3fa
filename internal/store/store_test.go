package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desco95/dvdrental/internal/domain"
	"github.com/desco95/dvdrental/internal/store"
	"github.com/desco95/dvdrental/internal/testutil"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.Kind
		is   error
	}{
		{name: "nil", err: nil, want: domain.KindFatal},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: domain.KindTransient, is: domain.ErrTransient},
		{name: "deadlock", err: &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, want: domain.KindTransient, is: domain.ErrTransient},
		{name: "serialization", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: domain.KindTransient, is: domain.ErrTransient},
		{name: "active copy race", err: fmt.Errorf("insert rental: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: store.ActiveRentalIndex}), want: domain.KindConflict, is: domain.ErrAllocationRace},
		{name: "other unique", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "payment_one_per_rental"}, want: domain.KindFatal},
		{name: "domain passthrough", err: domain.ErrAlreadyReturned, want: domain.KindInvalidState, is: domain.ErrAlreadyReturned},
		{name: "plain", err: errors.New("boom"), want: domain.KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.Classify(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.want, domain.KindOf(got))
			if tt.is != nil {
				assert.ErrorIs(t, got, tt.is)
			}
		})
	}
}

func TestMigrations(t *testing.T) {
	names, err := store.Migrations()
	require.NoError(t, err)
	assert.Equal(t, []string{"migrations/0001_catalog.up.sql", "migrations/0002_ledger.up.sql"}, names)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testutil.NewPostgres(t, nil)

	require.NoError(t, db.Store.Migrate(db.Ctx))

	var applied int
	require.NoError(t, db.Pool.QueryRow(db.Ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 2, applied)
}

func TestSeedAdvancesSequences(t *testing.T) {
	db := testutil.NewPostgres(t, testutil.DefaultFixture())

	var next int32
	require.NoError(t, db.Pool.QueryRow(db.Ctx, `INSERT INTO inventory (film_id) VALUES ($1) RETURNING inventory_id`, testutil.FilmNoCopies).Scan(&next))
	assert.Equal(t, int32(5), next)
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	payload := `{
        "films": [{"film_id": 7, "title": "Alien Center", "rental_rate": "2.99", "rental_duration": 6, "category_id": 1}],
        "inventory": [{"inventory_id": 11, "film_id": 7}]
    }`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	fx, err := store.LoadFixture(path)
	require.NoError(t, err)
	require.Len(t, fx.Films, 1)
	assert.Equal(t, "2.99", fx.Films[0].RentalRate.StringFixed(2))
	require.NotNil(t, fx.Films[0].CategoryID)
	assert.Equal(t, int32(1), *fx.Films[0].CategoryID)
	assert.Equal(t, []store.FixtureInventory{{ID: 11, FilmID: 7}}, fx.Inventory)

	_, err = store.LoadFixture(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := testutil.NewPostgres(t, testutil.DefaultFixture())
	sentinel := errors.New("abort")

	err := db.Store.WithTx(db.Ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(db.Ctx, `DELETE FROM inventory WHERE inventory_id = 4`); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	var n int
	require.NoError(t, db.Pool.QueryRow(db.Ctx, `SELECT COUNT(*) FROM inventory WHERE inventory_id = 4`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestWithReadTxIsReadOnly(t *testing.T) {
	db := testutil.NewPostgres(t, testutil.DefaultFixture())

	err := db.Store.WithReadTx(db.Ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(db.Ctx, `DELETE FROM inventory WHERE inventory_id = 4`)
		return err
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, pgerrcode.ReadOnlySQLTransaction, pgErr.Code)
}

func TestHealthCheck(t *testing.T) {
	db := testutil.NewPostgres(t, nil)
	assert.NoError(t, db.Store.HealthCheck(db.Ctx))
}
