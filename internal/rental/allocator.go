package rental

import (
	"context"
	"fmt"

	"github.com/desco95/dvdrental/internal/repository"
)

// Allocator reserves a free copy of a film inside the caller's transaction.
type Allocator struct {
	rentals *repository.RentalsRepository
}

// NewAllocator binds an allocator to transaction-scoped repositories.
func NewAllocator(repo *repository.Repository) *Allocator {
	return &Allocator{rentals: repo.Rentals}
}

// Allocate returns the lowest inventory id of filmID with no active rental
// and holds a row lock on it until the transaction ends. When every copy is
// rented out, or locked by a concurrent allocation, it returns
// domain.ErrNoAvailableCopy.
func (a *Allocator) Allocate(ctx context.Context, filmID int32) (int32, error) {
	inventoryID, err := a.rentals.FindAvailableCopy(ctx, filmID)
	if err != nil {
		return 0, fmt.Errorf("allocate film %d: %w", filmID, err)
	}
	return inventoryID, nil
}
