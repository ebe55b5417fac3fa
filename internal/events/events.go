// Package events publishes rental lifecycle notifications after the ledger
// has committed them.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type names a lifecycle transition.
type Type string

const (
	RentalCreated  Type = "rental.created"
	RentalReturned Type = "rental.returned"
	RentalCanceled Type = "rental.canceled"
)

// RentalEvent is the payload written for every committed transition.
type RentalEvent struct {
	ID          string           `json:"event_id"`
	Type        Type             `json:"type"`
	RentalID    int32            `json:"rental_id"`
	InventoryID int32            `json:"inventory_id,omitempty"`
	FilmID      int32            `json:"film_id,omitempty"`
	CustomerID  int32            `json:"customer_id,omitempty"`
	StaffID     int32            `json:"staff_id,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// NewRentalEvent stamps a new event with a random id.
func NewRentalEvent(t Type, rentalID int32, at time.Time) RentalEvent {
	return RentalEvent{
		ID:         uuid.NewString(),
		Type:       t,
		RentalID:   rentalID,
		OccurredAt: at.UTC(),
	}
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event RentalEvent) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, RentalEvent) error { return nil }
func (NopPublisher) Close() error                              { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []RentalEvent
	Err    error
}

func (r *Recorder) Publish(_ context.Context, event RentalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []RentalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RentalEvent, len(r.events))
	copy(out, r.events)
	return out
}
