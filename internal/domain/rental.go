package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the derived lifecycle state of a rental row that still exists.
// Canceled rentals are deleted, so they never surface as a Status.
type Status string

const (
	StatusActive   Status = "active"
	StatusReturned Status = "returned"
)

// Payment mirrors a row of the payment table.
type Payment struct {
	ID          int32
	RentalID    int32
	CustomerID  int32
	StaffID     int32
	Amount      decimal.Decimal
	PaymentDate time.Time
}

// RentalRecord is the joined view of a rental returned by create and list.
type RentalRecord struct {
	RentalID           int32
	RentalDate         time.Time
	ReturnDate         *time.Time
	InventoryID        int32
	CustomerID         int32
	StaffID            int32
	FilmID             int32
	FilmTitle          string
	CustomerName       string
	StaffName          string
	RentalRate         decimal.Decimal
	RentalDuration     int
	ExpectedReturnDate time.Time
}

// Status reports Active while the return date is unset.
func (r RentalRecord) Status() Status {
	if r.ReturnDate == nil {
		return StatusActive
	}
	return StatusReturned
}

// ReturnResult is produced by a successful return.
type ReturnResult struct {
	RentalID    int32
	ReturnDate  time.Time
	DaysRented  int
	TotalAmount decimal.Decimal
}

// CancelSnapshot captures the display data of a rental before it is deleted.
type CancelSnapshot struct {
	RentalID     int32
	FilmTitle    string
	CustomerName string
	StaffName    string
}

// RentalHistoryEntry is one line of a customer's rental history.
// DaysRented and PaymentAmount are only set once the rental was returned.
type RentalHistoryEntry struct {
	RentalID      int32
	FilmTitle     string
	RentalRate    decimal.Decimal
	RentalDate    time.Time
	ReturnDate    *time.Time
	PaymentAmount *decimal.Decimal
	DaysRented    *int
}

// RentalList is a page of rentals plus the size of the whole ledger.
type RentalList struct {
	Items []RentalRecord
	Total int64
}
