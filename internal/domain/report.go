package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnreturnedEntry is one active rental in the overdue report.
type UnreturnedEntry struct {
	RentalID           int32
	FilmTitle          string
	CustomerName       string
	CustomerEmail      *string
	RentalDate         time.Time
	ExpectedReturnDate time.Time
	DaysOverdue        int
	RentalRate         decimal.Decimal
}

// UnreturnedReport lists every active rental, oldest first.
type UnreturnedReport struct {
	Entries      []UnreturnedEntry
	OverdueCount int
	GeneratedAt  time.Time
}

// MostRentedEntry ranks a film by how often it was rented.
// TotalRevenue is TotalRentals x RentalRate, not the sum of collected payments.
type MostRentedEntry struct {
	FilmID       int32
	Title        string
	Category     *string
	TotalRentals int64
	RentalRate   decimal.Decimal
	TotalRevenue decimal.Decimal
}

// MostRentedReport is the popularity ranking.
type MostRentedReport struct {
	Entries     []MostRentedEntry
	GeneratedAt time.Time
}

// StaffRevenueEntry aggregates rentals and payments attributed to one staff member.
type StaffRevenueEntry struct {
	StaffID        int32
	StaffName      string
	Email          *string
	TotalRentals   int64
	TotalPayments  int64
	TotalRevenue   decimal.Decimal
	AveragePayment decimal.Decimal
}

// StaffRevenueReport ranks all staff by collected revenue.
type StaffRevenueReport struct {
	Entries         []StaffRevenueEntry
	TotalRevenueAll decimal.Decimal
	GeneratedAt     time.Time
}

// StaffRecentRental is one of a staff member's latest rentals.
type StaffRecentRental struct {
	RentalID      int32
	FilmTitle     string
	RentalDate    time.Time
	ReturnDate    *time.Time
	PaymentAmount *decimal.Decimal
}

// StaffRevenueDetail is the per-staff variant of the revenue report.
type StaffRevenueDetail struct {
	Entry         StaffRevenueEntry
	RecentRentals []StaffRecentRental
	GeneratedAt   time.Time
}

// CustomerRentalReport summarises a customer's whole rental history.
type CustomerRentalReport struct {
	Customer      Customer
	Rentals       []RentalHistoryEntry
	TotalRentals  int
	ActiveRentals int
	TotalSpent    decimal.Decimal
	GeneratedAt   time.Time
}
