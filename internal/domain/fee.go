package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// ExpectedReturn is the date a rental is due back.
func ExpectedReturn(rentalDate time.Time, rentalDuration int) time.Time {
	return rentalDate.AddDate(0, 0, rentalDuration)
}

// BillableDays counts whole elapsed days between rental and return, with a
// floor of one billable day.
func BillableDays(rentalDate, returnDate time.Time) int {
	days := int(returnDate.Sub(rentalDate) / day)
	if days < 1 {
		return 1
	}
	return days
}

// ComputeFee returns the billable days and the amount owed for a rental.
// The result depends only on its three inputs.
func ComputeFee(rate decimal.Decimal, rentalDate, returnDate time.Time) (int, decimal.Decimal) {
	days := BillableDays(rentalDate, returnDate)
	return days, rate.Mul(decimal.NewFromInt(int64(days)))
}

// DaysOverdue is floor((asOf - expected) / 24h). Negative values mean the
// rental is not due yet.
func DaysOverdue(expected, asOf time.Time) int {
	return int(math.Floor(asOf.Sub(expected).Hours() / 24))
}
