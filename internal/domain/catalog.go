package domain

import "github.com/shopspring/decimal"

// Customer is a renting customer. The engine only reads customers.
type Customer struct {
	ID        int32
	FirstName string
	LastName  string
	Email     *string
	Active    bool
}

// FullName matches the "first last" display form used across rental views.
func (c Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

// Staff is an employee that rentals and revenue are attributed to.
type Staff struct {
	ID        int32
	FirstName string
	LastName  string
	Email     *string
	Active    bool
}

// FullName matches the "first last" display form used across rental views.
func (s Staff) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Film is the catalog fact a rental is billed against.
type Film struct {
	ID             int32
	Title          string
	RentalRate     decimal.Decimal
	RentalDuration int
}
