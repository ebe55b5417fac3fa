package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/desco95/dvdrental/internal/domain"
	"github.com/desco95/dvdrental/internal/rental"
)

type rentalCreateRequest struct {
	CustomerID int32 `json:"customer_id" validate:"required,gt=0"`
	FilmID     int32 `json:"film_id" validate:"required,gt=0"`
	StaffID    int32 `json:"staff_id" validate:"required,gt=0"`
}

type pageQuery struct {
	Limit  int `validate:"min=1,max=1000"`
	Offset int `validate:"min=0"`
}

type rentalResponse struct {
	RentalID           int32       `json:"rental_id"`
	RentalDate         time.Time   `json:"rental_date"`
	ReturnDate         *time.Time  `json:"return_date"`
	Status             string      `json:"status"`
	InventoryID        int32       `json:"inventory_id"`
	CustomerID         int32       `json:"customer_id"`
	StaffID            int32       `json:"staff_id"`
	FilmID             int32       `json:"film_id"`
	FilmTitle          string      `json:"film_title"`
	CustomerName       string      `json:"customer_name"`
	StaffName          string      `json:"staff_name"`
	RentalRate         json.Number `json:"rental_rate"`
	RentalDuration     int         `json:"rental_duration"`
	ExpectedReturnDate time.Time   `json:"expected_return_date"`
}

type rentalListResponse struct {
	Success bool             `json:"success"`
	Count   int              `json:"count"`
	Total   int64            `json:"total"`
	Data    []rentalResponse `json:"data"`
}

type messageResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type returnResponse struct {
	RentalID    int32       `json:"rental_id"`
	ReturnDate  time.Time   `json:"return_date"`
	DaysRented  int         `json:"days_rented"`
	TotalAmount json.Number `json:"total_amount"`
}

type cancelResponse struct {
	RentalID     int32  `json:"rental_id"`
	FilmTitle    string `json:"film_title"`
	CustomerName string `json:"customer_name"`
	StaffName    string `json:"staff_name"`
}

type customerResponse struct {
	CustomerID int32   `json:"customer_id"`
	Name       string  `json:"name"`
	Email      *string `json:"email"`
}

type historyEntryResponse struct {
	RentalID      int32        `json:"rental_id"`
	FilmTitle     string       `json:"film_title"`
	RentalRate    json.Number  `json:"rental_rate"`
	RentalDate    time.Time    `json:"rental_date"`
	ReturnDate    *time.Time   `json:"return_date"`
	PaymentAmount *json.Number `json:"payment_amount"`
	DaysRented    *int         `json:"days_rented"`
}

type customerHistoryResponse struct {
	Success      bool                   `json:"success"`
	Customer     customerResponse       `json:"customer"`
	TotalRentals int                    `json:"total_rentals"`
	Data         []historyEntryResponse `json:"data"`
}

func (s *Server) handleListRentals(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", rental.DefaultListLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	offset, err := parseIntQuery(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	page := pageQuery{Limit: limit, Offset: offset}
	if err := s.validate.Struct(page); err != nil {
		s.respondValidationError(w, err)
		return
	}

	list, err := s.rentals.List(r.Context(), page.Limit, page.Offset)
	if err != nil {
		s.respondServiceError(w, r, "list rentals", err)
		return
	}

	items := make([]rentalResponse, 0, len(list.Items))
	for _, rec := range list.Items {
		items = append(items, toRentalResponse(rec))
	}
	s.respondJSON(w, http.StatusOK, rentalListResponse{
		Success: true,
		Count:   len(items),
		Total:   list.Total,
		Data:    items,
	})
}

func (s *Server) handleCreateRental(w http.ResponseWriter, r *http.Request) {
	var req rentalCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondValidationError(w, err)
		return
	}

	rec, err := s.rentals.Create(r.Context(), rental.CreateRequest{
		CustomerID: req.CustomerID,
		FilmID:     req.FilmID,
		StaffID:    req.StaffID,
	})
	if err != nil {
		s.respondServiceError(w, r, "create rental", err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/rentals/%d", rec.RentalID))
	s.respondJSON(w, http.StatusCreated, messageResponse{
		Success: true,
		Message: "Rental created",
		Data:    toRentalResponse(rec),
	})
}

func (s *Server) handleReturnRental(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	res, err := s.rentals.Return(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, "return rental", err)
		return
	}

	s.respondJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "Return processed",
		Data: returnResponse{
			RentalID:    res.RentalID,
			ReturnDate:  res.ReturnDate,
			DaysRented:  res.DaysRented,
			TotalAmount: money(res.TotalAmount),
		},
	})
}

func (s *Server) handleCancelRental(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	snap, err := s.rentals.Cancel(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, "cancel rental", err)
		return
	}

	s.respondJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "Rental canceled",
		Data: cancelResponse{
			RentalID:     snap.RentalID,
			FilmTitle:    snap.FilmTitle,
			CustomerName: snap.CustomerName,
			StaffName:    snap.StaffName,
		},
	})
}

func (s *Server) handleCustomerRentals(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	customer, entries, err := s.rentals.CustomerHistory(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, "load customer rentals", err)
		return
	}

	s.respondJSON(w, http.StatusOK, customerHistoryResponse{
		Success:      true,
		Customer:     toCustomerResponse(customer),
		TotalRentals: len(entries),
		Data:         toHistoryResponse(entries),
	})
}

func toRentalResponse(rec domain.RentalRecord) rentalResponse {
	return rentalResponse{
		RentalID:           rec.RentalID,
		RentalDate:         rec.RentalDate,
		ReturnDate:         rec.ReturnDate,
		Status:             string(rec.Status()),
		InventoryID:        rec.InventoryID,
		CustomerID:         rec.CustomerID,
		StaffID:            rec.StaffID,
		FilmID:             rec.FilmID,
		FilmTitle:          rec.FilmTitle,
		CustomerName:       rec.CustomerName,
		StaffName:          rec.StaffName,
		RentalRate:         money(rec.RentalRate),
		RentalDuration:     rec.RentalDuration,
		ExpectedReturnDate: rec.ExpectedReturnDate,
	}
}

func toCustomerResponse(c domain.Customer) customerResponse {
	return customerResponse{
		CustomerID: c.ID,
		Name:       c.FullName(),
		Email:      c.Email,
	}
}

func toHistoryResponse(entries []domain.RentalHistoryEntry) []historyEntryResponse {
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			RentalID:      e.RentalID,
			FilmTitle:     e.FilmTitle,
			RentalRate:    money(e.RentalRate),
			RentalDate:    e.RentalDate,
			ReturnDate:    e.ReturnDate,
			PaymentAmount: optionalMoney(e.PaymentAmount),
			DaysRented:    e.DaysRented,
		})
	}
	return out
}
