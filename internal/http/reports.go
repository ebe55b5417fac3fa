package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/desco95/dvdrental/internal/domain"
	"github.com/desco95/dvdrental/internal/report"
)

type mostRentedQuery struct {
	Limit int `validate:"min=1,max=100"`
}

type unreturnedEntryResponse struct {
	RentalID           int32       `json:"rental_id"`
	FilmTitle          string      `json:"film_title"`
	CustomerName       string      `json:"customer_name"`
	CustomerEmail      *string     `json:"customer_email"`
	RentalDate         time.Time   `json:"rental_date"`
	ExpectedReturnDate time.Time   `json:"expected_return_date"`
	DaysOverdue        int         `json:"days_overdue"`
	RentalRate         json.Number `json:"rental_rate"`
}

type unreturnedResponse struct {
	Success      bool                      `json:"success"`
	Count        int                       `json:"count"`
	OverdueCount int                       `json:"overdue_count"`
	GeneratedAt  time.Time                 `json:"generated_at"`
	Data         []unreturnedEntryResponse `json:"data"`
}

type mostRentedEntryResponse struct {
	FilmID       int32       `json:"film_id"`
	Title        string      `json:"title"`
	Category     *string     `json:"category"`
	TotalRentals int64       `json:"total_rentals"`
	RentalRate   json.Number `json:"rental_rate"`
	TotalRevenue json.Number `json:"total_revenue"`
}

type mostRentedResponse struct {
	Success     bool                      `json:"success"`
	Count       int                       `json:"count"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Data        []mostRentedEntryResponse `json:"data"`
}

type staffRevenueEntryResponse struct {
	StaffID        int32       `json:"staff_id"`
	StaffName      string      `json:"staff_name"`
	Email          *string     `json:"email"`
	TotalRentals   int64       `json:"total_rentals"`
	TotalPayments  int64       `json:"total_payments"`
	TotalRevenue   json.Number `json:"total_revenue"`
	AveragePayment json.Number `json:"average_payment"`
}

type staffRevenueResponse struct {
	Success         bool                        `json:"success"`
	Count           int                         `json:"count"`
	TotalRevenueAll json.Number                 `json:"total_revenue_all_staff"`
	GeneratedAt     time.Time                   `json:"generated_at"`
	Data            []staffRevenueEntryResponse `json:"data"`
}

type staffRecentRentalResponse struct {
	RentalID      int32        `json:"rental_id"`
	FilmTitle     string       `json:"film_title"`
	RentalDate    time.Time    `json:"rental_date"`
	ReturnDate    *time.Time   `json:"return_date"`
	PaymentAmount *json.Number `json:"payment_amount"`
}

type staffRevenueDetailResponse struct {
	Success       bool                        `json:"success"`
	Staff         staffRevenueEntryResponse   `json:"staff"`
	RecentRentals []staffRecentRentalResponse `json:"recent_rentals"`
	GeneratedAt   time.Time                   `json:"generated_at"`
}

type customerReportResponse struct {
	Success       bool                   `json:"success"`
	Customer      customerResponse       `json:"customer"`
	TotalRentals  int                    `json:"total_rentals"`
	ActiveRentals int                    `json:"active_rentals"`
	TotalSpent    json.Number            `json:"total_spent"`
	GeneratedAt   time.Time              `json:"generated_at"`
	Rentals       []historyEntryResponse `json:"rentals"`
}

func (s *Server) handleUnreturned(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Unreturned(r.Context())
	if err != nil {
		s.respondServiceError(w, r, "build unreturned report", err)
		return
	}

	items := make([]unreturnedEntryResponse, 0, len(rep.Entries))
	for _, e := range rep.Entries {
		items = append(items, unreturnedEntryResponse{
			RentalID:           e.RentalID,
			FilmTitle:          e.FilmTitle,
			CustomerName:       e.CustomerName,
			CustomerEmail:      e.CustomerEmail,
			RentalDate:         e.RentalDate,
			ExpectedReturnDate: e.ExpectedReturnDate,
			DaysOverdue:        e.DaysOverdue,
			RentalRate:         money(e.RentalRate),
		})
	}
	s.respondJSON(w, http.StatusOK, unreturnedResponse{
		Success:      true,
		Count:        len(items),
		OverdueCount: rep.OverdueCount,
		GeneratedAt:  rep.GeneratedAt,
		Data:         items,
	})
}

func (s *Server) handleMostRented(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", report.DefaultMostRentedLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	q := mostRentedQuery{Limit: limit}
	if err := s.validate.Struct(q); err != nil {
		s.respondValidationError(w, err)
		return
	}

	rep, err := s.reports.MostRented(r.Context(), q.Limit)
	if err != nil {
		s.respondServiceError(w, r, "build most rented report", err)
		return
	}

	items := make([]mostRentedEntryResponse, 0, len(rep.Entries))
	for _, e := range rep.Entries {
		items = append(items, mostRentedEntryResponse{
			FilmID:       e.FilmID,
			Title:        e.Title,
			Category:     e.Category,
			TotalRentals: e.TotalRentals,
			RentalRate:   money(e.RentalRate),
			TotalRevenue: money(e.TotalRevenue),
		})
	}
	s.respondJSON(w, http.StatusOK, mostRentedResponse{
		Success:     true,
		Count:       len(items),
		GeneratedAt: rep.GeneratedAt,
		Data:        items,
	})
}

func (s *Server) handleStaffRevenue(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.StaffRevenue(r.Context())
	if err != nil {
		s.respondServiceError(w, r, "build staff revenue report", err)
		return
	}

	items := make([]staffRevenueEntryResponse, 0, len(rep.Entries))
	for _, e := range rep.Entries {
		items = append(items, toStaffRevenueResponse(e))
	}
	s.respondJSON(w, http.StatusOK, staffRevenueResponse{
		Success:         true,
		Count:           len(items),
		TotalRevenueAll: money(rep.TotalRevenueAll),
		GeneratedAt:     rep.GeneratedAt,
		Data:            items,
	})
}

func (s *Server) handleStaffRevenueByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	detail, err := s.reports.StaffRevenueByID(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, "build staff revenue report", err)
		return
	}

	recent := make([]staffRecentRentalResponse, 0, len(detail.RecentRentals))
	for _, rr := range detail.RecentRentals {
		recent = append(recent, staffRecentRentalResponse{
			RentalID:      rr.RentalID,
			FilmTitle:     rr.FilmTitle,
			RentalDate:    rr.RentalDate,
			ReturnDate:    rr.ReturnDate,
			PaymentAmount: optionalMoney(rr.PaymentAmount),
		})
	}
	s.respondJSON(w, http.StatusOK, staffRevenueDetailResponse{
		Success:       true,
		Staff:         toStaffRevenueResponse(detail.Entry),
		RecentRentals: recent,
		GeneratedAt:   detail.GeneratedAt,
	})
}

func (s *Server) handleCustomerRentalReport(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	rep, err := s.reports.CustomerRentals(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, "build customer rental report", err)
		return
	}

	s.respondJSON(w, http.StatusOK, customerReportResponse{
		Success:       true,
		Customer:      toCustomerResponse(rep.Customer),
		TotalRentals:  rep.TotalRentals,
		ActiveRentals: rep.ActiveRentals,
		TotalSpent:    money(rep.TotalSpent),
		GeneratedAt:   rep.GeneratedAt,
		Rentals:       toHistoryResponse(rep.Rentals),
	})
}

func toStaffRevenueResponse(e domain.StaffRevenueEntry) staffRevenueEntryResponse {
	return staffRevenueEntryResponse{
		StaffID:        e.StaffID,
		StaffName:      e.StaffName,
		Email:          e.Email,
		TotalRentals:   e.TotalRentals,
		TotalPayments:  e.TotalPayments,
		TotalRevenue:   money(e.TotalRevenue),
		AveragePayment: money(e.AveragePayment),
	}
}
