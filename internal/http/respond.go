package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/desco95/dvdrental/internal/domain"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Warn("http: failed to encode response", zap.Error(err))
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondValidationError reports struct validation failures field by field.
func (s *Server) respondValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}
	details := make([]fieldError, 0, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
		names = append(names, fe.Field())
	}
	s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Code:    "VALIDATION_ERROR",
		Message: "invalid value for " + strings.Join(names, ", "),
		Details: details,
	})
}

// respondServiceError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", notFoundMessage(err))
	case domain.KindConflict:
		s.respondError(w, http.StatusConflict, "NO_AVAILABLE_COPY", "No copies of this film are available")
	case domain.KindInvalidState:
		msg := "Rental is already returned"
		if errors.Is(err, domain.ErrCannotCancelReturned) {
			msg = "A returned rental cannot be canceled"
		}
		s.respondError(w, http.StatusConflict, "INVALID_STATE", msg)
	case domain.KindTransient:
		s.logger.Warn("http: transient failure",
			zap.String("op", op),
			zap.String("request_id", requestID(r)),
			zap.Error(err),
		)
		w.Header().Set("Retry-After", "1")
		s.respondError(w, http.StatusServiceUnavailable, "TRY_AGAIN", "The ledger is busy, retry the request")
	default:
		s.logger.Error("http: request failed",
			zap.String("op", op),
			zap.String("request_id", requestID(r)),
			zap.Error(err),
		)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to "+op)
	}
}

func notFoundMessage(err error) string {
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("%s %d not found", nf.Entity, nf.ID)
	}
	return "Resource not found"
}

func parseIDParam(r *http.Request, name string) (int32, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return int32(id), nil
}

func parseIntQuery(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value", key)
	}
	return v, nil
}

// money renders decimals as JSON numbers with two fraction digits.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func optionalMoney(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	m := money(*d)
	return &m
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
