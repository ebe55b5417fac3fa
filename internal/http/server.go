package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/desco95/dvdrental/internal/config"
	"github.com/desco95/dvdrental/internal/domain"
	"github.com/desco95/dvdrental/internal/rental"
	"github.com/desco95/dvdrental/internal/store"
)

// HealthChecker reports whether the ledger store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type poolStatser interface {
	Stats() store.PoolStats
}

type healthResponse struct {
	Status string           `json:"status"`
	Pool   *store.PoolStats `json:"pool,omitempty"`
}

// RentalService is the lifecycle surface exposed over HTTP.
type RentalService interface {
	Create(ctx context.Context, req rental.CreateRequest) (domain.RentalRecord, error)
	Return(ctx context.Context, rentalID int32) (domain.ReturnResult, error)
	Cancel(ctx context.Context, rentalID int32) (domain.CancelSnapshot, error)
	List(ctx context.Context, limit, offset int) (domain.RentalList, error)
	CustomerHistory(ctx context.Context, customerID int32) (domain.Customer, []domain.RentalHistoryEntry, error)
}

// ReportService is the read-only report surface exposed over HTTP.
type ReportService interface {
	Unreturned(ctx context.Context) (domain.UnreturnedReport, error)
	MostRented(ctx context.Context, limit int) (domain.MostRentedReport, error)
	StaffRevenue(ctx context.Context) (domain.StaffRevenueReport, error)
	StaffRevenueByID(ctx context.Context, staffID int32) (domain.StaffRevenueDetail, error)
	CustomerRentals(ctx context.Context, customerID int32) (domain.CustomerRentalReport, error)
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	health   HealthChecker
	rentals  RentalService
	reports  ReportService
	logger   *zap.Logger
	validate *validator.Validate
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, health HealthChecker, rentals RentalService, reports ReportService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	s := &Server{
		cfg:      cfg,
		health:   health,
		rentals:  rentals,
		reports:  reports,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Route("/api/rentals", func(r chi.Router) {
		r.Get("/", s.handleListRentals)
		r.Post("/", s.handleCreateRental)
		r.Get("/customer/{id}", s.handleCustomerRentals)
		r.Put("/{id}/return", s.handleReturnRental)
		r.Delete("/{id}", s.handleCancelRental)
	})
	s.router.Route("/api/reports", func(r chi.Router) {
		r.Get("/unreturned-dvds", s.handleUnreturned)
		r.Get("/most-rented", s.handleMostRented)
		r.Get("/staff-revenue", s.handleStaffRevenue)
		r.Get("/staff-revenue/{id}", s.handleStaffRevenueByID)
		r.Get("/customer-rentals/{id}", s.handleCustomerRentalReport)
	})
}

// Handler exposes the routed handler, e.g. for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is done or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http: listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.health == nil {
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "store not configured")
		return
	}
	if err := s.health.HealthCheck(ctx); err != nil {
		s.logger.Warn("http: health check failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
		return
	}
	resp := healthResponse{Status: "ok"}
	if ps, ok := s.health.(poolStatser); ok {
		stats := ps.Stats()
		resp.Pool = &stats
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// accessLog writes one structured line per request.
func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			defer func() {
				logger.Info("http: request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(started)),
					zap.String("remote", r.RemoteAddr),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
