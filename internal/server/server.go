// Package server is a local collector implementing the backend API the SDK
// talks to, for development and integration tests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vincentbai/lynk-embed/internal/database"
	"github.com/vincentbai/lynk-embed/internal/httpx"
	xlog "github.com/vincentbai/lynk-embed/internal/log"
	"github.com/vincentbai/lynk-embed/internal/metrics"
	"github.com/vincentbai/lynk-embed/internal/models"
)

// Config configures a Server.
type Config struct {
	Address string
	// APIKeys accepted in X-Lynk-API-Key. Empty accepts any key.
	APIKeys []string
	// EventsPerMinute caps POST /events per API key. Zero means 600.
	EventsPerMinute int
	// Tracing wraps the handler with OpenTelemetry instrumentation.
	Tracing bool
	// PublicURL is where the demo page delivers its events. Defaults to
	// http://Address.
	PublicURL string
}

type Server struct {
	db      *database.Database
	address string
	apiKeys []string
	limit   int
	tracing bool
	server  *http.Server
	logger  zerolog.Logger

	publicURL  string
	selfClient *http.Client

	now   func() time.Time
	newID func() string
}

func NewServer(db *database.Database, cfg Config) *Server {
	limit := cfg.EventsPerMinute
	if limit <= 0 {
		limit = 600
	}
	publicURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = "http://" + cfg.Address
	}
	return &Server{
		db:         db,
		address:    cfg.Address,
		apiKeys:    cfg.APIKeys,
		limit:      limit,
		tracing:    cfg.Tracing,
		logger:     xlog.WithComponent("collector"),
		publicURL:  publicURL,
		selfClient: httpx.NewClient(5 * time.Second),
		now:        time.Now,
		newID:      func() string { return "bk_" + uuid.NewString() },
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Error: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleEvents(w http.ResponseWriter, request *http.Request) {
	var batch models.EventBatch
	if err := json.NewDecoder(request.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON format")
		return
	}
	if len(batch.Events) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	logger := xlog.WithContext(request.Context(), s.logger)
	if err := s.db.InsertEvents(request.Context(), batch.Events); err != nil {
		metrics.AddCollectorEvents("rejected", len(batch.Events))
		if errors.Is(err, database.ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
			return
		}
		logger.Error().Err(err).Int(xlog.FieldCount, len(batch.Events)).Msg("Database error")
		writeError(w, http.StatusInternalServerError, "storage_failed", "Failed to store events")
		return
	}
	metrics.AddCollectorEvents("accepted", len(batch.Events))
	logger.Debug().
		Int(xlog.FieldCount, len(batch.Events)).
		Str(xlog.FieldAcademyID, batch.Events[0].AcademyID).
		Msg("Events stored")
	w.WriteHeader(http.StatusNoContent) // success, no body
}

func (s *Server) handleEmbedConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.db.AcademyConfig(r.Context(), chi.URLParam(r, "academyID"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	// Only bookable batches are ever listed, so available=true is implied.
	batches, err := s.db.AvailableBatches(r.Context(), chi.URLParam(r, "academyID"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleAppointments(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
	}
	slots, err := s.db.OpenSlots(r.Context(), chi.URLParam(r, "academyID"), date)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *Server) handleBookings(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON format")
		return
	}
	booking, err := s.db.CreateBooking(r.Context(), s.newID(), req, s.now())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	metrics.IncCollectorBookings()
	logger := xlog.WithContext(r.Context(), s.logger)
	logger.Info().
		Str(xlog.FieldAcademyID, booking.AcademyID).
		Str("booking_id", booking.ID).
		Str("type", booking.Type).
		Msg("Booking created")
	writeJSON(w, http.StatusCreated, booking)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, database.ErrUnavailable):
		writeError(w, http.StatusConflict, "unavailable", err.Error())
	case errors.Is(err, database.ErrInvalidBooking):
		writeError(w, http.StatusBadRequest, "invalid_booking", err.Error())
	default:
		logger := xlog.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Str(xlog.FieldPath, r.URL.Path).Msg("Database error")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(cors)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/demo/{academyID}", s.handleDemoPage)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.With(rateLimit(s.limit, time.Minute)).Post("/events", s.handleEvents)
		r.Get("/academies/{academyID}/embed-config", s.handleEmbedConfig)
		r.Get("/academies/{academyID}/batches", s.handleBatches)
		r.Get("/academies/{academyID}/appointments", s.handleAppointments)
		r.Post("/bookings", s.handleBookings)
	})

	if s.tracing {
		return otelhttp.NewHandler(r, "lynk-collector")
	}
	return r
}

// Handler returns the collector's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      s.setupRoutes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.address).Msg("Lynk collector listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	s.logger.Info().Msg("Shutting down server...")

	shutdownContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownContext); err != nil {
		return err
	}

	s.logger.Info().Msg("Server exited")
	return nil
}
