package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"groundwatch/internal/database"
	"groundwatch/internal/detector"
	"groundwatch/internal/forecast"
	"groundwatch/internal/metrics"
	"groundwatch/internal/models"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the read side of the station database
type Store interface {
	GetAllStations(ctx context.Context) ([]models.Station, error)
	GetStation(ctx context.Context, id string) (*models.Station, error)
	GetHistoricalData(ctx context.Context, stationID string, days int) ([]models.HistoricalPoint, error)
	GetLatestForecast(ctx context.Context, stationID string) (*models.StoredForecast, error)
	Ping(ctx context.Context) error
}

type Forecaster interface {
	Generate(ctx context.Context, stationID string, history []models.HistoricalPoint, days int) models.ForecastResult
}

type Options struct {
	DefaultDays int
	MaxDays     int
	HistoryDays int // reading history fed to on-demand forecasts
}

// ForecastRequest forecasts a caller-supplied history
type ForecastRequest struct {
	StationID string                   `json:"station_id" validate:"required,max=64"`
	Days      int                      `json:"days" validate:"gte=0"`
	History   []models.HistoricalPoint `json:"history" validate:"max=10000,dive"`
}

// Advisory is a recommendation with the tone a client should show it in
type Advisory struct {
	Text string        `json:"text"`
	Tone forecast.Tone `json:"tone"`
}

// ForecastResponse is a forecast result with its dashboard summary
type ForecastResponse struct {
	models.ForecastResult
	Trend      forecast.TrendDirection `json:"trend"`
	Risk       forecast.RiskLevel      `json:"risk"`
	Advisories []Advisory              `json:"advisories"`
}

// Server represents the HTTP server
type Server struct {
	store    Store
	engine   Forecaster
	opts     Options
	detector *detector.Detector
	alerts   *detector.AlertSuggester
	validate *validator.Validate
	router   chi.Router
	http     *http.Server
}

// NewServer creates a new HTTP server
func NewServer(store Store, engine Forecaster, opts Options) *Server {
	if opts.DefaultDays <= 0 {
		opts.DefaultDays = forecast.DefaultDays
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 90
	}
	if opts.MaxDays < opts.DefaultDays {
		opts.MaxDays = opts.DefaultDays
	}

	s := &Server{
		store:    store,
		engine:   engine,
		opts:     opts,
		detector: detector.NewDetector(),
		alerts:   detector.NewAlertSuggester(),
		validate: validator.New(),
		router:   chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(recordRequests)

	// Register routes
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Post("/forecast", s.handleForecast)
	s.router.Route("/stations", func(r chi.Router) {
		r.Get("/", s.handleStations)
		r.Get("/{id}", s.handleStation)
		r.Get("/{id}/history", s.handleHistory)
		r.Get("/{id}/anomalies", s.handleAnomalies)
		r.Get("/{id}/forecast", s.handleStationForecast)
		r.Get("/{id}/forecast/latest", s.handleLatestForecast)
	})

	return s
}

// Handler returns the routed handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a started server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// recordRequests records request metrics under the matched route pattern
func recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(route, r.Method, status, time.Since(started))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeStoreError maps store errors onto status codes
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrStationNotFound), errors.Is(err, database.ErrNoForecast):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		log.Printf("Store error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// parseDays reads the days query parameter, falling back to def
func parseDays(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return def, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("days must be an integer")
	}
	if days < 1 || days > max {
		return 0, fmt.Errorf("days must be between 1 and %d", max)
	}
	return days, nil
}

func newForecastResponse(result models.ForecastResult) ForecastResponse {
	advisories := make([]Advisory, len(result.Recommendations))
	for i, rec := range result.Recommendations {
		advisories[i] = Advisory{Text: rec, Tone: forecast.Classify(rec)}
	}
	return ForecastResponse{
		ForecastResult: result,
		Trend:          forecast.Trend(result.Forecast),
		Risk:           forecast.Risk(result.Forecast),
		Advisories:     advisories,
	}
}

// handleHealth returns the server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		log.Printf("Health check failed: %v", err)
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]string{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.GetAllStations(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if stations == nil {
		stations = []models.Station{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(stations),
		"stations": stations,
	})
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	station, err := s.store.GetStation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, station)
}

// handleHistory returns a station's readings, days defaulting to the configured history window
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	days, err := parseDays(r, s.opts.HistoryDays, 3650)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetStation(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	history, err := s.store.GetHistoricalData(r.Context(), id, days)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if history == nil {
		history = []models.HistoricalPoint{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"station_id": id,
		"days":       days,
		"count":      len(history),
		"readings":   history,
	})
}

// handleAnomalies scans the station's history for sudden drops and spikes
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	days, err := parseDays(r, s.opts.HistoryDays, 3650)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetStation(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	history, err := s.store.GetHistoricalData(r.Context(), id, days)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	anomalies := s.detector.DetectAnomalies(id, history)
	suggestions := s.alerts.SuggestAlerts(anomalies)
	if anomalies == nil {
		anomalies = []models.Anomaly{}
	}
	if suggestions == nil {
		suggestions = []models.AlertSuggestion{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"station_id":  id,
		"days":        days,
		"anomalies":   anomalies,
		"suggestions": suggestions,
	})
}

// handleStationForecast runs the engine on the station's stored history
func (s *Server) handleStationForecast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	days, err := parseDays(r, s.opts.DefaultDays, s.opts.MaxDays)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetStation(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	history, err := s.store.GetHistoricalData(r.Context(), id, s.opts.HistoryDays)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	result := s.engine.Generate(r.Context(), id, history, days)
	writeJSON(w, http.StatusOK, newForecastResponse(result))
}

func (s *Server) handleLatestForecast(w http.ResponseWriter, r *http.Request) {
	stored, err := s.store.GetLatestForecast(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":       stored.JobID,
		"generated_at": stored.GeneratedAt,
		"forecast":     newForecastResponse(stored.Result),
	})
}

// handleForecast forecasts a history posted by the caller
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Days > s.opts.MaxDays {
		http.Error(w, fmt.Sprintf("days must be between 1 and %d", s.opts.MaxDays), http.StatusBadRequest)
		return
	}
	if req.Days == 0 {
		req.Days = s.opts.DefaultDays
	}

	result := s.engine.Generate(r.Context(), req.StationID, req.History, req.Days)
	writeJSON(w, http.StatusOK, newForecastResponse(result))
}
