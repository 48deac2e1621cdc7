package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"groundwatch/internal/database"
	"groundwatch/internal/forecast"
	"groundwatch/internal/models"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2025, time.March, 10, 8, 30, 0, 0, time.UTC)

type fakeStore struct {
	stations map[string]models.Station
	history  map[string][]models.HistoricalPoint
	latest   map[string]*models.StoredForecast
	err      error
	pingErr  error
	gotDays  int
}

func (f *fakeStore) GetAllStations(ctx context.Context) ([]models.Station, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Station
	for _, s := range f.stations {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) GetStation(ctx context.Context, id string) (*models.Station, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.stations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrStationNotFound, id)
	}
	return &s, nil
}

func (f *fakeStore) GetHistoricalData(ctx context.Context, stationID string, days int) ([]models.HistoricalPoint, error) {
	f.gotDays = days
	return f.history[stationID], nil
}

func (f *fakeStore) GetLatestForecast(ctx context.Context, stationID string) (*models.StoredForecast, error) {
	stored, ok := f.latest[stationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrNoForecast, stationID)
	}
	return stored, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func readings(n int, level float64) []models.HistoricalPoint {
	coords := &models.Coordinates{Latitude: 26.9157, Longitude: 70.9083}
	out := make([]models.HistoricalPoint, n)
	for i := range out {
		out[i] = models.HistoricalPoint{
			Timestamp:   testNow.AddDate(0, 0, i-n),
			WaterLevel:  level,
			Coordinates: coords,
		}
	}
	return out
}

func newTestServer(store *fakeStore) *Server {
	engine := forecast.NewEngine(nil, forecast.WithClock(func() time.Time { return testNow }))
	return NewServer(store, engine, Options{DefaultDays: 7, MaxDays: 30, HistoryDays: 365})
}

func defaultStore() *fakeStore {
	return &fakeStore{
		stations: map[string]models.Station{
			"RAJ001": {ID: "RAJ001", Name: "Jaisalmer", State: "Rajasthan", Latitude: 26.9157, Longitude: 70.9083},
		},
		history: map[string][]models.HistoricalPoint{"RAJ001": readings(60, 12)},
		latest:  map[string]*models.StoredForecast{},
	}
}

func serve(s *Server, method, target string, body []byte) *http.Response {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w.Result()
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{"database reachable", nil, http.StatusOK, "healthy"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := defaultStore()
			store.pingErr = tt.pingErr

			resp := serve(newTestServer(store), http.MethodGet, "/health", nil)
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("handleHealth() status = %v, want %v", resp.StatusCode, tt.wantStatus)
			}

			contentType := resp.Header.Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("handleHealth() content-type = %v, want application/json", contentType)
			}

			var response map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			if response["status"] != tt.wantBody {
				t.Errorf("handleHealth() status in body = %v, want %v", response["status"], tt.wantBody)
			}

			if response["time"] == "" {
				t.Error("handleHealth() time should not be empty")
			}
		})
	}
}

func TestHandleStations(t *testing.T) {
	resp := serve(newTestServer(defaultStore()), http.MethodGet, "/stations", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handleStations() status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Count    int              `json:"count"`
		Stations []models.Station `json:"stations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Count != 1 || body.Stations[0].ID != "RAJ001" {
		t.Errorf("handleStations() = %+v, want RAJ001", body)
	}
}

func TestHandleStations_StoreError(t *testing.T) {
	store := defaultStore()
	store.err = errors.New("too many connections")

	resp := serve(newTestServer(store), http.MethodGet, "/stations", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("handleStations() status = %v, want %v", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestHandleStation(t *testing.T) {
	tests := []struct {
		target     string
		wantStatus int
	}{
		{"/stations/RAJ001", http.StatusOK},
		{"/stations/NOPE", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			resp := serve(newTestServer(defaultStore()), http.MethodGet, tt.target, nil)
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("GET %s status = %v, want %v", tt.target, resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestHandleHistory(t *testing.T) {
	store := defaultStore()
	resp := serve(newTestServer(store), http.MethodGet, "/stations/RAJ001/history?days=30", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handleHistory() status = %v, want %v", resp.StatusCode, http.StatusOK)
	}
	if store.gotDays != 30 {
		t.Errorf("history days = %d, want 30", store.gotDays)
	}

	var body struct {
		StationID string                   `json:"station_id"`
		Count     int                      `json:"count"`
		Readings  []models.HistoricalPoint `json:"readings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.StationID != "RAJ001" || body.Count != 60 || len(body.Readings) != 60 {
		t.Errorf("handleHistory() = station %s, count %d, readings %d", body.StationID, body.Count, len(body.Readings))
	}
}

func TestHandleAnomalies(t *testing.T) {
	history := readings(60, 12)
	for i := range history {
		if i%2 == 1 {
			history[i].WaterLevel = 12.2
		}
	}
	for _, i := range []int{40, 50, 57} {
		history[i].WaterLevel = 4
	}

	store := defaultStore()
	store.history["RAJ001"] = history

	resp := serve(newTestServer(store), http.MethodGet, "/stations/RAJ001/anomalies", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handleAnomalies() status = %v, want %v", resp.StatusCode, http.StatusOK)
	}
	if store.gotDays != 365 {
		t.Errorf("history days = %d, want 365", store.gotDays)
	}

	var body struct {
		StationID   string                   `json:"station_id"`
		Anomalies   []models.Anomaly         `json:"anomalies"`
		Suggestions []models.AlertSuggestion `json:"suggestions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(body.Anomalies) != 3 {
		t.Fatalf("len(anomalies) = %d, want 3: %+v", len(body.Anomalies), body.Anomalies)
	}
	for _, a := range body.Anomalies {
		if a.Kind != "drop" {
			t.Errorf("anomaly kind = %s, want drop", a.Kind)
		}
	}
	if len(body.Suggestions) != 1 || body.Suggestions[0].Operator != "<" {
		t.Errorf("suggestions = %+v, want one low-level alert", body.Suggestions)
	}
}

func TestHandleAnomalies_UnknownStation(t *testing.T) {
	resp := serve(newTestServer(defaultStore()), http.MethodGet, "/stations/NOPE/anomalies", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("handleAnomalies() status = %v, want %v", resp.StatusCode, http.StatusNotFound)
	}
}

func TestHandleStationForecast(t *testing.T) {
	resp := serve(newTestServer(defaultStore()), http.MethodGet, "/stations/RAJ001/forecast?days=14", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handleStationForecast() status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	var body ForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if body.StationID != "RAJ001" {
		t.Errorf("StationID = %v, want RAJ001", body.StationID)
	}
	if len(body.Forecast) != 14 {
		t.Errorf("len(Forecast) = %d, want 14", len(body.Forecast))
	}
	if body.Trend == "" || body.Risk == "" {
		t.Errorf("Trend = %q, Risk = %q, want both set", body.Trend, body.Risk)
	}
	if len(body.Advisories) != len(body.Recommendations) || len(body.Advisories) == 0 {
		t.Fatalf("advisories = %d, recommendations = %d", len(body.Advisories), len(body.Recommendations))
	}
	for _, a := range body.Advisories {
		if a.Tone != forecast.Classify(a.Text) {
			t.Errorf("advisory %q tone = %v, want %v", a.Text, a.Tone, forecast.Classify(a.Text))
		}
	}
	if want := time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC); !body.Forecast[0].Timestamp.Equal(want) {
		t.Errorf("first day = %v, want %v", body.Forecast[0].Timestamp, want)
	}
}

func TestHandleStationForecast_BadRequests(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"unknown station", "/stations/NOPE/forecast", http.StatusNotFound},
		{"days not a number", "/stations/RAJ001/forecast?days=week", http.StatusBadRequest},
		{"days zero", "/stations/RAJ001/forecast?days=0", http.StatusBadRequest},
		{"days above max", "/stations/RAJ001/forecast?days=31", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(newTestServer(defaultStore()), http.MethodGet, tt.target, nil)
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("GET %s status = %v, want %v", tt.target, resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestHandleLatestForecast(t *testing.T) {
	store := defaultStore()
	store.latest["RAJ001"] = &models.StoredForecast{
		JobID:       "6f1c2a9e-3d4b-4c5e-8f70-112233445566",
		StationID:   "RAJ001",
		GeneratedAt: testNow,
		Result: models.ForecastResult{
			StationID: "RAJ001",
			Forecast: []models.ForecastPoint{
				{PredictedLevel: 2.4, Confidence: 70, UpperBound: 2.8, LowerBound: 2},
				{PredictedLevel: 2.1, Confidence: 68, UpperBound: 2.5, LowerBound: 1.7},
			},
			Model:           "ARIMA",
			Accuracy:        71,
			Recommendations: []string{"Critical: groundwater is projected to fall to 2.10m."},
		},
	}
	server := newTestServer(store)

	resp := serve(server, http.MethodGet, "/stations/RAJ001/forecast/latest", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handleLatestForecast() status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		JobID    string           `json:"job_id"`
		Forecast ForecastResponse `json:"forecast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.JobID != "6f1c2a9e-3d4b-4c5e-8f70-112233445566" {
		t.Errorf("JobID = %v", body.JobID)
	}
	if body.Forecast.Risk != forecast.RiskHigh {
		t.Errorf("Risk = %v, want high", body.Forecast.Risk)
	}
	if body.Forecast.Trend != forecast.TrendDecreasing {
		t.Errorf("Trend = %v, want decreasing", body.Forecast.Trend)
	}
	if body.Forecast.Advisories[0].Tone != forecast.ToneWarning {
		t.Errorf("Tone = %v, want warning", body.Forecast.Advisories[0].Tone)
	}

	missing := serve(server, http.MethodGet, "/stations/GUJ001/forecast/latest", nil)
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing forecast status = %v, want %v", missing.StatusCode, http.StatusNotFound)
	}
}

func TestHandleForecast(t *testing.T) {
	payload, _ := json.Marshal(ForecastRequest{
		StationID: "KER001",
		Days:      10,
		History:   readings(40, 8),
	})

	resp := serve(newTestServer(defaultStore()), http.MethodPost, "/forecast", payload)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handleForecast() status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	var body ForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.StationID != "KER001" || len(body.Forecast) != 10 {
		t.Errorf("handleForecast() = station %s with %d days, want KER001 with 10", body.StationID, len(body.Forecast))
	}
}

func TestHandleForecast_DefaultDays(t *testing.T) {
	resp := serve(newTestServer(defaultStore()), http.MethodPost, "/forecast", []byte(`{"station_id":"X"}`))
	defer resp.Body.Close()

	var body ForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(body.Forecast) != 7 {
		t.Errorf("len(Forecast) = %d, want 7", len(body.Forecast))
	}
}

func TestHandleForecast_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", "invalid json", "Invalid request body"},
		{"missing station id", `{"days": 7}`, "StationID"},
		{"negative days", `{"station_id": "X", "days": -1}`, "Days"},
		{"days above max", `{"station_id": "X", "days": 45}`, "days must be between 1 and 30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(newTestServer(defaultStore()), http.MethodPost, "/forecast", []byte(tt.body))
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("handleForecast() status = %v, want %v", resp.StatusCode, http.StatusBadRequest)
			}

			var buf bytes.Buffer
			buf.ReadFrom(resp.Body)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("handleForecast() body = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestHandleForecast_MethodNotAllowed(t *testing.T) {
	resp := serve(newTestServer(defaultStore()), http.MethodGet, "/forecast", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /forecast status = %v, want %v", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(defaultStore())
	serve(server, http.MethodGet, "/stations", nil).Body.Close()

	resp := serve(server, http.MethodGet, "/metrics", nil)
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), `groundwatch_http_requests_total{code="200",method="GET",route="/stations`) {
		t.Error("/metrics should expose request counts by route pattern")
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 7, false},
		{"?days=1", 1, false},
		{"?days=30", 30, false},
		{"?days=31", 0, true},
		{"?days=-3", 0, true},
		{"?days=abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			got, err := parseDays(req, 7, 30)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDays() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseDays() = %v, want %v", got, tt.want)
			}
		})
	}
}
