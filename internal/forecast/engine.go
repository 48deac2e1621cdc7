// Package forecast produces deterministic groundwater level forecasts from a
// station's reading history.
//
// A forecast ensembles three hand-rolled forecasters (an ARIMA-style
// autoregressive/moving-average blend, a dampened linear trend and a monthly
// seasonal profile), adjusts the result for expected weather and attaches
// confidence bounds, advisories, a model label and an accuracy score. All
// pseudo-randomness comes from a stream seeded by the station id, so the same
// station, history, horizon, weather and clock always produce the same result.
package forecast

import (
	"context"
	"fmt"
	"groundwatch/internal/metrics"
	"groundwatch/internal/models"
	"log"
	"math"
	"time"
)

const (
	// DefaultDays is the horizon used when a caller passes a non-positive one
	DefaultDays = 7

	DefaultWeatherTimeout = 5 * time.Second
)

// Engine generates forecasts. It only holds configuration, so one Engine can
// serve concurrent requests.
type Engine struct {
	weather        WeatherProvider
	weatherTimeout time.Duration
	now            func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithWeatherTimeout bounds the weather provider call
func WithWeatherTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.weatherTimeout = d
		}
	}
}

// WithClock overrides the clock that anchors forecast dates
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine. A nil provider means weather is always synthesized.
func NewEngine(weather WeatherProvider, opts ...Option) *Engine {
	e := &Engine{
		weather:        weather,
		weatherTimeout: DefaultWeatherTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate forecasts days of water levels for a station. It never fails: any
// internal fault produces a degraded linear forecast of the same length.
func (e *Engine) Generate(ctx context.Context, stationID string, history []models.HistoricalPoint, days int) (result models.ForecastResult) {
	started := time.Now()
	if days <= 0 {
		days = DefaultDays
	}
	today := startOfDay(e.now())
	degraded := false

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Forecast for %s panicked: %v - using fallback", stationID, r)
			result = fallbackForecast(stationID, history, days, today)
			degraded = true
		}
		metrics.RecordForecast(result.Model, degraded, time.Since(started))
	}()

	res, err := e.generate(ctx, stationID, history, days, today)
	if err != nil {
		log.Printf("Forecast for %s failed: %v - using fallback", stationID, err)
		degraded = true
		return fallbackForecast(stationID, history, days, today)
	}
	return res
}

func (e *Engine) generate(ctx context.Context, stationID string, history []models.HistoricalPoint, days int, today time.Time) (models.ForecastResult, error) {
	seed := stationSeed(stationID)
	coords := stationCoordinates(history)

	weather := e.acquireWeather(ctx, stationID, days, coords, seed, today)

	arima := arimaForecast(history, days, seed)
	trend := trendForecast(history, days, seed)
	seasonal := seasonalForecast(history, days, seed, today)

	levels := applyWeather(ensemble(arima, trend, seasonal, seed), weather, coords)
	points := confidenceIntervals(levels, history, seed, today)
	if err := validatePoints(points, days); err != nil {
		return models.ForecastResult{}, err
	}

	acc := accuracy(history, seed)
	if math.IsNaN(acc) {
		return models.ForecastResult{}, fmt.Errorf("accuracy is not a number")
	}

	return models.ForecastResult{
		StationID:       stationID,
		Forecast:        points,
		Model:           selectModel(history, seed),
		Accuracy:        acc,
		Recommendations: recommendations(points, history),
	}, nil
}

// fallbackForecast is the degraded result: linear model, flat low confidence
func fallbackForecast(stationID string, history []models.HistoricalPoint, days int, today time.Time) models.ForecastResult {
	levels := linearForecast(sanitize(history), days, stationSeed(stationID))

	points := make([]models.ForecastPoint, len(levels))
	for i, level := range levels {
		points[i] = newPoint(today.AddDate(0, 0, i+1), level, FallbackConfidence)
	}

	return models.ForecastResult{
		StationID:       stationID,
		Forecast:        points,
		Model:           ModelLinear,
		Accuracy:        MinAccuracy,
		Recommendations: []string{"Forecast generated from limited data; verify with field measurements."},
	}
}

// sanitize drops non-finite readings and clamps negative levels to zero
func sanitize(history []models.HistoricalPoint) []models.HistoricalPoint {
	clean := make([]models.HistoricalPoint, 0, len(history))
	for _, p := range history {
		if math.IsNaN(p.WaterLevel) || math.IsInf(p.WaterLevel, 0) {
			continue
		}
		p.WaterLevel = math.Max(0, p.WaterLevel)
		clean = append(clean, p)
	}
	return clean
}

func validatePoints(points []models.ForecastPoint, days int) error {
	if len(points) != days {
		return fmt.Errorf("forecast has %d points, want %d", len(points), days)
	}
	for i, p := range points {
		for _, v := range []float64{p.PredictedLevel, p.UpperBound, p.LowerBound, p.Confidence} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("day %d: non-finite value", i+1)
			}
		}
		if p.LowerBound < 0 || p.LowerBound > p.PredictedLevel || p.PredictedLevel > p.UpperBound {
			return fmt.Errorf("day %d: bounds out of order (%.2f <= %.2f <= %.2f)", i+1, p.LowerBound, p.PredictedLevel, p.UpperBound)
		}
	}
	return nil
}

// stationCoordinates returns the first coordinates found in the history
func stationCoordinates(history []models.HistoricalPoint) *models.Coordinates {
	for _, p := range history {
		if p.Coordinates != nil {
			return p.Coordinates
		}
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
