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
	// DefaultLatitude and DefaultLongitude are India's geographic centroid,
	// used when a station has no coordinates.
	DefaultLatitude  = 20.5937
	DefaultLongitude = 78.9629

	standardPressure = 1013.25
)

// WeatherProvider returns up to days of daily weather starting tomorrow
type WeatherProvider interface {
	DailyWeather(ctx context.Context, latitude, longitude float64, days int) ([]models.WeatherDay, error)
}

// resolveCoordinates falls back to the national centroid for missing or zero coordinates
func resolveCoordinates(coords *models.Coordinates) (lat, lon float64) {
	lat, lon = DefaultLatitude, DefaultLongitude
	if coords == nil {
		return lat, lon
	}
	if coords.Latitude != 0 {
		lat = coords.Latitude
	}
	if coords.Longitude != 0 {
		lon = coords.Longitude
	}
	return lat, lon
}

// acquireWeather always returns exactly days entries. Provider failures,
// timeouts and short responses are filled in by synthesizeWeather.
func (e *Engine) acquireWeather(ctx context.Context, stationID string, days int, coords *models.Coordinates, seed float64, today time.Time) []models.WeatherDay {
	lat, lon := resolveCoordinates(coords)
	synthetic := synthesizeWeather(days, lat, seed, today)

	if e.weather == nil {
		metrics.RecordWeatherSource(true)
		return synthetic
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.weatherTimeout)
	defer cancel()

	fetched, err := e.fetchWeather(fetchCtx, lat, lon, days)
	if err != nil {
		log.Printf("Using synthetic weather for %s: %v", stationID, err)
		metrics.RecordWeatherSource(true)
		return synthetic
	}

	metrics.RecordWeatherSource(false)
	if len(fetched) > days {
		fetched = fetched[:days]
	}
	if len(fetched) < days {
		log.Printf("Weather provider returned %d of %d days for %s, padding with synthetic days", len(fetched), days, stationID)
		fetched = append(fetched, synthetic[len(fetched):]...)
	}
	return fetched
}

// fetchWeather runs the provider call in its own goroutine so a provider that
// ignores its context still cannot hold the forecast past the deadline.
func (e *Engine) fetchWeather(ctx context.Context, lat, lon float64, days int) ([]models.WeatherDay, error) {
	type response struct {
		days []models.WeatherDay
		err  error
	}
	done := make(chan response, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- response{err: fmt.Errorf("weather provider panicked: %v", r)}
			}
		}()
		weather, err := e.weather.DailyWeather(ctx, lat, lon, days)
		done <- response{days: weather, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("weather provider: %w", ctx.Err())
	case resp := <-done:
		if resp.err != nil {
			return nil, resp.err
		}
		return append([]models.WeatherDay(nil), resp.days...), nil
	}
}

// synthesizeWeather builds a latitude-driven forecast from the station's seeded stream.
// Stations north of 25° run cooler.
func synthesizeWeather(days int, lat, seed float64, today time.Time) []models.WeatherDay {
	r := newStream(seed)

	tempBase := 30.0
	if lat > 25 {
		tempBase = 20.0
	}

	weather := make([]models.WeatherDay, days)
	for i := range weather {
		weather[i] = models.WeatherDay{
			Date:        today.AddDate(0, 0, i+1).Format("2006-01-02"),
			Temperature: tempBase + math.Sin(lat)*10 + r.next()*8,
			Humidity:    50 + math.Cos(lat)*20 + r.next()*20,
			Rainfall:    math.Abs(math.Sin(lat*2))*15 + r.next()*5,
			Pressure:    standardPressure,
		}
	}
	return weather
}
