package api

import (
	"context"
	"encoding/json"
	"fmt"
	"groundwatch/internal/models"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	DefaultBaseURL  = "https://api.open-meteo.com/v1/forecast"
	DefaultTimezone = "Asia/Kolkata"

	// MaxForecastDays is Open-Meteo's daily forecast limit, today included
	MaxForecastDays = 16

	seaLevelPressure = 1013.25
)

// DailyFields are the daily variables requested for groundwater forecasting
var DailyFields = []string{
	"temperature_2m_max",
	"temperature_2m_min",
	"precipitation_sum",
	"relative_humidity_2m_max",
}

// OpenMeteoClient is a client for the Open-Meteo API
type OpenMeteoClient struct {
	client   *http.Client
	baseURL  string
	timezone string
	maxDays  int
	breaker  *gobreaker.CircuitBreaker[*models.DailyForecast]
}

type ForecastParams struct {
	Latitude        float64
	Longitude       float64
	DailyFields     []string
	Timezone        string
	TemperatureUnit string
	PastDays        int // how many days in the past you want to get
	ForecastDays    int // how many days in the future you want to forecast, today included
}

// ClientOption configures an OpenMeteoClient
type ClientOption func(*OpenMeteoClient)

// WithBaseURL points the client at another Open-Meteo compatible endpoint
func WithBaseURL(url string) ClientOption {
	return func(c *OpenMeteoClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "?")
		}
	}
}

func WithTimezone(tz string) ClientOption {
	return func(c *OpenMeteoClient) {
		if tz != "" {
			c.timezone = tz
		}
	}
}

// WithMaxDays lowers the number of days DailyWeather requests, today included
func WithMaxDays(days int) ClientOption {
	return func(c *OpenMeteoClient) {
		if days > 0 && days <= MaxForecastDays {
			c.maxDays = days
		}
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *OpenMeteoClient) {
		if client != nil {
			c.client = client
		}
	}
}

// NewOpenMeteoClient creates a new Open-Meteo API client.
// After five consecutive failures the breaker rejects calls for 30s.
func NewOpenMeteoClient(opts ...ClientOption) *OpenMeteoClient {
	c := &OpenMeteoClient{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  DefaultBaseURL,
		timezone: DefaultTimezone,
		maxDays:  MaxForecastDays,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[*models.DailyForecast](gobreaker.Settings{
		Name:        "open-meteo",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return c
}

// BreakerState reports the circuit breaker state ("closed", "half-open", "open")
func (c *OpenMeteoClient) BreakerState() string {
	return c.breaker.State().String()
}

// Builds URL for OpenMeteoClient request
func (c *OpenMeteoClient) BuildURL(forecastParams ForecastParams) string {
	if forecastParams.Timezone == "" {
		forecastParams.Timezone = c.timezone
	}

	if forecastParams.TemperatureUnit == "" {
		forecastParams.TemperatureUnit = "celsius"
	}

	url := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&timezone=%s&temperature_unit=%s",
		c.baseURL, forecastParams.Latitude, forecastParams.Longitude, forecastParams.Timezone, forecastParams.TemperatureUnit)

	if forecastParams.PastDays > 0 {
		url += fmt.Sprintf("&past_days=%d", forecastParams.PastDays)
	}

	if forecastParams.ForecastDays > 0 {
		url += fmt.Sprintf("&forecast_days=%d", forecastParams.ForecastDays)
	}

	if len(forecastParams.DailyFields) > 0 {
		url += "&daily=" + strings.Join(forecastParams.DailyFields, ",")
	}

	return url
}

// GetDailyForecast fetches the daily section of a forecast, today included
func (c *OpenMeteoClient) GetDailyForecast(ctx context.Context, lat, long float64, fields []string, days int) (*models.DailyForecast, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("GetDailyForecast: no weather fields provided")
	}
	if days <= 0 || days > MaxForecastDays {
		return nil, fmt.Errorf("GetDailyForecast: days must be between 1 and %d, got %d", MaxForecastDays, days)
	}

	url := c.BuildURL(ForecastParams{
		Latitude:     lat,
		Longitude:    long,
		DailyFields:  fields,
		ForecastDays: days,
	})

	return c.breaker.Execute(func() (*models.DailyForecast, error) {
		return c.fetch(ctx, url)
	})
}

func (c *OpenMeteoClient) fetch(ctx context.Context, url string) (*models.DailyForecast, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var forecast models.DailyForecast
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &forecast, nil
}

// DailyWeather returns up to days of weather starting tomorrow. Open-Meteo's
// first daily entry is today, so one extra day is requested and dropped.
// Horizons past the client's day limit minus one come back short.
func (c *OpenMeteoClient) DailyWeather(ctx context.Context, lat, long float64, days int) ([]models.WeatherDay, error) {
	if days <= 0 {
		return nil, nil
	}

	requested := days + 1
	if requested > c.maxDays {
		requested = c.maxDays
	}

	forecast, err := c.GetDailyForecast(ctx, lat, long, DailyFields, requested)
	if err != nil {
		return nil, err
	}

	weather, err := toWeatherDays(forecast.Daily)
	if err != nil {
		return nil, err
	}
	if len(weather) <= 1 {
		return nil, fmt.Errorf("DailyWeather: response holds %d days", len(weather))
	}

	weather = weather[1:]
	if len(weather) > days {
		weather = weather[:days]
	}
	return weather, nil
}

// toWeatherDays converts the columnar daily response into rows.
// Temperature is the midpoint of the daily min and max.
func toWeatherDays(daily models.Daily) ([]models.WeatherDay, error) {
	n := len(daily.Time)
	for name, column := range map[string][]float64{
		"temperature_2m_max":       daily.Temperature2mMax,
		"temperature_2m_min":       daily.Temperature2mMin,
		"precipitation_sum":        daily.PrecipitationSum,
		"relative_humidity_2m_max": daily.RelativeHumidity2mMax,
	} {
		if len(column) != n {
			return nil, fmt.Errorf("daily %s has %d values, want %d", name, len(column), n)
		}
	}

	weather := make([]models.WeatherDay, n)
	for i := range weather {
		weather[i] = models.WeatherDay{
			Date:        daily.Time[i],
			Temperature: (daily.Temperature2mMax[i] + daily.Temperature2mMin[i]) / 2,
			Humidity:    daily.RelativeHumidity2mMax[i],
			Rainfall:    daily.PrecipitationSum[i],
			Pressure:    seaLevelPressure,
		}
	}
	return weather, nil
}
