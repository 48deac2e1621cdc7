package models

import "time"

// Station represents a groundwater monitoring station
type Station struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	State            string    `json:"state"`
	District         string    `json:"district"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	DepthMeters      float64   `json:"depth_meters"`
	AnnualRainfallMm float64   `json:"annual_rainfall_mm"`
	BaselineLevel    float64   `json:"baseline_level"`
	CreatedAt        time.Time `json:"created_at"`
}

// Coordinates is a (latitude, longitude) pair
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// HistoricalPoint is a single water level reading for a station
type HistoricalPoint struct {
	Timestamp   time.Time    `json:"timestamp"`
	WaterLevel  float64      `json:"water_level"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// WeatherDay is the weather expected for one forecast day
type WeatherDay struct {
	Date        string  `json:"date"`
	Temperature float64 `json:"temperature"` // °C
	Humidity    float64 `json:"humidity"`    // 0-100
	Rainfall    float64 `json:"rainfall"`    // mm
	Pressure    float64 `json:"pressure"`    // hPa
}

// ForecastPoint is one predicted day
type ForecastPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	PredictedLevel float64   `json:"predicted_level"`
	Confidence     float64   `json:"confidence"` // 0-100
	UpperBound     float64   `json:"upper_bound"`
	LowerBound     float64   `json:"lower_bound"`
}

// ForecastResult is the engine output for a station
type ForecastResult struct {
	StationID       string          `json:"station_id"`
	Forecast        []ForecastPoint `json:"forecast"`
	Model           string          `json:"model"` // "ARIMA", "LSTM", "Prophet", "Linear"
	Accuracy        float64         `json:"accuracy"`
	Recommendations []string        `json:"recommendations"`
}

// StoredForecast is a forecast result as persisted in the database
type StoredForecast struct {
	ID          int64          `json:"id"`
	JobID       string         `json:"job_id"`
	StationID   string         `json:"station_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Result      ForecastResult `json:"result"`
}

// DailyForecast represents the daily section of an Open-Meteo forecast response
type DailyForecast struct {
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	Timezone         string     `json:"timezone"`
	DailyUnits       DailyUnits `json:"daily_units"`
	Daily            Daily      `json:"daily"`
	GenerationTimeMs float64    `json:"generation_time_ms"`
}

type DailyUnits struct {
	Time                  string `json:"time"`
	Temperature2mMax      string `json:"temperature_2m_max"`
	Temperature2mMin      string `json:"temperature_2m_min"`
	PrecipitationSum      string `json:"precipitation_sum"`
	RelativeHumidity2mMax string `json:"relative_humidity_2m_max"`
}

type Daily struct {
	Time                  []string  `json:"time"`
	Temperature2mMax      []float64 `json:"temperature_2m_max"`
	Temperature2mMin      []float64 `json:"temperature_2m_min"`
	PrecipitationSum      []float64 `json:"precipitation_sum"`
	RelativeHumidity2mMax []float64 `json:"relative_humidity_2m_max"`
}

// Anomaly is a reading that departs sharply from the readings before it
type Anomaly struct {
	StationID string    `json:"station_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Baseline  float64   `json:"baseline"` // mean of the preceding window
	ZScore    float64   `json:"z_score"`
	Kind      string    `json:"kind"`     // "drop", "spike"
	Severity  string    `json:"severity"` // "low", "medium", "high"
}

// AlertSuggestion is a level threshold suggested from repeated anomalies
type AlertSuggestion struct {
	StationID    string    `json:"station_id"`
	Kind         string    `json:"kind"`
	Threshold    float64   `json:"threshold"`
	Operator     string    `json:"operator"` // ">", "<"
	SuggestedAt  time.Time `json:"suggested_at"`
	Confidence   float64   `json:"confidence"` // 0-1
	Description  string    `json:"description"`
	AnomalyCount int       `json:"anomaly_count"`
}
