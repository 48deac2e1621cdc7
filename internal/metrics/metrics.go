package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database metrics
var (
	// DBQueriesTotal tracks the total number of database queries
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"query_type", "table", "status"},
	)

	// DBQueryDuration tracks the duration of database queries
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of established connections both in use and idle",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle connections",
		},
	)
)

// Forecast metrics
var (
	// ForecastsTotal counts engine runs by reported model label and outcome ("ok" or "fallback")
	ForecastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundwatch_forecasts_total",
			Help: "Total number of forecasts generated",
		},
		[]string{"model", "outcome"},
	)

	ForecastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "groundwatch_forecast_duration_seconds",
			Help:    "Duration of a single station forecast in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundwatch_anomalies_total",
			Help: "Total number of reading anomalies detected",
		},
		[]string{"kind", "severity"},
	)

	// WeatherSourceTotal counts where forecast weather came from ("provider" or "synthetic")
	WeatherSourceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundwatch_weather_source_total",
			Help: "Weather acquisitions by source",
		},
		[]string{"source"},
	)

	StreamPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundwatch_stream_messages_total",
			Help: "Forecast messages written to or read from the Redis stream",
		},
		[]string{"direction", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundwatch_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code",
		},
		[]string{"route", "method", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groundwatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// AppInfo provides static information about the application
	AppInfo = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundwatch_app_info",
			Help: "Application information (always 1)",
		},
	)

	// AppStartTime records when the application started
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundwatch_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	AppInfo.Set(1)
	AppStartTime.SetToCurrentTime()
}

// RecordDBQuery records a database query execution
func RecordDBQuery(queryType, table string, duration time.Duration, err error) {
	DBQueriesTotal.WithLabelValues(queryType, table, status(err)).Inc()
	DBQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(open, inUse, idle int) {
	DBConnectionsOpen.Set(float64(open))
	DBConnectionsInUse.Set(float64(inUse))
	DBConnectionsIdle.Set(float64(idle))
}

// RecordForecast records one engine run
func RecordForecast(model string, fallback bool, duration time.Duration) {
	outcome := "ok"
	if fallback {
		outcome = "fallback"
	}
	ForecastsTotal.WithLabelValues(model, outcome).Inc()
	ForecastDuration.Observe(duration.Seconds())
}

// RecordWeatherSource records whether weather came from the provider or the synthesizer
func RecordWeatherSource(synthetic bool) {
	source := "provider"
	if synthetic {
		source = "synthetic"
	}
	WeatherSourceTotal.WithLabelValues(source).Inc()
}

func RecordAnomaly(kind, severity string) {
	AnomaliesTotal.WithLabelValues(kind, severity).Inc()
}

// RecordHTTPRequest records a served request under its route pattern
func RecordHTTPRequest(route, method string, code int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	HTTPRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordStreamMessage records a stream write ("publish") or read ("consume")
func RecordStreamMessage(direction string, err error) {
	StreamPublishedTotal.WithLabelValues(direction, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
