package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"groundwatch/internal/metrics"
	"groundwatch/internal/models"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrStationNotFound  = errors.New("station not found")
	ErrDuplicateStation = errors.New("duplicate station")
	ErrNoForecast       = errors.New("no forecast stored")
)

// mysql error number for a unique key violation
const errDuplicateEntry = 1062

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema
// dsn format: "username:password@tcp(host:port)/dbname?parseTime=true"
// example: "user:pass@tcp(localhost:3306)/groundwatch?parseTime=true"
func NewDB(dsn string) (*DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid dsn: %w", err)
	}
	// readings and forecasts are scanned into time.Time
	cfg.ParseTime = true

	conn, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	// Initialize schema
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	// MySQL doesn't support multiple statements in one Exec, so we need to split them
	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS stations (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		state VARCHAR(100) NOT NULL DEFAULT '',
		district VARCHAR(100) NOT NULL DEFAULT '',
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		depth_meters DOUBLE NOT NULL DEFAULT 0,
		annual_rainfall_mm DOUBLE NOT NULL DEFAULT 0,
		baseline_level DOUBLE NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX idx_stations_state (state)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS readings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		station_id VARCHAR(64) NOT NULL,
		timestamp DATETIME(6) NOT NULL,
		water_level DOUBLE NOT NULL,
		UNIQUE KEY uq_readings_station_time (station_id, timestamp),
		CONSTRAINT fk_readings_station FOREIGN KEY (station_id) REFERENCES stations (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS forecasts (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		job_id CHAR(36) NOT NULL,
		station_id VARCHAR(64) NOT NULL,
		generated_at DATETIME(6) NOT NULL,
		model VARCHAR(20) NOT NULL,
		accuracy DOUBLE NOT NULL,
		result JSON NOT NULL,
		UNIQUE KEY uq_forecasts_job (job_id),
		INDEX idx_forecasts_station_time (station_id, generated_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS anomalies (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		station_id VARCHAR(64) NOT NULL,
		timestamp DATETIME(6) NOT NULL,
		value DOUBLE NOT NULL,
		baseline DOUBLE NOT NULL,
		z_score DOUBLE NOT NULL,
		kind VARCHAR(10) NOT NULL,
		severity VARCHAR(10) NOT NULL,
		detected_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_anomalies_station_time (station_id, timestamp),
		CONSTRAINT fk_anomalies_station FOREIGN KEY (station_id) REFERENCES stations (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

func (db *DB) recordPoolStats() {
	stats := db.conn.Stats()
	metrics.UpdateDBConnectionStats(stats.OpenConnections, stats.InUse, stats.Idle)
}

// InsertStation inserts a new station, returning ErrDuplicateStation if the id exists
func (db *DB) InsertStation(ctx context.Context, s models.Station) error {
	query := `INSERT INTO stations (id, name, state, district, latitude, longitude, depth_meters, annual_rainfall_mm, baseline_level)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	queryStart := time.Now()
	_, err := db.conn.ExecContext(ctx, query, s.ID, s.Name, s.State, s.District, s.Latitude, s.Longitude,
		s.DepthMeters, s.AnnualRainfallMm, s.BaselineLevel)
	metrics.RecordDBQuery("INSERT", "stations", time.Since(queryStart), err)
	if err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateStation, s.ID)
		}
		return fmt.Errorf("failed to insert station %s: %w", s.ID, err)
	}
	return nil
}

const stationColumns = `id, name, state, district, latitude, longitude, depth_meters, annual_rainfall_mm, baseline_level, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanStation(row scanner) (models.Station, error) {
	var s models.Station
	err := row.Scan(&s.ID, &s.Name, &s.State, &s.District, &s.Latitude, &s.Longitude,
		&s.DepthMeters, &s.AnnualRainfallMm, &s.BaselineLevel, &s.CreatedAt)
	return s, err
}

// GetAllStations retrieves all stations ordered by id
func (db *DB) GetAllStations(ctx context.Context) ([]models.Station, error) {
	defer db.recordPoolStats()

	query := `SELECT ` + stationColumns + ` FROM stations ORDER BY id`
	queryStart := time.Now()
	rows, err := db.conn.QueryContext(ctx, query)
	metrics.RecordDBQuery("SELECT", "stations", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stations: %w", err)
	}

	return stations, nil
}

// GetStation retrieves a station by id
func (db *DB) GetStation(ctx context.Context, id string) (*models.Station, error) {
	query := `SELECT ` + stationColumns + ` FROM stations WHERE id = ? LIMIT 1`
	queryStart := time.Now()
	s, err := scanStation(db.conn.QueryRowContext(ctx, query, id))
	metrics.RecordDBQuery("SELECT", "stations", time.Since(queryStart), ignoreNoRows(err))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrStationNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan station: %w", err)
	}
	return &s, nil
}

// InsertReadings stores readings for a station in one transaction.
// Readings already stored for the same timestamp are skipped; the count of new rows is returned.
func (db *DB) InsertReadings(ctx context.Context, stationID string, readings []models.HistoricalPoint) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	defer db.recordPoolStats()

	// Begin transaction for batch insert
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if committed

	stmt, err := tx.PrepareContext(ctx, `INSERT IGNORE INTO readings (station_id, timestamp, water_level) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	queryStart := time.Now()
	inserted := 0
	for _, r := range readings {
		res, err := stmt.ExecContext(ctx, stationID, r.Timestamp.UTC(), r.WaterLevel)
		if err != nil {
			metrics.RecordDBQuery("INSERT", "readings", time.Since(queryStart), err)
			return 0, fmt.Errorf("failed to insert reading for %s at %s: %w", stationID, r.Timestamp.Format(time.RFC3339), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	// Commit transaction
	err = tx.Commit()
	metrics.RecordDBQuery("INSERT", "readings", time.Since(queryStart), err)
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

// CountReadings returns how many readings a station has
func (db *DB) CountReadings(ctx context.Context, stationID string) (int, error) {
	var count int
	queryStart := time.Now()
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE station_id = ?`, stationID).Scan(&count)
	metrics.RecordDBQuery("SELECT", "readings", time.Since(queryStart), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count readings for %s: %w", stationID, err)
	}
	return count, nil
}

// GetHistoricalData returns a station's readings from the last days, oldest first,
// each carrying the station's coordinates. days <= 0 returns the full history.
func (db *DB) GetHistoricalData(ctx context.Context, stationID string, days int) ([]models.HistoricalPoint, error) {
	defer db.recordPoolStats()

	query := `SELECT r.timestamp, r.water_level, s.latitude, s.longitude
	          FROM readings r JOIN stations s ON s.id = r.station_id
	          WHERE r.station_id = ? AND r.timestamp >= ?
	          ORDER BY r.timestamp ASC`
	queryStart := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, stationID, historyStart(time.Now().UTC(), days))
	metrics.RecordDBQuery("SELECT", "readings", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings for %s: %w", stationID, err)
	}
	defer rows.Close()

	var coords *models.Coordinates
	var history []models.HistoricalPoint
	for rows.Next() {
		var p models.HistoricalPoint
		var lat, lon float64
		if err := rows.Scan(&p.Timestamp, &p.WaterLevel, &lat, &lon); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if coords == nil {
			coords = &models.Coordinates{Latitude: lat, Longitude: lon}
		}
		p.Coordinates = coords
		history = append(history, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}

	return history, nil
}

// StoreForecast persists a forecast. Storing the same job id twice is a no-op,
// so redelivered stream messages are safe.
func (db *DB) StoreForecast(ctx context.Context, f models.StoredForecast) error {
	payload, err := json.Marshal(f.Result)
	if err != nil {
		return fmt.Errorf("failed to encode forecast %s: %w", f.JobID, err)
	}

	query := `INSERT IGNORE INTO forecasts (job_id, station_id, generated_at, model, accuracy, result) VALUES (?, ?, ?, ?, ?, ?)`
	queryStart := time.Now()
	res, err := db.conn.ExecContext(ctx, query, f.JobID, f.StationID, f.GeneratedAt.UTC(), f.Result.Model, f.Result.Accuracy, payload)
	metrics.RecordDBQuery("INSERT", "forecasts", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("failed to store forecast %s: %w", f.JobID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		log.Printf("Forecast %s already stored, skipping", f.JobID)
	}
	return nil
}

// GetLatestForecast returns the most recently generated forecast for a station
func (db *DB) GetLatestForecast(ctx context.Context, stationID string) (*models.StoredForecast, error) {
	query := `SELECT id, job_id, station_id, generated_at, result FROM forecasts
	          WHERE station_id = ? ORDER BY generated_at DESC, id DESC LIMIT 1`

	var f models.StoredForecast
	var payload []byte
	queryStart := time.Now()
	err := db.conn.QueryRowContext(ctx, query, stationID).Scan(&f.ID, &f.JobID, &f.StationID, &f.GeneratedAt, &payload)
	metrics.RecordDBQuery("SELECT", "forecasts", time.Since(queryStart), ignoreNoRows(err))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNoForecast, stationID)
		}
		return nil, fmt.Errorf("failed to scan forecast: %w", err)
	}

	if err := json.Unmarshal(payload, &f.Result); err != nil {
		return nil, fmt.Errorf("failed to decode forecast %s: %w", f.JobID, err)
	}
	return &f, nil
}

// StoreAnomalies saves detected anomalies, skipping readings already flagged.
// It returns how many were new.
func (db *DB) StoreAnomalies(ctx context.Context, anomalies []models.Anomaly) (int, error) {
	if len(anomalies) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT IGNORE INTO anomalies (station_id, timestamp, value, baseline, z_score, kind, severity)
	                                      VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	queryStart := time.Now()
	stored := 0
	for _, a := range anomalies {
		res, err := stmt.ExecContext(ctx, a.StationID, a.Timestamp.UTC(), a.Value, a.Baseline, a.ZScore, a.Kind, a.Severity)
		if err != nil {
			metrics.RecordDBQuery("INSERT", "anomalies", time.Since(queryStart), err)
			return 0, fmt.Errorf("failed to store anomaly for %s: %w", a.StationID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			stored += int(n)
		}
	}

	err = tx.Commit()
	metrics.RecordDBQuery("INSERT", "anomalies", time.Since(queryStart), err)
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, nil
}

// Ping checks the connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// historyStart is the earliest reading time included for a window of days
func historyStart(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Unix(0, 0).UTC()
	}
	return now.AddDate(0, 0, -days)
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry
}

// ignoreNoRows keeps "not found" out of the query error metrics
func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
