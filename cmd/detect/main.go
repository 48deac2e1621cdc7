package main

import (
	"context"
	"flag"
	"groundwatch/internal/config"
	"groundwatch/internal/database"
	"groundwatch/internal/detector"
	"groundwatch/internal/models"
	"log"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := database.NewDB(config.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	// Get all stations from database
	stations, err := db.GetAllStations(ctx)
	if err != nil {
		log.Fatalf("Failed to get stations from database: %v", err)
	}

	if len(stations) == 0 {
		log.Fatalf("No stations found in database. Please run the seed script first.")
	}

	log.Printf("Found %d stations in database", len(stations))

	anomalyDetector := detector.NewDetector()
	alertSuggester := detector.NewAlertSuggester()

	// Run detection once (cron or an external scheduler handles repetition)
	runDetectionForAllStations(ctx, db, stations, cfg.Forecast.HistoryDays, cfg.Forecast.Workers, anomalyDetector, alertSuggester)

	log.Println("Detection run completed successfully")
}

// DetectionResult holds the results for a single station
type DetectionResult struct {
	Station        string
	Anomalies      []models.Anomaly
	Suggestions    []models.AlertSuggestion
	Error          error
	ProcessingTime time.Duration
}

func runDetectionForAllStations(ctx context.Context, db *database.DB, stations []models.Station, historyDays, numWorkers int,
	anomalyDetector *detector.Detector, alertSuggester *detector.AlertSuggester) {
	startTime := time.Now()

	if numWorkers <= 0 || numWorkers > len(stations) {
		numWorkers = len(stations)
	}
	log.Printf("Running anomaly detection for %d stations with %d workers...", len(stations), numWorkers)

	// Create channels for job distribution and result collection
	jobs := make(chan models.Station, len(stations))
	results := make(chan DetectionResult, len(stations))

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go worker(ctx, db, historyDays, jobs, results, anomalyDetector, alertSuggester, &wg)
	}

	for _, station := range stations {
		jobs <- station
	}
	close(jobs)

	// Wait for all workers to finish, then close results channel
	go func() {
		wg.Wait()
		close(results)
	}()

	totalAnomalies := 0
	totalSuggestions := 0
	totalErrors := 0
	stationCount := 0

	for result := range results {
		stationCount++

		if result.Error != nil {
			log.Printf("[%d/%d] ❌ %s: %v (%.1fs)",
				stationCount, len(stations), result.Station, result.Error, result.ProcessingTime.Seconds())
			totalErrors++
			continue
		}

		if len(result.Anomalies) == 0 {
			log.Printf("[%d/%d] ✓ %s: no anomalies (%.1fs)",
				stationCount, len(stations), result.Station, result.ProcessingTime.Seconds())
			continue
		}

		stored, err := db.StoreAnomalies(ctx, result.Anomalies)
		if err != nil {
			log.Printf("[%d/%d] Failed to store anomalies for %s: %v",
				stationCount, len(stations), result.Station, err)
			totalErrors++
			continue
		}
		totalAnomalies += stored
		totalSuggestions += len(result.Suggestions)

		log.Printf("[%d/%d] ✓ %s: %d anomalies (%d new), %d suggestions (%.1fs)",
			stationCount, len(stations), result.Station,
			len(result.Anomalies), stored, len(result.Suggestions), result.ProcessingTime.Seconds())
		for _, s := range result.Suggestions {
			log.Printf("    suggest alert: level %s %.2fm (%s, confidence %.0f%%)", s.Operator, s.Threshold, s.Description, s.Confidence*100)
		}
	}

	totalDuration := time.Since(startTime)
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("Detection complete in %.1f seconds", totalDuration.Seconds())
	log.Printf("  Stations: %d processed, %d errors", stationCount-totalErrors, totalErrors)
	log.Printf("  Anomalies: %d new", totalAnomalies)
	log.Printf("  Suggestions: %d generated", totalSuggestions)
	log.Printf("  Workers: %d", numWorkers)
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// worker processes stations from the jobs channel
func worker(ctx context.Context, db *database.DB, historyDays int, jobs <-chan models.Station, results chan<- DetectionResult,
	anomalyDetector *detector.Detector, alertSuggester *detector.AlertSuggester, wg *sync.WaitGroup) {
	defer wg.Done()

	for station := range jobs {
		startTime := time.Now()

		history, err := db.GetHistoricalData(ctx, station.ID, historyDays)
		if err != nil {
			results <- DetectionResult{
				Station:        station.ID,
				Error:          err,
				ProcessingTime: time.Since(startTime),
			}
			continue
		}

		anomalies := anomalyDetector.DetectAnomalies(station.ID, history)

		results <- DetectionResult{
			Station:        station.ID,
			Anomalies:      anomalies,
			Suggestions:    alertSuggester.SuggestAlerts(anomalies),
			ProcessingTime: time.Since(startTime),
		}
	}
}
