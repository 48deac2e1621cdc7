package main

import (
	"context"
	"errors"
	"flag"
	"groundwatch/internal/config"
	"groundwatch/internal/database"
	"groundwatch/internal/models"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	csvPath := flag.String("csv", "stations_seed.csv", "stations CSV to import (empty to skip)")
	days := flag.Int("days", 0, "days of synthetic history per station (defaults to forecast.history_days)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *days <= 0 {
		*days = cfg.Forecast.HistoryDays
	}

	// Initialize database
	db, err := database.NewDB(config.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	stations := fromConfig(cfg.Stations)
	if *csvPath != "" {
		file, err := os.Open(*csvPath)
		if err != nil {
			log.Fatalf("Failed to open CSV file: %v", err)
		}
		fromCSV, skipped, err := readStations(file)
		file.Close()
		if err != nil {
			log.Fatalf("Failed to import %s: %v", *csvPath, err)
		}
		log.Printf("Read %d stations from %s, skipped %d invalid records", len(fromCSV), *csvPath, skipped)
		stations = append(stations, fromCSV...)
	}

	ctx := context.Background()
	inserted, existing := 0, 0
	for _, s := range stations {
		if err := db.InsertStation(ctx, s); err != nil {
			if errors.Is(err, database.ErrDuplicateStation) {
				existing++
				continue
			}
			log.Printf("Failed to insert station %s: %v", s.ID, err)
			continue
		}
		inserted++
	}
	log.Printf("✓ Stations: %d inserted, %d already present", inserted, existing)

	// Only stations with no readings get synthetic history
	all, err := db.GetAllStations(ctx)
	if err != nil {
		log.Fatalf("Failed to list stations: %v", err)
	}

	now := time.Now()
	seeded := 0
	for _, s := range all {
		if err := seedReadings(ctx, db, s, now, *days); err != nil {
			log.Printf("Failed to seed readings for %s: %v", s.ID, err)
			continue
		}
		seeded++
	}

	log.Printf("Import complete! %d stations checked for %d days of history", seeded, *days)
}

func seedReadings(ctx context.Context, db *database.DB, s models.Station, now time.Time, days int) error {
	count, err := db.CountReadings(ctx, s.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	n, err := db.InsertReadings(ctx, s.ID, syntheticReadings(withBaseline(s), now, days))
	if err != nil {
		return err
	}
	log.Printf("✓ Generated %d readings for %s (%s)", n, s.ID, s.Name)
	return nil
}
