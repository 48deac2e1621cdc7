package main

import (
	"context"
	"flag"
	"groundwatch/internal/api"
	"groundwatch/internal/config"
	"groundwatch/internal/database"
	"groundwatch/internal/forecast"
	"groundwatch/internal/runner"
	"groundwatch/internal/stream"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	schedule := flag.String("schedule", "", "cron schedule to run on instead of once (overrides forecast.schedule)")
	days := flag.Int("days", 0, "forecast horizon in days (overrides forecast.default_days)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *schedule == "" {
		*schedule = cfg.Forecast.Schedule
	}
	if *days <= 0 {
		*days = cfg.Forecast.DefaultDays
	}

	// Initialize database
	db, err := database.NewDB(config.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize Redis client from environment variables
	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	client := api.NewOpenMeteoClient(
		api.WithBaseURL(cfg.Weather.BaseURL),
		api.WithTimezone(cfg.Weather.Timezone),
		api.WithMaxDays(cfg.Weather.MaxDays),
	)
	engine := forecast.NewEngine(client, forecast.WithWeatherTimeout(cfg.Weather.Timeout))
	publisher := stream.NewPublisher(redisClient, redisCfg.Stream, cfg.Redis.MaxLen)

	r := runner.New(db, engine, publisher, runner.Options{
		Days:        *days,
		HistoryDays: cfg.Forecast.HistoryDays,
		Workers:     cfg.Forecast.Workers,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *schedule == "" {
		// Run once (an external scheduler handles repetition)
		if !runBatch(ctx, r) {
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() { runBatch(ctx, r) }); err != nil {
		log.Fatalf("Invalid schedule %q: %v", *schedule, err)
	}
	c.Start()
	log.Printf("Forecasting on schedule %q. Press Ctrl+C to stop...", *schedule)

	<-ctx.Done()
	log.Println("Shutting down, waiting for a running batch to finish...")
	<-c.Stop().Done()
	log.Println("Forecast scheduler stopped")
}

// runBatch forecasts every station once, reporting whether the batch could run at all
func runBatch(ctx context.Context, r *runner.Runner) bool {
	log.Println("Running forecasts for all stations...")

	summary, err := r.Run(ctx)
	if err != nil {
		log.Printf("Forecast run failed: %v", err)
		return false
	}

	log.Printf("✓ Forecast run completed in %v: %d stations, %d published, %d failed",
		summary.Duration.Round(time.Millisecond), summary.Stations, summary.Published, summary.Failed)
	for _, id := range summary.FailedStations() {
		log.Printf("  - %s: %s", id, summary.Errors[id])
	}
	return true
}
