package main

import (
	"context"
	"groundwatch/internal/config"
	"groundwatch/internal/database"
	"groundwatch/internal/stream"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	// Load config
	cfg, err := config.LoadOrDefault("./config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client from environment variables
	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	// Initialize database
	db, err := database.NewDB(config.GetDatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	consumer := stream.NewConsumer(redisClient, redisCfg.Stream, redisCfg.Group, consumerName(), cfg.Redis.BatchSize, cfg.Redis.Block)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("Storing forecasts from stream %s (group %s). Press Ctrl+C to stop...", redisCfg.Stream, redisCfg.Group)

	err = consumer.Run(ctx, func(ctx context.Context, e stream.Envelope) error {
		if err := db.StoreForecast(ctx, e.Stored()); err != nil {
			return err
		}
		log.Printf("✓ Stored forecast %s for %s (%d days, %s)", e.JobID, e.StationID, len(e.Result.Forecast), e.Result.Model)
		return nil
	})
	if err != nil {
		log.Fatalf("Store service failed: %v", err)
	}

	log.Println("Store service stopped")
}

// consumerName identifies this process within the consumer group
func consumerName() string {
	if name := os.Getenv("REDIS_CONSUMER"); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "store-1"
	}
	return "store-" + host
}
