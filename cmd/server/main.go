package main

import (
	"context"
	"flag"
	"groundwatch/internal/api"
	"groundwatch/internal/config"
	"groundwatch/internal/database"
	"groundwatch/internal/forecast"
	"groundwatch/internal/server"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	// .env is optional and never overrides the real environment
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

	// Initialize API client
	client := api.NewOpenMeteoClient(
		api.WithBaseURL(cfg.Weather.BaseURL),
		api.WithTimezone(cfg.Weather.Timezone),
		api.WithMaxDays(cfg.Weather.MaxDays),
	)
	engine := forecast.NewEngine(client, forecast.WithWeatherTimeout(cfg.Weather.Timeout))

	// Create HTTP server
	httpServer := server.NewServer(db, engine, server.Options{
		DefaultDays: cfg.Forecast.DefaultDays,
		MaxDays:     cfg.Forecast.MaxDays,
		HistoryDays: cfg.Forecast.HistoryDays,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
		}
	}()

	// Start HTTP server
	log.Printf("Starting server on %s", cfg.Server.Addr)
	if err := httpServer.Start(cfg.Server.Addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Println("Server stopped")
}
