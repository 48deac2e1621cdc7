package config

import (
	"log"
	"os"

	"github.com/kelseyhightower/envconfig"
)

// RedisConfig is read from the environment. DB is processed last so a
// malformed REDIS_DB leaves the other fields populated.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	Stream   string `envconfig:"REDIS_STREAM" default:"groundwater_forecasts"`
	Group    string `envconfig:"REDIS_GROUP" default:"forecast_store"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func GetRedisConfig() RedisConfig {
	var cfg RedisConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Printf("Invalid Redis environment, using default DB: %v", err)
		cfg.DB = 0
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
