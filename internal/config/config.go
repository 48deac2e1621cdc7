package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// StationSeed is a station listed in config.yaml for cmd/seed
type StationSeed struct {
	ID               string  `yaml:"id" validate:"required"`
	Name             string  `yaml:"name" validate:"required"`
	State            string  `yaml:"state"`
	District         string  `yaml:"district"`
	Latitude         float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude        float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	DepthMeters      float64 `yaml:"depth_meters" validate:"gte=0"`
	AnnualRainfallMm float64 `yaml:"annual_rainfall_mm" validate:"gte=0"`
	BaselineLevel    float64 `yaml:"baseline_level" validate:"gte=0"`
}

var (
	instance *Config
	once     sync.Once
)

type Config struct {
	Weather struct {
		BaseURL  string        `yaml:"base_url" validate:"omitempty,url"`
		Timezone string        `yaml:"timezone"`
		Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
		MaxDays  int           `yaml:"max_days" validate:"gte=0,lte=16"`
	} `yaml:"weather"`
	Forecast struct {
		DefaultDays int    `yaml:"default_days" validate:"gte=0,ltefield=MaxDays"`
		MaxDays     int    `yaml:"max_days" validate:"gte=0,lte=365"`
		HistoryDays int    `yaml:"history_days" validate:"gte=0"`
		Workers     int    `yaml:"workers" validate:"gte=0,lte=64"`
		Schedule    string `yaml:"schedule"`
	} `yaml:"forecast"`
	Redis struct {
		MaxLen    int64         `yaml:"max_len" validate:"gte=0"`
		BatchSize int64         `yaml:"batch_size" validate:"gte=0"`
		Block     time.Duration `yaml:"block" validate:"gte=0"`
	} `yaml:"redis"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Stations []StationSeed `yaml:"stations" validate:"dive"`
}

func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file %s: %w", configPath, readErr)
			return
		}

		if parseErr := yaml.Unmarshal(data, instance); parseErr != nil {
			err = fmt.Errorf("failed to parse config: %w", parseErr)
			return
		}

		instance.applyDefaults()

		if validateErr := instance.validate(); validateErr != nil {
			err = validateErr
			return
		}
	})

	return instance, err
}

// LoadOrDefault loads configPath, or uses Default when no file exists there
func LoadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		log.Printf("No config file at %s, using defaults", configPath)
		once.Do(func() { instance = Default() })
		return Get(), nil
	}
	return Load(configPath)
}

func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

// Default returns a config with every default applied, for binaries run without config.yaml
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Weather.Timezone == "" {
		c.Weather.Timezone = "Asia/Kolkata"
	}
	if c.Weather.Timeout == 0 {
		c.Weather.Timeout = 5 * time.Second
	}
	if c.Weather.MaxDays == 0 {
		c.Weather.MaxDays = 16
	}
	if c.Forecast.MaxDays == 0 {
		c.Forecast.MaxDays = 90
	}
	if c.Forecast.DefaultDays == 0 {
		c.Forecast.DefaultDays = 7
	}
	if c.Forecast.HistoryDays == 0 {
		c.Forecast.HistoryDays = 365
	}
	if c.Forecast.Workers == 0 {
		c.Forecast.Workers = 4
	}
	if c.Redis.MaxLen == 0 {
		c.Redis.MaxLen = 10000
	}
	if c.Redis.BatchSize == 0 {
		c.Redis.BatchSize = 10
	}
	if c.Redis.Block == 0 {
		c.Redis.Block = 5 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Forecast.Schedule != "" {
		if _, err := cron.ParseStandard(c.Forecast.Schedule); err != nil {
			return fmt.Errorf("forecast.schedule: %w", err)
		}
	}

	seen := make(map[string]bool, len(c.Stations))
	for _, s := range c.Stations {
		if seen[s.ID] {
			return fmt.Errorf("stations: duplicate id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
