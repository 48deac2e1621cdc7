package config

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func reset() {
	instance = nil
	once = *new(sync.Once)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `weather:
  base_url: "https://api.open-meteo.com/v1/forecast"
  timeout: 3s
forecast:
  default_days: 14
  max_days: 30
  workers: 8
  schedule: "0 */6 * * *"
redis:
  max_len: 500
server:
  addr: ":9090"
stations:
  - id: RAJ001
    name: "Jaisalmer"
    state: "Rajasthan"
    district: "Jaisalmer"
    latitude: 26.9157
    longitude: 70.9083
    depth_meters: 120
    annual_rainfall_mm: 209
`)
	reset()

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Weather.Timeout != 3*time.Second {
		t.Errorf("Weather.Timeout = %v, want 3s", cfg.Weather.Timeout)
	}

	if cfg.Forecast.DefaultDays != 14 {
		t.Errorf("Forecast.DefaultDays = %d, want 14", cfg.Forecast.DefaultDays)
	}

	if cfg.Redis.MaxLen != 500 {
		t.Errorf("Redis.MaxLen = %d, want 500", cfg.Redis.MaxLen)
	}

	if len(cfg.Stations) != 1 {
		t.Fatalf("Expected 1 station, got %d", len(cfg.Stations))
	}

	if cfg.Stations[0].Name != "Jaisalmer" {
		t.Errorf("Expected station name 'Jaisalmer', got '%s'", cfg.Stations[0].Name)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Expected server addr ':9090', got '%s'", cfg.Server.Addr)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "forecast:\n  workers: 2\n")
	reset()

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Weather.Timezone != "Asia/Kolkata" {
		t.Errorf("Weather.Timezone = %v, want Asia/Kolkata", cfg.Weather.Timezone)
	}
	if cfg.Weather.Timeout != 5*time.Second {
		t.Errorf("Weather.Timeout = %v, want 5s", cfg.Weather.Timeout)
	}
	if cfg.Forecast.DefaultDays != 7 {
		t.Errorf("Forecast.DefaultDays = %d, want 7", cfg.Forecast.DefaultDays)
	}
	if cfg.Forecast.Workers != 2 {
		t.Errorf("Forecast.Workers = %d, want 2", cfg.Forecast.Workers)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %v, want :8080", cfg.Server.Addr)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	reset()

	_, err := Load(path)
	if err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	reset()

	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "default days above max days",
			content: "forecast:\n  default_days: 40\n  max_days: 30\n",
			wantMsg: "DefaultDays",
		},
		{
			name:    "weather horizon beyond provider limit",
			content: "weather:\n  max_days: 20\n",
			wantMsg: "MaxDays",
		},
		{
			name:    "bad base url",
			content: "weather:\n  base_url: \"not a url\"\n",
			wantMsg: "BaseURL",
		},
		{
			name:    "station without id",
			content: "stations:\n  - name: \"Nameless\"\n    latitude: 10\n    longitude: 76\n",
			wantMsg: "ID",
		},
		{
			name:    "latitude out of range",
			content: "stations:\n  - id: X1\n    name: \"North of the pole\"\n    latitude: 95\n    longitude: 76\n",
			wantMsg: "Latitude",
		},
		{
			name:    "bad schedule",
			content: "forecast:\n  schedule: \"every six hours\"\n",
			wantMsg: "forecast.schedule",
		},
		{
			name:    "duplicate station ids",
			content: "stations:\n  - id: X1\n    name: \"A\"\n  - id: X1\n    name: \"B\"\n",
			wantMsg: "duplicate id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			reset()

			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestGet(t *testing.T) {
	path := writeConfig(t, "forecast:\n  default_days: 10\n")
	reset()

	_, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}

	if cfg.Forecast.DefaultDays != 10 {
		t.Errorf("Expected 10 default days, got %d", cfg.Forecast.DefaultDays)
	}
}

func TestGet_Panic(t *testing.T) {
	reset()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected Get() to panic when config not loaded")
		}
	}()

	Get()
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.validate(); err != nil {
		t.Errorf("Default().validate() error = %v", err)
	}
	if cfg.Forecast.MaxDays != 90 {
		t.Errorf("Default().Forecast.MaxDays = %d, want 90", cfg.Forecast.MaxDays)
	}
	if cfg.Redis.Block != 5*time.Second {
		t.Errorf("Default().Redis.Block = %v, want 5s", cfg.Redis.Block)
	}
}

func TestLoadOrDefault(t *testing.T) {
	reset()

	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Forecast.DefaultDays != 7 {
		t.Errorf("LoadOrDefault().Forecast.DefaultDays = %d, want 7", cfg.Forecast.DefaultDays)
	}
	if Get() != cfg {
		t.Error("Get() should return the default config after LoadOrDefault")
	}

	path := writeConfig(t, "forecast:\n  default_days: 3\n")
	reset()

	cfg, err = LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Forecast.DefaultDays != 3 {
		t.Errorf("LoadOrDefault().Forecast.DefaultDays = %d, want 3", cfg.Forecast.DefaultDays)
	}
}
