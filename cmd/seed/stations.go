package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"groundwatch/internal/config"
	"groundwatch/internal/models"
	"io"
	"log"
	"strconv"
	"strings"
)

// csvColumns is the expected header; baseline_level may be omitted
var csvColumns = []string{"id", "name", "state", "district", "latitude", "longitude", "depth_meters", "annual_rainfall_mm", "baseline_level"}

const requiredColumns = 8

// readStations parses a stations CSV. Invalid rows are logged and counted, not fatal.
func readStations(r io.Reader) ([]models.Station, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) < requiredColumns || !strings.EqualFold(strings.TrimSpace(header[0]), "id") {
		return nil, 0, fmt.Errorf("unexpected CSV header %v, want %v", header, csvColumns)
	}

	var stations []models.Station
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read CSV record: %w", err)
		}

		s, err := parseStation(record)
		if err != nil {
			log.Printf("Skipping record %v: %v", record, err)
			skipped++
			continue
		}
		stations = append(stations, s)
	}

	return stations, skipped, nil
}

func parseStation(record []string) (models.Station, error) {
	if len(record) < requiredColumns {
		return models.Station{}, fmt.Errorf("has %d columns, want at least %d", len(record), requiredColumns)
	}

	s := models.Station{
		ID:       strings.TrimSpace(record[0]),
		Name:     strings.TrimSpace(record[1]),
		State:    strings.TrimSpace(record[2]),
		District: strings.TrimSpace(record[3]),
	}
	if s.ID == "" || s.Name == "" {
		return models.Station{}, errors.New("id and name are required")
	}

	numbers := []*float64{&s.Latitude, &s.Longitude, &s.DepthMeters, &s.AnnualRainfallMm, &s.BaselineLevel}
	for i, dst := range numbers {
		col := 4 + i
		if col >= len(record) || strings.TrimSpace(record[col]) == "" {
			if col < requiredColumns {
				return models.Station{}, fmt.Errorf("missing %s", csvColumns[col])
			}
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return models.Station{}, fmt.Errorf("invalid %s: %w", csvColumns[col], err)
		}
		*dst = v
	}

	if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
		return models.Station{}, fmt.Errorf("coordinates (%.4f, %.4f) out of range", s.Latitude, s.Longitude)
	}
	if s.DepthMeters < 0 || s.AnnualRainfallMm < 0 || s.BaselineLevel < 0 {
		return models.Station{}, errors.New("depth, rainfall and baseline must not be negative")
	}

	return withBaseline(s), nil
}

// fromConfig converts the stations listed in config.yaml
func fromConfig(seeds []config.StationSeed) []models.Station {
	stations := make([]models.Station, 0, len(seeds))
	for _, s := range seeds {
		stations = append(stations, withBaseline(models.Station{
			ID:               s.ID,
			Name:             s.Name,
			State:            s.State,
			District:         s.District,
			Latitude:         s.Latitude,
			Longitude:        s.Longitude,
			DepthMeters:      s.DepthMeters,
			AnnualRainfallMm: s.AnnualRainfallMm,
			BaselineLevel:    s.BaselineLevel,
		}))
	}
	return stations
}

// withBaseline fills a missing baseline from half the well depth, or 10m
func withBaseline(s models.Station) models.Station {
	if s.BaselineLevel > 0 {
		return s
	}
	if s.DepthMeters > 0 {
		s.BaselineLevel = s.DepthMeters / 2
	} else {
		s.BaselineLevel = 10
	}
	return s
}
