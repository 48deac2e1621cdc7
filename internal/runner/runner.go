// Package runner forecasts every station in one batch and publishes the results.
package runner

import (
	"context"
	"fmt"
	"groundwatch/internal/models"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Store loads stations and their reading history
type Store interface {
	GetAllStations(ctx context.Context) ([]models.Station, error)
	GetHistoricalData(ctx context.Context, stationID string, days int) ([]models.HistoricalPoint, error)
}

type Forecaster interface {
	Generate(ctx context.Context, stationID string, history []models.HistoricalPoint, days int) models.ForecastResult
}

type Publisher interface {
	PublishForecast(ctx context.Context, result models.ForecastResult) (string, error)
}

type Options struct {
	Days        int // forecast horizon
	HistoryDays int // how much reading history feeds each forecast, <= 0 for all
	Workers     int
}

// Summary reports one batch run
type Summary struct {
	Stations  int               `json:"stations"`
	Published int               `json:"published"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"` // station id -> error
	Duration  time.Duration     `json:"duration"`
}

// FailedStations lists the stations that failed, sorted
func (s Summary) FailedStations() []string {
	ids := make([]string, 0, len(s.Errors))
	for id := range s.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Runner struct {
	store     Store
	engine    Forecaster
	publisher Publisher
	opts      Options
}

func New(store Store, engine Forecaster, publisher Publisher, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Runner{store: store, engine: engine, publisher: publisher, opts: opts}
}

// Run forecasts all stations. It only fails if the station list cannot be loaded;
// a failing station is recorded in the summary and the others carry on.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	stations, err := r.store.GetAllStations(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load stations: %w", err)
	}
	return r.RunStations(ctx, stations), nil
}

func (r *Runner) RunStations(ctx context.Context, stations []models.Station) Summary {
	started := time.Now()
	summary := Summary{Stations: len(stations), Errors: map[string]string{}}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for _, station := range stations {
		station := station

		g.Go(func() error {
			jobID, err := r.forecastStation(gCtx, station)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("Station %s: %v", station.ID, err)
				summary.Failed++
				summary.Errors[station.ID] = err.Error()
				// other stations keep going
				return nil
			}
			log.Printf("Published forecast %s for %s", jobID, station.ID)
			summary.Published++
			return nil
		})
	}

	g.Wait()
	summary.Duration = time.Since(started)
	return summary
}

func (r *Runner) forecastStation(ctx context.Context, station models.Station) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	history, err := r.store.GetHistoricalData(ctx, station.ID, r.opts.HistoryDays)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	if len(history) == 0 {
		log.Printf("Station %s has no readings, forecasting from defaults", station.ID)
	}

	result := r.engine.Generate(ctx, station.ID, withStationCoordinates(history, station), r.opts.Days)

	return r.publisher.PublishForecast(ctx, result)
}

// withStationCoordinates fills in the station's coordinates on readings that lack them
func withStationCoordinates(history []models.HistoricalPoint, station models.Station) []models.HistoricalPoint {
	if station.Latitude == 0 && station.Longitude == 0 {
		return history
	}
	coords := &models.Coordinates{Latitude: station.Latitude, Longitude: station.Longitude}

	out := make([]models.HistoricalPoint, len(history))
	for i, p := range history {
		if p.Coordinates == nil {
			p.Coordinates = coords
		}
		out[i] = p
	}
	return out
}
