package runner

import (
	"context"
	"errors"
	"fmt"
	"groundwatch/internal/models"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeStore struct {
	stations   []models.Station
	listErr    error
	history    map[string][]models.HistoricalPoint
	historyErr map[string]error
	gotDays    int32
}

func (s *fakeStore) GetAllStations(ctx context.Context) ([]models.Station, error) {
	return s.stations, s.listErr
}

func (s *fakeStore) GetHistoricalData(ctx context.Context, stationID string, days int) ([]models.HistoricalPoint, error) {
	atomic.StoreInt32(&s.gotDays, int32(days))
	if err := s.historyErr[stationID]; err != nil {
		return nil, err
	}
	return s.history[stationID], nil
}

type fakeEngine struct {
	mu       sync.Mutex
	calls    map[string][]models.HistoricalPoint
	inFlight int32
	peak     int32
}

func (e *fakeEngine) Generate(ctx context.Context, stationID string, history []models.HistoricalPoint, days int) models.ForecastResult {
	n := atomic.AddInt32(&e.inFlight, 1)
	defer atomic.AddInt32(&e.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&e.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&e.peak, peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	e.mu.Lock()
	e.calls[stationID] = history
	e.mu.Unlock()

	return models.ForecastResult{StationID: stationID, Forecast: make([]models.ForecastPoint, days), Model: "Linear"}
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	failFor   string
}

func (p *fakePublisher) PublishForecast(ctx context.Context, result models.ForecastResult) (string, error) {
	if result.StationID == p.failFor {
		return "", errors.New("redis unavailable")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, result.StationID)
	return "job-" + result.StationID, nil
}

func stations(n int) []models.Station {
	out := make([]models.Station, n)
	for i := range out {
		out[i] = models.Station{ID: fmt.Sprintf("ST%03d", i), Latitude: 12 + float64(i), Longitude: 77}
	}
	return out
}

func TestRun(t *testing.T) {
	store := &fakeStore{
		stations:   stations(10),
		history:    map[string][]models.HistoricalPoint{"ST001": {{WaterLevel: 9}}},
		historyErr: map[string]error{"ST002": errors.New("deadlock")},
	}
	engine := &fakeEngine{calls: map[string][]models.HistoricalPoint{}}
	publisher := &fakePublisher{failFor: "ST003"}

	r := New(store, engine, publisher, Options{Days: 14, HistoryDays: 180, Workers: 3})
	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Stations != 10 {
		t.Errorf("Stations = %d, want 10", summary.Stations)
	}
	if summary.Published != 8 {
		t.Errorf("Published = %d, want 8", summary.Published)
	}
	if summary.Failed != 2 {
		t.Errorf("Failed = %d, want 2", summary.Failed)
	}
	if got := summary.FailedStations(); len(got) != 2 || got[0] != "ST002" || got[1] != "ST003" {
		t.Errorf("FailedStations() = %v, want [ST002 ST003]", got)
	}
	if got := atomic.LoadInt32(&store.gotDays); got != 180 {
		t.Errorf("history days = %d, want 180", got)
	}
	if peak := atomic.LoadInt32(&engine.peak); peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}

	history := engine.calls["ST001"]
	if len(history) != 1 || history[0].Coordinates == nil || history[0].Coordinates.Latitude != 13 {
		t.Errorf("ST001 history = %+v, want station coordinates attached", history)
	}
}

func TestRun_StationListFailure(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection refused")}
	r := New(store, &fakeEngine{calls: map[string][]models.HistoricalPoint{}}, &fakePublisher{}, Options{})

	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("Run() expected error, got nil")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &fakeStore{stations: stations(3)}
	publisher := &fakePublisher{}
	summary, err := New(store, &fakeEngine{calls: map[string][]models.HistoricalPoint{}}, publisher, Options{Workers: 1}).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Failed != 3 || len(publisher.published) != 0 {
		t.Errorf("Failed = %d, published = %v, want every station to fail", summary.Failed, publisher.published)
	}
}

func TestWithStationCoordinates(t *testing.T) {
	own := &models.Coordinates{Latitude: 1, Longitude: 2}
	history := []models.HistoricalPoint{{WaterLevel: 5}, {WaterLevel: 6, Coordinates: own}}

	got := withStationCoordinates(history, models.Station{Latitude: 26.9, Longitude: 70.9})
	if got[0].Coordinates == nil || got[0].Coordinates.Latitude != 26.9 {
		t.Errorf("got[0].Coordinates = %+v, want station coordinates", got[0].Coordinates)
	}
	if got[1].Coordinates != own {
		t.Errorf("got[1].Coordinates = %+v, want reading's own coordinates kept", got[1].Coordinates)
	}
	if history[0].Coordinates != nil {
		t.Error("withStationCoordinates() modified its input")
	}

	if got := withStationCoordinates(history, models.Station{}); got[0].Coordinates != nil {
		t.Error("station without coordinates should leave readings untouched")
	}
}
