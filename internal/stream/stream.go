// Package stream moves forecast results between the forecasting jobs and the
// store over a Redis stream. Each entry carries one JSON envelope under the
// "data" field.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"groundwatch/internal/metrics"
	"groundwatch/internal/models"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const dataField = "data"

// Envelope is a forecast in flight
type Envelope struct {
	JobID       string                `json:"job_id"`
	StationID   string                `json:"station_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	Result      models.ForecastResult `json:"result"`
}

// NewEnvelope wraps a result with a fresh job id
func NewEnvelope(result models.ForecastResult, generatedAt time.Time) Envelope {
	return Envelope{
		JobID:       uuid.NewString(),
		StationID:   result.StationID,
		GeneratedAt: generatedAt.UTC(),
		Result:      result,
	}
}

// Stored converts the envelope into the persisted form
func (e Envelope) Stored() models.StoredForecast {
	return models.StoredForecast{
		JobID:       e.JobID,
		StationID:   e.StationID,
		GeneratedAt: e.GeneratedAt,
		Result:      e.Result,
	}
}

func encode(e Envelope) (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize forecast for %s: %w", e.StationID, err)
	}
	return map[string]interface{}{dataField: string(data)}, nil
}

func decode(values map[string]interface{}) (Envelope, error) {
	var e Envelope

	raw, ok := values[dataField].(string)
	if !ok {
		return e, fmt.Errorf("message has no %q field", dataField)
	}
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return e, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if _, err := uuid.Parse(e.JobID); err != nil {
		return e, fmt.Errorf("invalid job id %q: %w", e.JobID, err)
	}
	if e.StationID == "" {
		return e, fmt.Errorf("message for job %s has no station id", e.JobID)
	}
	return e, nil
}

// Publisher appends forecasts to a stream
type Publisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
	now    func() time.Time
}

// NewPublisher creates a publisher. The stream is trimmed to roughly maxLen
// entries; maxLen <= 0 disables trimming.
func NewPublisher(client redis.Cmdable, stream string, maxLen int64) *Publisher {
	return &Publisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		now:    time.Now,
	}
}

// PublishForecast adds a result to the stream and returns the job id it was published under
func (p *Publisher) PublishForecast(ctx context.Context, result models.ForecastResult) (string, error) {
	envelope := NewEnvelope(result, p.now())

	values, err := encode(envelope)
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	err = p.client.XAdd(ctx, args).Err()
	metrics.RecordStreamMessage("publish", err)
	if err != nil {
		return "", fmt.Errorf("failed to publish forecast for %s: %w", result.StationID, err)
	}
	return envelope.JobID, nil
}
