package forecast

import (
	"groundwatch/internal/models"
	"math"
	"time"
)

const (
	// FallbackConfidence is the flat confidence reported by degraded forecasts
	FallbackConfidence = 50.0

	minConfidence = 10.0
	maxConfidence = 100.0

	MinAccuracy = 60.0
	MaxAccuracy = 95.0
)

// confidenceIntervals attaches a confidence and symmetric bounds to each level.
//
// Day-one confidence grows with history length (saturating at 30 points) and
// shrinks with day-over-day volatility; it then drops by a constant step per
// day, so it never increases across the horizon.
func confidenceIntervals(levels []float64, history []models.HistoricalPoint, seed float64, today time.Time) []models.ForecastPoint {
	r := newStream(seed)

	dataFactor := math.Min(1, float64(len(history))/30)
	vol := volatility(waterLevels(history))
	jitter := r.next() * 3

	base := 65 + 30*dataFactor - math.Min(25, vol*100) - jitter
	decay := 0.8 + math.Min(1.2, vol*10)

	points := make([]models.ForecastPoint, len(levels))
	for i, level := range levels {
		confidence := clamp(base-decay*float64(i), minConfidence, maxConfidence)
		points[i] = newPoint(today.AddDate(0, 0, i+1), level, confidence)
	}
	return points
}

// newPoint rounds level and bounds to centimetres. Bounds widen with (100 - confidence).
func newPoint(ts time.Time, level, confidence float64) models.ForecastPoint {
	confidence = round(confidence, 1)
	margin := (100 - confidence) / 100 * math.Max(level, 1) * 0.5

	return models.ForecastPoint{
		Timestamp:      ts,
		PredictedLevel: round(level, 2),
		Confidence:     confidence,
		UpperBound:     round(level+margin, 2),
		LowerBound:     round(math.Max(0, level-margin), 2),
	}
}

// volatility is the standard deviation of day-over-day changes relative to the mean level
func volatility(levels []float64) float64 {
	if len(levels) < 3 {
		return 0.1
	}
	changes := make([]float64, len(levels)-1)
	for i := 1; i < len(levels); i++ {
		changes[i-1] = levels[i] - levels[i-1]
	}
	mean := calculateMean(levels)
	if mean <= 0 {
		return 0.1
	}
	return calculateStdDev(changes, calculateMean(changes)) / mean
}

// accuracy scores data quantity and consistency, scaled by a seeded station multiplier
func accuracy(history []models.HistoricalPoint, seed float64) float64 {
	r := newStream(seed)

	dataQuality := math.Min(1, float64(len(history))/50)
	consistency := calculateConsistency(waterLevels(history))
	stationVariation := 0.8 + r.next()*0.4

	base := (dataQuality*0.6 + consistency*0.4) * stationVariation
	return math.Round(clamp(base*100, MinAccuracy, MaxAccuracy))
}

// calculateConsistency is 1 minus the mean absolute step relative to the highest level
func calculateConsistency(levels []float64) float64 {
	if len(levels) < 2 {
		return 1
	}

	total := 0.0
	maxLevel := levels[0]
	for i := 1; i < len(levels); i++ {
		total += math.Abs(levels[i] - levels[i-1])
		maxLevel = math.Max(maxLevel, levels[i])
	}
	if maxLevel <= 0 {
		return 0
	}

	avgDifference := total / float64(len(levels)-1)
	return math.Max(0, 1-avgDifference/maxLevel)
}

// calculateMean calculates the mean of values
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateStdDev calculates the sample standard deviation of values
func calculateStdDev(values []float64, mean float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// clamp keeps NaN as NaN so callers can still detect it
func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
