package detector

import (
	"groundwatch/internal/metrics"
	"groundwatch/internal/models"
	"math"
)

const (
	KindDrop  = "drop"
	KindSpike = "spike"
)

// Detector flags readings that depart from the rolling window before them
type Detector struct {
	window          int     // readings the baseline is computed over
	zScoreThreshold float64 // standard deviations from the baseline to flag as anomaly
}

// NewDetector creates a detector comparing each reading to the previous 30
func NewDetector() *Detector {
	return &Detector{
		window:          30,
		zScoreThreshold: 2.0,
	}
}

// DetectAnomalies scans a station's history, oldest first, with a rolling z-score.
// A drop usually means heavy pumping; a spike is more often a sensor fault.
func (d *Detector) DetectAnomalies(stationID string, history []models.HistoricalPoint) []models.Anomaly {
	if len(history) <= d.window {
		return nil
	}

	var anomalies []models.Anomaly
	for i := d.window; i < len(history); i++ {
		values := levels(history[i-d.window : i])
		mean := calculateMean(values)
		stdDev := calculateStdDev(values, mean)
		if stdDev == 0 {
			continue // No variation, no anomalies
		}

		p := history[i]
		zScore := CalculateZScore(p.WaterLevel, mean, stdDev)
		if !d.IsOutlier(zScore) {
			continue
		}

		kind := KindSpike
		if zScore < 0 {
			kind = KindDrop
		}
		severity := calculateSeverityFromZScore(zScore)
		metrics.RecordAnomaly(kind, severity)

		anomalies = append(anomalies, models.Anomaly{
			StationID: stationID,
			Timestamp: p.Timestamp,
			Value:     p.WaterLevel,
			Baseline:  mean,
			ZScore:    zScore,
			Kind:      kind,
			Severity:  severity,
		})
	}

	return anomalies
}

// IsOutlier checks if a Z-score is beyond the detector's threshold
func (d *Detector) IsOutlier(zScore float64) bool {
	return math.Abs(zScore) > d.zScoreThreshold
}

// calculateSeverityFromZScore determines severity based on Z-score
func calculateSeverityFromZScore(zScore float64) string {
	absZScore := math.Abs(zScore)
	if absZScore > 4.0 {
		return "high"
	} else if absZScore > 3.0 {
		return "medium"
	}
	return "low"
}

// CalculateZScore calculates the Z-score for a value given mean and standard deviation
func CalculateZScore(value, mean, stdDev float64) float64 {
	if stdDev == 0 {
		return 0
	}
	return (value - mean) / stdDev
}

func levels(points []models.HistoricalPoint) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.WaterLevel
	}
	return values
}
