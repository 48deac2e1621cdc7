package detector

import (
	"groundwatch/internal/models"
	"math"
	"time"
)

// AlertSuggester suggests level alerts based on detected anomalies
type AlertSuggester struct {
	minAnomaliesForSuggestion int
	now                       func() time.Time
}

// NewAlertSuggester creates a new alert suggester
func NewAlertSuggester() *AlertSuggester {
	return &AlertSuggester{
		minAnomaliesForSuggestion: 3, // Suggest after 3 similar anomalies
		now:                       time.Now,
	}
}

// SuggestAlerts groups a station's anomalies by kind and suggests an alert
// threshold for every kind seen often enough. Drops come before spikes.
func (as *AlertSuggester) SuggestAlerts(anomalies []models.Anomaly) []models.AlertSuggestion {
	if len(anomalies) == 0 {
		return nil
	}

	byKind := make(map[string][]models.Anomaly)
	for _, a := range anomalies {
		byKind[a.Kind] = append(byKind[a.Kind], a)
	}

	var suggestions []models.AlertSuggestion
	for _, kind := range []string{KindDrop, KindSpike} {
		kindAnomalies := byKind[kind]
		if len(kindAnomalies) < as.minAnomaliesForSuggestion {
			continue
		}
		suggestions = append(suggestions, as.generateSuggestion(kind, kindAnomalies))
	}

	return suggestions
}

// generateSuggestion creates an alert suggestion for a kind with repeated anomalies
func (as *AlertSuggester) generateSuggestion(kind string, anomalies []models.Anomaly) models.AlertSuggestion {
	values := make([]float64, len(anomalies))
	for i, a := range anomalies {
		values[i] = a.Value
	}

	mean := calculateMean(values)
	stdDev := calculateStdDev(values, mean)

	var threshold float64
	var operator string
	var description string

	switch kind {
	case KindDrop:
		// Alert as soon as levels reach the band the drops landed in
		threshold = mean + stdDev
		operator = "<"
		description = "Water level falling sharply below its recent range, check for over-extraction"
	default:
		threshold = math.Max(0, mean-stdDev)
		operator = ">"
		description = "Water level jumping above its recent range, check the sensor"
	}

	return models.AlertSuggestion{
		StationID:    anomalies[0].StationID,
		Kind:         kind,
		Threshold:    math.Round(threshold*100) / 100,
		Operator:     operator,
		SuggestedAt:  as.now(),
		Confidence:   as.calculateConfidence(values, threshold, operator),
		Description:  description,
		AnomalyCount: len(anomalies),
	}
}

// calculateConfidence calculates how confident we are in the alert threshold
func (as *AlertSuggester) calculateConfidence(values []float64, threshold float64, operator string) float64 {
	if len(values) == 0 {
		return 0
	}

	// Count how many values would trigger the alert
	triggeredCount := 0
	for _, v := range values {
		if operator == ">" && v > threshold {
			triggeredCount++
		} else if operator == "<" && v < threshold {
			triggeredCount++
		}
	}

	// Confidence is the ratio of triggered values (0 to 1)
	return float64(triggeredCount) / float64(len(values))
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
