package forecast

import (
	"fmt"
	"groundwatch/internal/models"
	"math"
	"strings"
)

// Model labels reported on a ForecastResult. Only the ARIMA-style, trend,
// seasonal and linear forecasters exist; "LSTM" and "Prophet" are display
// names picked by selectModel and never select a different algorithm.
const (
	ModelARIMA   = "ARIMA"
	ModelLSTM    = "LSTM"
	ModelProphet = "Prophet"
	ModelLinear  = "Linear"
)

// Level thresholds in metres
const (
	CriticalLevel = 3.0
	WarningLevel  = 7.0
)

type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Tone is how a caller should present a recommendation
type Tone string

const (
	ToneWarning  Tone = "warning"
	TonePositive Tone = "positive"
	ToneNeutral  Tone = "neutral"
)

// Trend compares the first and last predicted levels; a change beyond 5% is a direction
func Trend(points []models.ForecastPoint) TrendDirection {
	if len(points) < 2 {
		return TrendStable
	}
	change := percentChange(points[0].PredictedLevel, points[len(points)-1].PredictedLevel)
	switch {
	case change > 5:
		return TrendIncreasing
	case change < -5:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// Risk is high when the forecast dips below CriticalLevel or confidence averages under 60%
func Risk(points []models.ForecastPoint) RiskLevel {
	if len(points) == 0 {
		return RiskHigh
	}
	minLevel, avgConfidence := summarize(points)

	if minLevel < CriticalLevel || avgConfidence < 60 {
		return RiskHigh
	}
	if minLevel < WarningLevel || avgConfidence < 80 {
		return RiskMedium
	}
	return RiskLow
}

// Classify maps a recommendation to a tone by keyword.
// "critical"/"warning" win over "positive"/"safe".
func Classify(recommendation string) Tone {
	text := strings.ToLower(recommendation)
	switch {
	case strings.Contains(text, "critical"), strings.Contains(text, "warning"):
		return ToneWarning
	case strings.Contains(text, "positive"), strings.Contains(text, "safe"):
		return TonePositive
	default:
		return ToneNeutral
	}
}

func percentChange(first, last float64) float64 {
	if first == 0 {
		if last > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return (last - first) / first * 100
}

func summarize(points []models.ForecastPoint) (minLevel, avgConfidence float64) {
	minLevel = math.Inf(1)
	total := 0.0
	for _, p := range points {
		minLevel = math.Min(minLevel, p.PredictedLevel)
		total += p.Confidence
	}
	return minLevel, total / float64(len(points))
}

// recommendations builds advisories from the forecast and the station's history
func recommendations(points []models.ForecastPoint, history []models.HistoricalPoint) []string {
	if len(points) == 0 {
		return nil
	}

	minLevel, avgConfidence := summarize(points)
	trend := Trend(points)
	change := percentChange(points[0].PredictedLevel, points[len(points)-1].PredictedLevel)

	var recs []string

	switch {
	case minLevel < CriticalLevel:
		recs = append(recs, fmt.Sprintf("Critical: groundwater is projected to fall to %.2fm. Restrict extraction and arrange alternative supply such as water tankers.", minLevel))
	case minLevel < WarningLevel:
		recs = append(recs, fmt.Sprintf("Warning: groundwater is projected to reach %.2fm. Promote water conservation and build recharge pits.", minLevel))
	}

	switch trend {
	case TrendDecreasing:
		recs = append(recs, fmt.Sprintf("Warning: levels are declining %.1f%% over the next %d days. Schedule rainwater harvesting and check dam maintenance.", -change, len(points)))
	case TrendIncreasing:
		if minLevel >= WarningLevel {
			recs = append(recs, "Positive outlook: levels are rising and remain in a safe range for regular extraction.")
		} else {
			recs = append(recs, "Levels are recovering; keep conservation measures in place until they stabilise.")
		}
	case TrendStable:
		if minLevel >= WarningLevel {
			recs = append(recs, "Levels are stable and within the safe operating range.")
		}
	}

	if avgConfidence < 70 {
		recs = append(recs, fmt.Sprintf("Forecast confidence is limited (%.0f%%); verify with field measurements before planning extraction.", avgConfidence))
	}

	if len(history) >= 7 {
		levels := waterLevels(history)
		mean := calculateMean(levels)
		if mean > 0 && levels[len(levels)-1] < mean*0.8 {
			recs = append(recs, "Warning: the current level is more than 20% below this station's historical average.")
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "Levels are within the normal range; continue routine monitoring.")
	}
	return recs
}

// selectModel picks the display label from history length and seed
func selectModel(history []models.HistoricalPoint, seed float64) string {
	r := newStream(seed)
	n := len(history)

	if n < 10 {
		return ModelLinear
	}
	if n < 30 {
		if r.next() > 0.5 {
			return ModelARIMA
		}
		return ModelProphet
	}

	choice := r.next()
	if choice < 0.4 {
		return ModelLSTM
	}
	if choice < 0.7 {
		return ModelARIMA
	}
	return ModelProphet
}
