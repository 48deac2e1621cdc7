package forecast

import (
	"groundwatch/internal/models"
	"math"
	"time"
)

const (
	defaultLevel = 10.0

	minARIMAPoints    = 7
	minTrendPoints    = 2
	minSeasonalPoints = 30
)

// arimaForecast blends an autoregressive step with a pull toward the moving average.
// Delegates to linearForecast below minARIMAPoints.
func arimaForecast(history []models.HistoricalPoint, days int, seed float64) []float64 {
	if len(history) < minARIMAPoints {
		return linearForecast(history, days, seed)
	}

	r := newStream(seed)
	levels := waterLevels(history)

	arOrder := int(r.next()*3) + 1  // 1-3
	maWindow := int(r.next()*4) + 2 // 2-5

	ma := movingAverage(levels, maWindow)
	ar := autocorrelation(levels, arOrder)
	maComponent := ma[len(ma)-1]

	// projections are fed back so each step looks arOrder steps behind the current value
	series := make([]float64, len(levels), len(levels)+days)
	copy(series, levels)

	forecast := make([]float64, days)
	for i := range forecast {
		last := series[len(series)-1]
		arComponent := ar * (last - series[len(series)-1-arOrder])
		noise := (r.next() - 0.5) * 0.5

		predicted := last +
			arComponent*(0.2+r.next()*0.2) +
			(maComponent-last)*(0.05+r.next()*0.1) +
			noise

		forecast[i] = math.Max(0, predicted)
		series = append(series, predicted)
	}

	return forecast
}

// trendForecast extrapolates the least-squares slope, dampened by 0.95^i
func trendForecast(history []models.HistoricalPoint, days int, seed float64) []float64 {
	if len(history) < minTrendPoints {
		level := defaultLevel
		if len(history) == 1 {
			level = math.Max(0, history[0].WaterLevel)
		}
		return repeat(level, days)
	}

	r := newStream(seed)
	levels := waterLevels(history)
	last := levels[len(levels)-1]

	slope := trendSlope(levels) * (0.8 + r.next()*0.4)

	forecast := make([]float64, days)
	for i := 1; i <= days; i++ {
		dampening := math.Pow(0.95, float64(i))
		noise := (r.next() - 0.5) * 0.3
		forecast[i-1] = math.Max(0, last+slope*float64(i)*dampening+noise)
	}

	return forecast
}

// seasonalForecast applies the monthly profile of the history to each future day
func seasonalForecast(history []models.HistoricalPoint, days int, seed float64, today time.Time) []float64 {
	if len(history) < minSeasonalPoints {
		return linearForecast(history, days, seed)
	}

	r := newStream(seed)
	profile := seasonalProfile(history)
	base := history[len(history)-1].WaterLevel

	forecast := make([]float64, days)
	for i := 1; i <= days; i++ {
		month := today.AddDate(0, 0, i).Month()
		effect := profile[month-1] * (0.5 + r.next()*0.5)
		noise := (r.next() - 0.5) * 0.4
		forecast[i-1] = math.Max(0, base+effect+noise)
	}

	return forecast
}

// linearForecast drifts from the last level by a single seeded variation
func linearForecast(history []models.HistoricalPoint, days int, seed float64) []float64 {
	if len(history) == 0 {
		return repeat(defaultLevel, days)
	}

	r := newStream(seed)
	last := history[len(history)-1].WaterLevel
	variation := r.next()*2 - 1

	forecast := make([]float64, days)
	for i := range forecast {
		forecast[i] = math.Max(0, last+variation*0.1*float64(i+1))
	}
	return forecast
}

func waterLevels(history []models.HistoricalPoint) []float64 {
	levels := make([]float64, len(history))
	for i, p := range history {
		levels[i] = p.WaterLevel
	}
	return levels
}

func repeat(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

// movingAverage returns the trailing window means, len(data)-window+1 values
func movingAverage(data []float64, window int) []float64 {
	if window <= 0 || len(data) < window {
		return nil
	}
	result := make([]float64, 0, len(data)-window+1)
	sum := 0.0
	for i, v := range data {
		sum += v
		if i >= window {
			sum -= data[i-window]
		}
		if i >= window-1 {
			result = append(result, sum/float64(window))
		}
	}
	return result
}

// autocorrelation is the lag-k sample autocorrelation, in [-1,1]
func autocorrelation(data []float64, lag int) float64 {
	n := len(data)
	if n < lag+1 {
		return 0
	}

	mean := calculateMean(data)
	var num, den float64
	for i := 0; i < n; i++ {
		d := data[i] - mean
		den += d * d
		if i >= lag {
			num += d * (data[i-lag] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// trendSlope is the ordinary least squares slope of data against its index
func trendSlope(data []float64) float64 {
	n := float64(len(data))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range data {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denominator
}

// seasonalProfile returns, per calendar month, the month's mean level minus the overall mean.
// Months without readings contribute no offset.
func seasonalProfile(history []models.HistoricalPoint) [12]float64 {
	var sums [12]float64
	var counts [12]int
	for _, p := range history {
		m := p.Timestamp.Month() - 1
		sums[m] += p.WaterLevel
		counts[m]++
	}

	overall := calculateMean(waterLevels(history))

	var profile [12]float64
	for m := range profile {
		if counts[m] > 0 {
			profile[m] = sums[m]/float64(counts[m]) - overall
		}
	}
	return profile
}
