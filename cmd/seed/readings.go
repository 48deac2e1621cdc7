package main

import (
	"groundwatch/internal/models"
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// monsoonPeakDay is the day of year the seasonal curve is centred on
const monsoonPeakDay = 180

// syntheticReadings generates one reading per day for the days before end,
// oldest first. The series is a function of the station alone, so reseeding
// an empty database reproduces the same history.
func syntheticReadings(s models.Station, end time.Time, days int) []models.HistoricalPoint {
	if days <= 0 {
		return nil
	}

	h := fnv.New64a()
	h.Write([]byte(s.ID))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	y, m, d := end.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	rate, factor, stress := rainfallProfile(s.AnnualRainfallMm)
	amplitude := 8 * s.AnnualRainfallMm / 1000
	coords := &models.Coordinates{Latitude: s.Latitude, Longitude: s.Longitude}

	readings := make([]models.HistoricalPoint, 0, days)
	for daysAgo := days; daysAgo >= 1; daysAgo-- {
		ts := today.AddDate(0, 0, -daysAgo)
		seasonal := amplitude * math.Sin(2*math.Pi*float64(ts.YearDay()-monsoonPeakDay)/365)
		decline := rate * float64(days-daysAgo)
		noise := (rng.Float64() - 0.5) * 1.5

		level := math.Max(0.1, s.BaselineLevel+seasonal+decline+noise+factor+stress)
		readings = append(readings, models.HistoricalPoint{
			Timestamp:   ts,
			WaterLevel:  math.Round(level*100) / 100,
			Coordinates: coords,
		})
	}
	return readings
}

// rainfallProfile returns the daily decline, the recharge factor and the
// drought stress for a station's annual rainfall
func rainfallProfile(rainfallMm float64) (rate, factor, stress float64) {
	switch {
	case rainfallMm < 600:
		rate, factor = -0.005, -0.5
	case rainfallMm < 1000:
		rate, factor = -0.003, 0
	default:
		rate, factor = -0.001, 0.2
	}

	switch {
	case rainfallMm < 600:
		stress = -2
	case rainfallMm < 800:
		stress = -1
	}
	return rate, factor, stress
}
