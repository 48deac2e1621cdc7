package forecast

import (
	"groundwatch/internal/models"
	"math"
)

// ensemble combines the three model sequences with seeded weights.
// Weights are drawn ARIMA, trend, seasonal and normalized to sum to 1.
func ensemble(arima, trend, seasonal []float64, seed float64) []float64 {
	r := newStream(seed)

	weights := [3]float64{
		0.4 + r.next()*0.2, // ARIMA: 0.4-0.6
		0.3 + r.next()*0.2, // trend: 0.3-0.5
		0.2 + r.next()*0.2, // seasonal: 0.2-0.4
	}
	total := weights[0] + weights[1] + weights[2]
	for i := range weights {
		weights[i] /= total
	}

	combined := make([]float64, len(arima))
	for i := range combined {
		combined[i] = arima[i]*weights[0] + trend[i]*weights[1] + seasonal[i]*weights[2]
	}
	return combined
}

// applyWeather adds rainfall recharge, temperature evaporation and humidity effects.
// Northern stations react more to rain, southern ones more to heat.
func applyWeather(levels []float64, weather []models.WeatherDay, coords *models.Coordinates) []float64 {
	lat, _ := resolveCoordinates(coords)

	rainfallSensitivity := 0.08
	if lat > 25 {
		rainfallSensitivity = 0.15
	}
	tempSensitivity := 0.02
	if lat < 15 {
		tempSensitivity = 0.03
	}

	adjusted := make([]float64, len(levels))
	for i, level := range levels {
		if i >= len(weather) {
			adjusted[i] = level
			continue
		}
		w := weather[i]
		rainfallEffect := w.Rainfall * rainfallSensitivity
		temperatureEffect := (w.Temperature - 25) * -tempSensitivity
		humidityEffect := (w.Humidity - 70) * 0.005

		adjusted[i] = math.Max(0, level+rainfallEffect+temperatureEffect+humidityEffect)
	}
	return adjusted
}
