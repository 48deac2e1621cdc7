package forecast

import (
	"math"
	"unicode/utf16"
)

const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// stationSeed hashes a station id into [0,1).
// The hash runs over UTF-16 code units with int32 wraparound (h = h*31 + c).
func stationSeed(stationID string) float64 {
	var h int32
	for _, c := range utf16.Encode([]rune(stationID)) {
		h = h*31 + int32(c)
	}
	seed := math.Abs(float64(h)) / math.MaxInt32
	if seed >= 1 {
		// only reachable for math.MinInt32
		seed = 0
	}
	return seed
}

// stream is a linear congruential generator producing values in [0,1).
// Each pipeline stage opens its own stream from the station seed, so the
// draws a stage sees depend only on the seed and the stage's own call order.
type stream struct {
	state int64
}

func newStream(seed float64) *stream {
	return &stream{state: int64(seed * lcgModulus)}
}

func (s *stream) next() float64 {
	s.state = (s.state*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(s.state) / lcgModulus
}
