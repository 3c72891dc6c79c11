package propagation

import (
	"runtime"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/tle"
)

// SubPoint is the point on the Earth's surface directly beneath a satellite.
// Latitude is in [-90, 90] and longitude is normalised to [-180, 180].
type SubPoint struct {
	Time   time.Time `json:"time_utc" yaml:"time_utc"`
	LatDeg float64   `json:"lat_dd" yaml:"lat_dd"`
	LonDeg float64   `json:"lon_dd" yaml:"lon_dd"`
	AltKm  float64   `json:"alt_km" yaml:"alt_km"`
}

// Placement pairs an element set with its computed sub-point.
type Placement struct {
	Elements tle.ElementSet
	Point    SubPoint
}

// Config holds propagation settings.
type Config struct {
	Workers int // batch worker goroutines; 1 keeps batches single-threaded
}

// DefaultConfig is single-threaded.
func DefaultConfig() Config {
	return Config{Workers: 1}
}

// clampWorkers bounds the worker count to [1, NumCPU].
func clampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if cpus := runtime.NumCPU(); n > cpus {
		return cpus
	}
	return n
}
