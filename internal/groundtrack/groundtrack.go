// Package groundtrack samples the short forward ground track of a satellite
// from the alert time.
package groundtrack

import (
	"math"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/propagation"
	"github.com/gehiggins/RescueDecisionSystems/internal/transform"
)

// MaxSamples bounds the number of points in one track.
const MaxSamples = 2000

// SubpointSource yields sub-satellite points; *propagation.SGP4Propagator
// satisfies it.
type SubpointSource interface {
	SubpointAt(t time.Time) (propagation.SubPoint, error)
}

// Coord is one track point as [lon, lat] in degrees, GeoJSON order.
type Coord [2]float64

// Lon returns the longitude.
func (c Coord) Lon() float64 { return c[0] }

// Lat returns the latitude.
func (c Coord) Lat() float64 { return c[1] }

// Track is an ordered forward ground track.
type Track struct {
	Coords         []Coord   `json:"coords" yaml:"coords"`
	Start          time.Time `json:"start_utc" yaml:"start_utc"`
	End            time.Time `json:"end_utc" yaml:"end_utc"`
	ForwardMinutes float64   `json:"forward_min" yaml:"forward_min"`
}

// Empty reports whether the track has no points.
func (t Track) Empty() bool { return len(t.Coords) == 0 }

// SampleCount is floor(forward*60/step)+1, capped at MaxSamples. Invalid
// inputs give 0.
func SampleCount(forwardMinutes float64, step time.Duration) int {
	if step <= 0 || math.IsNaN(forwardMinutes) || math.IsInf(forwardMinutes, 0) || forwardMinutes < 0 {
		return 0
	}
	n := int(math.Floor(forwardMinutes*60/step.Seconds())) + 1
	if n > MaxSamples {
		n = MaxSamples
	}
	return n
}

// ShortTrack samples src every step from center to center+forwardMinutes.
// Longitudes are unwrapped across the series and re-wrapped per point, so a
// track crossing the antimeridian steps from +179.x to -179.x without
// interpolating across the map. A failed sample ends the track and the
// successful prefix is returned.
func ShortTrack(src SubpointSource, center time.Time, forwardMinutes float64, step time.Duration) Track {
	n := SampleCount(forwardMinutes, step)
	if n == 0 || src == nil {
		return Track{}
	}

	lats := make([]float64, 0, n)
	lons := make([]float64, 0, n)
	var last time.Time
	for i := 0; i < n; i++ {
		at := center.Add(time.Duration(i) * step)
		pt, err := src.SubpointAt(at)
		if err != nil {
			break
		}
		lats = append(lats, pt.LatDeg)
		lons = append(lons, pt.LonDeg)
		last = at
	}
	if len(lats) == 0 {
		return Track{}
	}

	lons = Rewrap(Unwrap(lons))
	coords := make([]Coord, len(lats))
	for i := range lats {
		coords[i] = Coord{lons[i], lats[i]}
	}
	return Track{
		Coords:         coords,
		Start:          center.UTC(),
		End:            last.UTC(),
		ForwardMinutes: forwardMinutes,
	}
}

// Unwrap removes 360-degree jumps between consecutive longitudes so the
// series is continuous.
func Unwrap(lons []float64) []float64 {
	out := make([]float64, len(lons))
	if len(lons) == 0 {
		return out
	}
	out[0] = lons[0]
	offset := 0.0
	for i := 1; i < len(lons); i++ {
		d := lons[i] - lons[i-1]
		switch {
		case d > 180:
			offset -= 360
		case d < -180:
			offset += 360
		}
		out[i] = lons[i] + offset
	}
	return out
}

// Rewrap maps every longitude back into [-180, 180].
func Rewrap(lons []float64) []float64 {
	out := make([]float64, len(lons))
	for i, l := range lons {
		out[i] = transform.WrapLongitude(l)
	}
	return out
}
