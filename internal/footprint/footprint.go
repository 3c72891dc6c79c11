// Package footprint models the ground area a satellite can see as a circle
// of great-circle radius around its sub-point.
package footprint

import (
	"math"

	"github.com/gehiggins/RescueDecisionSystems/internal/transform"
)

// Circle is a footprint on the mean-radius sphere.
type Circle struct {
	LatDeg   float64 `json:"lat_dd" yaml:"lat_dd"`
	LonDeg   float64 `json:"lon_dd" yaml:"lon_dd"`
	RadiusKm float64 `json:"radius_km" yaml:"radius_km"`
}

// HorizonRadiusKm is the great-circle distance from the sub-point to the
// satellite's geometric horizon (0 deg elevation): Re·acos(Re/(Re+h)) with
// Re = 6371 km. Non-finite or non-positive altitudes yield NaN.
func HorizonRadiusKm(altKm float64) float64 {
	if math.IsNaN(altKm) || math.IsInf(altKm, 0) || altKm <= 0 {
		return math.NaN()
	}
	re := transform.EarthRadiusKm
	return re * math.Acos(re/(re+altKm))
}

// Valid reports whether r is a usable radius.
func Valid(r float64) bool {
	return !math.IsNaN(r) && !math.IsInf(r, 0) && r >= 0
}

// Radius prefers a valid reference radius and otherwise derives one from
// altitude.
func Radius(referenceKm, altKm float64) float64 {
	if Valid(referenceKm) {
		return referenceKm
	}
	return HorizonRadiusKm(altKm)
}

// Contains reports whether the point lies inside c. An invalid radius
// contains nothing.
func (c Circle) Contains(latDeg, lonDeg float64) bool {
	if !Valid(c.RadiusKm) {
		return false
	}
	return transform.HaversineKm(c.LatDeg, c.LonDeg, latDeg, lonDeg) <= c.RadiusKm
}

// Item is anything carrying an altitude and an optional footprint radius.
type Item interface {
	AltitudeKm() float64
	FootprintRadiusKm() float64
	SetFootprintRadiusKm(float64)
}

// Annotate fills in missing radii from altitude. Valid radii are never
// overwritten. It returns how many items were filled.
func Annotate[T Item](items []T) int {
	filled := 0
	for _, it := range items {
		if Valid(it.FootprintRadiusKm()) {
			continue
		}
		if r := HorizonRadiusKm(it.AltitudeKm()); Valid(r) {
			it.SetFootprintRadiusKm(r)
			filled++
		}
	}
	return filled
}
