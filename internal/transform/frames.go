// Package transform converts SGP4 output into Earth-fixed and geodetic
// coordinates and provides the spherical-Earth helpers used for footprint
// and distance ranking.
//
// TEME to ECEF uses a GMST-only rotation (polar motion and the equation of
// the equinoxes are ignored). The resulting error is tens of meters, well
// below what a footprint overlay can show.
package transform

import (
	"math"
	"time"
)

// EarthRadiusKm is the mean spherical Earth radius used for great-circle and
// horizon geometry.
const EarthRadiusKm = 6371.0

// OmegaEarth is Earth's rotation rate in rad/s.
const OmegaEarth = 7.292115146706979e-5

// TEME is a position/velocity in the True Equator Mean Equinox frame, km and km/s.
type TEME struct {
	X, Y, Z    float64
	VX, VY, VZ float64
}

// ECEF is an Earth-fixed position/velocity, km and km/s.
type ECEF struct {
	X, Y, Z    float64
	VX, VY, VZ float64
}

// Radius returns the distance from Earth's center in km.
func (e ECEF) Radius() float64 {
	return math.Sqrt(e.X*e.X + e.Y*e.Y + e.Z*e.Z)
}

// TEMEToECEF rotates a TEME state into ECEF at time t.
func TEMEToECEF(s TEME, t time.Time) ECEF {
	return RotateTEME(s, GMST(t))
}

// RotateTEME applies R3(gmst) to position and velocity, then removes the
// ω × r term from the velocity.
func RotateTEME(s TEME, gmst float64) ECEF {
	c, sn := math.Cos(gmst), math.Sin(gmst)

	x := s.X*c + s.Y*sn
	y := -s.X*sn + s.Y*c

	vx := s.VX*c + s.VY*sn + OmegaEarth*y
	vy := -s.VX*sn + s.VY*c - OmegaEarth*x

	return ECEF{X: x, Y: y, Z: s.Z, VX: vx, VY: vy, VZ: s.VZ}
}

// Plausible reports whether e is finite and between 6200 km and 50000 km from
// Earth's center, the envelope for every orbit regime the overlay handles.
func Plausible(e ECEF) bool {
	for _, v := range []float64{e.X, e.Y, e.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	r := e.Radius()
	return r >= 6200.0 && r <= 50000.0
}
