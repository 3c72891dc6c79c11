package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/gehiggins/RescueDecisionSystems/internal/tle"
	"github.com/gehiggins/RescueDecisionSystems/internal/transform"
	satellite "github.com/joshuaferrara/go-satellite"
)

// SGP4 comes from github.com/joshuaferrara/go-satellite. Propagate takes the
// Satellite by value, so SGP4 error codes raised during propagation are not
// visible here; failures are detected from NaN/Inf output and implausible
// radii instead.

// SGP4Propagator wraps an initialised SGP4 state for one satellite.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4Propagator initialises SGP4 from two element lines. The lines are
// validated first because the library exits the process on malformed input.
func NewSGP4Propagator(line1, line2 string, noradID int) (*SGP4Propagator, error) {
	if err := tle.ValidateLines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid elements for NORAD %d: %v: %w", noradID, err, faults.ErrPropagation)
	}

	// Validation ran on the trimmed lines; SGP4 must see the same text.
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init for NORAD %d: code=%d %s: %w", noradID, sat.Error, sat.ErrorStr, faults.ErrPropagation)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID}, nil
}

// NORADID returns the catalog number the propagator was built for.
func (p *SGP4Propagator) NORADID() int { return p.noradID }

// Propagate returns the TEME state at t. go-satellite resolves time to whole
// seconds.
func (p *SGP4Propagator) Propagate(t time.Time) (transform.TEME, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	for _, v := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return transform.TEME{}, fmt.Errorf("NORAD %d at %s: non-finite output: %w", p.noradID, t.Format(time.RFC3339), faults.ErrPropagation)
		}
	}

	s := transform.TEME{X: pos.X, Y: pos.Y, Z: pos.Z, VX: vel.X, VY: vel.Y, VZ: vel.Z}
	if r := math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z); r < 6200.0 || r > 50000.0 {
		return transform.TEME{}, fmt.Errorf("NORAD %d at %s: implausible radius %.1f km: %w", p.noradID, t.Format(time.RFC3339), r, faults.ErrPropagation)
	}
	return s, nil
}

// PositionAt returns the Earth-fixed state at t.
func (p *SGP4Propagator) PositionAt(t time.Time) (transform.ECEF, error) {
	s, err := p.Propagate(t)
	if err != nil {
		return transform.ECEF{}, err
	}
	return transform.TEMEToECEF(s, t), nil
}

// SubpointAt returns the geodetic point directly beneath the satellite at t.
// There is no validity-window check: elements far from t still propagate,
// with accuracy degrading accordingly.
func (p *SGP4Propagator) SubpointAt(t time.Time) (SubPoint, error) {
	e, err := p.PositionAt(t)
	if err != nil {
		return SubPoint{}, err
	}
	g := transform.ECEFToGeodetic(e)
	return SubPoint{
		Time:   t.UTC(),
		LatDeg: g.LatDeg,
		LonDeg: g.LonDeg,
		AltKm:  g.AltKm,
	}, nil
}
