// Package overlay assembles the per-alert satellite table: the satellite
// that reported the alert, others that had the alert point in view, and
// those that will pass over it soon.
package overlay

import (
	"fmt"
	"math"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/gehiggins/RescueDecisionSystems/internal/groundtrack"
	"github.com/gehiggins/RescueDecisionSystems/internal/passes"
)

// Role says why a row is in the table.
type Role string

const (
	RoleReported Role = "reported"
	RoleFallback Role = "fallback_suggested"
	RoleNearby   Role = "nearby_not_detected"
	RoleUpcoming Role = "upcoming"
)

// maxCandidates caps the satellites scanned per build.
const maxCandidates = 256

// Roles lists every role in table order.
var Roles = []Role{RoleReported, RoleFallback, RoleNearby, RoleUpcoming}

// Position is a geodetic alert position in decimal degrees.
type Position struct {
	LatDeg float64 `json:"lat_dd" yaml:"lat_dd"`
	LonDeg float64 `json:"lon_dd" yaml:"lon_dd"`
}

func (p Position) valid() bool {
	return !math.IsNaN(p.LatDeg) && !math.IsNaN(p.LonDeg) &&
		p.LatDeg >= -90 && p.LatDeg <= 90 && p.LonDeg >= -180 && p.LonDeg <= 180
}

// Context is one alert. A is the primary position; B is the optional
// mirror position of an unresolved A/B pair. NORADOverride, when set, names
// the reporting satellite directly.
type Context struct {
	AlertTime     time.Time
	A             *Position
	B             *Position
	SatHint       string
	NORADOverride int
}

// Validate rejects contexts without an alert time or with out-of-range
// positions.
func (c Context) Validate() error {
	if c.AlertTime.IsZero() {
		return fmt.Errorf("alert time missing: %w", faults.ErrInvalidContext)
	}
	if c.A != nil && !c.A.valid() {
		return fmt.Errorf("position A %+v out of range: %w", *c.A, faults.ErrInvalidContext)
	}
	if c.B != nil && !c.B.valid() {
		return fmt.Errorf("position B %+v out of range: %w", *c.B, faults.ErrInvalidContext)
	}
	if c.NORADOverride < 0 {
		return fmt.Errorf("catalog number override %d: %w", c.NORADOverride, faults.ErrInvalidContext)
	}
	return nil
}

// Options selects which roles are computed and bounds their cost.
type Options struct {
	Types           []string
	UseOrbitalData  bool
	AllowFallback   bool
	IncludeNearby   bool
	IncludeUpcoming bool
	TopN            int
	MaxCandidates   int
	TrackForward    time.Duration
	TrackStep       time.Duration
	PassHorizon     time.Duration
	PassStep        time.Duration
	PassWorkers     int
}

// DefaultOptions computes every role for LEO satellites.
func DefaultOptions() Options {
	return Options{
		Types:           []string{"LEO"},
		UseOrbitalData:  true,
		AllowFallback:   true,
		IncludeNearby:   true,
		IncludeUpcoming: true,
		TopN:            5,
		MaxCandidates:   maxCandidates,
		TrackForward:    15 * time.Minute,
		TrackStep:       time.Minute,
		PassHorizon:     passes.DefaultHorizon,
		PassStep:        passes.DefaultStep,
		PassWorkers:     1,
	}
}

func (o Options) normalised() Options {
	d := DefaultOptions()
	if o.TopN < 1 {
		o.TopN = d.TopN
	}
	if o.MaxCandidates < 1 || o.MaxCandidates > maxCandidates {
		o.MaxCandidates = maxCandidates
	}
	if o.TrackForward < 0 {
		o.TrackForward = d.TrackForward
	}
	if o.TrackStep <= 0 {
		o.TrackStep = d.TrackStep
	}
	if o.PassHorizon <= 0 {
		o.PassHorizon = d.PassHorizon
	}
	if o.PassStep <= 0 {
		o.PassStep = d.PassStep
	}
	if o.PassWorkers < 1 {
		o.PassWorkers = 1
	}
	return o
}

// Row is one satellite in the overlay table.
type Row struct {
	SatName       string `json:"sat_name" yaml:"sat_name"`
	NORADID       int    `json:"norad_id,omitempty" yaml:"norad_id,omitempty"`
	Type          string `json:"type" yaml:"type"`
	Constellation string `json:"constellation" yaml:"constellation"`
	Designator    string `json:"designator" yaml:"designator"`

	AtTime   time.Time `json:"at_time_utc" yaml:"at_time_utc"`
	LatDeg   float64   `json:"lat_dd" yaml:"lat_dd"`
	LonDeg   float64   `json:"lon_dd" yaml:"lon_dd"`
	AltKm    float64   `json:"alt_km" yaml:"alt_km"`
	RadiusKm float64   `json:"footprint_radius_km" yaml:"footprint_radius_km"`

	TLEEpoch    time.Time `json:"tle_epoch_utc" yaml:"tle_epoch_utc"`
	TLEAgeHours float64   `json:"tle_age_hours" yaml:"tle_age_hours"`
	Source      string    `json:"source" yaml:"source"`
	CacheHit    bool      `json:"cache_hit" yaml:"cache_hit"`

	TrackCoords     []groundtrack.Coord `json:"track_coords,omitempty" yaml:"track_coords,omitempty"`
	TrackStart      *time.Time          `json:"track_start_utc,omitempty" yaml:"track_start_utc,omitempty"`
	TrackEnd        *time.Time          `json:"track_end_utc,omitempty" yaml:"track_end_utc,omitempty"`
	TrackForwardMin float64             `json:"track_window_forward_min,omitempty" yaml:"track_window_forward_min,omitempty"`

	NextPass   *passes.Event `json:"next_pass,omitempty" yaml:"next_pass,omitempty"`
	Role       Role          `json:"role" yaml:"role"`
	DistanceKm *float64      `json:"distance_km,omitempty" yaml:"distance_km,omitempty"`
	VisibleFor string        `json:"visible_for,omitempty" yaml:"visible_for,omitempty"`
	Summary    string        `json:"summary" yaml:"summary"`
}

// AltitudeKm implements footprint.Item.
func (r *Row) AltitudeKm() float64 { return r.AltKm }

// FootprintRadiusKm implements footprint.Item.
func (r *Row) FootprintRadiusKm() float64 { return r.RadiusKm }

// SetFootprintRadiusKm implements footprint.Item.
func (r *Row) SetFootprintRadiusKm(v float64) { r.RadiusKm = v }

// usable reports whether the row has a position worth drawing.
func (r *Row) usable() bool {
	finite := func(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
	return finite(r.LatDeg) && finite(r.LonDeg) && finite(r.AltKm) && r.AltKm > 0 &&
		finite(r.RadiusKm) && r.RadiusKm >= 0
}

func (r *Row) setTrack(t groundtrack.Track) {
	if t.Empty() {
		return
	}
	start, end := t.Start, t.End
	r.TrackCoords = t.Coords
	r.TrackStart = &start
	r.TrackEnd = &end
	r.TrackForwardMin = t.ForwardMinutes
}
