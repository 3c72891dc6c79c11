// Package catalog holds the local reference table of search-and-rescue
// satellites: identity, orbit class and nominal geometry.
package catalog

import (
	"math"
	"strings"
)

// Orbit classes.
const (
	TypeLEO = "LEO"
	TypeMEO = "MEO"
	TypeGEO = "GEO"
)

// Unknown fills string columns a table does not carry.
const Unknown = "UNKNOWN"

// Record is one catalog row. NORADID is 0 when the satellite has no known
// catalog number; NominalAltKm and FootprintRadiusKm are NaN when unknown.
type Record struct {
	Type              string  `json:"type" yaml:"type"`
	Constellation     string  `json:"constellation" yaml:"constellation"`
	Designator        string  `json:"designator" yaml:"designator"`
	CommonName        string  `json:"common_name" yaml:"common_name"`
	NORADID           int     `json:"norad_id,omitempty" yaml:"norad_id,omitempty"`
	IntlDesignator    string  `json:"intl_designator" yaml:"intl_designator"`
	NominalAltKm      float64 `json:"nominal_alt_km" yaml:"nominal_alt_km"`
	FootprintRadiusKm float64 `json:"footprint_radius_km" yaml:"footprint_radius_km"`
	IsActive          bool    `json:"is_active" yaml:"is_active"`
}

// HasNORAD reports whether the record carries a catalog number.
func (r Record) HasNORAD() bool { return r.NORADID > 0 }

// DisplayName is the common name, falling back to the designator.
func (r Record) DisplayName() string {
	if r.CommonName != "" && r.CommonName != Unknown {
		return r.CommonName
	}
	return r.Designator
}

// DefaultAltitudeKm is the nominal altitude for an orbit class, NaN for
// unknown classes.
func DefaultAltitudeKm(typ string) float64 {
	switch strings.ToUpper(typ) {
	case TypeLEO:
		return 850
	case TypeMEO:
		return 20200
	case TypeGEO:
		return 35786
	}
	return math.NaN()
}

// ConstellationFor derives the constellation from the orbit class.
func ConstellationFor(typ string) string {
	switch strings.ToUpper(typ) {
	case TypeLEO:
		return "LEOSAR"
	case TypeMEO:
		return "MEOSAR"
	case TypeGEO:
		return "GEOSAR"
	}
	return Unknown
}

// Defaults is the built-in LEOSAR table used when no catalog file exists.
func Defaults() []Record {
	leo := func(designator, name string, id int, intl string, alt float64) Record {
		return Record{
			Type:              TypeLEO,
			Constellation:     "LEOSAR",
			Designator:        designator,
			CommonName:        name,
			NORADID:           id,
			IntlDesignator:    intl,
			NominalAltKm:      alt,
			FootprintRadiusKm: 2500,
			IsActive:          true,
		}
	}
	return []Record{
		leo("NOAA15", "NOAA-15", 25338, "1998-030A", 850),
		leo("NOAA18", "NOAA-18", 28654, "2005-018A", 850),
		leo("NOAA19", "NOAA-19", 33591, "2009-005A", 850),
		leo("METOPA", "MetOp-A", 29499, "2006-044A", 830),
		leo("METOPB", "MetOp-B", 38771, "2012-049A", 830),
		leo("METOPC", "MetOp-C", 43689, "2018-087A", 830),
	}
}
