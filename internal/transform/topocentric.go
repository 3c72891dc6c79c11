package transform

import "math"

// Observer is a ground location with its ECEF position precomputed, so a
// pass search can evaluate thousands of samples without repeating trig.
type Observer struct {
	LatDeg, LonDeg, AltKm float64

	ecef                           ECEF
	sinLat, cosLat, sinLon, cosLon float64
}

// LookAngles are azimuth (0 = north, clockwise), elevation above the local
// horizon, and slant range.
type LookAngles struct {
	AzimuthDeg   float64
	ElevationDeg float64
	RangeKm      float64
}

// NewObserver builds an observer at the given geodetic position.
func NewObserver(latDeg, lonDeg, altKm float64) Observer {
	lat, lon := latDeg*deg2rad, lonDeg*deg2rad
	return Observer{
		LatDeg: latDeg,
		LonDeg: lonDeg,
		AltKm:  altKm,
		ecef:   GeodeticToECEF(latDeg, lonDeg, altKm),
		sinLat: math.Sin(lat),
		cosLat: math.Cos(lat),
		sinLon: math.Sin(lon),
		cosLon: math.Cos(lon),
	}
}

// ECEF returns the observer's Earth-fixed position.
func (o Observer) ECEF() ECEF { return o.ecef }

// Look returns the look angles from o to an Earth-fixed target using the SEZ
// rotation (Vallado 4.4).
func (o Observer) Look(target ECEF) LookAngles {
	rx := target.X - o.ecef.X
	ry := target.Y - o.ecef.Y
	rz := target.Z - o.ecef.Z

	south := o.sinLat*o.cosLon*rx + o.sinLat*o.sinLon*ry - o.cosLat*rz
	east := -o.sinLon*rx + o.cosLon*ry
	zenith := o.cosLat*o.cosLon*rx + o.cosLat*o.sinLon*ry + o.sinLat*rz

	rng := math.Sqrt(south*south + east*east + zenith*zenith)
	if rng == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * rad2deg,
		ElevationDeg: math.Asin(zenith/rng) * rad2deg,
		RangeKm:      rng,
	}
}
