package transform

import "math"

// WGS-84 ellipsoid, km.
const (
	wgs84A  = 6378.137
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// Geodetic is a WGS-84 latitude/longitude in degrees and height in km.
type Geodetic struct {
	LatDeg, LonDeg, AltKm float64
}

// ECEFToGeodetic converts an Earth-fixed position with Bowring's iteration.
// Longitude is wrapped to [-180, 180].
func ECEFToGeodetic(e ECEF) Geodetic {
	p := math.Hypot(e.X, e.Y)
	lon := math.Atan2(e.Y, e.X)
	lat := math.Atan2(e.Z, p*(1-wgs84E2))

	var n float64
	for i := 0; i < 5; i++ {
		s := math.Sin(lat)
		n = wgs84A / math.Sqrt(1-wgs84E2*s*s)
		lat = math.Atan2(e.Z+wgs84E2*n*s, p)
	}

	s, c := math.Sin(lat), math.Cos(lat)
	n = wgs84A / math.Sqrt(1-wgs84E2*s*s)

	var alt float64
	if math.Abs(c) > 1e-10 {
		alt = p/c - n
	} else {
		alt = math.Abs(e.Z)/math.Abs(s) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: lat * rad2deg,
		LonDeg: WrapLongitude(lon * rad2deg),
		AltKm:  alt,
	}
}

// GeodeticToECEF returns the Earth-fixed position of a point on or above the
// ellipsoid. Velocity is zero.
func GeodeticToECEF(latDeg, lonDeg, altKm float64) ECEF {
	lat, lon := latDeg*deg2rad, lonDeg*deg2rad
	s := math.Sin(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*s*s)
	return ECEF{
		X: (n + altKm) * math.Cos(lat) * math.Cos(lon),
		Y: (n + altKm) * math.Cos(lat) * math.Sin(lon),
		Z: (n*(1-wgs84E2) + altKm) * s,
	}
}

// WrapLongitude maps any longitude in degrees into [-180, 180].
// 180 and -180 are both left as is.
func WrapLongitude(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	w := math.Mod(lon+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}

// HaversineKm is the great-circle distance between two points on a sphere of
// radius EarthRadiusKm.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * deg2rad
	dLon := (lon2 - lon1) * deg2rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*deg2rad)*math.Cos(lat2*deg2rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
