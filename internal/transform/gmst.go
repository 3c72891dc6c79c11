package transform

import (
	"math"
	"time"
)

const (
	j2000         = 2451545.0 // Julian Date of J2000.0
	secondsPerDay = 86400.0
)

// JulianDate converts t (taken as UTC) to a Julian Date, sub-second precision
// included.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	frac := (float64(t.Hour()) +
		float64(t.Minute())/60.0 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600.0) / 24.0

	// January and February count as months 13 and 14 of the prior year.
	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5 + frac
}

// GMST returns Greenwich Mean Sidereal Time in radians, [0, 2π), using the
// IAU-82 polynomial (Vallado Eq. 3-47). UT1 is approximated by UTC.
func GMST(t time.Time) float64 {
	tu := (JulianDate(t) - j2000) / 36525.0

	// 876600 h expressed in seconds plus the linear IAU-82 term.
	sec := 67310.54841 +
		(876600.0*3600.0+8640184.812866)*tu +
		0.093104*tu*tu -
		6.2e-6*tu*tu*tu

	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return sec / secondsPerDay * 2.0 * math.Pi
}
