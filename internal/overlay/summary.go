package overlay

import (
	"fmt"
	"strings"
)

const summaryTime = "2006-01-02 15:04Z"

// Summary renders the one-line description shown beside a row on the map,
// e.g. "NOAA-19 (NORAD 33591) [reported] TLE epoch 2025-09-01 06:00Z (age 6.0 h)".
func Summary(r Row) string {
	var b strings.Builder
	b.WriteString(r.SatName)
	if r.NORADID > 0 {
		fmt.Fprintf(&b, " (NORAD %d)", r.NORADID)
	}
	fmt.Fprintf(&b, " [%s]", r.Role)
	if !r.TLEEpoch.IsZero() {
		fmt.Fprintf(&b, " TLE epoch %s (age %.1f h)", r.TLEEpoch.UTC().Format(summaryTime), r.TLEAgeHours)
	}
	if r.NextPass != nil {
		fmt.Fprintf(&b, " next pass %s max el %.1f°", r.NextPass.Time.UTC().Format(summaryTime), r.NextPass.MaxElevationDeg)
	}
	return b.String()
}

// CountByRole tallies rows per role. Roles without rows are present with 0.
func CountByRole(rows []Row) map[Role]int {
	out := make(map[Role]int, len(Roles))
	for _, role := range Roles {
		out[role] = 0
	}
	for _, r := range rows {
		out[r.Role]++
	}
	return out
}

// Reported returns the reporting satellite's row, if any.
func Reported(rows []Row) (Row, bool) {
	for _, r := range rows {
		if r.Role == RoleReported {
			return r, true
		}
	}
	return Row{}, false
}
