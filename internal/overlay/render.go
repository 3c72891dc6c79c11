package overlay

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format selects how Render writes rows.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts table, json and yaml in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// Render writes rows to w in the chosen format.
func Render(w io.Writer, rows []Row, f Format) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, rows)
	case FormatYAML:
		return WriteYAML(w, rows)
	default:
		return WriteTable(w, rows)
	}
}

// WriteJSON writes rows as an indented JSON array; an empty table is [].
func WriteJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WriteYAML writes rows as a YAML sequence.
func WriteYAML(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rows); err != nil {
		return err
	}
	return enc.Close()
}

// WriteTable writes a fixed-column text table for terminals.
func WriteTable(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tSATELLITE\tNORAD\tLAT\tLON\tALT_KM\tRADIUS_KM\tDIST_KM\tTLE_AGE_H\tNEXT_PASS\tVIS")
	for _, r := range rows {
		norad := "-"
		if r.NORADID > 0 {
			norad = strconv.Itoa(r.NORADID)
		}
		dist := "-"
		if r.DistanceKm != nil {
			dist = strconv.FormatFloat(*r.DistanceKm, 'f', 0, 64)
		}
		pass := "-"
		if r.NextPass != nil {
			pass = fmt.Sprintf("%s %.0f°", r.NextPass.Time.UTC().Format(summaryTime), r.NextPass.MaxElevationDeg)
		}
		vis := r.VisibleFor
		if vis == "" {
			vis = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%.3f\t%.0f\t%.0f\t%s\t%.1f\t%s\t%s\n",
			r.Role, r.SatName, norad, r.LatDeg, r.LonDeg, r.AltKm, r.RadiusKm, dist, r.TLEAgeHours, pass, vis)
	}
	return tw.Flush()
}
