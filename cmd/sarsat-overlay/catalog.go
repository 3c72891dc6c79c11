package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/gehiggins/RescueDecisionSystems/internal/catalog"
	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/gehiggins/RescueDecisionSystems/internal/overlay"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the local satellite catalog",
	}
	cmd.AddCommand(newCatalogListCmd(a), newCatalogResolveCmd(a))
	return cmd
}

func newCatalogListCmd(a *app) *cobra.Command {
	var types []string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog records (seeding defaults when the file is missing)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, _, err := a.loadCatalog()
			if err != nil {
				return a.fail(err)
			}
			if !all {
				records = catalog.Filter(records, types...)
			}
			return writeRecords(a.stdout, records, a.format)
		},
	}
	cmd.Flags().StringSliceVar(&types, "types", nil, "orbit classes to list; empty lists all active")
	cmd.Flags().BoolVar(&all, "all", false, "include inactive records")
	return cmd
}

func newCatalogResolveCmd(a *app) *cobra.Command {
	var types []string
	cmd := &cobra.Command{
		Use:   "resolve HINT",
		Short: "Show which catalog records a satellite hint matches, best first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, aliases, err := a.loadCatalog()
			if err != nil {
				return a.fail(err)
			}
			matches := catalog.Candidates(args[0], catalog.Filter(records, types...), aliases)
			if len(matches) == 0 {
				return a.fail(fmt.Errorf("%q: %w", args[0], faults.ErrNoResolution))
			}
			return writeMatches(a.stdout, matches, a.format)
		},
	}
	cmd.Flags().StringSliceVar(&types, "types", []string{catalog.TypeLEO}, "orbit classes to search")
	return cmd
}

// recordView is the printable form of a record; unknown numbers are null.
type recordView struct {
	Type              string   `json:"type" yaml:"type"`
	Constellation     string   `json:"constellation" yaml:"constellation"`
	Designator        string   `json:"designator" yaml:"designator"`
	CommonName        string   `json:"common_name" yaml:"common_name"`
	NORADID           int      `json:"norad_id,omitempty" yaml:"norad_id,omitempty"`
	IntlDesignator    string   `json:"intl_designator" yaml:"intl_designator"`
	NominalAltKm      *float64 `json:"nominal_alt_km" yaml:"nominal_alt_km"`
	FootprintRadiusKm *float64 `json:"footprint_radius_km" yaml:"footprint_radius_km"`
	IsActive          bool     `json:"is_active" yaml:"is_active"`
	Match             string   `json:"match,omitempty" yaml:"match,omitempty"`
}

func viewOf(r catalog.Record) recordView {
	return recordView{
		Type:              r.Type,
		Constellation:     r.Constellation,
		Designator:        r.Designator,
		CommonName:        r.CommonName,
		NORADID:           r.NORADID,
		IntlDesignator:    r.IntlDesignator,
		NominalAltKm:      finite(r.NominalAltKm),
		FootprintRadiusKm: finite(r.FootprintRadiusKm),
		IsActive:          r.IsActive,
	}
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func writeRecords(w io.Writer, records []catalog.Record, f overlay.Format) error {
	views := make([]recordView, len(records))
	for i, r := range records {
		views[i] = viewOf(r)
	}
	return writeViews(w, views, f)
}

func writeMatches(w io.Writer, matches []catalog.Match, f overlay.Format) error {
	views := make([]recordView, len(matches))
	for i, m := range matches {
		views[i] = viewOf(m.Record)
		views[i].Match = string(m.Kind)
	}
	return writeViews(w, views, f)
}

func writeViews(w io.Writer, views []recordView, f overlay.Format) error {
	switch f {
	case overlay.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case overlay.FormatYAML:
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCONSTELLATION\tDESIGNATOR\tNAME\tNORAD\tALT_KM\tRADIUS_KM\tACTIVE\tMATCH")
	for _, v := range views {
		match := v.Match
		if match == "" {
			match = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			v.Type, v.Constellation, v.Designator, v.CommonName,
			orDash(v.NORADID), numOrDash(v.NominalAltKm), numOrDash(v.FootprintRadiusKm), v.IsActive, match)
	}
	return tw.Flush()
}

func orDash(n int) string {
	if n <= 0 {
		return "-"
	}
	return fmt.Sprint(n)
}

func numOrDash(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *f)
}
