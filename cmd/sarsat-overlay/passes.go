package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/gehiggins/RescueDecisionSystems/internal/overlay"
	"github.com/gehiggins/RescueDecisionSystems/internal/passes"
	"github.com/gehiggins/RescueDecisionSystems/internal/propagation"
	"github.com/gehiggins/RescueDecisionSystems/internal/transform"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newPassesCmd(a *app) *cobra.Command {
	var (
		ids      []int
		lat, lon float64
		start    string
		horizon  time.Duration
		step     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "passes",
		Short: "Predict the next pass of given satellites over a position",
		Example: `  sarsat-overlay passes --norad 33591,28654 --lat 64.84 --lon -147.72
  sarsat-overlay passes --norad 33591 --lat 39.74 --lon -104.99 --start 2025-09-01T12:00:00Z --horizon 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := time.Now().UTC()
			if start != "" {
				var err error
				if t, err = parseAlertTime(start); err != nil {
					return a.fail(err)
				}
			}
			pos := overlay.Position{LatDeg: lat, LonDeg: lon}
			if err := (overlay.Context{AlertTime: t, A: &pos}).Validate(); err != nil {
				return a.fail(err)
			}

			provider := a.provider()
			prop := propagation.NewPropagator(a.cfg.Propagation, a.logger)
			var reqs []passes.Request
			for _, id := range ids {
				es, err := provider.FetchByCatalogNumber(cmd.Context(), id)
				if err != nil {
					a.logger.Warn("no elements; skipping", "norad_id", id, "error", err)
					continue
				}
				sp, err := prop.For(es)
				if err != nil {
					a.logger.Warn("propagator init failed; skipping", "norad_id", id, "error", err)
					continue
				}
				reqs = append(reqs, passes.Request{NORADID: id, Source: sp})
			}
			if len(reqs) == 0 {
				return a.fail(fmt.Errorf("no usable satellites among %v: %w", ids, faults.ErrNetworkFailure))
			}

			if searched, capped := passes.Coverage(horizon, step); capped {
				a.logger.Warn("pass search shortened by sample cap",
					"requested", horizon.String(), "searched", searched.String(), "step", step.String())
			}
			obs := transform.NewObserver(lat, lon, 0)
			results := passes.Predict(cmd.Context(), reqs, obs, t, horizon, step, a.cfg.Overlay.PassWorkers)
			return writePasses(a.stdout, results, a.format)
		},
	}
	fl := cmd.Flags()
	fl.IntSliceVar(&ids, "norad", nil, "catalog numbers (required)")
	fl.Float64Var(&lat, "lat", 0, "observer latitude, decimal degrees (required)")
	fl.Float64Var(&lon, "lon", 0, "observer longitude, decimal degrees (required)")
	fl.StringVar(&start, "start", "", "search start, RFC 3339 (default now)")
	fl.DurationVar(&horizon, "horizon", passes.DefaultHorizon, "search window")
	fl.DurationVar(&step, "step", passes.DefaultStep, "sampling step")
	_ = cmd.MarkFlagRequired("norad")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

type passView struct {
	NORADID int           `json:"norad_id" yaml:"norad_id"`
	Pass    *passes.Event `json:"pass,omitempty" yaml:"pass,omitempty"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

func writePasses(w io.Writer, results []passes.Result, f overlay.Format) error {
	views := make([]passView, len(results))
	for i, r := range results {
		views[i] = passView{NORADID: r.NORADID, Pass: r.Event}
		if r.Err != nil {
			views[i].Error = r.Err.Error()
		}
	}

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
	fmt.Fprintln(tw, "NORAD\tSTART\tMAX_EL_TIME\tMAX_EL\tAZ\tDURATION\tNOTE")
	for i, v := range views {
		if v.Pass == nil {
			note := v.Error
			if errors.Is(results[i].Err, faults.ErrNoPass) {
				note = "no pass in window"
			}
			fmt.Fprintf(tw, "%d\t-\t-\t-\t-\t-\t%s\n", v.NORADID, note)
			continue
		}
		p := v.Pass
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f°\t%.0f°\t%s\t\n",
			v.NORADID,
			p.Start.UTC().Format(time.RFC3339),
			p.Time.UTC().Format(time.RFC3339),
			p.MaxElevationDeg,
			p.AzimuthDeg,
			p.Duration().Round(time.Second),
		)
	}
	return tw.Flush()
}
