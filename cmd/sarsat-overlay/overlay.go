package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/gehiggins/RescueDecisionSystems/internal/metrics"
	"github.com/gehiggins/RescueDecisionSystems/internal/overlay"
	"github.com/spf13/cobra"
)

type overlayFlags struct {
	alertTime  string
	lat, lon   float64
	latB, lonB float64
	sat        string
	norad      int
	topN       int
	types      []string
	offline    bool
	noFallback bool
	noNearby   bool
	noUpcoming bool
}

func newOverlayCmd(a *app) *cobra.Command {
	var f overlayFlags
	cmd := &cobra.Command{
		Use:   "overlay",
		Short: "Build the satellite overlay table for one alert",
		Example: `  sarsat-overlay overlay --time 2025-09-01T12:00:00Z --lat 64.84 --lon -147.72 --sat NOAA-19
  sarsat-overlay overlay --time 2025-09-01T12:00:00Z --norad 33591 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := f.context(cmd)
			if err != nil {
				return a.fail(err)
			}
			opt := f.options(cmd, a.cfg.Overlay)

			b, err := a.builder()
			if err != nil {
				return a.fail(err)
			}
			rows, err := b.Build(cmd.Context(), c, opt)
			if err != nil {
				return a.fail(err)
			}

			counts := overlay.CountByRole(rows)
			args := []any{"rows", len(rows)}
			for _, role := range overlay.Roles {
				args = append(args, string(role), counts[role])
			}
			if skipped, err := metrics.CounterTotals("sarsat_overlay_satellites_skipped_total"); err == nil && len(skipped) > 0 {
				args = append(args, "skipped", skipped)
			}
			a.logger.Info("overlay complete", args...)

			return overlay.Render(a.stdout, rows, a.format)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.alertTime, "time", "", "alert time, RFC 3339 (required)")
	fl.Float64Var(&f.lat, "lat", 0, "position A latitude, decimal degrees")
	fl.Float64Var(&f.lon, "lon", 0, "position A longitude, decimal degrees")
	fl.Float64Var(&f.latB, "lat-b", 0, "position B latitude, decimal degrees")
	fl.Float64Var(&f.lonB, "lon-b", 0, "position B longitude, decimal degrees")
	fl.StringVar(&f.sat, "sat", "", "reporting satellite name or designator")
	fl.IntVar(&f.norad, "norad", 0, "reporting satellite catalog number; overrides --sat")
	fl.IntVar(&f.topN, "top-n", 0, "rows kept per ranked role (default from config)")
	fl.StringSliceVar(&f.types, "types", nil, "orbit classes to consider, e.g. LEO,MEO")
	fl.BoolVar(&f.offline, "offline", false, "skip orbital data; resolve identity only")
	fl.BoolVar(&f.noFallback, "no-fallback", false, "do not suggest satellites when the hint is unresolved")
	fl.BoolVar(&f.noNearby, "no-nearby", false, "omit satellites that had the alert in view")
	fl.BoolVar(&f.noUpcoming, "no-upcoming", false, "omit upcoming passes")
	_ = cmd.MarkFlagRequired("time")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
	cmd.MarkFlagsRequiredTogether("lat-b", "lon-b")
	return cmd
}

func (f overlayFlags) context(cmd *cobra.Command) (overlay.Context, error) {
	t, err := parseAlertTime(f.alertTime)
	if err != nil {
		return overlay.Context{}, err
	}
	c := overlay.Context{
		AlertTime:     t,
		SatHint:       f.sat,
		NORADOverride: f.norad,
	}
	if cmd.Flags().Changed("lat") {
		c.A = &overlay.Position{LatDeg: f.lat, LonDeg: f.lon}
	}
	if cmd.Flags().Changed("lat-b") {
		if c.A == nil {
			return overlay.Context{}, fmt.Errorf("--lat-b needs --lat/--lon: %w", faults.ErrInvalidContext)
		}
		c.B = &overlay.Position{LatDeg: f.latB, LonDeg: f.lonB}
	}
	return c, c.Validate()
}

func (f overlayFlags) options(cmd *cobra.Command, opt overlay.Options) overlay.Options {
	if f.topN > 0 {
		opt.TopN = f.topN
	}
	if len(f.types) > 0 {
		opt.Types = make([]string, len(f.types))
		for i, t := range f.types {
			opt.Types[i] = strings.ToUpper(strings.TrimSpace(t))
		}
	}
	if cmd.Flags().Changed("offline") {
		opt.UseOrbitalData = !f.offline
	}
	if f.noFallback {
		opt.AllowFallback = false
	}
	if f.noNearby {
		opt.IncludeNearby = false
	}
	if f.noUpcoming {
		opt.IncludeUpcoming = false
	}
	return opt
}

// parseAlertTime accepts RFC 3339 or "2006-01-02 15:04:05" in UTC.
func parseAlertTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("alert time missing: %w", faults.ErrInvalidContext)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("alert time %q is not RFC 3339: %w", s, faults.ErrInvalidContext)
}
