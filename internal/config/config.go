// Package config loads run settings from defaults, an optional config file
// and SAROVERLAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/observability"
	"github.com/gehiggins/RescueDecisionSystems/internal/overlay"
	"github.com/gehiggins/RescueDecisionSystems/internal/propagation"
	"github.com/gehiggins/RescueDecisionSystems/internal/tle"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SAROVERLAY_TLE_BASE_URL.
const EnvPrefix = "SAROVERLAY"

// Config is the typed result of Load.
type Config struct {
	LogLevel    string
	LogFormat   string
	CatalogPath string
	AliasesPath string

	TLE             tle.Config
	ElementCacheTTL time.Duration // 0 keeps entries for the whole run
	Propagation     propagation.Config
	Overlay         overlay.Options
	Tracing         observability.TracingConfig
	Reporting       observability.ReportingConfig

	File string // config file read, empty when none
}

func setDefaults(v *viper.Viper) {
	tc := tle.DefaultConfig()
	oo := overlay.DefaultOptions()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("catalog.path", "data/reference/sat_catalog.csv")
	v.SetDefault("catalog.aliases", "data/reference/sat_aliases.csv")

	v.SetDefault("tle.base_url", tc.QueryURL)
	v.SetDefault("tle.files_url", tc.FilesURL)
	v.SetDefault("tle.mirrors", "")
	v.SetDefault("tle.max_attempts", tc.MaxAttempts)
	v.SetDefault("tle.retry_delay", tc.RetryDelay.String())
	v.SetDefault("tle.timeout", tc.AttemptTimeout.String())
	v.SetDefault("tle.user_agent", tc.UserAgent)
	v.SetDefault("tle.snapshot_dir", "")
	v.SetDefault("tle.snapshot_keep", tc.SnapshotKeep)
	v.SetDefault("tle.cache_ttl", "0s")

	v.SetDefault("propagation.workers", propagation.DefaultConfig().Workers)

	v.SetDefault("overlay.types", strings.Join(oo.Types, ","))
	v.SetDefault("overlay.use_orbital_data", oo.UseOrbitalData)
	v.SetDefault("overlay.allow_fallback", oo.AllowFallback)
	v.SetDefault("overlay.include_nearby", oo.IncludeNearby)
	v.SetDefault("overlay.include_upcoming", oo.IncludeUpcoming)
	v.SetDefault("overlay.top_n", oo.TopN)
	v.SetDefault("overlay.max_candidates", oo.MaxCandidates)
	v.SetDefault("overlay.track_forward", oo.TrackForward.String())
	v.SetDefault("overlay.track_step", oo.TrackStep.String())
	v.SetDefault("overlay.pass_horizon", oo.PassHorizon.String())
	v.SetDefault("overlay.pass_step", oo.PassStep.String())
	v.SetDefault("overlay.pass_workers", oo.PassWorkers)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.service_name", "sarsat-overlay")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
}

// Load resolves settings. An explicit path must be readable; without one,
// ./sarsat-overlay.{yaml,toml,json} is used when present. Invalid values are
// logged and replaced by their defaults.
func Load(path string, logger *slog.Logger) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("sarsat-overlay")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	r := reader{v: v, logger: logger}
	def := overlay.DefaultOptions()
	tc := tle.DefaultConfig()

	cfg := Config{
		LogLevel:    r.oneOf("log.level", "info", "debug", "info", "warn", "warning", "error"),
		LogFormat:   r.oneOf("log.format", "json", "json", "text"),
		CatalogPath: r.str("catalog.path"),
		AliasesPath: r.str("catalog.aliases"),
		TLE: tle.Config{
			QueryURL:       r.str("tle.base_url"),
			FilesURL:       r.str("tle.files_url"),
			Mirrors:        r.list("tle.mirrors"),
			MaxAttempts:    r.positiveInt("tle.max_attempts", tc.MaxAttempts),
			RetryDelay:     r.duration("tle.retry_delay", tc.RetryDelay, true),
			AttemptTimeout: r.duration("tle.timeout", tc.AttemptTimeout, false),
			UserAgent:      r.str("tle.user_agent"),
			SnapshotDir:    r.str("tle.snapshot_dir"),
			SnapshotKeep:   r.positiveInt("tle.snapshot_keep", tc.SnapshotKeep),
		},
		ElementCacheTTL: r.duration("tle.cache_ttl", 0, true),
		Propagation: propagation.Config{
			Workers: r.positiveInt("propagation.workers", propagation.DefaultConfig().Workers),
		},
		Overlay: overlay.Options{
			Types:           r.types("overlay.types", def.Types),
			UseOrbitalData:  r.boolean("overlay.use_orbital_data", def.UseOrbitalData),
			AllowFallback:   r.boolean("overlay.allow_fallback", def.AllowFallback),
			IncludeNearby:   r.boolean("overlay.include_nearby", def.IncludeNearby),
			IncludeUpcoming: r.boolean("overlay.include_upcoming", def.IncludeUpcoming),
			TopN:            r.positiveInt("overlay.top_n", def.TopN),
			MaxCandidates:   r.boundedInt("overlay.max_candidates", def.MaxCandidates, 1, def.MaxCandidates),
			TrackForward:    r.duration("overlay.track_forward", def.TrackForward, true),
			TrackStep:       r.duration("overlay.track_step", def.TrackStep, false),
			PassHorizon:     r.duration("overlay.pass_horizon", def.PassHorizon, false),
			PassStep:        r.duration("overlay.pass_step", def.PassStep, false),
			PassWorkers:     r.positiveInt("overlay.pass_workers", def.PassWorkers),
		},
		Tracing: observability.TracingConfig{
			Enabled:     r.boolean("tracing.enabled", false),
			Exporter:    r.oneOf("tracing.exporter", "stdout", "stdout", "none"),
			ServiceName: r.str("tracing.service_name"),
			SampleRatio: r.ratio("tracing.sample_ratio", 1),
		},
		Reporting: observability.ReportingConfig{
			DSN:         r.str("sentry.dsn"),
			Environment: r.str("sentry.environment"),
		},
		File: v.ConfigFileUsed(),
	}

	logger.Debug("configuration loaded",
		"file", cfg.File,
		"catalog_path", cfg.CatalogPath,
		"tle_base_url", cfg.TLE.QueryURL,
		"tle_max_attempts", cfg.TLE.MaxAttempts,
		"workers", cfg.Propagation.Workers,
		"types", cfg.Overlay.Types,
		"top_n", cfg.Overlay.TopN,
		"tracing_enabled", cfg.Tracing.Enabled,
		"error_reporting", cfg.Reporting.DSN != "",
	)
	return cfg, nil
}

// reader turns raw viper values into typed settings, warning and falling
// back on anything invalid.
type reader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (r reader) raw(key string) string {
	return strings.TrimSpace(r.v.GetString(key))
}

func (r reader) warn(key, value string, def any) {
	r.logger.Warn("invalid config value, using default",
		"key", key,
		"env", EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
		"value", value,
		"default", def,
	)
}

func (r reader) str(key string) string {
	return r.raw(key)
}

func (r reader) positiveInt(key string, def int) int {
	return r.boundedInt(key, def, 1, 0)
}

// boundedInt accepts [lo, hi]; hi <= 0 means unbounded above.
func (r reader) boundedInt(key string, def, lo, hi int) int {
	s := r.raw(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		r.warn(key, s, def)
		return def
	}
	return n
}

func (r reader) boolean(key string, def bool) bool {
	s := r.raw(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		r.warn(key, s, def)
		return def
	}
	return b
}

func (r reader) ratio(key string, def float64) float64 {
	s := r.raw(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		r.warn(key, s, def)
		return def
	}
	return f
}

// duration accepts Go durations ("90s", "1h30m") or plain seconds ("90").
func (r reader) duration(key string, def time.Duration, allowZero bool) time.Duration {
	s := r.raw(key)
	if s == "" {
		return def
	}
	d, err := ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		r.warn(key, s, def.String())
		return def
	}
	return d
}

func (r reader) oneOf(key, def string, allowed ...string) string {
	s := strings.ToLower(r.raw(key))
	if s == "" {
		return def
	}
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	r.warn(key, s, def)
	return def
}

// list splits comma-separated values; file lists are accepted as-is.
func (r reader) list(key string) []string {
	var parts []string
	switch raw := r.v.Get(key).(type) {
	case []string:
		parts = raw
	case []any:
		for _, p := range raw {
			parts = append(parts, fmt.Sprint(p))
		}
	default:
		parts = strings.Split(r.raw(key), ",")
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r reader) types(key string, def []string) []string {
	vals := r.list(key)
	if len(vals) == 0 {
		return def
	}
	out := make([]string, 0, len(vals))
	for _, t := range vals {
		switch u := strings.ToUpper(t); u {
		case "LEO", "MEO", "GEO":
			out = append(out, u)
		default:
			r.warn(key, t, def)
			return def
		}
	}
	return out
}

// ParseDuration parses a Go duration or a plain number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
