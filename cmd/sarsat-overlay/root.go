package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/catalog"
	"github.com/gehiggins/RescueDecisionSystems/internal/config"
	"github.com/gehiggins/RescueDecisionSystems/internal/metrics"
	"github.com/gehiggins/RescueDecisionSystems/internal/observability"
	"github.com/gehiggins/RescueDecisionSystems/internal/overlay"
	"github.com/gehiggins/RescueDecisionSystems/internal/propagation"
	"github.com/gehiggins/RescueDecisionSystems/internal/tle"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries the state shared by every subcommand of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	client *http.Client

	configPath string
	output     string
	logLevel   string
	metricsOut string

	cfg      config.Config
	format   overlay.Format
	logger   *slog.Logger
	runID    string
	shutdown func(context.Context) error
	reporter *observability.ErrorReporter
	command  string
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		client: &http.Client{},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "sarsat-overlay",
		Short:         "Satellite overlay tables for SARSAT distress alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (yaml, toml or json)")
	pf.StringVarP(&a.output, "output", "o", "table", "output format: table, json or yaml")
	pf.StringVar(&a.logLevel, "log-level", "", "override log level: debug, info, warn or error")
	pf.StringVar(&a.metricsOut, "metrics-out", "", "write Prometheus text metrics to this file after the run")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		a.command = cmd.CommandPath()
		return a.setup(cmd.Context())
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		return a.teardown(cmd.Context())
	}

	root.AddCommand(
		newOverlayCmd(a),
		newCatalogCmd(a),
		newTLECmd(a),
		newPassesCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	format, err := overlay.ParseFormat(a.output)
	if err != nil {
		return a.fail(err)
	}
	a.format = format

	// Config problems are logged before the configured logger exists.
	boot := observability.NewLogger(a.stderr, "warn", "text")
	cfg, err := config.Load(a.configPath, boot)
	if err != nil {
		return a.fail(err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.logger, a.runID = observability.WithRunID(observability.NewLogger(a.stderr, cfg.LogLevel, cfg.LogFormat))

	shutdown, err := observability.InitTracing(ctx, cfg.Tracing, a.logger)
	if err != nil {
		return a.fail(err)
	}
	a.shutdown = shutdown

	cfg.Reporting.Release = version
	reporter, err := observability.NewErrorReporter(cfg.Reporting, nil)
	if err != nil {
		// A bad DSN only costs us reporting.
		a.logger.Warn("error reporting disabled", "error", err)
		reporter = &observability.ErrorReporter{}
	}
	a.reporter = reporter
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	observability.ShutdownWithTimeout(ctx, a.shutdown, a.logger)
	a.reporter.Flush(2 * time.Second)
	if a.metricsOut == "" {
		return nil
	}
	if err := writeMetrics(a.metricsOut); err != nil {
		return a.fail(fmt.Errorf("write metrics: %w", err))
	}
	a.logger.Debug("metrics written", "path", a.metricsOut)
	return nil
}

func writeMetrics(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := metrics.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// fail reports err on stderr, and to Sentry when configured, and returns it
// so cobra exits non-zero.
func (a *app) fail(err error) error {
	if a.logger != nil {
		a.logger.Error("command failed", "error", err)
	} else {
		fmt.Fprintln(a.stderr, "error:", err)
	}
	if a.reporter.Enabled() {
		a.reporter.Capture(err, map[string]string{"command": a.command, "run_id": a.runID})
		a.reporter.Flush(2 * time.Second)
	}
	return err
}

func (a *app) loadCatalog() ([]catalog.Record, map[string]string, error) {
	records, err := catalog.Load(a.cfg.CatalogPath, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return records, catalog.LoadAliases(a.cfg.AliasesPath), nil
}

func (a *app) provider() *tle.Provider {
	return tle.NewProvider(a.cfg.TLE, a.client, tle.NewElementCache(a.cfg.ElementCacheTTL), a.logger)
}

func (a *app) builder() (*overlay.Builder, error) {
	records, aliases, err := a.loadCatalog()
	if err != nil {
		return nil, err
	}
	prop := propagation.NewPropagator(a.cfg.Propagation, a.logger)
	return overlay.NewBuilder(records, aliases, a.provider(), prop, a.logger), nil
}
