package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const queryURL = "https://elements.test/gp.php"

var fixtures = map[int]string{
	25338: "NOAA 15\n" +
		"1 25338U 98030A   25244.25000000  .00000080  00000-0  65000-4 0  9998\n" +
		"2 25338  98.5640 300.1234 0009500 105.2000 255.0100 14.26510000420008\n",
	28654: "NOAA 18\n" +
		"1 28654U 05018A   25244.25000000  .00000080  00000-0  65000-4 0  9996\n" +
		"2 28654  98.8700 320.5000 0014000  80.3000 279.9000 14.13420000 80005\n",
	33591: "NOAA 19\n" +
		"1 33591U 09005A   25244.25000000  .00000080  00000-0  65000-4 0  9992\n" +
		"2 33591  99.0300 250.7000 0013500 150.2000 210.0000 14.13180000850009\n",
	38771: "METOP-B\n" +
		"1 38771U 12049A   25244.25000000  .00000080  00000-0  65000-4 0  9999\n" +
		"2 38771  98.6900 305.4000 0001600  90.1000 270.0500 14.21500000660008\n",
	43689: "METOP-C\n" +
		"1 43689U 18087A   25244.25000000  .00000080  00000-0  65000-4 0  9991\n" +
		"2 43689  98.6800 305.9000 0001700  95.0000 265.1000 14.21490000350005\n",
}

type runResult struct {
	stdout string
	stderr string
	dir    string
}

// run executes the CLI once with an isolated catalog directory and mocked
// element endpoint.
func run(t *testing.T, args ...string) (runResult, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SAROVERLAY_CATALOG_PATH", filepath.Join(dir, "sat_catalog.csv"))
	t.Setenv("SAROVERLAY_CATALOG_ALIASES", filepath.Join(dir, "sat_aliases.csv"))
	t.Setenv("SAROVERLAY_TLE_BASE_URL", queryURL)
	t.Setenv("SAROVERLAY_TLE_FILES_URL", "https://elements.test/files")
	t.Setenv("SAROVERLAY_TLE_MAX_ATTEMPTS", "1")
	t.Setenv("SAROVERLAY_LOG_LEVEL", "debug")

	mt := httpmock.NewMockTransport()
	for id, text := range fixtures {
		mt.RegisterResponder(http.MethodGet, queryURL+"?CATNR="+strconv.Itoa(id)+"&FORMAT=TLE",
			httpmock.NewStringResponder(http.StatusOK, text))
	}

	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	a.client = &http.Client{Transport: mt}

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return runResult{stdout: stdout.String(), stderr: stderr.String(), dir: dir}, err
}

func TestVersion(t *testing.T) {
	res, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, res.stdout, "sarsat-overlay dev")
}

func TestCatalogListSeedsDefaults(t *testing.T) {
	res, err := run(t, "catalog", "list", "-o", "json")
	require.NoError(t, err)

	var views []recordView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &views))
	require.Len(t, views, 6)
	assert.Equal(t, 25338, views[0].NORADID)
	require.NotNil(t, views[0].FootprintRadiusKm)
	assert.Equal(t, 2500.0, *views[0].FootprintRadiusKm)

	_, err = os.Stat(filepath.Join(res.dir, "sat_catalog.csv"))
	assert.NoError(t, err, "missing catalog is seeded on disk")
}

func TestCatalogResolve(t *testing.T) {
	res, err := run(t, "catalog", "resolve", "noaa 19", "-o", "json")
	require.NoError(t, err)

	var views []recordView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &views))
	require.NotEmpty(t, views)
	assert.Equal(t, 33591, views[0].NORADID)
	assert.Equal(t, "exact", views[0].Match)

	_, err = run(t, "catalog", "resolve", "GOES-99")
	assert.ErrorIs(t, err, faults.ErrNoResolution)
}

func TestOverlayJSON(t *testing.T) {
	metricsPath := filepath.Join(t.TempDir(), "out", "metrics.prom")
	res, err := run(t, "overlay",
		"--time", "2025-09-01T12:00:00Z",
		"--lat", "64.84", "--lon", "-147.72",
		"--sat", "NOAA-19",
		"--no-upcoming",
		"-o", "json",
		"--metrics-out", metricsPath,
	)
	require.NoError(t, err, res.stderr)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &rows))
	require.NotEmpty(t, rows)
	assert.Equal(t, "reported", rows[0]["role"])
	assert.EqualValues(t, 33591, rows[0]["norad_id"])
	assert.InDelta(t, 6.0, rows[0]["tle_age_hours"], 1e-6)
	for _, r := range rows {
		assert.NotEqual(t, "upcoming", r["role"])
	}

	assert.Contains(t, res.stderr, `"run_id"`)
	assert.Contains(t, res.stderr, "overlay complete")

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "sarsat_overlay_rows_total")
	assert.Contains(t, string(prom), "sarsat_overlay_build_duration_seconds")
}

func TestOverlayTable(t *testing.T) {
	res, err := run(t, "overlay", "--time", "2025-09-01 12:00:00", "--norad", "33591", "--offline=false", "--no-upcoming")
	require.NoError(t, err, res.stderr)
	assert.Contains(t, res.stdout, "ROLE")
	assert.Contains(t, res.stdout, "NOAA-19")
}

func TestOverlayRejectsBadInput(t *testing.T) {
	_, err := run(t, "overlay", "--time", "yesterday")
	assert.ErrorIs(t, err, faults.ErrInvalidContext)

	_, err = run(t, "overlay", "--time", "2025-09-01T12:00:00Z", "--lat", "95", "--lon", "0")
	assert.ErrorIs(t, err, faults.ErrInvalidContext)

	_, err = run(t, "overlay", "--time", "2025-09-01T12:00:00Z", "--lat", "10")
	assert.Error(t, err, "--lat without --lon")

	_, err = run(t, "overlay", "--time", "2025-09-01T12:00:00Z", "-o", "csv")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestTLEFetch(t *testing.T) {
	res, err := run(t, "tle", "fetch", "--norad", "33591")
	require.NoError(t, err, res.stderr)
	assert.Equal(t, fixtures[33591], res.stdout)

	_, err = run(t, "tle", "fetch", "--norad", "99999")
	assert.ErrorIs(t, err, faults.ErrNetworkFailure)
}

func TestPasses(t *testing.T) {
	res, err := run(t, "passes",
		"--norad", "33591,28654,99999",
		"--lat", "64.84", "--lon", "-147.72",
		"--start", "2025-09-01T12:00:00Z",
		"-o", "json",
	)
	require.NoError(t, err, res.stderr)

	var views []passView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &views))
	require.Len(t, views, 2, "unknown catalog number is skipped")
	assert.Equal(t, 33591, views[0].NORADID)
	require.NotNil(t, views[0].Pass)
	assert.Greater(t, views[0].Pass.MaxElevationDeg, 0.0)

	_, err = run(t, "passes", "--norad", "99999", "--lat", "0", "--lon", "0")
	assert.ErrorIs(t, err, faults.ErrNetworkFailure)
}
