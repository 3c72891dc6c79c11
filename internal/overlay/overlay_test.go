package overlay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/catalog"
	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/gehiggins/RescueDecisionSystems/internal/metrics"
	"github.com/gehiggins/RescueDecisionSystems/internal/passes"
	"github.com/gehiggins/RescueDecisionSystems/internal/propagation"
	"github.com/gehiggins/RescueDecisionSystems/internal/tle"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const queryURL = "https://elements.test/gp.php"

var (
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	alertTime  = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	fairbanks  = &Position{LatDeg: 64.84, LonDeg: -147.72}
)

// elements served by the mock endpoint, keyed by catalog number. MetOp-A
// (29499) is deliberately absent so its lookups fail.
var elements = map[int][3]string{
	25338: {"NOAA 15",
		"1 25338U 98030A   25244.25000000  .00000080  00000-0  65000-4 0  9998",
		"2 25338  98.5640 300.1234 0009500 105.2000 255.0100 14.26510000420008"},
	28654: {"NOAA 18",
		"1 28654U 05018A   25244.25000000  .00000080  00000-0  65000-4 0  9996",
		"2 28654  98.8700 320.5000 0014000  80.3000 279.9000 14.13420000 80005"},
	33591: {"NOAA 19",
		"1 33591U 09005A   25244.25000000  .00000080  00000-0  65000-4 0  9992",
		"2 33591  99.0300 250.7000 0013500 150.2000 210.0000 14.13180000850009"},
	38771: {"METOP-B",
		"1 38771U 12049A   25244.25000000  .00000080  00000-0  65000-4 0  9999",
		"2 38771  98.6900 305.4000 0001600  90.1000 270.0500 14.21500000660008"},
	43689: {"METOP-C",
		"1 43689U 18087A   25244.25000000  .00000080  00000-0  65000-4 0  9991",
		"2 43689  98.6800 305.9000 0001700  95.0000 265.1000 14.21490000350005"},
	25544: {"ISS (ZARYA)",
		"1 25544U 98067A   25244.25000000  .00016717  00000-0  30000-3 0  9992",
		"2 25544  51.6400 200.0000 0005000  30.0000 330.0000 15.50000000520002"},
}

func elementText(id int) string {
	e := elements[id]
	return e[0] + "\n" + e[1] + "\n" + e[2] + "\n"
}

func catnrURL(id int) string {
	return queryURL + "?CATNR=" + strconv.Itoa(id) + "&FORMAT=TLE"
}

// newTestBuilder serves every fixture except the ids in failing, which
// answer 503.
func newTestBuilder(t *testing.T, records []catalog.Record, failing ...int) (*Builder, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	down := make(map[int]bool)
	for _, id := range failing {
		down[id] = true
	}
	for id := range elements {
		if down[id] {
			mt.RegisterResponder(http.MethodGet, catnrURL(id), httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
			continue
		}
		mt.RegisterResponder(http.MethodGet, catnrURL(id), httpmock.NewStringResponder(http.StatusOK, elementText(id)))
	}

	prov := tle.NewProvider(tle.Config{QueryURL: queryURL, MaxAttempts: 1}, &http.Client{Transport: mt}, tle.NewElementCache(0), testLogger)
	prop := propagation.NewPropagator(propagation.Config{Workers: 2}, testLogger)
	return NewBuilder(records, nil, prov, prop, testLogger), mt
}

// subpointOf places a fixture satellite at the alert time.
func subpointOf(t *testing.T, id int) *Position {
	t.Helper()
	e := elements[id]
	sp, err := propagation.NewSGP4Propagator(e[1], e[2], id)
	require.NoError(t, err)
	pt, err := sp.SubpointAt(alertTime)
	require.NoError(t, err)
	return &Position{LatDeg: pt.LatDeg, LonDeg: pt.LonDeg}
}

func byRole(rows []Row, role Role) []Row {
	var out []Row
	for _, r := range rows {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out
}

func assertTableInvariants(t *testing.T, rows []Row) {
	t.Helper()
	seen := make(map[int]bool)
	order := map[Role]int{}
	for i, r := range Roles {
		order[r] = i
	}
	last := 0
	for _, r := range rows {
		if r.NORADID > 0 {
			assert.False(t, seen[r.NORADID], "catalog number %d appears twice", r.NORADID)
			seen[r.NORADID] = true
		}
		assert.GreaterOrEqual(t, order[r.Role], last, "rows out of role order")
		last = order[r.Role]
		assert.True(t, r.usable(), "row %s has no usable position", r.SatName)
		assert.NotEmpty(t, r.Summary)
	}
	assert.LessOrEqual(t, len(byRole(rows, RoleReported)), 1)
}

func TestBuildReported(t *testing.T) {
	b, _ := newTestBuilder(t, catalog.Defaults())

	rows, err := b.Build(context.Background(), Context{
		AlertTime: alertTime,
		A:         fairbanks,
		SatHint:   "NOAA-19",
	}, DefaultOptions())
	require.NoError(t, err)
	assertTableInvariants(t, rows)

	rep, ok := Reported(rows)
	require.True(t, ok)
	assert.Equal(t, rows[0], rep, "reported row comes first")
	assert.Equal(t, 33591, rep.NORADID)
	assert.Equal(t, "NOAA-19", rep.SatName)
	assert.Equal(t, "LEOSAR", rep.Constellation)
	assert.InDelta(t, 6.0, rep.TLEAgeHours, 1e-6)
	assert.Equal(t, catnrURL(33591), rep.Source)
	assert.Equal(t, 2500.0, rep.RadiusKm)
	assert.InDelta(t, 850, rep.AltKm, 60)

	require.Len(t, rep.TrackCoords, 16)
	require.NotNil(t, rep.TrackStart)
	assert.Equal(t, alertTime, *rep.TrackStart)
	assert.Equal(t, alertTime.Add(15*time.Minute), *rep.TrackEnd)
	assert.Equal(t, 15.0, rep.TrackForwardMin)

	require.NotNil(t, rep.NextPass)
	assert.False(t, rep.NextPass.Time.Before(alertTime))
	assert.Greater(t, rep.NextPass.MaxElevationDeg, 0.0)
	require.NotNil(t, rep.DistanceKm)

	assert.Contains(t, rep.Summary, "NOAA-19 (NORAD 33591) [reported] TLE epoch 2025-09-01 06:00Z (age 6.0 h)")
	assert.Contains(t, rep.Summary, "next pass")
}

func TestBuildNearbyIncludesSatelliteOverhead(t *testing.T) {
	b, _ := newTestBuilder(t, catalog.Defaults())

	rows, err := b.Build(context.Background(), Context{
		AlertTime: alertTime,
		A:         subpointOf(t, 28654),
		SatHint:   "NOAA-19",
	}, DefaultOptions())
	require.NoError(t, err)
	assertTableInvariants(t, rows)

	nearby := byRole(rows, RoleNearby)
	require.NotEmpty(t, nearby)
	first := nearby[0]
	assert.Equal(t, 28654, first.NORADID)
	require.NotNil(t, first.DistanceKm)
	assert.Less(t, *first.DistanceKm, 1.0)
	assert.Contains(t, first.VisibleFor, "A")
	for i := 1; i < len(nearby); i++ {
		assert.LessOrEqual(t, *nearby[i-1].DistanceKm, *nearby[i].DistanceKm)
		assert.LessOrEqual(t, *nearby[i].DistanceKm, nearby[i].RadiusKm)
	}

	for _, r := range byRole(rows, RoleUpcoming) {
		require.NotNil(t, r.NextPass)
	}
}

func TestBuildReporterFetchFailure(t *testing.T) {
	b, _ := newTestBuilder(t, catalog.Defaults(), 33591)

	before, err := metrics.CounterTotals("sarsat_overlay_satellites_skipped_total")
	require.NoError(t, err)

	rows, err := b.Build(context.Background(), Context{
		AlertTime: alertTime,
		A:         subpointOf(t, 28654),
		SatHint:   "NOAA-19",
	}, DefaultOptions())
	require.NoError(t, err)
	assertTableInvariants(t, rows)

	assert.Empty(t, byRole(rows, RoleReported))
	assert.Empty(t, byRole(rows, RoleFallback), "a resolved hint never yields fallback rows")
	for _, r := range rows {
		assert.NotEqual(t, 33591, r.NORADID)
	}
	nearby := byRole(rows, RoleNearby)
	require.NotEmpty(t, nearby)
	assert.Equal(t, 28654, nearby[0].NORADID)

	after, err := metrics.CounterTotals("sarsat_overlay_satellites_skipped_total")
	require.NoError(t, err)
	assert.Greater(t, after[string(faults.KindNetwork)], before[string(faults.KindNetwork)])
}

func TestBuildStopsCandidateLookupsDuringOutage(t *testing.T) {
	var records []catalog.Record
	var ids []int
	for _, rec := range catalog.Defaults() {
		if _, ok := elements[rec.NORADID]; ok {
			records = append(records, rec)
			ids = append(ids, rec.NORADID)
		}
	}
	require.Greater(t, len(ids), outageStreak)
	b, mt := newTestBuilder(t, records, ids...)

	rows, err := b.Build(context.Background(), Context{
		AlertTime: alertTime,
		A:         fairbanks,
	}, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, outageStreak, mt.GetTotalCallCount())
}

func TestBuildFallbackRanksByDistance(t *testing.T) {
	b, _ := newTestBuilder(t, catalog.Defaults())

	opt := DefaultOptions()
	opt.TopN = 2
	opt.IncludeNearby = false
	opt.IncludeUpcoming = false

	rows, err := b.Build(context.Background(), Context{
		AlertTime: alertTime,
		A:         subpointOf(t, 28654),
		SatHint:   "SARSAT-UNKNOWN",
	}, opt)
	require.NoError(t, err)
	assertTableInvariants(t, rows)

	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, RoleFallback, r.Role)
		require.NotNil(t, r.DistanceKm)
	}
	assert.Equal(t, 28654, rows[0].NORADID)
	assert.LessOrEqual(t, *rows[0].DistanceKm, *rows[1].DistanceKm)
}

func TestBuildWithoutPosition(t *testing.T) {
	b, _ := newTestBuilder(t, catalog.Defaults())

	opt := DefaultOptions()
	opt.TopN = 3
	rows, err := b.Build(context.Background(), Context{AlertTime: alertTime}, opt)
	require.NoError(t, err)
	assertTableInvariants(t, rows)

	require.Len(t, rows, 3)
	want := []int{25338, 28654, 33591}
	for i, r := range rows {
		assert.Equal(t, RoleFallback, r.Role)
		assert.Equal(t, want[i], r.NORADID, "catalog order is kept without a position")
		assert.Nil(t, r.DistanceKm)
		assert.Empty(t, r.VisibleFor)
		assert.Nil(t, r.NextPass)
	}
}

func TestBuildUpcomingSortedByPassTime(t *testing.T) {
	b, _ := newTestBuilder(t, catalog.Defaults())

	opt := DefaultOptions()
	opt.IncludeNearby = false
	opt.PassWorkers = 3

	rows, err := b.Build(context.Background(), Context{
		AlertTime: alertTime,
		A:         fairbanks,
		SatHint:   "NOAA-19",
	}, opt)
	require.NoError(t, err)
	assertTableInvariants(t, rows)

	upcoming := byRole(rows, RoleUpcoming)
	require.NotEmpty(t, upcoming)
	assert.LessOrEqual(t, len(upcoming), opt.TopN)
	for i, r := range upcoming {
		require.NotNil(t, r.NextPass)
		assert.False(t, r.NextPass.Time.Before(alertTime))
		assert.False(t, r.NextPass.Time.After(alertTime.Add(passes.DefaultHorizon)))
		if i > 0 {
			assert.False(t, r.NextPass.Start.Before(upcoming[i-1].NextPass.Start))
		}
		assert.Contains(t, r.Summary, "next pass")
	}
}

func TestSortByRise(t *testing.T) {
	at := func(startMin, peakMin int) *passes.Event {
		return &passes.Event{
			Start: alertTime.Add(time.Duration(startMin) * time.Minute),
			Time:  alertTime.Add(time.Duration(peakMin) * time.Minute),
		}
	}
	// A long pass that rises first but peaks after a short one.
	rows := []Row{
		{NORADID: 1, NextPass: at(20, 22)},
		{NORADID: 2, NextPass: at(10, 30)},
		{NORADID: 3, NextPass: at(20, 21)},
	}
	sortByRise(rows)

	ids := []int{rows[0].NORADID, rows[1].NORADID, rows[2].NORADID}
	assert.Equal(t, []int{2, 3, 1}, ids)
}

func TestBuildWarnsWhenPassSearchIsCapped(t *testing.T) {
	b, _ := newTestBuilder(t, catalog.Defaults())
	var logs bytes.Buffer
	b.logger = slog.New(slog.NewJSONHandler(&logs, nil))

	opt := DefaultOptions()
	opt.IncludeNearby = false
	opt.PassHorizon = 12 * time.Hour
	opt.PassStep = 5 * time.Second

	_, err := b.Build(context.Background(), Context{
		AlertTime: alertTime,
		A:         fairbanks,
		SatHint:   "NOAA-19",
	}, opt)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "pass search shortened by sample cap")
	assert.Contains(t, logs.String(), `"searched":"3h59m55s"`)
}

func TestBuildOverride(t *testing.T) {
	b, _ := newTestBuilder(t, catalog.Defaults())
	opt := DefaultOptions()
	opt.IncludeNearby = false
	opt.IncludeUpcoming = false

	t.Run("catalogued", func(t *testing.T) {
		rows, err := b.Build(context.Background(), Context{
			AlertTime:     alertTime,
			SatHint:       "NOAA-19",
			NORADOverride: 38771,
		}, opt)
		require.NoError(t, err)
		rep, ok := Reported(rows)
		require.True(t, ok)
		assert.Equal(t, 38771, rep.NORADID)
		assert.Equal(t, "MetOp-B", rep.SatName)
	})

	t.Run("not in catalog", func(t *testing.T) {
		rows, err := b.Build(context.Background(), Context{
			AlertTime:     alertTime,
			NORADOverride: 25544,
		}, opt)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		rep := rows[0]
		assert.Equal(t, RoleReported, rep.Role)
		assert.Equal(t, 25544, rep.NORADID)
		assert.Equal(t, "ISS (ZARYA)", rep.SatName)
		assert.Equal(t, catalog.Unknown, rep.Type)
		assert.InDelta(t, 2250, rep.RadiusKm, 150, "radius derived from altitude")
	})
}

func TestBuildGroupLookupWithoutCatalogNumber(t *testing.T) {
	records := []catalog.Record{{
		Type:              catalog.TypeLEO,
		Constellation:     "LEOSAR",
		Designator:        "SARP-19",
		CommonName:        "NOAA 19",
		IntlDesignator:    catalog.Unknown,
		NominalAltKm:      850,
		FootprintRadiusKm: math.NaN(),
		IsActive:          true,
	}}
	b, mt := newTestBuilder(t, records)
	var group strings.Builder
	for _, id := range []int{25338, 28654, 33591} {
		group.WriteString(elementText(id))
	}
	mt.RegisterResponder(http.MethodGet, queryURL+"?FORMAT=TLE&GROUP=sarsat",
		httpmock.NewStringResponder(http.StatusOK, group.String()))

	rows, err := b.Build(context.Background(), Context{AlertTime: alertTime, SatHint: "noaa 19"}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 33591, rows[0].NORADID)
	assert.Equal(t, "NOAA 19", rows[0].SatName)
	assert.InDelta(t, 3120, rows[0].RadiusKm, 60)
}

func TestBuildWithoutOrbitalData(t *testing.T) {
	b, mt := newTestBuilder(t, catalog.Defaults())
	opt := DefaultOptions()
	opt.UseOrbitalData = false

	rows, err := b.Build(context.Background(), Context{AlertTime: alertTime, A: fairbanks, SatHint: "NOAA-19"}, opt)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, mt.GetTotalCallCount())
}

func TestBuildRejects(t *testing.T) {
	b, _ := newTestBuilder(t, catalog.Defaults())

	tests := map[string]Context{
		"no alert time":  {A: fairbanks},
		"latitude":       {AlertTime: alertTime, A: &Position{LatDeg: 95, LonDeg: 0}},
		"longitude B":    {AlertTime: alertTime, B: &Position{LatDeg: 0, LonDeg: 200}},
		"NaN position":   {AlertTime: alertTime, A: &Position{LatDeg: math.NaN(), LonDeg: 0}},
		"negative NORAD": {AlertTime: alertTime, NORADOverride: -4},
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := b.Build(context.Background(), c, DefaultOptions())
			assert.ErrorIs(t, err, faults.ErrInvalidContext)
			assert.True(t, faults.Fatal(err))
		})
	}

	empty, _ := newTestBuilder(t, nil)
	_, err := empty.Build(context.Background(), Context{AlertTime: alertTime}, DefaultOptions())
	assert.ErrorIs(t, err, faults.ErrCatalogUnavailable)
}

func TestBuildCancelled(t *testing.T) {
	b, _ := newTestBuilder(t, catalog.Defaults())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, err := b.Build(ctx, Context{AlertTime: alertTime, A: fairbanks, SatHint: "NOAA-19"}, DefaultOptions())
	require.NoError(t, err)
	for _, r := range rows {
		assert.NotEqual(t, RoleUpcoming, r.Role)
	}
}

func TestSummary(t *testing.T) {
	r := Row{
		SatName:     "MetOp-C",
		NORADID:     43689,
		Role:        RoleUpcoming,
		TLEEpoch:    time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC),
		TLEAgeHours: 6,
		NextPass:    &passes.Event{Time: time.Date(2025, 9, 1, 13, 7, 0, 0, time.UTC), MaxElevationDeg: 42.3},
	}
	assert.Equal(t,
		"MetOp-C (NORAD 43689) [upcoming] TLE epoch 2025-09-01 06:00Z (age 6.0 h) next pass 2025-09-01 13:07Z max el 42.2°",
		Summary(r))

	assert.Equal(t, "SARSAT X [fallback_suggested]", Summary(Row{SatName: "SARSAT X", Role: RoleFallback}))
}

func TestCountByRole(t *testing.T) {
	counts := CountByRole([]Row{{Role: RoleNearby}, {Role: RoleNearby}, {Role: RoleReported}})
	assert.Equal(t, map[Role]int{
		RoleReported: 1,
		RoleFallback: 0,
		RoleNearby:   2,
		RoleUpcoming: 0,
	}, counts)

	_, ok := Reported([]Row{{Role: RoleNearby}})
	assert.False(t, ok)
}

func TestRender(t *testing.T) {
	d := 12.5
	rows := []Row{{
		SatName:    "NOAA-18",
		NORADID:    28654,
		Role:       RoleNearby,
		LatDeg:     10,
		LonDeg:     20,
		AltKm:      850,
		RadiusKm:   2500,
		DistanceKm: &d,
		VisibleFor: "A",
	}}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rows, FormatJSON))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "NOAA-18", decoded[0]["sat_name"])
	assert.Equal(t, "nearby_not_detected", decoded[0]["role"])
	assert.EqualValues(t, 12.5, decoded[0]["distance_km"])
	assert.NotContains(t, decoded[0], "next_pass")

	buf.Reset()
	require.NoError(t, Render(&buf, nil, FormatJSON))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, Render(&buf, rows, FormatYAML))
	assert.Contains(t, buf.String(), "sat_name: NOAA-18")
	assert.Contains(t, buf.String(), "visible_for: A")

	buf.Reset()
	require.NoError(t, Render(&buf, rows, FormatTable))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ROLE"))
	assert.Contains(t, lines[1], "28654")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "JSON": FormatJSON, "yml": FormatYAML, " table ": FormatTable} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, faults.ErrInvalidContext))
}
