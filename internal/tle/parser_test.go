package tle

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	noaa19Name  = "NOAA 19"
	noaa19Line1 = "1 33591U 09005A   25244.25000000  .00000080  00000-0  65000-4 0  9992"
	noaa19Line2 = "2 33591  99.0300 250.7000 0013500 150.2000 210.0000 14.13180000850009"
)

func noaa19Text() string {
	return noaa19Name + "\n" + noaa19Line1 + "\n" + noaa19Line2 + "\n"
}

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/leosar.tle")
	require.NoError(t, err)
	return data
}

func TestParseFixture(t *testing.T) {
	sets, err := Parse(strings.NewReader(string(loadFixture(t))), testLogger)
	require.NoError(t, err)
	require.Len(t, sets, 6)

	byID := map[int]ElementSet{}
	for _, s := range sets {
		byID[s.NORADID] = s
		assert.NoError(t, Checksum(s.Line1, s.Line2), "checksum for %d", s.NORADID)
	}

	for _, id := range []int{25338, 28654, 33591, 38771, 43689, 25544} {
		assert.Contains(t, byID, id)
	}
	assert.Equal(t, "NOAA 19", byID[33591].Name)
	assert.Equal(t, time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC), byID[33591].Epoch)
}

func TestParseTwoLineForm(t *testing.T) {
	text := noaa19Line1 + "\n" + noaa19Line2 + "\n"
	sets, err := Parse(strings.NewReader(text), testLogger)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "33591", sets[0].Name)
	assert.Equal(t, 33591, sets[0].NORADID)
}

func TestParseSkipsMalformed(t *testing.T) {
	text := strings.Join([]string{
		"No GP data found",
		"BROKEN",
		"1 99999U short line",
		"2 99999 short line",
		noaa19Name,
		noaa19Line1,
		noaa19Line2,
		"TRAILING NAME",
	}, "\r\n")

	sets, err := Parse(strings.NewReader(text), testLogger)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, 33591, sets[0].NORADID)
}

func TestParseRejectsMismatchedCatalogNumbers(t *testing.T) {
	l2 := "2 33592" + noaa19Line2[7:]
	sets, err := Parse(strings.NewReader(noaa19Line1+"\n"+l2+"\n"), testLogger)
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestParseEmpty(t *testing.T) {
	sets, err := Parse(strings.NewReader(""), testLogger)
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestParseEpoch(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"25244.25000000", time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC), false},
		{"24001.00000000", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"00001.50000000", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), false},
		{"56366.00000000", time.Date(2056, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{"57001.00000000", time.Date(1957, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"99365.00000000", time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{"2x001.0", time.Time{}, true},
		{"25abc", time.Time{}, true},
		{"250", time.Time{}, true},
		{"25000.50000000", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEpoch(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.WithinDuration(t, tt.want, got, time.Millisecond)
		})
	}
}

func TestValidateLines(t *testing.T) {
	assert.NoError(t, ValidateLines(noaa19Line1, noaa19Line2))
	assert.Error(t, ValidateLines("invalid line 1", "invalid line 2"))
	assert.Error(t, ValidateLines(noaa19Line2, noaa19Line1))
	assert.Error(t, ValidateLines(noaa19Line1[:60], noaa19Line2))
}

func TestValidateLinesRejectsNonNumericFields(t *testing.T) {
	tests := []struct {
		name   string
		l1, l2 string
		field  string
	}{
		{"inclination", noaa19Line1, strings.Replace(noaa19Line2, "99.0300", "XX.0300", 1), "inclination"},
		{"eccentricity", noaa19Line1, strings.Replace(noaa19Line2, "0013500", "00135O0", 1), "eccentricity"},
		{"mean motion", noaa19Line1, strings.Replace(noaa19Line2, "14.13180000", "14.1318000x", 1), "mean motion"},
		{"bstar", strings.Replace(noaa19Line1, "65000-4", "6500X-4", 1), noaa19Line2, "bstar"},
		{"epoch day", strings.Replace(noaa19Line1, "244.25000000", "244.2500000?", 1), noaa19Line2, "epoch day"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Len(t, tt.l1, lineLength)
			require.Len(t, tt.l2, lineLength)
			err := ValidateLines(tt.l1, tt.l2)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestParseSkipsNonNumericInclination(t *testing.T) {
	bad := strings.Replace(noaa19Line2, "99.0300", "XX.0300", 1)
	text := noaa19Name + "\n" + noaa19Line1 + "\n" + bad + "\n"

	sets, err := Parse(strings.NewReader(text), testLogger)
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestChecksum(t *testing.T) {
	assert.NoError(t, Checksum(noaa19Line1, noaa19Line2))

	bad := noaa19Line1[:68] + "0"
	err := Checksum(bad, noaa19Line2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestAgeHours(t *testing.T) {
	es := ElementSet{Epoch: time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC)}
	assert.InDelta(t, 6.0, es.AgeHours(time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)), 1e-9)
	assert.InDelta(t, -1.5, es.AgeHours(time.Date(2025, 9, 1, 4, 30, 0, 0, time.UTC)), 1e-9)
}
