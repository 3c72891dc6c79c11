package metrics

import (
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

var (
	fetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarsat_overlay_fetch_attempts_total",
			Help: "Orbital element fetch attempts by lookup method, endpoint tier and outcome.",
		},
		[]string{"method", "tier", "outcome"},
	)

	fetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sarsat_overlay_fetch_duration_seconds",
			Help:    "Duration of a complete element lookup including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	elementCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarsat_overlay_element_cache_total",
			Help: "In-run element cache lookups by result.",
		},
		[]string{"result"},
	)

	propagationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarsat_overlay_propagations_total",
			Help: "Sub-satellite point computations by outcome.",
		},
		[]string{"outcome"},
	)

	passSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarsat_overlay_pass_searches_total",
			Help: "Pass searches by result.",
		},
		[]string{"result"},
	)

	overlayRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarsat_overlay_rows_total",
			Help: "Overlay rows emitted by role.",
		},
		[]string{"role"},
	)

	buildDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sarsat_overlay_build_duration_seconds",
			Help:    "Duration of one overlay build.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	satellitesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sarsat_overlay_satellites_skipped_total",
			Help: "Satellites dropped from an overlay build by error kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		fetchAttemptsTotal,
		fetchDurationSeconds,
		elementCacheTotal,
		propagationTotal,
		passSearchesTotal,
		overlayRowsTotal,
		buildDurationSeconds,
		satellitesSkippedTotal,
	)
}

// RecordFetchAttempt counts one HTTP attempt. tier is "primary", "alternate"
// or "snapshot"; outcome is "success" or "failure".
func RecordFetchAttempt(method, tier, outcome string) {
	fetchAttemptsTotal.WithLabelValues(method, tier, outcome).Inc()
}

// ObserveFetch records how long a full lookup took.
func ObserveFetch(method string, d time.Duration) {
	fetchDurationSeconds.WithLabelValues(method).Observe(d.Seconds())
}

// RecordElementCache counts an element cache lookup.
func RecordElementCache(hit bool) {
	if hit {
		elementCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	elementCacheTotal.WithLabelValues("miss").Inc()
}

// RecordPropagation adds batch outcome counts.
func RecordPropagation(success, failed int) {
	propagationTotal.WithLabelValues("success").Add(float64(success))
	propagationTotal.WithLabelValues("failure").Add(float64(failed))
}

// RecordPassSearch counts a pass search.
func RecordPassSearch(found bool) {
	if found {
		passSearchesTotal.WithLabelValues("found").Inc()
		return
	}
	passSearchesTotal.WithLabelValues("none").Inc()
}

// RecordRows counts emitted overlay rows for a role.
func RecordRows(role string, n int) {
	overlayRowsTotal.WithLabelValues(role).Add(float64(n))
}

// RecordSkipped counts a satellite dropped from a build.
func RecordSkipped(kind string) {
	satellitesSkippedTotal.WithLabelValues(kind).Inc()
}

// ObserveBuild records the duration of one overlay build.
func ObserveBuild(d time.Duration) {
	buildDurationSeconds.Observe(d.Seconds())
}

// WriteText writes every registered metric to w in the Prometheus text
// exposition format. The CLI uses it for --metrics-out.
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// CounterTotals returns the current values of a registered counter family
// keyed by its label values joined with ",". Unknown families yield an empty
// map.
func CounterTotals(family string) (map[string]float64, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != family || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			out[labelKey(m.GetLabel())] = m.GetCounter().GetValue()
		}
	}
	return out, nil
}

func labelKey(pairs []*dto.LabelPair) string {
	vals := make([]string, len(pairs))
	for i, lp := range pairs {
		vals[i] = lp.GetValue()
	}
	return strings.Join(vals, ",")
}
