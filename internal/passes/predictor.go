package passes

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/gehiggins/RescueDecisionSystems/internal/metrics"
	"github.com/gehiggins/RescueDecisionSystems/internal/transform"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultStep is the elevation sampling interval.
	DefaultStep = 60 * time.Second
	// DefaultHorizon is how far ahead a search looks.
	DefaultHorizon = 12 * time.Hour
	// MaxSamples bounds the samples taken by one search.
	MaxSamples = 2880
)

// PositionSource yields Earth-fixed satellite positions;
// *propagation.SGP4Propagator satisfies it.
type PositionSource interface {
	PositionAt(t time.Time) (transform.ECEF, error)
}

// Event is the first pass found: the sample of maximum elevation inside the
// first contiguous block of positive elevations, with the block bounds.
type Event struct {
	Time            time.Time `json:"time_utc" yaml:"time_utc"`
	LatDeg          float64   `json:"lat_dd" yaml:"lat_dd"`
	LonDeg          float64   `json:"lon_dd" yaml:"lon_dd"`
	AltKm           float64   `json:"alt_km" yaml:"alt_km"`
	MaxElevationDeg float64   `json:"max_elevation_deg" yaml:"max_elevation_deg"`
	AzimuthDeg      float64   `json:"azimuth_deg" yaml:"azimuth_deg"`
	Start           time.Time `json:"start_utc" yaml:"start_utc"`
	End             time.Time `json:"end_utc" yaml:"end_utc"`
}

// Duration is the sampled length of the pass.
func (e Event) Duration() time.Duration { return e.End.Sub(e.Start) }

type sample struct {
	at   time.Time
	ok   bool
	look transform.LookAngles
	pos  transform.ECEF
}

// NextPass samples elevation from start every step over horizon and returns
// the first pass. A pass already in progress at start counts. Samples that
// fail to propagate are treated as below the horizon and end a block.
// faults.ErrNoPass is returned when no sample is above the horizon.
func NextPass(src PositionSource, obs transform.Observer, start time.Time, horizon, step time.Duration) (*Event, error) {
	ev, err := nextPass(src, obs, start, horizon, step)
	metrics.RecordPassSearch(err == nil)
	return ev, err
}

// Coverage returns how far ahead a search with this horizon and step really
// looks, and whether MaxSamples cut it short of horizon.
func Coverage(horizon, step time.Duration) (time.Duration, bool) {
	if step <= 0 {
		step = DefaultStep
	}
	if horizon <= 0 {
		return 0, false
	}
	if int(horizon/step)+1 > MaxSamples {
		return time.Duration(MaxSamples-1) * step, true
	}
	return horizon, false
}

func nextPass(src PositionSource, obs transform.Observer, start time.Time, horizon, step time.Duration) (*Event, error) {
	if step <= 0 {
		step = DefaultStep
	}
	if horizon < 0 {
		return nil, fmt.Errorf("negative search horizon %s: %w", horizon, faults.ErrNoPass)
	}
	searched, capped := Coverage(horizon, step)
	n := int(searched/step) + 1

	look := func(t time.Time) sample {
		pos, err := src.PositionAt(t)
		if err != nil {
			return sample{at: t}
		}
		la := obs.Look(pos)
		if math.IsNaN(la.ElevationDeg) {
			return sample{at: t}
		}
		return sample{at: t, ok: true, look: la, pos: pos}
	}
	above := func(s sample) bool { return s.ok && s.look.ElevationDeg > 0 }

	i := 0
	var first sample
	for ; i < n; i++ {
		first = look(start.Add(time.Duration(i) * step))
		if above(first) {
			break
		}
	}
	if i == n {
		if capped {
			return nil, fmt.Errorf("no pass within %s of %s (%s requested, %d sample cap): %w",
				searched, start.UTC().Format(time.RFC3339), horizon, MaxSamples, faults.ErrNoPass)
		}
		return nil, fmt.Errorf("no pass within %s of %s: %w", horizon, start.UTC().Format(time.RFC3339), faults.ErrNoPass)
	}

	best, last := first, first
	for i++; i < n; i++ {
		s := look(start.Add(time.Duration(i) * step))
		if !above(s) {
			break
		}
		if s.look.ElevationDeg > best.look.ElevationDeg {
			best = s
		}
		last = s
	}

	g := transform.ECEFToGeodetic(best.pos)
	return &Event{
		Time:            best.at.UTC(),
		LatDeg:          g.LatDeg,
		LonDeg:          g.LonDeg,
		AltKm:           g.AltKm,
		MaxElevationDeg: best.look.ElevationDeg,
		AzimuthDeg:      best.look.AzimuthDeg,
		Start:           first.at.UTC(),
		End:             last.at.UTC(),
	}, nil
}

// Request is one satellite's pass search.
type Request struct {
	NORADID int
	Source  PositionSource
}

// Result is the outcome of one Request.
type Result struct {
	NORADID int
	Event   *Event
	Err     error
}

// Predict runs NextPass for every request, each in its own goroutine bounded
// by a semaphore of the given width (NumCPU when < 1). Results keep the
// request order.
func Predict(ctx context.Context, reqs []Request, obs transform.Observer, start time.Time, horizon, step time.Duration, workers int) []Result {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	results := make([]Result, len(reqs))
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, r Request) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[idx] = Result{NORADID: r.NORADID, Err: err}
				return
			}
			defer sem.Release(1)

			ev, err := NextPass(r.Source, obs, start, horizon, step)
			results[idx] = Result{NORADID: r.NORADID, Event: ev, Err: err}
		}(i, req)
	}

	wg.Wait()
	return results
}
