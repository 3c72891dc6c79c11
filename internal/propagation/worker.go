package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/tle"
)

type subpointJob struct {
	index int
	set   tle.ElementSet
}

type subpointResult struct {
	index int
	point SubPoint
	err   error
}

// WorkerPool runs sub-point computations on a fixed number of goroutines.
type WorkerPool struct {
	workers int
	source  *Propagator
	logger  *slog.Logger
}

// NewWorkerPool creates a pool that obtains SGP4 states from source.
func NewWorkerPool(workers int, source *Propagator, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{workers: workers, source: source, logger: logger}
}

// SubpointBatch computes a sub-point for every set at t. It returns the
// successful placements in input order and the number of failures.
// Cancellation stops feeding new jobs; sets never processed count as failed.
func (wp *WorkerPool) SubpointBatch(ctx context.Context, sets []tle.ElementSet, t time.Time) ([]Placement, int) {
	if len(sets) == 0 {
		return nil, 0
	}

	jobs := make(chan subpointJob, wp.workers*2)
	results := make(chan subpointResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				pt, err := wp.source.SubpointAt(job.set, t)
				select {
				case results <- subpointResult{index: job.index, point: pt, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, s := range sets {
			select {
			case jobs <- subpointJob{index: i, set: s}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	points := make([]*SubPoint, len(sets))
	for r := range results {
		if r.err != nil {
			wp.logger.Warn("sub-point computation failed",
				"norad_id", sets[r.index].NORADID,
				"error", r.err,
			)
			continue
		}
		pt := r.point
		points[r.index] = &pt
	}

	placed := make([]Placement, 0, len(sets))
	for i, pt := range points {
		if pt != nil {
			placed = append(placed, Placement{Elements: sets[i], Point: *pt})
		}
	}
	return placed, len(sets) - len(placed)
}
