package propagation

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/metrics"
	"github.com/gehiggins/RescueDecisionSystems/internal/tle"
)

// Propagator hands out initialised SGP4 states for element sets and
// computes sub-points. Initialised states are kept for the life of the
// Propagator, keyed by catalog number and element text, so repeated track
// and pass computations for one satellite initialise SGP4 once.
type Propagator struct {
	pool   *WorkerPool
	logger *slog.Logger

	mu    sync.RWMutex
	props map[string]*SGP4Propagator
}

// NewPropagator creates a Propagator.
func NewPropagator(cfg Config, logger *slog.Logger) *Propagator {
	p := &Propagator{
		logger: logger,
		props:  make(map[string]*SGP4Propagator),
	}
	p.pool = NewWorkerPool(clampWorkers(cfg.Workers), p, logger)
	return p
}

func propKey(es tle.ElementSet) string {
	h := fnv.New64a()
	h.Write([]byte(es.Line1))
	h.Write([]byte(es.Line2))
	return fmt.Sprintf("%d:%x", es.NORADID, h.Sum64())
}

// For returns the SGP4 state for es, initialising it on first use
// (double-checked under the lock).
func (p *Propagator) For(es tle.ElementSet) (*SGP4Propagator, error) {
	key := propKey(es)

	p.mu.RLock()
	sp, ok := p.props[key]
	p.mu.RUnlock()
	if ok {
		return sp, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if sp, ok := p.props[key]; ok {
		return sp, nil
	}

	sp, err := NewSGP4Propagator(es.Line1, es.Line2, es.NORADID)
	if err != nil {
		return nil, err
	}
	p.props[key] = sp
	return sp, nil
}

// SubpointAt computes the sub-satellite point for es at t.
func (p *Propagator) SubpointAt(es tle.ElementSet, t time.Time) (SubPoint, error) {
	sp, err := p.For(es)
	if err != nil {
		return SubPoint{}, err
	}
	return sp.SubpointAt(t)
}

// SubpointBatch computes sub-points for many element sets at one time using
// the worker pool. Failed sets are logged and omitted; the output keeps the
// input order.
func (p *Propagator) SubpointBatch(ctx context.Context, sets []tle.ElementSet, t time.Time) []Placement {
	start := time.Now()
	placed, failed := p.pool.SubpointBatch(ctx, sets, t)
	metrics.RecordPropagation(len(placed), failed)

	p.logger.Debug("sub-point batch complete",
		"requested", len(sets),
		"placed", len(placed),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return placed
}
