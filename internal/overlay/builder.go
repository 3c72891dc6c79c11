package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/catalog"
	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/gehiggins/RescueDecisionSystems/internal/footprint"
	"github.com/gehiggins/RescueDecisionSystems/internal/groundtrack"
	"github.com/gehiggins/RescueDecisionSystems/internal/metrics"
	"github.com/gehiggins/RescueDecisionSystems/internal/passes"
	"github.com/gehiggins/RescueDecisionSystems/internal/propagation"
	"github.com/gehiggins/RescueDecisionSystems/internal/tle"
	"github.com/gehiggins/RescueDecisionSystems/internal/transform"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/gehiggins/RescueDecisionSystems/internal/overlay")

// outageStreak is how many candidate lookups in a row may fail with a
// network error before the rest of the pool is abandoned for this build.
const outageStreak = 3

// ElementSource supplies orbital elements; *tle.Provider satisfies it.
type ElementSource interface {
	FetchByCatalogNumber(ctx context.Context, noradID int) (tle.ElementSet, error)
	FetchByGroup(ctx context.Context, group string) ([]tle.ElementSet, error)
}

// Builder produces overlay tables from a loaded catalog. A Builder holds no
// per-alert state; concurrent builds share only the element source's cache
// and the propagator's initialised states.
type Builder struct {
	records  []catalog.Record
	aliases  map[string]string
	elements ElementSource
	prop     *propagation.Propagator
	logger   *slog.Logger
}

// NewBuilder wires a Builder.
func NewBuilder(records []catalog.Record, aliases map[string]string, elements ElementSource, prop *propagation.Propagator, logger *slog.Logger) *Builder {
	if aliases == nil {
		aliases = map[string]string{}
	}
	return &Builder{
		records:  records,
		aliases:  aliases,
		elements: elements,
		prop:     prop,
		logger:   logger,
	}
}

// candidate is a catalog member placed at the alert time.
type candidate struct {
	rec  catalog.Record
	es   tle.ElementSet
	pt   propagation.SubPoint
	dist float64 // km to position A; NaN without A
}

// Build assembles the overlay table for one alert. Per-satellite failures
// are logged and skipped; only an invalid context or an empty catalog is an
// error. The result may be empty.
func (b *Builder) Build(ctx context.Context, c Context, opt Options) ([]Row, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "overlay.Build")
	defer span.End()

	if err := c.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid context")
		return nil, err
	}
	if len(b.records) == 0 {
		err := fmt.Errorf("no catalog records: %w", faults.ErrCatalogUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog unavailable")
		return nil, err
	}

	opt = opt.normalised()
	members := catalog.Filter(b.records, opt.Types...)
	span.SetAttributes(
		attribute.String("overlay.alert_time", c.AlertTime.UTC().Format(time.RFC3339)),
		attribute.String("overlay.sat_hint", c.SatHint),
		attribute.Int("overlay.members", len(members)),
	)

	taken := make(map[int]bool)
	var reported, fallback, nearby, upcoming []Row

	rec, resolved := b.resolve(c, members)
	if resolved {
		if rec.HasNORAD() {
			taken[rec.NORADID] = true
		}
		if opt.UseOrbitalData {
			if row, ok := b.reportedRow(ctx, c, rec, opt); ok {
				reported = append(reported, row)
				taken[row.NORADID] = true
			}
		}
	}

	wantFallback := !resolved && opt.AllowFallback
	wantNearby := c.A != nil && opt.IncludeNearby
	wantUpcoming := c.A != nil && opt.IncludeUpcoming

	if opt.UseOrbitalData && (wantFallback || wantNearby || wantUpcoming) {
		pool := b.candidates(ctx, c, members, taken, opt)

		if wantFallback {
			fallback = b.fallbackRows(c, pool, taken, opt)
		}
		if wantNearby {
			nearby = b.nearbyRows(c, pool, taken, opt)
		}
		if wantUpcoming {
			upcoming = b.upcomingRows(ctx, c, pool, taken, opt)
		}
	}

	rows := make([]Row, 0, len(reported)+len(fallback)+len(nearby)+len(upcoming))
	rows = append(rows, reported...)
	rows = append(rows, fallback...)
	rows = append(rows, nearby...)
	rows = append(rows, upcoming...)
	rows = b.finish(c, rows)

	for role, n := range CountByRole(rows) {
		metrics.RecordRows(string(role), n)
		span.SetAttributes(attribute.Int("overlay.rows."+string(role), n))
	}
	metrics.ObserveBuild(time.Since(start))

	b.logger.Info("overlay built",
		"alert_time", c.AlertTime.UTC().Format(time.RFC3339),
		"sat_hint", c.SatHint,
		"resolved", resolved,
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rows, nil
}

// resolve picks the reporting satellite. A catalog-number override always
// wins; an override unknown to the catalog yields a synthetic record.
func (b *Builder) resolve(c Context, members []catalog.Record) (catalog.Record, bool) {
	if id := c.NORADOverride; id > 0 {
		if rec, ok := catalog.ByNORAD(b.records, id); ok {
			return rec, true
		}
		b.logger.Info("catalog number override not in catalog; using synthetic record", "norad_id", id)
		return catalog.Record{
			Type:              catalog.Unknown,
			Constellation:     catalog.Unknown,
			Designator:        strconv.Itoa(id),
			CommonName:        catalog.Unknown,
			NORADID:           id,
			IntlDesignator:    catalog.Unknown,
			NominalAltKm:      math.NaN(),
			FootprintRadiusKm: math.NaN(),
			IsActive:          true,
		}, true
	}

	rec, kind, err := catalog.Resolve(c.SatHint, members, b.aliases)
	if err != nil {
		if strings.TrimSpace(c.SatHint) != "" {
			b.logger.Info("reporting satellite not resolved", "sat_hint", c.SatHint, "kind", faults.KindOf(err))
		}
		return catalog.Record{}, false
	}
	if matches := catalog.Candidates(c.SatHint, members, b.aliases); len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Record.DisplayName()
		}
		b.logger.Warn("ambiguous satellite hint; taking first match",
			"sat_hint", c.SatHint,
			"chosen", rec.DisplayName(),
			"match_kind", kind,
			"candidates", names,
		)
	}
	return rec, true
}

func (b *Builder) reportedRow(ctx context.Context, c Context, rec catalog.Record, opt Options) (Row, bool) {
	ctx, span := tracer.Start(ctx, "overlay.reported")
	defer span.End()
	span.SetAttributes(attribute.Int("norad_id", rec.NORADID))

	es, err := b.elementsFor(ctx, rec)
	if err != nil {
		span.RecordError(err)
		b.skip(rec, RoleReported, err)
		return Row{}, false
	}
	sp, err := b.prop.For(es)
	if err != nil {
		span.RecordError(err)
		b.skip(rec, RoleReported, err)
		return Row{}, false
	}
	pt, err := sp.SubpointAt(c.AlertTime)
	if err != nil {
		span.RecordError(err)
		b.skip(rec, RoleReported, err)
		return Row{}, false
	}

	row := newRow(c, candidate{rec: rec, es: es, pt: pt}, RoleReported)
	row.setTrack(groundtrack.ShortTrack(sp, c.AlertTime, opt.TrackForward.Minutes(), opt.TrackStep))

	if c.A != nil {
		obs := transform.NewObserver(c.A.LatDeg, c.A.LonDeg, 0)
		ev, err := passes.NextPass(sp, obs, c.AlertTime, opt.PassHorizon, opt.PassStep)
		if err != nil {
			b.logger.Debug("reporting satellite has no pass in horizon", "norad_id", es.NORADID, "error", err)
		} else {
			row.NextPass = ev
		}
	}
	return row, true
}

// elementsFor fetches by catalog number, or by inferred group for
// constellation-style identities without one.
func (b *Builder) elementsFor(ctx context.Context, rec catalog.Record) (tle.ElementSet, error) {
	if rec.HasNORAD() {
		return b.elements.FetchByCatalogNumber(ctx, rec.NORADID)
	}

	group := tle.InferGroup(rec.Designator, rec.Constellation)
	if group == "" {
		return tle.ElementSet{}, fmt.Errorf("%s has no catalog number or group: %w", rec.DisplayName(), faults.ErrNoResolution)
	}
	sets, err := b.elements.FetchByGroup(ctx, group)
	if err != nil {
		return tle.ElementSet{}, err
	}
	if es, ok := groupMember(sets, rec); ok {
		return es, nil
	}
	return tle.ElementSet{}, fmt.Errorf("%s not found in group %s: %w", rec.DisplayName(), group, faults.ErrNoResolution)
}

// groupMember finds rec in a group listing by common name, then designator.
func groupMember(sets []tle.ElementSet, rec catalog.Record) (tle.ElementSet, bool) {
	for _, key := range []string{rec.CommonName, rec.Designator} {
		if key == "" || key == catalog.Unknown {
			continue
		}
		k := strings.ToUpper(key)
		for _, es := range sets {
			if strings.Contains(strings.ToUpper(es.Name), k) {
				return es, true
			}
		}
	}
	return tle.ElementSet{}, false
}

// candidates places up to MaxCandidates untaken members with catalog numbers
// at the alert time.
func (b *Builder) candidates(ctx context.Context, c Context, members []catalog.Record, taken map[int]bool, opt Options) []candidate {
	ctx, span := tracer.Start(ctx, "overlay.candidates")
	defer span.End()

	byID := make(map[int]catalog.Record)
	var sets []tle.ElementSet
	failures := 0
	for _, rec := range members {
		if len(sets) >= opt.MaxCandidates || ctx.Err() != nil {
			break
		}
		if !rec.HasNORAD() || taken[rec.NORADID] {
			continue
		}
		if _, dup := byID[rec.NORADID]; dup {
			continue
		}
		byID[rec.NORADID] = rec

		es, err := b.elements.FetchByCatalogNumber(ctx, rec.NORADID)
		if err != nil {
			b.skip(rec, "candidate", err)
			if !errors.Is(err, faults.ErrNetworkFailure) {
				continue
			}
			failures++
			if failures >= outageStreak {
				b.logger.Warn("element source unreachable; skipping remaining candidates",
					"consecutive_failures", failures,
					"looked_up", len(byID),
				)
				span.AddEvent("candidate lookups abandoned")
				break
			}
			continue
		}
		failures = 0
		sets = append(sets, es)
	}

	placed := b.prop.SubpointBatch(ctx, sets, c.AlertTime)
	for i := len(placed); i < len(sets); i++ {
		metrics.RecordSkipped(string(faults.KindPropagation))
	}

	pool := make([]candidate, 0, len(placed))
	for _, p := range placed {
		cd := candidate{rec: byID[p.Elements.NORADID], es: p.Elements, pt: p.Point, dist: math.NaN()}
		if c.A != nil {
			cd.dist = transform.HaversineKm(c.A.LatDeg, c.A.LonDeg, p.Point.LatDeg, p.Point.LonDeg)
		}
		pool = append(pool, cd)
	}
	span.SetAttributes(attribute.Int("overlay.candidates", len(pool)))
	return pool
}

// sortByRise orders rows with a NextPass by rise time, soonest first; the
// peak time breaks ties.
func sortByRise(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		pi, pj := rows[i].NextPass, rows[j].NextPass
		if !pi.Start.Equal(pj.Start) {
			return pi.Start.Before(pj.Start)
		}
		return pi.Time.Before(pj.Time)
	})
}

// untaken returns pool members not yet in the table, nearest first when a
// position is known.
func untaken(pool []candidate, taken map[int]bool) []candidate {
	out := make([]candidate, 0, len(pool))
	for _, cd := range pool {
		if !taken[cd.es.NORADID] {
			out = append(out, cd)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if math.IsNaN(out[i].dist) || math.IsNaN(out[j].dist) {
			return false
		}
		return out[i].dist < out[j].dist
	})
	return out
}

func (b *Builder) fallbackRows(c Context, pool []candidate, taken map[int]bool, opt Options) []Row {
	var rows []Row
	for _, cd := range untaken(pool, taken) {
		if len(rows) >= opt.TopN {
			break
		}
		rows = append(rows, newRow(c, cd, RoleFallback))
		taken[cd.es.NORADID] = true
	}
	return rows
}

func (b *Builder) nearbyRows(c Context, pool []candidate, taken map[int]bool, opt Options) []Row {
	var rows []Row
	for _, cd := range untaken(pool, taken) {
		if len(rows) >= opt.TopN {
			break
		}
		circle := footprint.Circle{
			LatDeg:   cd.pt.LatDeg,
			LonDeg:   cd.pt.LonDeg,
			RadiusKm: footprint.Radius(cd.rec.FootprintRadiusKm, cd.pt.AltKm),
		}
		if !circle.Contains(c.A.LatDeg, c.A.LonDeg) {
			continue
		}
		rows = append(rows, newRow(c, cd, RoleNearby))
		taken[cd.es.NORADID] = true
	}
	return rows
}

func (b *Builder) upcomingRows(ctx context.Context, c Context, pool []candidate, taken map[int]bool, opt Options) []Row {
	ctx, span := tracer.Start(ctx, "overlay.upcoming")
	defer span.End()

	var (
		reqs  []passes.Request
		cands []candidate
	)
	for _, cd := range untaken(pool, taken) {
		sp, err := b.prop.For(cd.es)
		if err != nil {
			b.skip(cd.rec, RoleUpcoming, err)
			continue
		}
		reqs = append(reqs, passes.Request{NORADID: cd.es.NORADID, Source: sp})
		cands = append(cands, cd)
	}

	searched, capped := passes.Coverage(opt.PassHorizon, opt.PassStep)
	if capped {
		b.logger.Warn("pass search shortened by sample cap",
			"requested", opt.PassHorizon.String(),
			"searched", searched.String(),
			"step", opt.PassStep.String(),
		)
	}

	obs := transform.NewObserver(c.A.LatDeg, c.A.LonDeg, 0)
	results := passes.Predict(ctx, reqs, obs, c.AlertTime, opt.PassHorizon, opt.PassStep, opt.PassWorkers)

	var rows []Row
	for i, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, faults.ErrNoPass) {
				b.logger.Debug("no pass within horizon", "norad_id", r.NORADID, "horizon", searched.String())
				continue
			}
			b.skip(cands[i].rec, RoleUpcoming, r.Err)
			continue
		}
		row := newRow(c, cands[i], RoleUpcoming)
		row.NextPass = r.Event
		rows = append(rows, row)
	}
	sortByRise(rows)
	if len(rows) > opt.TopN {
		rows = rows[:opt.TopN]
	}
	for _, r := range rows {
		taken[r.NORADID] = true
	}
	span.SetAttributes(attribute.Int("overlay.searched", len(reqs)), attribute.Int("overlay.found", len(rows)))
	return rows
}

// finish fills footprints, marks A/B visibility, writes summaries and drops
// rows without a usable position.
func (b *Builder) finish(c Context, rows []Row) []Row {
	ptrs := make([]*Row, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	footprint.Annotate(ptrs)

	out := rows[:0]
	for _, r := range rows {
		if !r.usable() {
			b.logger.Warn("dropping row without usable position", "norad_id", r.NORADID, "role", r.Role)
			metrics.RecordSkipped("unusable_position")
			continue
		}
		r.VisibleFor = visibleFor(r, c)
		r.Summary = Summary(r)
		out = append(out, r)
	}
	return out
}

func visibleFor(r Row, c Context) string {
	circle := footprint.Circle{LatDeg: r.LatDeg, LonDeg: r.LonDeg, RadiusKm: r.RadiusKm}
	var s string
	if c.A != nil && circle.Contains(c.A.LatDeg, c.A.LonDeg) {
		s += "A"
	}
	if c.B != nil && circle.Contains(c.B.LatDeg, c.B.LonDeg) {
		s += "B"
	}
	return s
}

func newRow(c Context, cd candidate, role Role) Row {
	r := Row{
		SatName:       displayName(cd.rec, cd.es),
		NORADID:       cd.es.NORADID,
		Type:          cd.rec.Type,
		Constellation: cd.rec.Constellation,
		Designator:    cd.rec.Designator,
		AtTime:        c.AlertTime.UTC(),
		LatDeg:        cd.pt.LatDeg,
		LonDeg:        cd.pt.LonDeg,
		AltKm:         cd.pt.AltKm,
		RadiusKm:      cd.rec.FootprintRadiusKm,
		TLEEpoch:      cd.es.Epoch.UTC(),
		TLEAgeHours:   cd.es.AgeHours(c.AlertTime),
		Source:        cd.es.Source,
		CacheHit:      cd.es.CacheHit,
		Role:          role,
	}
	if c.A != nil {
		d := transform.HaversineKm(c.A.LatDeg, c.A.LonDeg, cd.pt.LatDeg, cd.pt.LonDeg)
		r.DistanceKm = &d
	}
	return r
}

func displayName(rec catalog.Record, es tle.ElementSet) string {
	if n := rec.CommonName; n != "" && n != catalog.Unknown {
		return n
	}
	if es.Name != "" {
		return es.Name
	}
	return rec.DisplayName()
}

func (b *Builder) skip(rec catalog.Record, stage any, err error) {
	kind := faults.KindOf(err)
	metrics.RecordSkipped(string(kind))
	b.logger.Warn("satellite skipped",
		"norad_id", rec.NORADID,
		"name", rec.DisplayName(),
		"stage", fmt.Sprint(stage),
		"kind", kind,
		"error", err,
	)
}
