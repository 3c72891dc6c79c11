package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/gehiggins/RescueDecisionSystems/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultQueryURL  = "https://celestrak.org/NORAD/elements/gp.php"
	DefaultFilesURL  = "https://celestrak.org/NORAD/elements"
	defaultAttempts  = 3
	defaultRetryWait = time.Second
)

// groupFiles maps query group names to the legacy per-group text files
// served as alternate endpoints.
var groupFiles = map[string]string{
	"sarsat":  "sarsat",
	"noaa":    "noaa",
	"weather": "weather",
	"goes":    "goes",
	"gps-ops": "gps-ops",
	"galileo": "galileo",
	"glo-ops": "glo-ops",
	"beidou":  "beidou",
}

// Config controls endpoints, retries and the optional snapshot archive.
type Config struct {
	QueryURL       string        // gp.php-style endpoint taking CATNR/GROUP
	FilesURL       string        // base for <group>.txt alternates; empty disables them
	Mirrors        []string      // extra gp.php-style endpoints tried once each
	MaxAttempts    int           // attempts against QueryURL
	RetryDelay     time.Duration // attempt n waits n*RetryDelay before retrying
	AttemptTimeout time.Duration
	UserAgent      string
	SnapshotDir    string // empty disables archiving
	SnapshotKeep   int
}

// DefaultConfig returns CelesTrak endpoints with three attempts.
func DefaultConfig() Config {
	return Config{
		QueryURL:       DefaultQueryURL,
		FilesURL:       DefaultFilesURL,
		MaxAttempts:    defaultAttempts,
		RetryDelay:     defaultRetryWait,
		AttemptTimeout: 10 * time.Second,
		UserAgent:      defaultUserAgent,
		SnapshotKeep:   5,
	}
}

// Provider resolves catalog numbers and groups to element sets with retry,
// alternate endpoints, the injected in-run cache and an optional on-disk
// snapshot as last resort.
type Provider struct {
	cfg       Config
	fetcher   *Fetcher
	cache     *ElementCache
	snapshots *Snapshots
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// NewProvider wires a Provider. cache must not be nil.
func NewProvider(cfg Config, client *http.Client, cache *ElementCache, logger *slog.Logger) *Provider {
	if cfg.QueryURL == "" {
		cfg.QueryURL = DefaultQueryURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = defaultRetryWait
	}

	p := &Provider{
		cfg:     cfg,
		fetcher: NewFetcher(client, cfg.UserAgent, cfg.AttemptTimeout, logger),
		cache:   cache,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	if cfg.SnapshotDir != "" {
		p.snapshots = NewSnapshots(cfg.SnapshotDir, cfg.SnapshotKeep)
	}
	return p
}

// Cache returns the injected element cache.
func (p *Provider) Cache() *ElementCache {
	return p.cache
}

// FetchByCatalogNumber returns the element set for one NORAD catalog number.
func (p *Provider) FetchByCatalogNumber(ctx context.Context, noradID int) (ElementSet, error) {
	if noradID <= 0 {
		return ElementSet{}, fmt.Errorf("catalog number %d: %w", noradID, faults.ErrNetworkFailure)
	}

	key := CatalogKey(noradID)
	sets, err := p.cache.Do(key, func() ([]ElementSet, error) {
		q := url.Values{"CATNR": {strconv.Itoa(noradID)}, "FORMAT": {"TLE"}}
		return p.lookup(ctx, MethodCatalogNumber, key, q, "", func(s ElementSet) bool {
			return s.NORADID == noradID
		})
	})
	if err != nil {
		return ElementSet{}, err
	}
	for _, s := range sets {
		if s.NORADID == noradID {
			return s, nil
		}
	}
	return ElementSet{}, fmt.Errorf("catalog number %d missing from cached response: %w", noradID, faults.ErrNetworkFailure)
}

// FetchByGroup returns every element set in a named group such as
// "sarsat" or "galileo".
func (p *Provider) FetchByGroup(ctx context.Context, group string) ([]ElementSet, error) {
	group = strings.ToLower(strings.TrimSpace(group))
	if group == "" {
		return nil, fmt.Errorf("empty group: %w", faults.ErrNetworkFailure)
	}

	key := GroupKey(group)
	return p.cache.Do(key, func() ([]ElementSet, error) {
		q := url.Values{"GROUP": {group}, "FORMAT": {"TLE"}}
		return p.lookup(ctx, MethodGroup, key, q, group, nil)
	})
}

type endpoint struct {
	url  string
	tier string
}

// lookup walks primary (with retries), then alternates, then the snapshot.
// accept, when set, decides whether a parsed set satisfies the request.
func (p *Provider) lookup(ctx context.Context, method LookupMethod, key string, q url.Values, group string, accept func(ElementSet) bool) ([]ElementSet, error) {
	ctx, span := otel.Tracer("github.com/gehiggins/RescueDecisionSystems/internal/tle").Start(ctx, "tle.lookup")
	defer span.End()
	span.SetAttributes(attribute.String("tle.key", key), attribute.String("tle.method", string(method)))

	start := p.now()
	defer func() { metrics.ObserveFetch(string(method), p.now().Sub(start)) }()

	primary := p.cfg.QueryURL + "?" + q.Encode()
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		sets, err := p.try(ctx, method, key, endpoint{url: primary, tier: "primary"}, accept)
		if err == nil {
			span.SetAttributes(attribute.Int("tle.attempts", attempt))
			return sets, nil
		}
		lastErr = err
		p.logger.Warn("element fetch attempt failed",
			"lookup_key", key,
			"attempt", attempt,
			"max_attempts", p.cfg.MaxAttempts,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
		if attempt < p.cfg.MaxAttempts {
			if err := p.sleep(ctx, time.Duration(attempt)*p.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	if ctx.Err() == nil {
		for _, alt := range p.alternates(q, group) {
			sets, err := p.try(ctx, method, key, alt, accept)
			if err == nil {
				p.logger.Info("element fetch served by alternate endpoint", "lookup_key", key, "url", alt.url)
				return sets, nil
			}
			lastErr = err
			p.logger.Warn("alternate endpoint failed", "lookup_key", key, "url", alt.url, "error", err)
		}
	}

	if sets, ok := p.fromSnapshot(key, method, accept); ok {
		return sets, nil
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all endpoints failed")
	return nil, fmt.Errorf("%s: %w: %v", key, faults.ErrNetworkFailure, lastErr)
}

func (p *Provider) alternates(q url.Values, group string) []endpoint {
	var eps []endpoint
	for _, m := range p.cfg.Mirrors {
		if m = strings.TrimSpace(m); m != "" {
			eps = append(eps, endpoint{url: m + "?" + q.Encode(), tier: "alternate"})
		}
	}
	if group != "" && p.cfg.FilesURL != "" {
		if file, ok := groupFiles[group]; ok {
			eps = append(eps, endpoint{url: strings.TrimRight(p.cfg.FilesURL, "/") + "/" + file + ".txt", tier: "alternate"})
		}
	}
	return eps
}

func (p *Provider) try(ctx context.Context, method LookupMethod, key string, ep endpoint, accept func(ElementSet) bool) ([]ElementSet, error) {
	body, err := p.fetcher.Fetch(ctx, ep.url)
	if err != nil {
		metrics.RecordFetchAttempt(string(method), ep.tier, "failure")
		return nil, err
	}

	sets, err := p.parse(body, method, key, ep.url, accept)
	if err != nil {
		metrics.RecordFetchAttempt(string(method), ep.tier, "failure")
		return nil, err
	}
	metrics.RecordFetchAttempt(string(method), ep.tier, "success")

	if p.snapshots != nil {
		if err := p.snapshots.Write(key, body, p.now()); err != nil {
			p.logger.Warn("failed to archive element snapshot", "lookup_key", key, "error", err)
		}
	}
	return sets, nil
}

var errNoUsableSets = errors.New("response contained no usable element sets")

func (p *Provider) parse(body []byte, method LookupMethod, key, source string, accept func(ElementSet) bool) ([]ElementSet, error) {
	parsed, err := Parse(bytes.NewReader(body), p.logger)
	if err != nil {
		return nil, err
	}

	fetchedAt := p.now().UTC()
	sets := make([]ElementSet, 0, len(parsed))
	for _, s := range parsed {
		if accept != nil && !accept(s) {
			continue
		}
		s.Source = source
		s.Method = method
		s.Key = key
		s.FetchedAt = fetchedAt
		sets = append(sets, s)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%s: %w", source, errNoUsableSets)
	}
	return sets, nil
}

func (p *Provider) fromSnapshot(key string, method LookupMethod, accept func(ElementSet) bool) ([]ElementSet, bool) {
	if p.snapshots == nil {
		return nil, false
	}
	data, name, ts, err := p.snapshots.LoadLatest(key)
	if err != nil {
		p.logger.Debug("no snapshot available", "lookup_key", key, "error", err)
		return nil, false
	}
	sets, err := p.parse(data, method, key, "snapshot:"+name, accept)
	if err != nil {
		p.logger.Warn("snapshot unusable", "lookup_key", key, "file", name, "error", err)
		return nil, false
	}
	for i := range sets {
		sets[i].FetchedAt = ts
	}
	metrics.RecordFetchAttempt(string(method), "snapshot", "success")
	p.logger.Warn("serving elements from snapshot after fetch failure",
		"lookup_key", key,
		"file", name,
		"archived_at", ts.Format(time.RFC3339),
	)
	return sets, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InferGroup maps constellation-style designators to a query group:
// "E401" or constellation GALILEO -> "galileo", "G…"/GPS -> "gps-ops",
// "R…"/GLONASS -> "glo-ops", "C…"/BEIDOU -> "beidou", GOES -> "goes",
// LEOSAR/SARSAT -> "sarsat". Unknown identities yield "".
func InferGroup(designator, constellation string) string {
	switch c := strings.ToUpper(strings.TrimSpace(constellation)); {
	case strings.Contains(c, "GALILEO"):
		return "galileo"
	case strings.Contains(c, "GPS"):
		return "gps-ops"
	case strings.Contains(c, "GLONASS"):
		return "glo-ops"
	case strings.Contains(c, "BEIDOU"):
		return "beidou"
	case strings.Contains(c, "GOES"):
		return "goes"
	}

	d := strings.ToUpper(strings.TrimSpace(designator))
	if len(d) >= 2 && isDigits(d[1:]) {
		switch d[0] {
		case 'E':
			return "galileo"
		case 'G':
			return "gps-ops"
		case 'R':
			return "glo-ops"
		case 'C':
			return "beidou"
		}
	}
	if strings.HasPrefix(d, "GOES") {
		return "goes"
	}

	switch c := strings.ToUpper(strings.TrimSpace(constellation)); c {
	case "LEOSAR", "SARSAT":
		return "sarsat"
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
