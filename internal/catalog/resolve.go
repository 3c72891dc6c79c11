package catalog

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
)

// MatchKind says how a hint matched a record.
type MatchKind string

const (
	MatchExact     MatchKind = "exact"
	MatchSubstring MatchKind = "substring"
	MatchAlias     MatchKind = "alias"
)

// Match is one resolution candidate.
type Match struct {
	Record Record
	Kind   MatchKind
}

// Filter keeps active records whose type is one of types. No types keeps
// every active record.
func Filter(records []Record, types ...string) []Record {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			want[t] = true
		}
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !r.IsActive {
			continue
		}
		if len(want) > 0 && !want[r.Type] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ByNORAD finds the record with the given catalog number.
func ByNORAD(records []Record, id int) (Record, bool) {
	if id <= 0 {
		return Record{}, false
	}
	for _, r := range records {
		if r.NORADID == id {
			return r, true
		}
	}
	return Record{}, false
}

// fold lower-cases s and drops spaces, hyphens and underscores, so
// "NOAA 19", "noaa-19" and "NOAA19" compare equal.
func fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '-' || r == '_' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func named(s string) bool { return s != "" && s != Unknown }

// Candidates ranks records against a free-text hint: exact name or
// designator matches first, then substring matches, then matches through the
// alias table (exact, then substring). Each record appears once, at its best
// kind, and catalog order is kept within a kind.
func Candidates(hint string, records []Record, aliases map[string]string) []Match {
	h := fold(strings.TrimSpace(hint))
	if h == "" {
		return nil
	}

	seen := make(map[int]bool, len(records))
	var out []Match
	add := func(kind MatchKind, pred func(Record) bool) {
		for i, r := range records {
			if seen[i] || !pred(r) {
				continue
			}
			seen[i] = true
			out = append(out, Match{Record: r, Kind: kind})
		}
	}

	add(MatchExact, func(r Record) bool {
		return (named(r.CommonName) && fold(r.CommonName) == h) ||
			(named(r.Designator) && fold(r.Designator) == h)
	})
	add(MatchSubstring, func(r Record) bool {
		return (named(r.CommonName) && strings.Contains(fold(r.CommonName), h)) ||
			(named(r.Designator) && strings.Contains(fold(r.Designator), h))
	})

	if name, ok := aliases[strings.ToUpper(strings.TrimSpace(hint))]; ok {
		n := fold(name)
		if n != "" {
			add(MatchAlias, func(r Record) bool {
				return named(r.CommonName) && fold(r.CommonName) == n
			})
			add(MatchAlias, func(r Record) bool {
				return named(r.CommonName) && strings.Contains(fold(r.CommonName), n)
			})
		}
	}
	return out
}

// Resolve returns the first candidate for hint. faults.ErrNoResolution is
// returned for an empty hint or when nothing matches.
func Resolve(hint string, records []Record, aliases map[string]string) (Record, MatchKind, error) {
	matches := Candidates(hint, records, aliases)
	if len(matches) == 0 {
		return Record{}, "", fmt.Errorf("satellite hint %q: %w", hint, faults.ErrNoResolution)
	}
	return matches[0].Record, matches[0].Kind, nil
}
