package tle

import (
	"strconv"
	"time"
)

// LookupMethod records how an element set was requested.
type LookupMethod string

const (
	MethodCatalogNumber LookupMethod = "catnr"
	MethodGroup         LookupMethod = "group"
)

// ElementSet is a parsed two-line element set plus where it came from.
type ElementSet struct {
	Name    string
	NORADID int
	Line1   string
	Line2   string
	Epoch   time.Time

	Source    string       // URL or "snapshot:<file>"
	Method    LookupMethod // empty for sets parsed outside the provider
	Key       string       // cache key the set was fetched under
	FetchedAt time.Time
	CacheHit  bool
}

// AgeHours is the age of the elements relative to at, in hours. Elements with
// an epoch after at yield a negative age.
func (e ElementSet) AgeHours(at time.Time) float64 {
	return at.Sub(e.Epoch).Hours()
}

// CatalogKey is the cache key for a catalog-number lookup.
func CatalogKey(noradID int) string {
	return "catnr:" + strconv.Itoa(noradID)
}

// GroupKey is the cache key for a group lookup.
func GroupKey(group string) string {
	return "group:" + group
}
