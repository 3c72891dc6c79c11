// Package faults defines the error kinds shared by the overlay components.
//
// Components wrap one of the sentinel errors with fmt.Errorf("...: %w") so
// callers can branch with errors.Is and log or label by Kind.
package faults

import "errors"

// Kind categorises an error for log fields and metric labels.
type Kind string

const (
	KindCatalogUnavailable Kind = "catalog-unavailable"
	KindNetwork            Kind = "network"
	KindPropagation        Kind = "propagation"
	KindNoResolution       Kind = "no-resolution"
	KindNoPass             Kind = "no-pass"
	KindInvalidContext     Kind = "invalid-context"
	KindGeneric            Kind = "generic"
)

var (
	// ErrCatalogUnavailable means no reference catalog could be produced.
	ErrCatalogUnavailable = errors.New("satellite catalog unavailable")
	// ErrNetworkFailure means every endpoint and retry was exhausted.
	ErrNetworkFailure = errors.New("orbital element fetch failed")
	// ErrPropagation means SGP4 could not produce a usable position.
	ErrPropagation = errors.New("propagation failed")
	// ErrNoResolution means a satellite hint matched nothing in the catalog.
	ErrNoResolution = errors.New("satellite hint not resolved")
	// ErrNoPass means no above-horizon interval exists in the search window.
	ErrNoPass = errors.New("no pass found")
	// ErrInvalidContext means the observation context cannot be used.
	ErrInvalidContext = errors.New("invalid observation context")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrCatalogUnavailable, KindCatalogUnavailable},
	{ErrNetworkFailure, KindNetwork},
	{ErrPropagation, KindPropagation},
	{ErrNoResolution, KindNoResolution},
	{ErrNoPass, KindNoPass},
	{ErrInvalidContext, KindInvalidContext},
}

// KindOf maps err to its Kind. nil yields "" and unknown errors KindGeneric.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindGeneric
}

// Fatal reports whether err aborts an overlay build instead of being
// recovered at the satellite level.
func Fatal(err error) bool {
	switch KindOf(err) {
	case KindCatalogUnavailable, KindInvalidContext:
		return true
	}
	return false
}
