package observability

import (
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/faults"
	"github.com/getsentry/sentry-go"
)

// ReportingConfig enables error reporting to Sentry. An empty DSN disables it.
type ReportingConfig struct {
	DSN         string
	Environment string
	Release     string
}

// ErrorReporter forwards command failures to Sentry. The zero value and a
// nil *ErrorReporter drop everything.
type ErrorReporter struct {
	hub *sentry.Hub
}

// NewErrorReporter builds a reporter on its own hub so it never touches the
// global Sentry client. transport may be nil; tests pass a recorder.
func NewErrorReporter(cfg ReportingConfig, transport sentry.Transport) (*ErrorReporter, error) {
	if cfg.DSN == "" && transport == nil {
		return &ErrorReporter{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		Transport:        transport,
		SampleRate:       1.0,
		AttachStacktrace: false,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.ServerName = ""
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		return nil, err
	}
	return &ErrorReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Enabled reports whether events are sent anywhere.
func (r *ErrorReporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// Capture sends err tagged with its fault kind and the given tags.
func (r *ErrorReporter) Capture(err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_kind", string(faults.KindOf(err)))
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits up to timeout for queued events.
func (r *ErrorReporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
