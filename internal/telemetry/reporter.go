// Package telemetry forwards operational errors to an error-tracking sink.
package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter is the error-tracking sink used by services and the HTTP layer.
type Reporter interface {
	CaptureException(err error, tags map[string]string)
	CaptureMessage(msg string, tags map[string]string)
	Flush(ctx context.Context) bool
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) CaptureException(error, map[string]string) {}

func (NopReporter) CaptureMessage(string, map[string]string) {}

func (NopReporter) Flush(context.Context) bool { return true }

type SentryOptions struct {
	DSN         string
	Environment string
	Release     string
	// Transport replaces the HTTP transport; tests pass a recording one.
	Transport sentry.Transport
}

// SentryReporter reports through its own hub so it never touches the
// sentry-go global.
type SentryReporter struct {
	hub *sentry.Hub
}

func NewSentryReporter(opts SentryOptions) (*SentryReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		Transport:        opts.Transport,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, err
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

func (r *SentryReporter) CaptureMessage(msg string, tags map[string]string) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureMessage(msg)
	})
}

func (r *SentryReporter) Flush(ctx context.Context) bool {
	deadline, ok := ctx.Deadline()
	timeout := 2 * time.Second
	if ok {
		timeout = time.Until(deadline)
	}
	return r.hub.Flush(timeout)
}
