package errors

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/beekyynd/taxi/pkg/logger"
)

// InitSentry initializes crash reporting for the client shell. An empty DSN
// leaves reporting disabled, which is the default for local development.
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		logger.Debug("sentry DSN not configured, crash reporting disabled")
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
}

// CaptureError reports an error with component and operation tags.
func CaptureError(err error, component, operation string) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("operation", operation)
		sentry.CaptureException(err)
	})
}

// CaptureMessage reports a non-error event worth tracking, such as a realtime
// listener that failed to establish.
func CaptureMessage(message, component string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		sentry.CaptureMessage(message)
	})
}

// Flush drains pending events before shutdown.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}
