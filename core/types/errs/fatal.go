package errs

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryDSN, if non-empty, is used to lazily initialize the Sentry client
// the first time Abort is called. Set by cmd/quids from config/env before
// serving.
var SentryDSN string

var sentryInitialized bool

// Abort reports a Fatal-kind error to Sentry (if configured), flushes it,
// and terminates the process after the given cleanup runs. Per §7, Fatal
// errors are assertion-like: they indicate an invariant violation inside
// the core and are never retried.
func Abort(err error, cleanup func()) {
	qe := &QuidsError{Kind: Fatal, Err: err}

	if SentryDSN != "" {
		if !sentryInitialized {
			_ = sentry.Init(sentry.ClientOptions{Dsn: SentryDSN})
			sentryInitialized = true
		}
		sentry.CaptureException(qe)
		sentry.Flush(2 * time.Second)
	}

	if cleanup != nil {
		cleanup()
	}

	fmt.Fprintf(os.Stderr, "FATAL: %v\n", qe)
	os.Exit(1)
}
