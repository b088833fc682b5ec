package report

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// SetupSentry initializes the global Sentry client from SENTRY_DSN.
// An empty DSN leaves Sentry disabled; every report call becomes a no-op.
func SetupSentry(env, version string) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              os.Getenv("SENTRY_DSN"),
		Environment:      env,
		Release:          "mapcore@" + version,
		EnableTracing:    true,
		Debug:            env == "development",
		TracesSampleRate: tracesSampleRate(env),
	})
	if err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	sentry.CaptureMessage("mapcore started")
	return nil
}

func tracesSampleRate(env string) float64 {
	if env == "production" {
		return 0.2
	}
	return 1.0
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
