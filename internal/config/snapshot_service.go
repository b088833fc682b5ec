package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"mapcore.psimaps.org/internal/metrics"
	"mapcore.psimaps.org/internal/models"
	"mapcore.psimaps.org/internal/report"
	"mapcore.psimaps.org/internal/utils"
)

// SnapshotService loads record snapshots from the configured source.
type SnapshotService struct {
	Logger  *slog.Logger
	Client  *http.Client
	Config  *Config
	Backoff *BackoffStore
}

// NewSnapshotService creates a new SnapshotService instance with the provided logger and HTTP client.
func NewSnapshotService(logger *slog.Logger, client *http.Client, cfg *Config) *SnapshotService {
	return &SnapshotService{
		Logger:  logger,
		Client:  client,
		Config:  cfg,
		Backoff: NewBackoffStore(),
	}
}

// Load fetches one snapshot from the file or URL named in the config and
// records the outcome in the source status metrics.
func (ss *SnapshotService) Load(ctx context.Context) (*models.Snapshot, error) {
	source := ss.Config.Source()

	var (
		snapshot *models.Snapshot
		err      error
	)
	if ss.Config.SnapshotURL != "" {
		snapshot, err = loadSnapshotFromURL(ctx, ss.Client, ss.Config.SnapshotURL, ss.Config.SnapshotAuthUser, ss.Config.SnapshotAuthPass, ss.Config.MaxRetries)
	} else {
		snapshot, err = loadSnapshotFromFile(ss.Config.SnapshotFile)
	}

	if err != nil {
		metrics.SnapshotSourceStatus.WithLabelValues(source).Set(0)
		return nil, fmt.Errorf("failed to load snapshot from %s: %w", source, err)
	}

	metrics.SnapshotSourceStatus.WithLabelValues(source).Set(1)
	metrics.SnapshotLastLoaded.WithLabelValues(source).SetToCurrentTime()
	return snapshot, nil
}

// Refresh reloads the snapshot every interval and hands each successful load to apply.
//
// Failures are logged and reported to Sentry, and the source is put on backoff so a
// broken endpoint is not hammered every tick. The loop stops when ctx is canceled.
func (ss *SnapshotService) Refresh(ctx context.Context, interval time.Duration, apply func(*models.Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	source := ss.Config.Source()
	for {
		select {
		case <-ctx.Done():
			ss.Logger.Info("Stopping snapshot refresh routine")
			return
		case now := <-ticker.C:
			if ss.Backoff.ShouldSkip(source, now) {
				continue
			}

			snapshot, err := ss.Load(ctx)
			if err != nil {
				ss.Backoff.UpdateBackoff(source)
				next, _ := ss.Backoff.NextRetryAt(source)
				report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
					Tags:  utils.MakeMap("snapshot_source", source),
					Level: sentry.LevelError,
				})
				ss.Logger.Error("Failed to refresh record snapshot", "error", err, "next_retry_at", next)
				continue
			}

			ss.Backoff.ResetBackoff(source)
			apply(snapshot)
			ss.Logger.Info("Successfully refreshed record snapshot", "records", len(snapshot.Records))
		}
	}
}
