package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"mapcore.psimaps.org/internal/models"
	"mapcore.psimaps.org/internal/report"
	"mapcore.psimaps.org/internal/utils"
)

// maxSnapshotBytes caps a snapshot body read from a remote source.
const maxSnapshotBytes = 64 << 20

// loadSnapshotFromFile reads a JSON record snapshot from disk.
//
// On error, it reports issues to Sentry and returns a descriptive error.
func loadSnapshotFromFile(filePath string) (*models.Snapshot, error) {
	// #nosec G304 -- the path comes from an operator-supplied flag
	data, err := os.ReadFile(filePath)
	if err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("file_path", filePath),
			Level: sentry.LevelError,
		})
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	snapshot, err := decodeSnapshot(data)
	if err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("file_path", filePath),
			Level: sentry.LevelError,
		})
		return nil, err
	}
	return snapshot, nil
}

// loadSnapshotFromURL fetches a JSON record snapshot from a remote HTTP(S) endpoint,
// using the provided client, optional basic authentication and retry backoff.
func loadSnapshotFromURL(ctx context.Context, client *http.Client, url, authUser, authPass string, maxRetries int) (*models.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("snapshot_url", url),
			Level: sentry.LevelError,
		})
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if authUser != "" && authPass != "" {
		req.SetBasicAuth(authUser, authPass)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := DoWithBackoff(ctx, client, req, maxRetries)
	if err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("snapshot_url", url),
			Level: sentry.LevelError,
		})
		return nil, fmt.Errorf("failed to fetch remote snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("remote snapshot returned status: %d", resp.StatusCode)
		report.ReportErrorWithSentryOptions(statusErr, report.SentryReportOptions{
			Tags:  utils.MakeMap("snapshot_url", url),
			Level: sentry.LevelError,
		})
		return nil, statusErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("snapshot_url", url),
			Level: sentry.LevelError,
		})
		return nil, fmt.Errorf("failed to read remote snapshot: %w", err)
	}

	snapshot, err := decodeSnapshot(data)
	if err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("snapshot_url", url),
			Level: sentry.LevelError,
		})
		return nil, err
	}
	return snapshot, nil
}

// decodeSnapshot accepts either a snapshot object or a bare array of records.
// Presentations without an ID get a random one so they can be started by ID.
func decodeSnapshot(data []byte) (*models.Snapshot, error) {
	var snapshot models.Snapshot

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &snapshot.Records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
		}
		return &snapshot, nil
	}

	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	for i := range snapshot.Presentations {
		if snapshot.Presentations[i].ID == "" {
			snapshot.Presentations[i].ID = uuid.NewString()
		}
	}
	return &snapshot, nil
}
