//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"mapcore.psimaps.org/internal/config"
	"mapcore.psimaps.org/internal/models"
)

const defaultSnapshotPath = "../../testdata/records.json"

// loadIntegrationSnapshot goes through the same loader the server uses, so a
// snapshot that passes here will also load in production.
func loadIntegrationSnapshot(ctx context.Context, file, url string) (*models.Snapshot, error) {
	cfg := config.NewConfig(0, "testing")
	cfg.SnapshotFile = file
	cfg.SnapshotURL = url
	if url != "" {
		cfg.SnapshotFile = ""
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return config.NewSnapshotService(logger, http.DefaultClient, cfg).Load(ctx)
}
