package app

import (
	"io"
	"log/slog"
	"testing"

	"mapcore.psimaps.org/internal/catalog"
	"mapcore.psimaps.org/internal/config"
	"mapcore.psimaps.org/internal/middleware"
	"mapcore.psimaps.org/internal/models"
)

func testSnapshot() *models.Snapshot {
	return models.NewSnapshot([]models.GeoRecord{
		models.NewGeoRecord("m1", 1.0, 1.0, "Marina"),
		models.NewGeoRecord("m2", 1.1, 1.1, "Marina"),
		models.NewGeoRecord("h1", 3.0, 3.0, "Harbor"),
		models.NewGeoRecord("h2", 3.1, 3.2, "Harbor"),
		models.NewGeoRecord("school", 1.05, 1.02, "school"),
	}, []models.Presentation{
		{ID: "p1", Title: "Shortlist", RecordIDs: []string{"h2", "m1"}, IntervalSeconds: 2},
	})
}

// newTestApplication returns an Application with the test snapshot loaded and
// rate limiting disabled. Pass loaded=false for a not-yet-ready instance.
func newTestApplication(t *testing.T, loaded bool) *Application {
	t.Helper()

	cfg := config.NewConfig(4000, "testing")
	cfg.SnapshotFile = "testdata/records.json"
	cfg.RateLimit = 0
	cfg.NearbyCategories = []string{"school"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	app := &Application{
		Config:      cfg,
		Catalog:     catalog.New(cfg.CatalogOptions(), logger),
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Logger:      logger,
		Version:     "test-version",
	}
	if loaded {
		app.applySnapshot(testSnapshot())
	}
	return app
}
