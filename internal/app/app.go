package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"mapcore.psimaps.org/internal/catalog"
	"mapcore.psimaps.org/internal/config"
	"mapcore.psimaps.org/internal/middleware"
	"mapcore.psimaps.org/internal/models"
)

// Application wires the engine (via the catalog) to its snapshot source and the HTTP surface.
type Application struct {
	Config          *config.Config
	Catalog         *catalog.Catalog
	SnapshotService *config.SnapshotService
	RateLimiter     *middleware.RateLimiter
	Logger          *slog.Logger
	Version         string
}

// New creates and wires all dependencies for the Application.
func New(cfg *config.Config, logger *slog.Logger, client *http.Client, version string) *Application {
	return &Application{
		Config:          cfg,
		Catalog:         catalog.New(cfg.CatalogOptions(), logger),
		SnapshotService: config.NewSnapshotService(logger, client, cfg),
		RateLimiter:     middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Logger:          logger,
		Version:         version,
	}
}

// LoadSnapshot performs the initial load. Until it succeeds the catalog is not ready
// and the viewport endpoints answer 503.
func (app *Application) LoadSnapshot(ctx context.Context) error {
	snapshot, err := app.SnapshotService.Load(ctx)
	if err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}
	app.applySnapshot(snapshot)
	return nil
}

func (app *Application) applySnapshot(snapshot *models.Snapshot) {
	app.Catalog.ReplaceSnapshot(snapshot)
}

// StartBackground launches the snapshot refresh, the tour clock and the rate
// limiter sweep. All of them stop when ctx is cancelled.
func (app *Application) StartBackground(ctx context.Context) {
	if app.Config.RefreshInterval > 0 {
		go app.SnapshotService.Refresh(ctx, app.Config.RefreshInterval, app.applySnapshot)
	}
	go app.RunTourClock(ctx, app.Config.TickInterval)
	go app.RateLimiter.Run(ctx)
}
