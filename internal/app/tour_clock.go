package app

import (
	"context"
	"time"

	"mapcore.psimaps.org/internal/tour"
)

// RunTourClock is the tour's tick source. Each tick goes through the catalog lock,
// so ticks and HTTP commands form one ordered timeline. Pause and stop take effect
// on the next tick.
func (app *Application) RunTourClock(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = tour.DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			app.Logger.Info("Stopping tour clock")
			return
		case <-ticker.C:
			if f, ok := app.Catalog.Tick(); ok {
				app.Logger.Debug("tour advanced", "group", f.GroupKey, "member_index", f.MemberIndex, "record_id", f.Record.ID)
			}
		}
	}
}
