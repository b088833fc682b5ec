package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"mapcore.psimaps.org/internal/cluster"
	"mapcore.psimaps.org/internal/metrics"
	"mapcore.psimaps.org/internal/models"
	"mapcore.psimaps.org/internal/polygon"
	"mapcore.psimaps.org/internal/tour"
)

// ErrNotFound is returned for unknown record, presentation or community identifiers.
var ErrNotFound = errors.New("not found")

// Options configures a Catalog. Zero values fall back to the defaults of each package.
type Options struct {
	Cluster      cluster.Options
	TickInterval time.Duration
	ItemDuration time.Duration

	// OutlierRadiusDeg bounds camera framing around the median record.
	OutlierRadiusDeg float64
	Region           *orb.Bound

	NearbyCategories []string
	NearbyLimit      int
	RelatedLimit     int
}

func DefaultOptions() Options {
	return Options{
		Cluster:          cluster.DefaultOptions(),
		TickInterval:     tour.DefaultTickInterval,
		ItemDuration:     5 * time.Second,
		OutlierRadiusDeg: 1,
		NearbyLimit:      5,
		RelatedLimit:     6,
	}
}

// PolygonState is what the renderer needs to draw the lasso.
type PolygonState struct {
	Vertices []models.GeoPoint `json:"vertices"`
	Closed   bool              `json:"closed"`
}

// Catalog owns the current record snapshot and the engine state built from it:
// the cluster index, the polygon filter and the tour scheduler.
//
// A single mutex serializes every call, so HTTP handlers and the tour clock share
// one timeline. Cluster queries go through the same lock even though the index
// itself is safe to read during a rebuild.
type Catalog struct {
	mu     sync.Mutex
	opts   Options
	logger *slog.Logger

	records       []models.GeoRecord
	byID          map[string]int
	presentations map[string]models.Presentation

	index     *cluster.Index
	polygon   *polygon.Filter
	scheduler *tour.Scheduler

	lastFocus    *tour.Focus
	presentation string
}

// New returns a catalog with no records loaded. Its index is unbuilt until the
// first ReplaceRecords or ReplaceSnapshot.
func New(opts Options, logger *slog.Logger) *Catalog {
	d := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = d.TickInterval
	}
	if opts.ItemDuration <= 0 {
		opts.ItemDuration = d.ItemDuration
	}
	if opts.OutlierRadiusDeg <= 0 {
		opts.OutlierRadiusDeg = d.OutlierRadiusDeg
	}
	if opts.NearbyLimit <= 0 {
		opts.NearbyLimit = d.NearbyLimit
	}
	if opts.RelatedLimit <= 0 {
		opts.RelatedLimit = d.RelatedLimit
	}

	c := &Catalog{
		opts:          opts,
		logger:        logger,
		byID:          make(map[string]int),
		presentations: make(map[string]models.Presentation),
		index:         cluster.NewIndex(),
		polygon:       polygon.New(),
		scheduler:     tour.NewScheduler(tour.Options{TicksPerStep: opts.ticksPerStep()}),
	}

	c.polygon.Subscribe(c.onPolygonChange)
	c.scheduler.Subscribe(c.onFocus)
	return c
}

func (o Options) ticksPerStep() uint {
	return tour.TicksPerStep(o.ItemDuration, o.TickInterval)
}

// onPolygonChange runs under c.mu; polygon mutations only happen inside catalog methods.
func (c *Catalog) onPolygonChange(ev polygon.Event) {
	metrics.PolygonVertices.Set(float64(ev.Vertices))
	if c.scheduler.State().Running {
		c.logger.Info("polygon changed, stopping tour", "event", ev.Kind.String(), "vertices", ev.Vertices)
	}
	c.scheduler.Invalidate()
	c.presentation = ""
	metrics.TourRunning.Set(0)
}

func (c *Catalog) onFocus(f tour.Focus) {
	focus := f
	c.lastFocus = &focus
	metrics.TourFocusEvents.WithLabelValues(f.GroupKey).Inc()
}

// Ready reports whether a record set has been loaded.
func (c *Catalog) Ready() bool {
	return c.index.Built()
}

// ReplaceSnapshot installs a full snapshot: records and saved presentations.
func (c *Catalog) ReplaceSnapshot(s *models.Snapshot) cluster.BuildStats {
	c.mu.Lock()
	c.presentations = make(map[string]models.Presentation, len(s.Presentations))
	for _, p := range s.Presentations {
		c.presentations[p.ID] = p
	}
	c.mu.Unlock()

	return c.ReplaceRecords(s.Records)
}

// ReplaceRecords swaps in a new record set, rebuilds the cluster index and stops
// any tour, whose ordering no longer matches the candidates.
func (c *Catalog) ReplaceRecords(records []models.GeoRecord) cluster.BuildStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append([]models.GeoRecord(nil), records...)
	c.byID = make(map[string]int, len(c.records))
	for i, r := range c.records {
		c.byID[r.ID] = i
	}

	start := time.Now()
	stats := c.index.Rebuild(c.records, c.opts.Cluster)
	elapsed := time.Since(start)

	if c.scheduler.State().Running {
		c.logger.Info("record set replaced, stopping tour")
	}
	c.scheduler.Invalidate()
	c.presentation = ""

	metrics.IndexRebuilds.Inc()
	metrics.IndexRebuildDuration.Observe(elapsed.Seconds())
	metrics.IndexRecords.Set(float64(stats.Records))
	metrics.IndexRejectedRecords.Set(float64(stats.Rejected))
	metrics.IndexClusters.Set(float64(stats.Clusters))
	metrics.TourRunning.Set(0)
	metrics.ReportRecordDensity(c.records)

	c.logger.Info("cluster index rebuilt",
		"records", stats.Records,
		"rejected", stats.Rejected,
		"clusters", stats.Clusters,
		"generation", stats.Generation,
		"duration", elapsed,
	)
	return stats
}

// Records returns a copy of the current record set.
func (c *Catalog) Records() []models.GeoRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.GeoRecord(nil), c.records...)
}

func (c *Catalog) Record(id string) (models.GeoRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record(id)
}

func (c *Catalog) record(id string) (models.GeoRecord, error) {
	i, ok := c.byID[id]
	if !ok {
		return models.GeoRecord{}, fmt.Errorf("record %q: %w", id, ErrNotFound)
	}
	return c.records[i], nil
}

// Clusters returns the markers for a viewport. Panics with cluster.ErrNotBuilt
// before the first record set is loaded; check Ready first.
func (c *Catalog) Clusters(bounds orb.Bound, zoom float64) []cluster.ClusterNode {
	c.mu.Lock()
	defer c.mu.Unlock()

	nodes := c.index.Query(bounds, zoom)
	metrics.ClusterQueries.WithLabelValues(strconv.Itoa(queryLevel(zoom, c.index.Options().MaxZoom))).Inc()
	return nodes
}

func queryLevel(zoom float64, maxZoom int) int {
	switch {
	case !(zoom >= 0):
		return 0
	case zoom >= float64(maxZoom+1):
		return maxZoom + 1
	default:
		return int(zoom)
	}
}

func (c *Catalog) ExpansionZoom(id uint64, zoom float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.ExpansionZoom(id, zoom)
}

func (c *Catalog) Leaves(id uint64) ([]models.GeoRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Leaves(id)
}
