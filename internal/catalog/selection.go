package catalog

import (
	"fmt"

	"mapcore.psimaps.org/internal/geo"
	"mapcore.psimaps.org/internal/metrics"
	"mapcore.psimaps.org/internal/models"
	"mapcore.psimaps.org/internal/polygon"
)

// AppendVertex forwards a lasso click to the polygon.
func (c *Catalog) AppendVertex(p models.GeoPoint) (PolygonState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.polygon.Append(p); err != nil {
		return c.polygonState(), err
	}
	return c.polygonState(), nil
}

func (c *Catalog) ClearPolygon() PolygonState {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.polygon.Clear()
	metrics.PolygonMatches.Set(0)
	return c.polygonState()
}

func (c *Catalog) PolygonState() PolygonState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polygonState()
}

func (c *Catalog) polygonState() PolygonState {
	return PolygonState{Vertices: c.polygon.Vertices(), Closed: c.polygon.IsClosed()}
}

// FilteredRecords returns the records inside the closed polygon. Zero matches,
// including an open polygon, is reported as an empty slice; choosing a fallback
// view is up to the caller.
func (c *Catalog) FilteredRecords() []models.GeoRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.polygon.FilterRecords(c.records)
	metrics.PolygonMatches.Set(float64(len(out)))
	return out
}

// candidates are the records a tour or camera fit works on: the polygon
// selection while the polygon is closed, every record otherwise.
func (c *Catalog) candidates() []models.GeoRecord {
	if c.polygon.IsClosed() {
		return c.polygon.FilterRecords(c.records)
	}
	return c.records
}

// FitCamera frames the current candidates, ignoring geocoding outliers.
func (c *Catalog) FitCamera() (geo.BoundingBox, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	points := geo.RecordPoints(c.candidates())
	return polygon.FitBounds(points, c.opts.OutlierRadiusDeg, geo.OutlierOptions{Region: c.opts.Region})
}

// Nearby ranks landmark records around a record, grouped by category.
func (c *Catalog) Nearby(recordID string) ([]geo.NearbyGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	origin, err := c.record(recordID)
	if err != nil {
		return nil, err
	}
	if !geo.IsValid(origin.GeoPoint) {
		return nil, fmt.Errorf("record %q has no location: %w", recordID, geo.ErrInvalidInput)
	}
	return geo.RankNearby(origin, c.records, geo.NearbyOptions{
		Categories: c.opts.NearbyCategories,
		Limit:      c.opts.NearbyLimit,
	}), nil
}

// Related returns the nearest records in the same community and in others.
func (c *Catalog) Related(recordID string) (same, other []geo.NearbyEntry, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.record(recordID)
	if err != nil {
		return nil, nil, err
	}
	same, other = geo.RelatedRecords(current, c.records, c.opts.RelatedLimit)
	return same, other, nil
}

// CommunityCentroid is where the camera flies when a community is picked.
func (c *Catalog) CommunityCentroid(category string) (models.GeoPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var points []models.GeoPoint
	for _, r := range c.records {
		if r.Category == category {
			points = append(points, r.GeoPoint)
		}
	}
	if len(points) == 0 {
		return models.GeoPoint{}, fmt.Errorf("community %q: %w", category, ErrNotFound)
	}

	centroid, err := geo.Centroid(points)
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("community %q: %w", category, err)
	}
	centroid.ID = category
	return centroid, nil
}
