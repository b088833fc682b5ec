package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"mapcore.psimaps.org/internal/models"
)

// OutlierOptions configures RejectOutliers.
type OutlierOptions struct {
	// Region, when set, is the plausible area (X = lon, Y = lat). Points outside
	// it are dropped before the median pass. Nil means no regional bound.
	Region *orb.Bound
}

// RejectOutliers drops points that would stretch a camera fit.
//
// Pass 1 drops invalid points and, if configured, points outside opts.Region.
// Pass 2 runs only when at least three points remain: it takes the median
// latitude and the median longitude independently and keeps a point only if
// it lies within radiusDeg of both medians. Input order is preserved.
//
// This is a robustness heuristic for geocoding errors, not a statistical test.
// An empty result is a valid answer.
func RejectOutliers(points []models.GeoPoint, radiusDeg float64, opts OutlierOptions) []models.GeoPoint {
	kept := make([]models.GeoPoint, 0, len(points))
	for _, p := range points {
		if !IsValid(p) {
			continue
		}
		if opts.Region != nil && !opts.Region.Contains(orb.Point{p.Lon, p.Lat}) {
			continue
		}
		kept = append(kept, p)
	}

	if len(kept) < 3 {
		return kept
	}

	lats := make([]float64, len(kept))
	lons := make([]float64, len(kept))
	for i, p := range kept {
		lats[i] = p.Lat
		lons[i] = p.Lon
	}
	medLat := median(lats)
	medLon := median(lons)

	out := kept[:0]
	for _, p := range kept {
		if math.Abs(p.Lat-medLat) > radiusDeg || math.Abs(p.Lon-medLon) > radiusDeg {
			continue
		}
		out = append(out, p)
	}
	return out
}

// median sorts values in place.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
