package polygon

import (
	"fmt"

	"mapcore.psimaps.org/internal/geo"
	"mapcore.psimaps.org/internal/models"
)

// FitBounds frames the camera around points, ignoring geocoding outliers.
// If rejection leaves nothing, every valid point is framed instead.
func FitBounds(points []models.GeoPoint, radiusDeg float64, opts geo.OutlierOptions) (geo.BoundingBox, error) {
	kept := geo.RejectOutliers(points, radiusDeg, opts)
	if len(kept) == 0 {
		kept = geo.ValidPoints(points)
	}
	if len(kept) == 0 {
		return geo.BoundingBox{}, fmt.Errorf("fit bounds: no valid points: %w", geo.ErrEmptyInput)
	}
	return geo.ComputeBoundingBox(kept)
}
