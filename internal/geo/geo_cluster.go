package geo

import (
	"fmt"

	"github.com/golang/geo/s2"
	"mapcore.psimaps.org/internal/models"
)

const DensityCellLevel = 10 // S2 cell level with 7–10 km spatial resolution

// CellID generates a stable S2-based cell ID for a point at the given level.
// Used to bucket records for density reporting; callers skip invalid points.
func CellID(p models.GeoPoint, level int) string {
	ll := s2.LatLngFromDegrees(p.Lat, p.Lon)
	cellID := s2.CellIDFromLatLng(ll).Parent(level)
	return fmt.Sprintf("s2_%d", uint64(cellID))
}

// CellCounts counts valid records per S2 cell.
func CellCounts(records []models.GeoRecord, level int) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		if !IsValid(r.GeoPoint) {
			continue
		}
		counts[CellID(r.GeoPoint, level)]++
	}
	return counts
}
