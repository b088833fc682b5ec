package metrics

import (
	"mapcore.psimaps.org/internal/geo"
	"mapcore.psimaps.org/internal/models"
)

// ReportRecordDensity groups the valid records into S2 cells at geo.DensityCellLevel
// and publishes one gauge per cell. Cells from the previous snapshot are dropped first
// so a replaced record set leaves no stale series behind.
func ReportRecordDensity(records []models.GeoRecord) {
	RecordDensity.Reset()
	for id, count := range geo.CellCounts(records, geo.DensityCellLevel) {
		RecordDensity.WithLabelValues(id).Set(float64(count))
	}
}
