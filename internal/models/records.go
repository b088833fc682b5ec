package models

import (
	"encoding/json"
	"time"
)

// GeoPoint is a single geo-tagged location.
// The coordinate (0,0) is treated as "unset" rather than a point in the Gulf of Guinea.
type GeoPoint struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoRecord is a GeoPoint plus the grouping key used by tours (e.g. a community name)
// and an opaque payload the engine never inspects.
//
// Records are immutable once loaded. A new snapshot from the data source replaces
// the whole set; nothing in this module patches a record in place.
type GeoRecord struct {
	GeoPoint
	Category string          `json:"category"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// NewGeoRecord builds a record without payload.
func NewGeoRecord(id string, lat, lon float64, category string) GeoRecord {
	return GeoRecord{
		GeoPoint: GeoPoint{ID: id, Lat: lat, Lon: lon},
		Category: category,
	}
}

// Point returns the record's location.
func (r GeoRecord) Point() GeoPoint {
	return r.GeoPoint
}

// Presentation is a saved client presentation: an explicit list of records
// toured at a fixed per-item interval.
type Presentation struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	RecordIDs       []string  `json:"record_ids"`
	IntervalSeconds int       `json:"interval_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// Snapshot is the full record set delivered by the data source.
type Snapshot struct {
	Records       []GeoRecord    `json:"records"`
	Presentations []Presentation `json:"presentations,omitempty"`
}

// NewSnapshot copies the given slices so later mutation by the caller
// cannot leak into a loaded snapshot.
func NewSnapshot(records []GeoRecord, presentations []Presentation) *Snapshot {
	return &Snapshot{
		Records:       append([]GeoRecord(nil), records...),
		Presentations: append([]Presentation(nil), presentations...),
	}
}
