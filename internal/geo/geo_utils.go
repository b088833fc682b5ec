package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"mapcore.psimaps.org/internal/models"
)

// BoundingBox defines the corners of a lat/lon box
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Contains checks whether the given latitude and longitude are within the bounding box
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Bound converts the box to an orb.Bound (X = longitude, Y = latitude).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// Rect converts the box to a spherical s2.Rect.
func (b BoundingBox) Rect() s2.Rect {
	return s2.RectFromLatLng(s2.LatLngFromDegrees(b.MinLat, b.MinLon)).
		AddPoint(s2.LatLngFromDegrees(b.MaxLat, b.MaxLon))
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() models.GeoPoint {
	return models.GeoPoint{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lon: (b.MinLon + b.MaxLon) / 2,
	}
}

// BoundingBoxFromBound is the inverse of Bound.
func BoundingBoxFromBound(b orb.Bound) BoundingBox {
	return BoundingBox{MinLon: b.Min.X(), MinLat: b.Min.Y(), MaxLon: b.Max.X(), MaxLat: b.Max.Y()}
}

// ComputeBoundingBox computes the bounding box of the given points.
// Points are not validated here; callers screen them with IsValid first.
// An empty slice is an ErrEmptyInput, never a zero box.
func ComputeBoundingBox(points []models.GeoPoint) (BoundingBox, error) {
	if len(points) == 0 {
		return BoundingBox{}, fmt.Errorf("compute bounding box: %w", ErrEmptyInput)
	}

	minLat := math.MaxFloat64
	maxLat := -math.MaxFloat64
	minLon := math.MaxFloat64
	maxLon := -math.MaxFloat64

	for _, p := range points {
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
		if p.Lon < minLon {
			minLon = p.Lon
		}
		if p.Lon > maxLon {
			maxLon = p.Lon
		}
	}

	return BoundingBox{
		MinLon: minLon,
		MinLat: minLat,
		MaxLon: maxLon,
		MaxLat: maxLat,
	}, nil
}

// IsValidLatLon returns true if the given latitude and longitude values
// fall within the valid geographic coordinate bounds.
//
// Latitude must be between -90 and 90 degrees, and longitude must be
// between -180 and 180 degrees. NaN fails both comparisons and is rejected.
//
// Note: This function treats the coordinate (0,0) as invalid, even though it
// is a valid location in the Gulf of Guinea. The data source uses (0,0) for
// listings that were never geocoded.
func IsValidLatLon(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return InRange(lat, lon)
}

// InRange reports whether lat and lon are finite and inside the coordinate bounds.
// Unlike IsValidLatLon it accepts (0,0); a polygon vertex drawn there is a real click.
func InRange(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// IsValid reports whether p can be indexed, filtered and ordered by distance.
func IsValid(p models.GeoPoint) bool {
	return IsValidLatLon(p.Lat, p.Lon)
}

// earthRadiusKm represents the mean radius of the Earth in kilometers.
//
// This value (6,371 km) is defined as the Earth's volumetric mean radius,
// which is commonly used for general geospatial calculations and spherical approximations.
//
// Reference: NASA Planetary Fact Sheet – Earth
// https://nssdc.gsfc.nasa.gov/planetary/factsheet/earthfact.html
const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between a and b in kilometers.
// Inputs are not validated; NaN or infinite coordinates yield NaN.
func DistanceKm(a, b models.GeoPoint) float64 {
	if !finite(a.Lat) || !finite(a.Lon) || !finite(b.Lat) || !finite(b.Lon) {
		return math.NaN()
	}
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lon)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return angleKm(p1.Distance(p2))
}

func angleKm(a s1.Angle) float64 {
	return a.Radians() * earthRadiusKm
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Centroid returns the arithmetic mean of the valid points.
// Used to fly the camera to a city or community.
func Centroid(points []models.GeoPoint) (models.GeoPoint, error) {
	var sumLat, sumLon float64
	n := 0
	for _, p := range points {
		if !IsValid(p) {
			continue
		}
		sumLat += p.Lat
		sumLon += p.Lon
		n++
	}
	if n == 0 {
		return models.GeoPoint{}, fmt.Errorf("centroid: %w", ErrEmptyInput)
	}
	return models.GeoPoint{Lat: sumLat / float64(n), Lon: sumLon / float64(n)}, nil
}

// ValidPoints returns the valid points in input order.
func ValidPoints(points []models.GeoPoint) []models.GeoPoint {
	out := make([]models.GeoPoint, 0, len(points))
	for _, p := range points {
		if IsValid(p) {
			out = append(out, p)
		}
	}
	return out
}

// RecordPoints extracts the location of each record.
func RecordPoints(records []models.GeoRecord) []models.GeoPoint {
	out := make([]models.GeoPoint, len(records))
	for i, r := range records {
		out[i] = r.GeoPoint
	}
	return out
}
