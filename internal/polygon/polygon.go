package polygon

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"mapcore.psimaps.org/internal/geo"
	"mapcore.psimaps.org/internal/models"
)

// EventKind identifies a polygon mutation.
type EventKind int

const (
	VertexAppended EventKind = iota
	Cleared
)

func (k EventKind) String() string {
	switch k {
	case VertexAppended:
		return "vertex_appended"
	case Cleared:
		return "cleared"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to subscribers after every mutation.
type Event struct {
	Kind     EventKind
	Vertices int
	Closed   bool
}

// Filter is a user-drawn polygon built one click at a time.
//
// Vertices are append-only; interior vertices cannot be edited or removed.
// While fewer than three vertices exist the polygon is open and matches nothing.
// From three on, membership tests treat the ring as closed last→first.
//
// Filter does not lock. Callers that share one across goroutines serialize access.
type Filter struct {
	vertices    []models.GeoPoint
	subscribers []func(Event)
}

// New returns an empty polygon.
func New() *Filter {
	return &Filter{}
}

// Subscribe registers fn for every subsequent mutation. Listeners run synchronously
// in registration order.
func (f *Filter) Subscribe(fn func(Event)) {
	f.subscribers = append(f.subscribers, fn)
}

func (f *Filter) emit(kind EventKind) {
	ev := Event{Kind: kind, Vertices: len(f.vertices), Closed: f.IsClosed()}
	for _, fn := range f.subscribers {
		fn(ev)
	}
}

// Append adds a vertex. Consecutive duplicates are kept.
// A non-finite or out-of-range point returns geo.ErrInvalidInput and leaves the polygon unchanged.
func (f *Filter) Append(p models.GeoPoint) error {
	if !geo.InRange(p.Lat, p.Lon) {
		return fmt.Errorf("polygon vertex (%v, %v): %w", p.Lat, p.Lon, geo.ErrInvalidInput)
	}
	f.vertices = append(f.vertices, p)
	f.emit(VertexAppended)
	return nil
}

// Clear removes every vertex.
func (f *Filter) Clear() {
	f.vertices = nil
	f.emit(Cleared)
}

// Len returns the vertex count.
func (f *Filter) Len() int {
	return len(f.vertices)
}

func (f *Filter) IsClosed() bool {
	return len(f.vertices) >= 3
}

// Vertices returns a copy of the vertices in click order.
func (f *Filter) Vertices() []models.GeoPoint {
	return append([]models.GeoPoint(nil), f.vertices...)
}

// Ring returns the polygon as a closed orb.Ring (X = lon, Y = lat), or nil while open.
func (f *Filter) Ring() orb.Ring {
	if !f.IsClosed() {
		return nil
	}
	ring := make(orb.Ring, 0, len(f.vertices)+1)
	for _, v := range f.vertices {
		ring = append(ring, orb.Point{v.Lon, v.Lat})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

// Contains reports whether p lies inside the closed polygon. Points on an edge count as inside.
// Always false while the polygon has fewer than three vertices.
func (f *Filter) Contains(p models.GeoPoint) bool {
	ring := f.Ring()
	if ring == nil {
		return false
	}
	return contains(ring, p)
}

func contains(ring orb.Ring, p models.GeoPoint) bool {
	if !geo.InRange(p.Lat, p.Lon) {
		return false
	}
	return planar.RingContains(ring, orb.Point{p.Lon, p.Lat})
}

// FilterRecords keeps the valid records inside the polygon, in input order.
// An open polygon yields an empty, non-nil slice.
func (f *Filter) FilterRecords(records []models.GeoRecord) []models.GeoRecord {
	out := []models.GeoRecord{}
	ring := f.Ring()
	if ring == nil {
		return out
	}
	for _, r := range records {
		if geo.IsValid(r.GeoPoint) && contains(ring, r.GeoPoint) {
			out = append(out, r)
		}
	}
	return out
}
