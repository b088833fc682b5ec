package tour

import (
	"fmt"
	"sort"

	"mapcore.psimaps.org/internal/geo"
	"mapcore.psimaps.org/internal/models"
)

// Group is one category's stop list in visiting order.
type Group struct {
	Key     string             `json:"key"`
	Members []models.GeoRecord `json:"members"`
}

// Ordering is the full traversal: groups by ascending key, members chained by proximity.
type Ordering struct {
	Groups []Group `json:"groups"`
}

// Empty reports whether the ordering has no members at all.
func (o Ordering) Empty() bool {
	for _, g := range o.Groups {
		if len(g.Members) > 0 {
			return false
		}
	}
	return true
}

// Len returns the number of members across all groups.
func (o Ordering) Len() int {
	n := 0
	for _, g := range o.Groups {
		n += len(g.Members)
	}
	return n
}

// Keys returns the group keys in traversal order.
func (o Ordering) Keys() []string {
	keys := make([]string, len(o.Groups))
	for i, g := range o.Groups {
		keys[i] = g.Key
	}
	return keys
}

// ValidateStart reports why a tour could not start at groupKey, or nil if it can.
func (o Ordering) ValidateStart(groupKey string) error {
	if o.Empty() {
		return fmt.Errorf("start %q: %w", groupKey, geo.ErrEmptyInput)
	}
	idx := o.indexOf(groupKey)
	if idx < 0 || len(o.Groups[idx].Members) == 0 {
		return fmt.Errorf("start: unknown tour group %q: %w", groupKey, geo.ErrInvalidInput)
	}
	return nil
}

func (o Ordering) indexOf(key string) int {
	for i, g := range o.Groups {
		if g.Key == key {
			return i
		}
	}
	return -1
}

// BuildOrdering partitions records by category and chains each category greedily
// from its first valid member to the nearest unvisited one. Distance ties go to the
// earlier record. Records with invalid coordinates follow the chain in input order.
// The result depends only on the input, so repeated calls are identical.
func BuildOrdering(records []models.GeoRecord) Ordering {
	byKey := make(map[string][]models.GeoRecord)
	var keys []string
	for _, r := range records {
		if _, ok := byKey[r.Category]; !ok {
			keys = append(keys, r.Category)
		}
		byKey[r.Category] = append(byKey[r.Category], r)
	}
	sort.Strings(keys)

	o := Ordering{Groups: make([]Group, 0, len(keys))}
	for _, k := range keys {
		o.Groups = append(o.Groups, Group{Key: k, Members: chain(byKey[k])})
	}
	return o
}

// tieKm is the distance below which two candidates count as equally near.
// s2 distances between mirror-image points differ in the last few bits.
const tieKm = 1e-9

func chain(members []models.GeoRecord) []models.GeoRecord {
	var valid, invalid []models.GeoRecord
	for _, m := range members {
		if geo.IsValid(m.GeoPoint) {
			valid = append(valid, m)
		} else {
			invalid = append(invalid, m)
		}
	}

	out := make([]models.GeoRecord, 0, len(members))
	if len(valid) > 0 {
		visited := make([]bool, len(valid))
		tail := 0
		visited[0] = true
		out = append(out, valid[0])

		for len(out) < len(valid) {
			next := -1
			best := 0.0
			for i, cand := range valid {
				if visited[i] {
					continue
				}
				d := geo.DistanceKm(valid[tail].GeoPoint, cand.GeoPoint)
				if next < 0 || d < best-tieKm {
					next, best = i, d
				}
			}
			visited[next] = true
			tail = next
			out = append(out, valid[next])
		}
	}
	return append(out, invalid...)
}
