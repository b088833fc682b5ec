package geo

import (
	"math"
	"sort"

	"mapcore.psimaps.org/internal/models"
)

const (
	defaultNearbyLimit = 5

	// Straight-line distance is converted to a drive estimate at this average
	// speed plus a fixed overhead for parking and access roads.
	averageDriveSpeedKmh = 40.0
	driveOverheadMinutes = 2
)

// NearbyOptions configures RankNearby.
type NearbyOptions struct {
	// Categories fixes the output order and restricts the categories returned.
	// Empty means every category, in ascending key order.
	Categories []string
	// Limit caps the entries per category. Zero means 5.
	Limit int
}

// NearbyEntry is a candidate with its distance to the origin.
type NearbyEntry struct {
	Record       models.GeoRecord `json:"record"`
	DistanceKm   float64          `json:"distance_km"`
	DriveMinutes int              `json:"drive_minutes"`
}

// NearbyGroup is the nearest-first list for one category.
type NearbyGroup struct {
	Category string        `json:"category"`
	Entries  []NearbyEntry `json:"entries"`
}

// EstimateDriveMinutes converts a straight-line distance to a rough drive time.
func EstimateDriveMinutes(distanceKm float64) int {
	return int(math.Ceil(distanceKm/averageDriveSpeedKmh*60)) + driveOverheadMinutes
}

// RankNearby groups candidates by category and ranks each group by distance
// to origin. Invalid candidates and the origin record itself are skipped.
// Categories with no candidates are omitted.
func RankNearby(origin models.GeoRecord, candidates []models.GeoRecord, opts NearbyOptions) []NearbyGroup {
	if !IsValid(origin.GeoPoint) {
		return nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultNearbyLimit
	}

	ranked := rankByDistance(origin, candidates)

	byCategory := make(map[string][]NearbyEntry)
	for _, e := range ranked {
		if len(byCategory[e.Record.Category]) >= limit {
			continue
		}
		byCategory[e.Record.Category] = append(byCategory[e.Record.Category], e)
	}

	keys := opts.Categories
	if len(keys) == 0 {
		keys = make([]string, 0, len(byCategory))
		for k := range byCategory {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	groups := make([]NearbyGroup, 0, len(keys))
	for _, k := range keys {
		entries, ok := byCategory[k]
		if !ok {
			continue
		}
		groups = append(groups, NearbyGroup{Category: k, Entries: entries})
	}
	return groups
}

// RelatedRecords returns the nearest records sharing current's category and the
// nearest records of any other category, at most limit each.
func RelatedRecords(current models.GeoRecord, all []models.GeoRecord, limit int) (same, other []NearbyEntry) {
	if !IsValid(current.GeoPoint) {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultNearbyLimit
	}
	for _, e := range rankByDistance(current, all) {
		if e.Record.Category == current.Category {
			if len(same) < limit {
				same = append(same, e)
			}
		} else if len(other) < limit {
			other = append(other, e)
		}
	}
	return same, other
}

func rankByDistance(origin models.GeoRecord, candidates []models.GeoRecord) []NearbyEntry {
	ranked := make([]NearbyEntry, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == origin.ID || !IsValid(c.GeoPoint) {
			continue
		}
		d := DistanceKm(origin.GeoPoint, c.GeoPoint)
		ranked = append(ranked, NearbyEntry{
			Record:       c,
			DistanceKm:   d,
			DriveMinutes: EstimateDriveMinutes(d),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})
	return ranked
}
