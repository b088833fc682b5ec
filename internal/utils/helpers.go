package utils

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// MakeMap creates and returns a map[string]string containing a single key-value pair.
func MakeMap(key, value string) map[string]string {
	return map[string]string{key: value}
}

// ParseBBox parses "west,south,east,north" in degrees into an orb.Bound
// (X = lon, Y = lat). West may exceed east for a viewport across the antimeridian.
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox must be west,south,east,north, got %q", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return orb.Bound{}, fmt.Errorf("bbox value %q is not a number", p)
		}
		v[i] = f
	}

	west, south, east, north := v[0], v[1], v[2], v[3]
	if south > north {
		return orb.Bound{}, fmt.Errorf("bbox south %v is above north %v", south, north)
	}
	return orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}}, nil
}

// FloatParam reads a finite float query parameter, returning def when it is absent.
func FloatParam(q url.Values, name string, def float64) (float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a number, got %q", name, raw)
	}
	return f, nil
}
