package cluster

import "math"

// Web Mercator in unit space: x and y both run from 0 to 1, y grows southward.

func lonX(lon float64) float64 {
	return lon/360 + 0.5
}

func latY(lat float64) float64 {
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	if y < 0 {
		return 0
	}
	if y > 1 {
		return 1
	}
	return y
}

// wrapLon folds a longitude into [-180, 180].
func wrapLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	return math.Mod(math.Mod(lon+180, 360)+360, 360) - 180
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}
