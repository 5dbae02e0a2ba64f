package core

import (
	"fmt"
	"math"
)

// SphToLM projects spherical coordinates onto the tangent plane centred on
// (refLon, refLat), writing direction cosines into l and m. The projection
// is orthographic (SIN), as used for interferometric imaging.
//
// All slices must have the same length.
func SphToLM(refLon, refLat float64, lon, lat, l, m []float64) error {
	if err := sameLength(lon, lat, l, m); err != nil {
		return err
	}
	sinLat0, cosLat0 := math.Sincos(refLat)
	for i := range lon {
		sinLat, cosLat := math.Sincos(lat[i])
		sinDLon, cosDLon := math.Sincos(lon[i] - refLon)
		l[i] = cosLat * sinDLon
		m[i] = cosLat0*sinLat - sinLat0*cosLat*cosDLon
	}
	return nil
}

// SphFromLM is the inverse of SphToLM. Points outside the unit circle are
// clamped onto the horizon.
func SphFromLM(refLon, refLat float64, l, m, lon, lat []float64) error {
	if err := sameLength(l, m, lon, lat); err != nil {
		return err
	}
	sinLat0, cosLat0 := math.Sincos(refLat)
	for i := range l {
		r2 := l[i]*l[i] + m[i]*m[i]
		n := 0.0
		if r2 < 1 {
			n = math.Sqrt(1 - r2)
		}
		lat[i] = math.Asin(clampUnit(n*sinLat0 + m[i]*cosLat0))
		lon[i] = refLon + math.Atan2(l[i], n*cosLat0-m[i]*sinLat0)
	}
	return nil
}

func sameLength(first []float64, rest ...[]float64) error {
	for _, s := range rest {
		if len(s) != len(first) {
			return fmt.Errorf("%w: slice lengths %d and %d differ", ErrDimensionMismatch, len(first), len(s))
		}
	}
	return nil
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	} else if v < -1 {
		return -1
	}
	return v
}
