package core

import (
	"fmt"
	"math"
)

// RotatePoints rigidly rotates a set of points centred on (0, 0) so that
// they are centred on (ra, dec) instead. Local east and north at the origin
// map onto local east and north at the new centre, so a tangent-plane shape
// drawn at the origin keeps its orientation. Points are updated in place.
func RotatePoints(lon, lat []float64, ra, dec float64) error {
	if err := sameLength(lon, lat); err != nil {
		return err
	}
	if !isFinite(ra) || !isFinite(dec) {
		return fmt.Errorf("%w: rotation target (%v, %v) is not finite", ErrInvalidArgument, ra, dec)
	}

	sinRA, cosRA := math.Sincos(ra)
	sinDec, cosDec := math.Sincos(dec)

	for i := range lon {
		if !isFinite(lon[i]) || !isFinite(lat[i]) {
			return fmt.Errorf("%w: point %d (%v, %v) is not finite", ErrInvalidArgument, i, lon[i], lat[i])
		}
		sinLat, cosLat := math.Sincos(lat[i])
		sinLon, cosLon := math.Sincos(lon[i])
		x := cosLat * cosLon
		y := cosLat * sinLon
		z := sinLat

		// Tilt about y by -dec: the x axis moves up to latitude dec.
		x, z = x*cosDec-z*sinDec, x*sinDec+z*cosDec

		// Spin about z by ra.
		x, y = x*cosRA-y*sinRA, x*sinRA+y*cosRA

		lat[i] = math.Asin(clampUnit(z))
		lon[i] = math.Atan2(y, x)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
