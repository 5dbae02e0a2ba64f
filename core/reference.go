package core

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/skymodel/model"
)

// ZenithReference returns the phase reference pointing at the local zenith
// of an observer at longitude lonRad (east positive) and latitude latRad,
// at time t. The right ascension is the local sidereal angle
// (GMST + longitude), wrapped to [0, 2π).
func ZenithReference(t time.Time, lonRad, latRad float64) model.Reference {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)

	lst := math.Mod(gmst+lonRad, 2*math.Pi)
	if lst < 0 {
		lst += 2 * math.Pi
	}
	return model.Reference{RA: lst, Dec: latRad}
}
