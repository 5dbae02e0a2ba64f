package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/skymodel/model"
)

// ellipseBoundary samples n points of shape centred on (l0, m0), using the
// same parameterisation as the evaluator.
func ellipseBoundary(shape model.Ellipse, l0, m0 float64, n int) ([]float64, []float64) {
	l := make([]float64, n)
	m := make([]float64, n)
	sinPA, cosPA := math.Sincos(shape.PositionAngle)
	for j := 0; j < n; j++ {
		sinT, cosT := math.Sincos(2 * math.Pi * float64(j) / float64(n))
		l[j] = l0 + shape.Major/2*cosT*sinPA + shape.Minor/2*sinT*cosPA
		m[j] = m0 + shape.Major/2*cosT*cosPA - shape.Minor/2*sinT*sinPA
	}
	return l, m
}

// angleDiffModPi returns the distance between two orientations, which are
// only defined modulo π.
func angleDiffModPi(a, b float64) float64 {
	return math.Abs(math.Remainder(a-b, math.Pi))
}

func TestFitEllipse_RecoversShape(t *testing.T) {
	const deg = math.Pi / 180
	const arcsec = deg / 3600

	cases := []struct {
		name   string
		shape  model.Ellipse
		l0, m0 float64
		points int
	}{
		{"axis aligned", model.Ellipse{Major: 2 * deg, Minor: 1 * deg, PositionAngle: 0}, 0, 0, 6},
		{"rotated", model.Ellipse{Major: 1 * deg, Minor: 0.3 * deg, PositionAngle: 35 * deg}, 0, 0, 6},
		{"offset centre", model.Ellipse{Major: 0.5 * deg, Minor: 0.4 * deg, PositionAngle: 120 * deg}, 0.2, -0.1, 6},
		{"arcsecond scale", model.Ellipse{Major: 20 * arcsec, Minor: 5 * arcsec, PositionAngle: 80 * deg}, 0.01, 0.02, 6},
		{"dense sampling", model.Ellipse{Major: 3 * deg, Minor: 2 * deg, PositionAngle: 170 * deg}, 0, 0, 36},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, m := ellipseBoundary(tc.shape, tc.l0, tc.m0, tc.points)

			got, err := FitEllipse(l, m)
			require.NoError(t, err)

			assert.InEpsilon(t, tc.shape.Major, got.Major, 1e-9)
			assert.InEpsilon(t, tc.shape.Minor, got.Minor, 1e-9)
			assert.Less(t, angleDiffModPi(tc.shape.PositionAngle, got.PositionAngle), 1e-9)
			assert.GreaterOrEqual(t, got.PositionAngle, 0.0)
			assert.Less(t, got.PositionAngle, math.Pi)
		})
	}
}

func TestFitEllipse_Circle(t *testing.T) {
	l, m := ellipseBoundary(model.Ellipse{Major: 0.02, Minor: 0.02}, 0, 0, 6)

	got, err := FitEllipse(l, m)
	require.NoError(t, err)

	assert.InEpsilon(t, 0.02, got.Major, 1e-9)
	assert.InEpsilon(t, 0.02, got.Minor, 1e-9)
}

func TestFitEllipse_CollinearSamplesFail(t *testing.T) {
	l := []float64{0, 0, 0, 0, 0, 0}
	m := []float64{0.01, 0.005, -0.005, -0.01, -0.005, 0.005}

	_, err := FitEllipse(l, m)
	assert.ErrorIs(t, err, ErrEllipseFitFailed)
}

func TestFitEllipse_CoincidentSamplesFail(t *testing.T) {
	l := []float64{0.1, 0.1, 0.1, 0.1, 0.1}
	m := []float64{0.2, 0.2, 0.2, 0.2, 0.2}

	_, err := FitEllipse(l, m)
	assert.ErrorIs(t, err, ErrEllipseFitFailed)
}

func TestFitEllipse_HyperbolaFails(t *testing.T) {
	c1, s1 := math.Cosh(1), math.Sinh(1)
	l := []float64{c1, 1, c1, -c1, -1, -c1}
	m := []float64{-s1, 0, s1, -s1, 0, s1}

	_, err := FitEllipse(l, m)
	assert.ErrorIs(t, err, ErrEllipseFitFailed)
}

func TestFitEllipse_InvalidInput(t *testing.T) {
	_, err := FitEllipse([]float64{1, 2, 3, 4}, []float64{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.NotErrorIs(t, err, ErrEllipseFitFailed)

	_, err = FitEllipse(make([]float64, 6), make([]float64, 5))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
