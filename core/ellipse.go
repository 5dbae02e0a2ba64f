package core

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/skymodel/model"
)

// MinEllipsePoints is the smallest sample count that determines a conic.
const MinEllipsePoints = 5

// FitEllipse recovers the ellipse through the boundary samples (l[i], m[i])
// by a least-squares fit of the conic
//
//	a x² + b xy + c y² + d x + e y = 1
//
// in mean-centred, scale-normalised coordinates. The returned axes are full
// widths; the position angle is in [0, π), measured from +m towards +l.
//
// ErrEllipseFitFailed is returned when the samples admit no stable ellipse
// (collinear or coincident points, a parabola or hyperbola, or a singular
// system). Other errors indicate invalid input.
func FitEllipse(l, m []float64) (model.Ellipse, error) {
	if err := sameLength(l, m); err != nil {
		return model.Ellipse{}, err
	}
	n := len(l)
	if n < MinEllipsePoints {
		return model.Ellipse{}, fmt.Errorf("%w: ellipse fit needs at least %d points, got %d",
			ErrInvalidArgument, MinEllipsePoints, n)
	}

	var meanX, meanY float64
	for i := range l {
		meanX += l[i]
		meanY += m[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	scale := 0.0
	for i := range l {
		scale = math.Max(scale, math.Max(math.Abs(l[i]-meanX), math.Abs(m[i]-meanY)))
	}
	if scale == 0 || !isFinite(scale) {
		return model.Ellipse{}, fmt.Errorf("%w: samples are coincident or not finite", ErrEllipseFitFailed)
	}

	design := mat.NewDense(n, 5, nil)
	ones := mat.NewVecDense(n, nil)
	for i := range l {
		x := (l[i] - meanX) / scale
		y := (m[i] - meanY) / scale
		design.SetRow(i, []float64{x * x, x * y, y * y, x, y})
		ones.SetVec(i, 1)
	}

	var conic mat.VecDense
	if err := conic.SolveVec(design, ones); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return model.Ellipse{}, fmt.Errorf("%w: singular conic system: %v", ErrEllipseFitFailed, err)
		}
		return model.Ellipse{}, fmt.Errorf("solve conic: %w", err)
	}

	semiMajor, semiMinor, pa, err := conicAxes(
		conic.AtVec(0), conic.AtVec(1), conic.AtVec(2), conic.AtVec(3), conic.AtVec(4))
	if err != nil {
		return model.Ellipse{}, err
	}
	return model.Ellipse{
		Major:         2 * semiMajor * scale,
		Minor:         2 * semiMinor * scale,
		PositionAngle: pa,
	}, nil
}

// conicAxes returns the semi-axes and major-axis position angle of the
// ellipse a x² + b xy + c y² + d x + e y = 1.
func conicAxes(a, b, c, d, e float64) (semiMajor, semiMinor, pa float64, err error) {
	disc := 4*a*c - b*b
	if !(disc > 0) || !isFinite(disc) {
		return 0, 0, 0, fmt.Errorf("%w: conic is not an ellipse (discriminant %g)", ErrEllipseFitFailed, disc)
	}

	// Translate to the centre; what remains is uᵀMu = f.
	x0 := (b*e - 2*c*d) / disc
	y0 := (b*d - 2*a*e) / disc
	f := 1 - (d*x0+e*y0)/2

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(2, []float64{a, b / 2, b / 2, c}), true); !ok {
		return 0, 0, 0, fmt.Errorf("%w: eigen-decomposition did not converge", ErrEllipseFitFailed)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	s0, s1 := f/values[0], f/values[1]
	if !(s0 > 0) || !(s1 > 0) || !isFinite(s0) || !isFinite(s1) {
		return 0, 0, 0, fmt.Errorf("%w: conic is imaginary", ErrEllipseFitFailed)
	}

	major := 0
	semiMajor, semiMinor = math.Sqrt(s0), math.Sqrt(s1)
	if semiMinor > semiMajor {
		major = 1
		semiMajor, semiMinor = semiMinor, semiMajor
	}

	pa = math.Atan2(vectors.At(0, major), vectors.At(1, major))
	pa = math.Mod(pa, math.Pi)
	if pa < 0 {
		pa += math.Pi
	}
	return semiMajor, semiMinor, pa, nil
}
