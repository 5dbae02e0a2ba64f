package model

// Reference is the phase centre of the tangent plane, in radians.
type Reference struct {
	RA  float64
	Dec float64
}

// Ellipse is an elliptical shape given by full axis widths and the position
// angle of the major axis, measured from +m towards +l. All values in radians.
type Ellipse struct {
	Major         float64
	Minor         float64
	PositionAngle float64
}

// IsPoint reports whether both axes are exactly zero.
func (e Ellipse) IsPoint() bool {
	return e.Major == 0 && e.Minor == 0
}

// Source is one entry of a sky model.
type Source struct {
	ID string

	RA  float64 // radians
	Dec float64 // radians

	StokesI float64
	StokesQ float64
	StokesU float64
	StokesV float64

	ReferenceFrequencyHz float64
	SpectralIndex        float64

	// Shape on the sky, full width at half maximum, radians.
	MajorFWHM     float64
	MinorFWHM     float64
	PositionAngle float64

	// Quadratic-form coefficients in the tangent plane, valid when
	// HasGaussian is set.
	GaussianA   float64
	GaussianB   float64
	GaussianC   float64
	HasGaussian bool
}

// Shape returns the sky-plane ellipse of the source.
func (s *Source) Shape() Ellipse {
	return Ellipse{Major: s.MajorFWHM, Minor: s.MinorFWHM, PositionAngle: s.PositionAngle}
}
