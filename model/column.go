package model

// Precision identifies the floating-point width of a Column.
type Precision int

const (
	PrecisionDouble Precision = iota
	PrecisionSingle
)

func (p Precision) String() string {
	switch p {
	case PrecisionDouble:
		return "double"
	case PrecisionSingle:
		return "single"
	default:
		return "unknown"
	}
}

// Location identifies where a Column's data is resident.
type Location int

const (
	LocationHost   Location = iota
	LocationDevice          // accelerator memory, not addressable by the evaluator
)

func (l Location) String() string {
	switch l {
	case LocationHost:
		return "host"
	case LocationDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Column is a typed, location-tagged sequence of floating-point values.
// Exactly one of the backing slices is populated, matching Precision.
type Column struct {
	precision Precision
	location  Location

	f64 []float64
	f32 []float32
}

// Float64Column wraps v as a host-resident double-precision column. The slice
// is shared, not copied, so evaluator output is visible to the caller.
func Float64Column(v []float64) *Column {
	return &Column{precision: PrecisionDouble, location: LocationHost, f64: v}
}

// Float32Column wraps v as a host-resident single-precision column.
func Float32Column(v []float32) *Column {
	return &Column{precision: PrecisionSingle, location: LocationHost, f32: v}
}

// OnDevice returns a view of c tagged as device-resident.
func (c *Column) OnDevice() *Column {
	cp := *c
	cp.location = LocationDevice
	return &cp
}

// Len returns the number of elements in the column.
func (c *Column) Len() int {
	if c == nil {
		return 0
	}
	if c.precision == PrecisionSingle {
		return len(c.f32)
	}
	return len(c.f64)
}

func (c *Column) Precision() Precision { return c.precision }
func (c *Column) Location() Location   { return c.location }

// Float64 returns the backing slice of a double-precision column, or nil.
func (c *Column) Float64() []float64 {
	if c == nil || c.precision != PrecisionDouble {
		return nil
	}
	return c.f64
}

// Float32 returns the backing slice of a single-precision column, or nil.
func (c *Column) Float32() []float32 {
	if c == nil || c.precision != PrecisionSingle {
		return nil
	}
	return c.f32
}

// SourceBatch holds per-source sky parameters as parallel columns.
// All angles are in radians.
type SourceBatch struct {
	RA            *Column
	Dec           *Column
	MajorFWHM     *Column
	MinorFWHM     *Column
	PositionAngle *Column
}

// Columns returns the batch columns in a fixed order, for validation.
func (b SourceBatch) Columns() []NamedColumn {
	return []NamedColumn{
		{Name: "fwhm_major", Column: b.MajorFWHM},
		{Name: "fwhm_minor", Column: b.MinorFWHM},
		{Name: "position_angle", Column: b.PositionAngle},
		{Name: "ra", Column: b.RA},
		{Name: "dec", Column: b.Dec},
	}
}

// GaussianCoefficients holds the output columns of the quadratic form
// exp(-(a*l^2 + 2b*l*m + c*m^2)).
type GaussianCoefficients struct {
	A *Column
	B *Column
	C *Column
}

// Columns returns the coefficient columns in a fixed order, for validation.
func (g GaussianCoefficients) Columns() []NamedColumn {
	return []NamedColumn{
		{Name: "gaussian_a", Column: g.A},
		{Name: "gaussian_b", Column: g.B},
		{Name: "gaussian_c", Column: g.C},
	}
}

// NewGaussianCoefficients allocates zeroed double-precision output columns.
func NewGaussianCoefficients(n int) GaussianCoefficients {
	return GaussianCoefficients{
		A: Float64Column(make([]float64, n)),
		B: Float64Column(make([]float64, n)),
		C: Float64Column(make([]float64, n)),
	}
}

// NamedColumn pairs a column with the name used in error messages.
type NamedColumn struct {
	Name   string
	Column *Column
}
