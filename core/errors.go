package core

import "errors"

var (
	// ErrInvalidArgument indicates a missing column or an out-of-domain argument.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDimensionMismatch indicates a column shorter than required, or
	// parallel slices of different lengths.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrBadDataType indicates columns of mixed numeric precision.
	ErrBadDataType = errors.New("bad data type")
	// ErrBadLocation indicates a column not resident in host memory.
	ErrBadLocation = errors.New("bad memory location")
	// ErrFunctionNotAvailable indicates a precision path that is not implemented.
	ErrFunctionNotAvailable = errors.New("function not available")
	// ErrEllipseFitFailed indicates that no stable ellipse fits the samples.
	// It is recoverable per source.
	ErrEllipseFitFailed = errors.New("ellipse fit failed")
)
