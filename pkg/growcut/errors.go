package growcut

import "errors"

var (
	// ErrSizeMismatch indicates the reference and label grids disagree in size.
	ErrSizeMismatch = errors.New("growcut: reference and label grid dimensions differ")
	// ErrDeviceUnavailable indicates no compute device could be acquired.
	ErrDeviceUnavailable = errors.New("growcut: compute device unavailable")
	// ErrInvalidParameters indicates a run configuration that cannot be executed.
	ErrInvalidParameters = errors.New("growcut: invalid run parameters")
)
