package multilateration

import "errors"

var (
	ErrInsufficientMeasurements = errors.New("multilateration: insufficient measurements")
	ErrRankDeficient            = errors.New("multilateration: rank deficient system")
	ErrNotPositiveDefinite      = errors.New("multilateration: normal matrix not positive definite")
	ErrNoConvergence            = errors.New("multilateration: refinement diverged")
)
