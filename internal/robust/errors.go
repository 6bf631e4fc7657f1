package robust

import "errors"

// Sentinel errors returned by the estimators. Context is added with %w, so
// callers should match them with errors.Is.
var (
	// ErrNotReady is returned by Estimate when inputs are missing or no
	// usable readings are left.
	ErrNotReady = errors.New("robust: estimator not ready")

	// ErrLocked is returned by Estimate and every setter while an estimation
	// is running, including calls made from listener callbacks.
	ErrLocked = errors.New("robust: estimator locked")

	// ErrInvalidArgument is returned for nil, empty or length-mismatched
	// inputs and out-of-range settings.
	ErrInvalidArgument = errors.New("robust: invalid argument")

	// ErrRobustEstimatorFailure is returned when the iteration budget is
	// exhausted without a hypothesis meeting the inlier requirement.
	ErrRobustEstimatorFailure = errors.New("robust: no valid hypothesis found")

	// ErrNumericalFailure is returned when the refined covariance cannot be
	// computed because the normal matrix is not positive definite.
	ErrNumericalFailure = errors.New("robust: numerical failure")
)
