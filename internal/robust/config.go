package robust

import "fmt"

// Default settings for a robust pass.
const (
	DefaultMethod                 = PROMedS
	DefaultConfidence             = 0.99
	DefaultMaxIterations          = 5000
	DefaultThresholdFactor        = 3.0
	DefaultStopThreshold          = 1e-5
	DefaultFallbackDistanceStdDev = 1e-3
	DefaultProgressDelta          = 0.05
)

// Config holds the settings of one robust pass over one reading-type family.
type Config struct {
	Method        Method  `yaml:"method"`
	Confidence    float64 `yaml:"confidence"`
	MaxIterations int     `yaml:"max_iterations"`

	// Threshold is the residual above which a sample is an outlier. Zero
	// derives a per-sample threshold of ThresholdFactor standard deviations.
	Threshold       float64 `yaml:"threshold"`
	ThresholdFactor float64 `yaml:"threshold_factor"`

	// StopThreshold ends LMedS and PROMedS runs once the median residual
	// falls below it.
	StopThreshold float64 `yaml:"stop_threshold"`

	// PreliminarySubsetSize is the number of samples per hypothesis.
	// Zero selects dimension+1.
	PreliminarySubsetSize int `yaml:"preliminary_subset_size"`

	UseLinearSolver            bool `yaml:"use_linear_solver"`
	Homogeneous                bool `yaml:"homogeneous"`
	RefinePreliminarySolutions bool `yaml:"refine_preliminary_solutions"`
	RefineResult               bool `yaml:"refine_result"`
	KeepCovariance             bool `yaml:"keep_covariance"`
	EvenlyDistributeReadings   bool `yaml:"evenly_distribute_readings"`

	UseSourcePositionCovariance bool    `yaml:"use_source_position_covariance"`
	FallbackDistanceStdDev      float64 `yaml:"fallback_distance_std_dev"`

	ProgressDelta float64 `yaml:"progress_delta"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Method:                      DefaultMethod,
		Confidence:                  DefaultConfidence,
		MaxIterations:               DefaultMaxIterations,
		ThresholdFactor:             DefaultThresholdFactor,
		StopThreshold:               DefaultStopThreshold,
		UseLinearSolver:             true,
		RefinePreliminarySolutions:  true,
		RefineResult:                true,
		KeepCovariance:              true,
		EvenlyDistributeReadings:    true,
		UseSourcePositionCovariance: true,
		FallbackDistanceStdDev:      DefaultFallbackDistanceStdDev,
		ProgressDelta:               DefaultProgressDelta,
	}
}

// subsetSize returns the effective preliminary subset size.
func (c Config) subsetSize(dimension int) int {
	if c.PreliminarySubsetSize == 0 {
		return dimension + 1
	}
	return c.PreliminarySubsetSize
}

// Validate checks the settings for a problem of the given dimension.
func (c Config) Validate(dimension int) error {
	switch {
	case !c.Method.valid():
		return fmt.Errorf("%w: unknown robust method %d", ErrInvalidArgument, int(c.Method))
	case c.Confidence <= 0 || c.Confidence >= 1:
		return fmt.Errorf("%w: confidence %v outside (0, 1)", ErrInvalidArgument, c.Confidence)
	case c.MaxIterations < 1:
		return fmt.Errorf("%w: max iterations %d", ErrInvalidArgument, c.MaxIterations)
	case c.Threshold < 0:
		return fmt.Errorf("%w: threshold %v", ErrInvalidArgument, c.Threshold)
	case c.Threshold == 0 && c.ThresholdFactor <= 0:
		return fmt.Errorf("%w: threshold factor %v", ErrInvalidArgument, c.ThresholdFactor)
	case c.StopThreshold < 0:
		return fmt.Errorf("%w: stop threshold %v", ErrInvalidArgument, c.StopThreshold)
	case c.PreliminarySubsetSize != 0 && c.PreliminarySubsetSize < dimension+1:
		return fmt.Errorf("%w: preliminary subset size %d below %d", ErrInvalidArgument, c.PreliminarySubsetSize, dimension+1)
	case c.FallbackDistanceStdDev <= 0:
		return fmt.Errorf("%w: fallback distance standard deviation %v", ErrInvalidArgument, c.FallbackDistanceStdDev)
	case c.ProgressDelta < 0 || c.ProgressDelta > 1:
		return fmt.Errorf("%w: progress delta %v outside [0, 1]", ErrInvalidArgument, c.ProgressDelta)
	}
	return nil
}
