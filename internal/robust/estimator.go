package robust

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"indoor-positioning/internal/common"
	"indoor-positioning/internal/logging"
	"indoor-positioning/internal/multilateration"
	"indoor-positioning/internal/radio"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Result is the outcome of a successful estimation. Inliers and Residuals
// are indexed like the readings given to the estimator; readings that did
// not take part are outliers with a NaN residual.
type Result struct {
	Position    common.Vector
	Covariance  *mat.SymDense // nil unless KeepCovariance and RefineResult are set
	Inliers     []bool
	Residuals   []float64
	InlierCount int
	Iterations  int
}

// Estimator runs one robust pass (RANSAC, LMedS, MSAC, PROSAC or PROMedS)
// over the readings of one kind.
type Estimator struct {
	kind      ReadingKind
	cfg       Config
	dimension int

	sources       []*radio.Source
	readings      []radio.Reading
	sourceScores  []float64
	readingScores []float64

	initialPosition common.Vector
	listener        Listener[*Estimator]
	src             rand.Source
	logger          *logging.Logger

	lock   lock
	result *Result
}

// NewEstimator validates its inputs and returns an idle estimator.
// Sources must number at least dimension+1 and share one dimension; every
// reading must carry a component of kind.
func NewEstimator(kind ReadingKind, sources []*radio.Source, readings []radio.Reading, cfg Config) (*Estimator, error) {
	if kind != RangingKind && kind != RssiKind {
		return nil, fmt.Errorf("%w: unknown reading kind %d", ErrInvalidArgument, int(kind))
	}
	dimension, err := validateSources(sources)
	if err != nil {
		return nil, err
	}
	if err := validateReadings(kind, readings); err != nil {
		return nil, err
	}
	if err := cfg.Validate(dimension); err != nil {
		return nil, err
	}
	return &Estimator{
		kind:      kind,
		cfg:       cfg,
		dimension: dimension,
		sources:   sources,
		readings:  readings,
		logger:    logging.Discard(),
	}, nil
}

func validateSources(sources []*radio.Source) (int, error) {
	if len(sources) == 0 {
		return 0, fmt.Errorf("%w: no sources", ErrInvalidArgument)
	}
	for i, s := range sources {
		if err := s.Validate(); err != nil {
			return 0, fmt.Errorf("%w: source %d: %v", ErrInvalidArgument, i, err)
		}
	}
	dimension := sources[0].Dimension()
	for i, s := range sources {
		if s.Dimension() != dimension {
			return 0, fmt.Errorf("%w: source %d has dimension %d, expected %d", ErrInvalidArgument, i, s.Dimension(), dimension)
		}
	}
	if len(sources) < dimension+1 {
		return 0, fmt.Errorf("%w: %d sources, need at least %d", ErrInvalidArgument, len(sources), dimension+1)
	}
	return dimension, nil
}

func validateReadings(kind ReadingKind, readings []radio.Reading) error {
	if len(readings) == 0 {
		return fmt.Errorf("%w: no readings", ErrInvalidArgument)
	}
	for i, r := range readings {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: reading %d: %v", ErrInvalidArgument, i, err)
		}
		if !kind.accepts(r) {
			return fmt.Errorf("%w: reading %d is %s, estimator works on %s", ErrInvalidArgument, i, r.Type, kind)
		}
	}
	return nil
}

// Kind returns the reading family the estimator works on.
func (e *Estimator) Kind() ReadingKind { return e.kind }

// Config returns a copy of the current settings.
func (e *Estimator) Config() Config { return e.cfg }

// Dimension returns the dimension of the estimated position.
func (e *Estimator) Dimension() int { return e.dimension }

// MinRequiredSources is the smallest number of sources that determines a position.
func (e *Estimator) MinRequiredSources() int { return e.dimension + 1 }

// PreliminarySubsetSize returns the effective number of samples per hypothesis.
func (e *Estimator) PreliminarySubsetSize() int { return e.cfg.subsetSize(e.dimension) }

func (e *Estimator) Sources() []*radio.Source       { return e.sources }
func (e *Estimator) Readings() []radio.Reading      { return e.readings }
func (e *Estimator) InitialPosition() common.Vector { return e.initialPosition.Clone() }

// QualityScores returns the source and reading quality scores, nil when unset.
func (e *Estimator) QualityScores() (sourceScores, readingScores []float64) {
	return e.sourceScores, e.readingScores
}

// State reports whether an estimation is running.
func (e *Estimator) State() State { return e.lock.state }

// IsLocked reports whether the estimator is Running.
func (e *Estimator) IsLocked() bool { return e.lock.state == Running }

// Result returns the last successful result, nil before the first one.
func (e *Estimator) Result() *Result { return e.result }

// IsReady reports whether Estimate has everything it needs.
func (e *Estimator) IsReady() bool {
	if len(e.sources) < e.MinRequiredSources() || len(e.readings) == 0 {
		return false
	}
	if e.cfg.Method.UsesQualityScores() {
		return len(e.sourceScores) == len(e.sources) && len(e.readingScores) == len(e.readings)
	}
	return true
}

// SetSources replaces the sources. They keep the estimator's dimension.
// When source quality scores are set, the new list must match their length.
func (e *Estimator) SetSources(sources []*radio.Source) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	dimension, err := validateSources(sources)
	if err != nil {
		return err
	}
	if dimension != e.dimension {
		return fmt.Errorf("%w: sources have dimension %d, estimator %d", ErrInvalidArgument, dimension, e.dimension)
	}
	if e.sourceScores != nil && len(e.sourceScores) != len(sources) {
		return fmt.Errorf("%w: %d sources for %d source quality scores", ErrInvalidArgument, len(sources), len(e.sourceScores))
	}
	e.sources = sources
	return nil
}

// SetReadings replaces the readings. When reading quality scores are set,
// the new list must match their length.
func (e *Estimator) SetReadings(readings []radio.Reading) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if err := validateReadings(e.kind, readings); err != nil {
		return err
	}
	if e.readingScores != nil && len(e.readingScores) != len(readings) {
		return fmt.Errorf("%w: %d readings for %d reading quality scores", ErrInvalidArgument, len(readings), len(e.readingScores))
	}
	e.readings = readings
	return nil
}

// SetQualityScores sets the scores positionally matching sources and
// readings. Passing two nil slices clears them.
func (e *Estimator) SetQualityScores(sourceScores, readingScores []float64) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if sourceScores == nil && readingScores == nil {
		e.sourceScores, e.readingScores = nil, nil
		return nil
	}
	if len(sourceScores) != len(e.sources) {
		return fmt.Errorf("%w: %d source quality scores for %d sources", ErrInvalidArgument, len(sourceScores), len(e.sources))
	}
	if len(readingScores) != len(e.readings) {
		return fmt.Errorf("%w: %d reading quality scores for %d readings", ErrInvalidArgument, len(readingScores), len(e.readings))
	}
	if err := checkScores(sourceScores, readingScores); err != nil {
		return err
	}
	e.sourceScores, e.readingScores = sourceScores, readingScores
	return nil
}

// SetConfig replaces every setting at once.
func (e *Estimator) SetConfig(cfg Config) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if err := cfg.Validate(e.dimension); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

// update applies fn to a copy of the settings and keeps it if still valid.
func (e *Estimator) update(fn func(*Config)) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	cfg := e.cfg
	fn(&cfg)
	if err := cfg.Validate(e.dimension); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

func (e *Estimator) SetMethod(m Method) error {
	return e.update(func(c *Config) { c.Method = m })
}

func (e *Estimator) SetConfidence(confidence float64) error {
	return e.update(func(c *Config) { c.Confidence = confidence })
}

func (e *Estimator) SetMaxIterations(n int) error {
	return e.update(func(c *Config) { c.MaxIterations = n })
}

// SetThreshold sets a fixed inlier threshold; it must be positive.
func (e *Estimator) SetThreshold(threshold float64) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if !(threshold > 0) {
		return fmt.Errorf("%w: threshold %v must be positive", ErrInvalidArgument, threshold)
	}
	return e.update(func(c *Config) { c.Threshold = threshold })
}

func (e *Estimator) SetPreliminarySubsetSize(n int) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if n < e.dimension+1 {
		return fmt.Errorf("%w: preliminary subset size %d below %d", ErrInvalidArgument, n, e.dimension+1)
	}
	return e.update(func(c *Config) { c.PreliminarySubsetSize = n })
}

// SetInitialPosition sets the position scored before random sampling and
// used to start nonlinear-only hypotheses. nil clears it.
func (e *Estimator) SetInitialPosition(p common.Vector) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if p != nil && (p.Dimension() != e.dimension || !p.IsFinite()) {
		return fmt.Errorf("%w: initial position %s for dimension %d", ErrInvalidArgument, p, e.dimension)
	}
	e.initialPosition = p.Clone()
	return nil
}

func (e *Estimator) SetListener(l Listener[*Estimator]) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	e.listener = l
	return nil
}

// SetRandomSource sets the generator used for subset draws; nil selects the
// global generator.
func (e *Estimator) SetRandomSource(src rand.Source) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	e.src = src
	return nil
}

func (e *Estimator) SetLogger(l *logging.Logger) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if l == nil {
		l = logging.Discard()
	}
	e.logger = l
	return nil
}

// hypothesis is a candidate position scored against every sample.
type hypothesis struct {
	position    common.Vector
	residuals   []float64
	inliers     []bool
	inlierCount int
	median      float64
	truncated   float64 // sum of min(r^2, t^2)
}

func (e *Estimator) evaluate(samples []sample, position common.Vector) *hypothesis {
	h := &hypothesis{
		position:  position,
		residuals: make([]float64, len(samples)),
		inliers:   make([]bool, len(samples)),
	}
	for i, s := range samples {
		r := math.Abs(position.MustDistance(s.position) - s.distance)
		h.residuals[i] = r
		if r <= s.threshold {
			h.inliers[i] = true
			h.inlierCount++
		}
		h.truncated += math.Min(r*r, s.threshold*s.threshold)
	}
	sorted := slices.Clone(h.residuals)
	slices.Sort(sorted)
	h.median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return h
}

// better reports whether h beats best under the configured method.
func (e *Estimator) better(h, best *hypothesis) bool {
	if best == nil {
		return true
	}
	switch e.cfg.Method {
	case MSAC:
		return h.truncated < best.truncated
	case LMedS, PROMedS:
		if h.median != best.median {
			return h.median < best.median
		}
		return h.inlierCount > best.inlierCount
	default:
		if h.inlierCount != best.inlierCount {
			return h.inlierCount > best.inlierCount
		}
		return h.truncated < best.truncated
	}
}

// hypothesize solves a candidate position from a subset of samples.
func (e *Estimator) hypothesize(samples []sample, subset []int) (common.Vector, error) {
	ms := measurementsOf(samples, subset)

	if !e.cfg.UseLinearSolver {
		start := e.initialPosition
		if start == nil {
			points := make([]common.Vector, len(subset))
			for i, idx := range subset {
				points[i] = samples[idx].position
			}
			c, err := common.Centroid(points)
			if err != nil {
				return nil, err
			}
			start = c
		}
		sol, err := multilateration.Refine(ms, start, multilateration.RefineOptions{})
		if err != nil {
			return nil, err
		}
		return sol.Position, nil
	}

	var sol multilateration.Solution
	var err error
	if e.cfg.Homogeneous {
		sol, err = multilateration.SolveHomogeneous(ms, e.dimension)
	} else {
		sol, err = multilateration.SolveLeastSquares(ms, e.dimension)
	}
	if err != nil {
		return nil, err
	}
	if e.cfg.RefinePreliminarySolutions {
		if refined, err := multilateration.Refine(ms, sol.Position, multilateration.RefineOptions{}); err == nil {
			sol = refined
		}
	}
	if !sol.Position.IsFinite() {
		return nil, multilateration.ErrRankDeficient
	}
	return sol.Position, nil
}

// Estimate runs the robust pass. It fails with ErrLocked when called while
// Running, ErrNotReady when inputs are incomplete, ErrRobustEstimatorFailure
// when no hypothesis gathers dimension+1 inliers and ErrNumericalFailure
// when the kept covariance cannot be computed.
func (e *Estimator) Estimate() (*Result, error) {
	if err := e.lock.check(); err != nil {
		return nil, err
	}
	if !e.IsReady() {
		return nil, ErrNotReady
	}
	release, err := e.lock.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	samples := buildSamples(e.kind, e.cfg, e.sources, e.readings, e.sourceScores, e.readingScores)
	subsetSize := e.PreliminarySubsetSize()
	if len(samples) < subsetSize {
		return nil, fmt.Errorf("%w: %d usable %s readings, need %d", ErrNotReady, len(samples), e.kind, subsetSize)
	}

	sampler := newSubsetSampler(samples, e.cfg.Method.UsesQualityScores(), e.cfg.EvenlyDistributeReadings,
		e.sources, e.readings, e.sourceScores, e.src)

	var progress *progressNotifier
	if e.listener != nil {
		e.listener.OnEstimateStart(e)
		progress = newProgressNotifier(e.cfg.ProgressDelta, func(p float64) {
			e.listener.OnEstimateProgressChange(e, p)
		})
	} else {
		progress = newProgressNotifier(1, nil)
	}

	var best *hypothesis
	bound := e.cfg.MaxIterations
	keep := func(h *hypothesis, iteration int) {
		best = h
		ratio := float64(h.inlierCount) / float64(len(samples))
		bound = IterationBound(e.cfg.Confidence, subsetSize, ratio, bound)
		if e.cfg.Method.usesMedian() && h.median <= e.cfg.StopThreshold {
			bound = min(bound, iteration)
		}
	}

	if e.initialPosition != nil {
		if h := e.evaluate(samples, e.initialPosition.Clone()); h.inlierCount >= e.dimension+1 {
			keep(h, 0)
		}
	}

	subset := make([]int, subsetSize)
	iteration := 0
	for iteration < bound {
		iteration++
		if e.listener != nil {
			e.listener.OnEstimateNextIteration(e, iteration)
		}

		sampler.draw(subset)
		position, err := e.hypothesize(samples, subset)
		if err != nil {
			e.logger.Debug("iteration %d: hypothesis rejected: %v", iteration, err)
		} else if h := e.evaluate(samples, position); e.better(h, best) {
			keep(h, iteration)
		}
		progress.update(float64(iteration) / float64(bound))
	}

	if best == nil || best.inlierCount < e.dimension+1 {
		inliers := 0
		if best != nil {
			inliers = best.inlierCount
		}
		return nil, fmt.Errorf("%w: best hypothesis has %d inliers after %d iterations", ErrRobustEstimatorFailure, inliers, iteration)
	}

	position := best.position
	var covariance *mat.SymDense
	if e.cfg.RefineResult {
		inlierIdx := make([]int, 0, best.inlierCount)
		for i, in := range best.inliers {
			if in {
				inlierIdx = append(inlierIdx, i)
			}
		}
		sol, err := multilateration.Refine(measurementsOf(samples, inlierIdx), best.position,
			multilateration.RefineOptions{KeepCovariance: e.cfg.KeepCovariance})
		switch {
		case errors.Is(err, multilateration.ErrNotPositiveDefinite):
			return nil, fmt.Errorf("%w: %v", ErrNumericalFailure, err)
		case err != nil:
			e.logger.Warn("refinement over %d inliers failed, keeping hypothesis: %v", len(inlierIdx), err)
		default:
			position = sol.Position
			covariance = sol.Covariance
		}
	}

	result := &Result{
		Position:    position,
		Covariance:  covariance,
		Inliers:     make([]bool, len(e.readings)),
		Residuals:   make([]float64, len(e.readings)),
		InlierCount: best.inlierCount,
		Iterations:  iteration,
	}
	for i := range result.Residuals {
		result.Residuals[i] = math.NaN()
	}
	for i, s := range samples {
		result.Inliers[s.reading] = best.inliers[i]
		result.Residuals[s.reading] = math.Abs(position.MustDistance(s.position) - s.distance)
	}
	e.logger.Debug("%s %s: %d/%d inliers after %d iterations, position %s",
		e.kind, e.cfg.Method, best.inlierCount, len(samples), iteration, position)

	e.result = result
	progress.update(1)
	if e.listener != nil {
		e.listener.OnEstimateEnd(e)
	}
	return result, nil
}
