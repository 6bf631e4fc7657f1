package robust

import (
	"fmt"
	"math"
	"math/rand/v2"

	"indoor-positioning/internal/common"
	"indoor-positioning/internal/logging"
	"indoor-positioning/internal/radio"
)

// SequentialConfig configures the ranging and RSSI passes. RefineResult and
// KeepCovariance override the values in both phase blocks.
type SequentialConfig struct {
	Ranging        Config  `yaml:"ranging"`
	Rssi           Config  `yaml:"rssi"`
	RefineResult   bool    `yaml:"refine_result"`
	KeepCovariance bool    `yaml:"keep_covariance"`
	ProgressDelta  float64 `yaml:"progress_delta"`
}

// DefaultSequentialConfig returns the default settings for both phases.
func DefaultSequentialConfig() SequentialConfig {
	return SequentialConfig{
		Ranging:        DefaultConfig(),
		Rssi:           DefaultConfig(),
		RefineResult:   true,
		KeepCovariance: true,
		ProgressDelta:  DefaultProgressDelta,
	}
}

// Validate checks both phase blocks for a problem of the given dimension.
func (c SequentialConfig) Validate(dimension int) error {
	if err := c.phase(RangingKind).Validate(dimension); err != nil {
		return fmt.Errorf("ranging: %w", err)
	}
	if err := c.phase(RssiKind).Validate(dimension); err != nil {
		return fmt.Errorf("rssi: %w", err)
	}
	if c.ProgressDelta < 0 || c.ProgressDelta > 1 {
		return fmt.Errorf("%w: progress delta %v outside [0, 1]", ErrInvalidArgument, c.ProgressDelta)
	}
	return nil
}

// phase returns the effective settings of one phase.
func (c SequentialConfig) phase(kind ReadingKind) Config {
	cfg := c.Ranging
	if kind == RssiKind {
		cfg = c.Rssi
	}
	cfg.RefineResult = c.RefineResult
	cfg.KeepCovariance = c.KeepCovariance
	return cfg
}

// SequentialResult is the final result, indexed by fingerprint reading.
// Ranging holds the seed phase result and RangingErr its absorbed failure;
// both are nil when the phase did not run.
type SequentialResult struct {
	Result
	Ranging    *Result
	RangingErr error
}

// SequentialEstimator runs a robust ranging pass whose position seeds a
// robust RSSI pass over the same fingerprint.
type SequentialEstimator struct {
	cfg       SequentialConfig
	dimension int

	sources       []*radio.Source
	fingerprint   *radio.Fingerprint
	sourceScores  []float64
	readingScores []float64

	initialPosition common.Vector
	listener        Listener[*SequentialEstimator]
	src             rand.Source
	logger          *logging.Logger

	lock       lock
	result     *SequentialResult
	iterations int
}

// NewSequentialEstimator validates its inputs and returns an idle estimator.
// Quality scores must match sources and fingerprint readings one to one.
func NewSequentialEstimator(sources []*radio.Source, fingerprint *radio.Fingerprint, sourceScores, readingScores []float64, cfg SequentialConfig) (*SequentialEstimator, error) {
	dimension, err := validateSources(sources)
	if err != nil {
		return nil, err
	}
	if err := validateFingerprint(fingerprint); err != nil {
		return nil, err
	}
	if err := validateScores(sources, fingerprint, sourceScores, readingScores); err != nil {
		return nil, err
	}
	if err := cfg.Validate(dimension); err != nil {
		return nil, err
	}
	return &SequentialEstimator{
		cfg:           cfg,
		dimension:     dimension,
		sources:       sources,
		fingerprint:   fingerprint,
		sourceScores:  sourceScores,
		readingScores: readingScores,
		logger:        logging.Discard(),
	}, nil
}

func validateFingerprint(fp *radio.Fingerprint) error {
	if fp.Len() == 0 {
		return fmt.Errorf("%w: empty fingerprint", ErrInvalidArgument)
	}
	for i, r := range fp.Readings {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: reading %d: %v", ErrInvalidArgument, i, err)
		}
	}
	return nil
}

func validateScores(sources []*radio.Source, fp *radio.Fingerprint, sourceScores, readingScores []float64) error {
	if sourceScores == nil || readingScores == nil {
		return fmt.Errorf("%w: missing quality scores", ErrInvalidArgument)
	}
	if len(sourceScores) != len(sources) {
		return fmt.Errorf("%w: %d source quality scores for %d sources", ErrInvalidArgument, len(sourceScores), len(sources))
	}
	if len(readingScores) != fp.Len() {
		return fmt.Errorf("%w: %d reading quality scores for %d readings", ErrInvalidArgument, len(readingScores), fp.Len())
	}
	return checkScores(sourceScores, readingScores)
}

func (e *SequentialEstimator) Config() SequentialConfig        { return e.cfg }
func (e *SequentialEstimator) Dimension() int                  { return e.dimension }
func (e *SequentialEstimator) MinRequiredSources() int         { return e.dimension + 1 }
func (e *SequentialEstimator) Sources() []*radio.Source        { return e.sources }
func (e *SequentialEstimator) Fingerprint() *radio.Fingerprint { return e.fingerprint }
func (e *SequentialEstimator) InitialPosition() common.Vector  { return e.initialPosition.Clone() }
func (e *SequentialEstimator) State() State                    { return e.lock.state }
func (e *SequentialEstimator) IsLocked() bool                  { return e.lock.state == Running }
func (e *SequentialEstimator) Result() *SequentialResult       { return e.result }

// QualityScores returns the source and reading quality scores.
func (e *SequentialEstimator) QualityScores() (sourceScores, readingScores []float64) {
	return e.sourceScores, e.readingScores
}

// IsReady reports whether sources, fingerprint and matching quality scores are set.
func (e *SequentialEstimator) IsReady() bool {
	return len(e.sources) >= e.MinRequiredSources() &&
		e.fingerprint.Len() > 0 &&
		len(e.sourceScores) == len(e.sources) &&
		len(e.readingScores) == e.fingerprint.Len()
}

// SetSources replaces the sources; they must still match the source scores.
func (e *SequentialEstimator) SetSources(sources []*radio.Source) error {
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
	if len(sources) != len(e.sourceScores) {
		return fmt.Errorf("%w: %d sources for %d source quality scores", ErrInvalidArgument, len(sources), len(e.sourceScores))
	}
	e.sources = sources
	return nil
}

// SetFingerprint replaces the fingerprint; it must still match the reading scores.
func (e *SequentialEstimator) SetFingerprint(fp *radio.Fingerprint) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if err := validateFingerprint(fp); err != nil {
		return err
	}
	if fp.Len() != len(e.readingScores) {
		return fmt.Errorf("%w: %d readings for %d reading quality scores", ErrInvalidArgument, fp.Len(), len(e.readingScores))
	}
	e.fingerprint = fp
	return nil
}

// SetInputs replaces sources, fingerprint and scores together.
func (e *SequentialEstimator) SetInputs(sources []*radio.Source, fp *radio.Fingerprint, sourceScores, readingScores []float64) error {
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
	if err := validateFingerprint(fp); err != nil {
		return err
	}
	if err := validateScores(sources, fp, sourceScores, readingScores); err != nil {
		return err
	}
	e.sources, e.fingerprint = sources, fp
	e.sourceScores, e.readingScores = sourceScores, readingScores
	return nil
}

// SetQualityScores replaces the scores matching sources and readings.
func (e *SequentialEstimator) SetQualityScores(sourceScores, readingScores []float64) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if err := validateScores(e.sources, e.fingerprint, sourceScores, readingScores); err != nil {
		return err
	}
	e.sourceScores, e.readingScores = sourceScores, readingScores
	return nil
}

func (e *SequentialEstimator) SetConfig(cfg SequentialConfig) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if err := cfg.Validate(e.dimension); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

func (e *SequentialEstimator) SetRangingConfig(cfg Config) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	next := e.cfg
	next.Ranging = cfg
	return e.SetConfig(next)
}

func (e *SequentialEstimator) SetRssiConfig(cfg Config) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	next := e.cfg
	next.Rssi = cfg
	return e.SetConfig(next)
}

// SetInitialPosition sets the seed used when the ranging phase cannot
// provide one. nil clears it.
func (e *SequentialEstimator) SetInitialPosition(p common.Vector) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if p != nil && (p.Dimension() != e.dimension || !p.IsFinite()) {
		return fmt.Errorf("%w: initial position %s for dimension %d", ErrInvalidArgument, p, e.dimension)
	}
	e.initialPosition = p.Clone()
	return nil
}

func (e *SequentialEstimator) SetListener(l Listener[*SequentialEstimator]) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	e.listener = l
	return nil
}

func (e *SequentialEstimator) SetRandomSource(src rand.Source) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	e.src = src
	return nil
}

func (e *SequentialEstimator) SetLogger(l *logging.Logger) error {
	if err := e.lock.check(); err != nil {
		return err
	}
	if l == nil {
		l = logging.Discard()
	}
	e.logger = l
	return nil
}

// usable counts the components whose source is known to the estimator.
func (e *SequentialEstimator) usable(comps []radio.Component) int {
	known := make(map[string]bool, len(e.sources))
	for _, s := range e.sources {
		known[s.ID] = true
	}
	n := 0
	for _, c := range comps {
		if known[c.Reading.Source.ID] {
			n++
		}
	}
	return n
}

// phaseEstimator builds the single-type estimator of one phase. Its events
// are forwarded to the sequential listener with progress mapped into
// [offset, offset+share].
func (e *SequentialEstimator) phaseEstimator(kind ReadingKind, comps []radio.Component, offset, share float64, progress *progressNotifier) (*Estimator, error) {
	readings := make([]radio.Reading, len(comps))
	readingScores := make([]float64, len(comps))
	for i, c := range comps {
		readings[i] = c.Reading
		readingScores[i] = e.readingScores[c.Index]
	}

	est, err := NewEstimator(kind, e.sources, readings, e.cfg.phase(kind))
	if err != nil {
		return nil, err
	}
	if err := est.SetQualityScores(e.sourceScores, readingScores); err != nil {
		return nil, err
	}
	if err := est.SetRandomSource(e.src); err != nil {
		return nil, err
	}
	if err := est.SetLogger(e.logger.With(kind.String())); err != nil {
		return nil, err
	}
	err = est.SetListener(ListenerFuncs[*Estimator]{
		NextIteration: func(_ *Estimator, _ int) {
			e.iterations++
			if e.listener != nil {
				e.listener.OnEstimateNextIteration(e, e.iterations)
			}
		},
		ProgressChange: func(_ *Estimator, p float64) {
			progress.update(offset + p*share)
		},
	})
	return est, err
}

// remap re-indexes a phase result by fingerprint reading.
func remap(res *Result, comps []radio.Component, n int) *Result {
	out := &Result{
		Position:    res.Position,
		Covariance:  res.Covariance,
		Inliers:     make([]bool, n),
		Residuals:   make([]float64, n),
		InlierCount: res.InlierCount,
		Iterations:  res.Iterations,
	}
	for i := range out.Residuals {
		out.Residuals[i] = math.NaN()
	}
	for i, c := range comps {
		out.Inliers[c.Index] = res.Inliers[i]
		out.Residuals[c.Index] = res.Residuals[i]
	}
	return out
}

// Estimate runs the ranging phase, when the fingerprint holds enough ranging
// readings, and then the RSSI phase seeded with its position. A failed
// ranging phase only loses the seed unless it is the only phase.
func (e *SequentialEstimator) Estimate() (*SequentialResult, error) {
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

	e.iterations = 0
	if e.listener != nil {
		e.listener.OnEstimateStart(e)
	}
	progress := newProgressNotifier(e.cfg.ProgressDelta, func(p float64) {
		if e.listener != nil {
			e.listener.OnEstimateProgressChange(e, p)
		}
	})

	minSamples := func(kind ReadingKind) int {
		return e.cfg.phase(kind).subsetSize(e.dimension)
	}
	rangingComps := e.fingerprint.RangingReadings()
	rssiComps := e.fingerprint.RssiReadings()
	runRanging := e.usable(rangingComps) >= minSamples(RangingKind)
	runRssi := e.usable(rssiComps) >= minSamples(RssiKind)
	if !runRanging && !runRssi {
		return nil, fmt.Errorf("%w: not enough ranging (%d) or rssi (%d) readings", ErrNotReady, len(rangingComps), len(rssiComps))
	}

	share := 1.0
	if runRanging && runRssi {
		share = 0.5
	}
	n := e.fingerprint.Len()
	result := &SequentialResult{}
	seed := e.initialPosition.Clone()
	var final *Result

	if runRanging {
		est, err := e.phaseEstimator(RangingKind, rangingComps, 0, share, progress)
		var res *Result
		if err == nil {
			err = est.SetInitialPosition(seed)
		}
		if err == nil {
			res, err = est.Estimate()
		}
		switch {
		case err != nil && !runRssi:
			return nil, fmt.Errorf("ranging phase: %w", err)
		case err != nil:
			result.RangingErr = err
			e.logger.Warn("ranging phase failed, rssi phase keeps the configured seed: %v", err)
		default:
			result.Ranging = remap(res, rangingComps, n)
			seed = res.Position
			final = result.Ranging
		}
	}

	if runRssi {
		offset := 1 - share
		est, err := e.phaseEstimator(RssiKind, rssiComps, offset, share, progress)
		if err != nil {
			return nil, fmt.Errorf("rssi phase: %w", err)
		}
		if err := est.SetInitialPosition(seed); err != nil {
			return nil, fmt.Errorf("rssi phase: %w", err)
		}
		res, err := est.Estimate()
		if err != nil {
			return nil, fmt.Errorf("rssi phase: %w", err)
		}
		final = remap(res, rssiComps, n)
	}

	result.Result = *final
	result.Iterations = e.iterations
	e.result = result

	progress.update(1)
	if e.listener != nil {
		e.listener.OnEstimateEnd(e)
	}
	return result, nil
}
