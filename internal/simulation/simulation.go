package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"indoor-positioning/internal/accuracy"
	"indoor-positioning/internal/common"
	"indoor-positioning/internal/logging"
	"indoor-positioning/internal/multilateration"
	"indoor-positioning/internal/radio"
	"indoor-positioning/internal/robust"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Simulation holds beacons and targets in an n-dimensional space and
// locates every target at each step with the sequential estimator.
type Simulation struct {
	cfg          Config
	estimatorCfg robust.SequentialConfig

	objects        map[string]SimulationObject
	beacons        []*Beacon // insertion order keeps runs reproducible
	targets        []*Target
	simulationTime float64

	rng    *rand.Rand
	logger *logging.Logger

	lastEstimates map[string]*robust.SequentialResult
	lastErrors    map[string]float64

	stats runStats
}

type runStats struct {
	steps           int
	attempts        int
	failures        int
	rangingFailures int
	errors          []float64
	errorVectors    []common.Vector
	semiMajors      []float64
	outliers        int
	rejected        int
}

// Summary aggregates a run.
type Summary struct {
	Steps           int
	Attempts        int
	Failures        int
	RangingFailures int

	MeanError   float64
	MedianError float64
	P95Error    float64
	MaxError    float64

	// ErrorSpread holds the standard deviations of the error vectors along
	// their principal axes, largest first.
	ErrorSpread []float64
	// MeanSemiMajor is the mean largest semi-axis of the 95% confidence
	// ellipsoids of estimates carrying a covariance.
	MeanSemiMajor float64

	// OutlierRejection is the fraction of corrupted readings classified as
	// outliers, NaN when none were injected.
	OutlierRejection float64
}

func (s Summary) String() string {
	return fmt.Sprintf("steps=%d attempts=%d failures=%d ranging_failures=%d error(mean=%.3f median=%.3f p95=%.3f max=%.3f spread=%s) semi_major=%.3f outlier_rejection=%.2f",
		s.Steps, s.Attempts, s.Failures, s.RangingFailures, s.MeanError, s.MedianError, s.P95Error, s.MaxError,
		common.Vector(s.ErrorSpread), s.MeanSemiMajor, s.OutlierRejection)
}

// NewSimulation creates an empty simulation. A nil rng is replaced by a
// randomly seeded one and a nil logger discards output.
func NewSimulation(cfg Config, estimatorCfg robust.SequentialConfig, rng *rand.Rand, logger *logging.Logger) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := estimatorCfg.Validate(cfg.Dimension); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Simulation{
		cfg:           cfg,
		estimatorCfg:  estimatorCfg,
		objects:       make(map[string]SimulationObject),
		rng:           rng,
		logger:        logger,
		lastEstimates: make(map[string]*robust.SequentialResult),
		lastErrors:    make(map[string]float64),
	}, nil
}

// Populate adds the configured number of random beacons and targets.
func (s *Simulation) Populate() error {
	for i := 0; i < s.cfg.Beacons; i++ {
		if err := s.AddRandomBeacon(); err != nil {
			return fmt.Errorf("beacon %d: %w", i, err)
		}
	}
	for i := 0; i < s.cfg.Targets; i++ {
		if err := s.AddRandomTarget(); err != nil {
			return fmt.Errorf("target %d: %w", i, err)
		}
	}
	return nil
}

// AddObject adds a simulation object to the simulation.
func (s *Simulation) AddObject(obj SimulationObject) error {
	if obj.GetPosition().Dimension() != s.cfg.Dimension {
		return fmt.Errorf("object dimension %d does not match simulation dimension %d", obj.GetPosition().Dimension(), s.cfg.Dimension)
	}
	id := obj.GetID()
	if _, exists := s.objects[id]; exists {
		return fmt.Errorf("object with ID %s already exists", id)
	}
	s.objects[id] = obj

	switch v := obj.(type) {
	case *Beacon:
		s.beacons = append(s.beacons, v)
	case *Target:
		s.targets = append(s.targets, v)
		s.lastErrors[id] = -1
	}
	return nil
}

// NewConfiguredBeacon builds a beacon at pos with the configured radio and
// noise parameters.
func (s *Simulation) NewConfiguredBeacon(pos common.Vector) *Beacon {
	src := radio.NewSource(pos, s.cfg.TxPowerDBm)
	src.PathLossExponent = s.cfg.PathLossExponent
	src.FrequencyHz = s.cfg.FrequencyHz

	b := NewBeacon(src, s.cfg.DetectionRadius)
	if s.cfg.RangingStdDev > 0 {
		b.SetRangingNoise(GaussianNoise(s.cfg.RangingStdDev), s.cfg.RangingStdDev)
	}
	if s.cfg.RssiStdDev > 0 {
		b.SetRssiNoise(GaussianNoise(s.cfg.RssiStdDev), s.cfg.RssiStdDev)
	}
	return b
}

// AddRandomBeacon adds a configured beacon at a random position within bounds.
func (s *Simulation) AddRandomBeacon() error {
	pos, err := common.NewRandomVector(s.rng, s.cfg.Dimension, s.cfg.Bounds)
	if err != nil {
		return fmt.Errorf("failed to generate random position for beacon: %w", err)
	}
	return s.AddObject(s.NewConfiguredBeacon(pos))
}

// AddRandomTarget adds a target at a random position within bounds.
func (s *Simulation) AddRandomTarget() error {
	pos, err := common.NewRandomVector(s.rng, s.cfg.Dimension, s.cfg.Bounds)
	if err != nil {
		return fmt.Errorf("failed to generate random position for target: %w", err)
	}
	return s.AddObject(NewTarget(pos, s.rng))
}

// GetObject returns an object by its ID.
func (s *Simulation) GetObject(id string) (SimulationObject, bool) {
	obj, exists := s.objects[id]
	return obj, exists
}

func (s *Simulation) GetBeacons() []*Beacon { return slices.Clone(s.beacons) }
func (s *Simulation) GetTargets() []*Target { return slices.Clone(s.targets) }

// GetLastEstimate returns the last successful estimate for a target.
func (s *Simulation) GetLastEstimate(targetID string) (*robust.SequentialResult, bool) {
	res, ok := s.lastEstimates[targetID]
	return res, ok
}

// GetLastLocalizationError returns the last localization error for a target,
// -1 when its last attempt failed.
func (s *Simulation) GetLastLocalizationError(targetID string) (float64, bool) {
	errVal, ok := s.lastErrors[targetID]
	return errVal, ok
}

// Locate observes target and estimates its position.
func (s *Simulation) Locate(target *Target) (*robust.SequentialResult, *Observation, error) {
	obs, err := Observe(s.rng, s.beacons, target.GetPosition(), s.cfg.Readings, s.cfg.OutlierFraction, s.cfg.OutlierStdDev, s.cfg.Scoring)
	if err != nil {
		return nil, nil, err
	}

	est, err := robust.NewSequentialEstimator(obs.Sources, obs.Fingerprint, obs.SourceScores, obs.ReadingScores, s.estimatorCfg)
	if err != nil {
		return nil, obs, err
	}
	if err := est.SetRandomSource(rand.NewPCG(s.rng.Uint64(), s.rng.Uint64())); err != nil {
		return nil, obs, err
	}
	if err := est.SetLogger(s.logger.With(target.GetID())); err != nil {
		return nil, obs, err
	}
	if last, ok := s.lastEstimates[target.GetID()]; ok && s.cfg.TrackTargets {
		if err := est.SetInitialPosition(last.Position); err != nil {
			return nil, obs, err
		}
	}

	res, err := est.Estimate()
	return res, obs, err
}

// Step advances the simulation by one tick and locates every target.
func (s *Simulation) Step() {
	deltaTime := s.cfg.TickDuration.Seconds()
	s.simulationTime += deltaTime
	s.stats.steps++

	for _, b := range s.beacons {
		b.Update(deltaTime, s.cfg.Bounds)
	}
	for _, t := range s.targets {
		t.Update(deltaTime, s.cfg.Bounds)
	}

	for _, t := range s.targets {
		id := t.GetID()
		s.stats.attempts++
		res, obs, err := s.Locate(t)
		if err != nil {
			s.stats.failures++
			s.lastErrors[id] = -1
			delete(s.lastEstimates, id)
			level := s.logger.Warn
			if errors.Is(err, robust.ErrNotReady) {
				level = s.logger.Info
			}
			level("%s: localization failed: %v", id, err)
			continue
		}

		if res.RangingErr != nil {
			s.stats.rangingFailures++
		}
		locErr, err := multilateration.CalculateLocalizationError(t.GetPosition(), res.Position)
		if err != nil {
			s.logger.Error("%s: %v", id, err)
			continue
		}
		s.stats.errors = append(s.stats.errors, locErr)
		if diff, err := res.Position.Subtract(t.GetPosition()); err == nil {
			s.stats.errorVectors = append(s.stats.errorVectors, diff)
		}
		semiMajor := math.NaN()
		if res.Covariance != nil {
			if e, err := accuracy.FromCovariance(res.Position, res.Covariance, 0.95); err == nil {
				semiMajor = e.SemiMajor()
				s.stats.semiMajors = append(s.stats.semiMajors, semiMajor)
			} else {
				s.logger.Debug("%s: no confidence region: %v", id, err)
			}
		}
		for i, bad := range obs.Corrupted {
			if bad {
				s.stats.outliers++
				if !res.Inliers[i] {
					s.stats.rejected++
				}
			}
		}
		s.lastEstimates[id] = res
		s.lastErrors[id] = locErr

		s.logger.Debug("%s: true %s est %s error %.3f semi-major %.3f inliers %d/%d outliers %d iterations %d",
			id, t.GetPosition(), res.Position, locErr, semiMajor, res.InlierCount, obs.Fingerprint.Len(), obs.CorruptedCount(), res.Iterations)
	}
}

// Run executes numSteps steps and returns the summary of the whole run.
func (s *Simulation) Run(numSteps int) Summary {
	s.logger.Info("starting simulation: dimension=%d bounds=%v tick=%s beacons=%d targets=%d readings=%s",
		s.cfg.Dimension, s.cfg.Bounds, s.cfg.TickDuration, len(s.beacons), len(s.targets), s.cfg.Readings)
	s.LogState()

	for i := 0; i < numSteps; i++ {
		s.Step()
		if (i+1)%10 == 0 || i+1 == numSteps {
			s.logger.Info("step %d (t=%.2fs): %s", i+1, s.simulationTime, s.Summary())
		}
	}

	s.logger.Info("simulation finished")
	s.LogState()
	return s.Summary()
}

// Summary computes statistics over every attempt so far.
func (s *Simulation) Summary() Summary {
	sum := Summary{
		Steps:            s.stats.steps,
		Attempts:         s.stats.attempts,
		Failures:         s.stats.failures,
		RangingFailures:  s.stats.rangingFailures,
		OutlierRejection: math.NaN(),
		MeanSemiMajor:    math.NaN(),
	}
	if len(s.stats.semiMajors) > 0 {
		sum.MeanSemiMajor = stat.Mean(s.stats.semiMajors, nil)
	}
	if spread, err := accuracy.PrincipalSpread(s.stats.errorVectors); err == nil {
		sum.ErrorSpread = spread.StdDevs
	}
	if s.stats.outliers > 0 {
		sum.OutlierRejection = float64(s.stats.rejected) / float64(s.stats.outliers)
	}
	if len(s.stats.errors) == 0 {
		sum.MeanError, sum.MedianError, sum.P95Error, sum.MaxError = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return sum
	}

	sorted := slices.Clone(s.stats.errors)
	slices.Sort(sorted)
	sum.MeanError = stat.Mean(sorted, nil)
	sum.MedianError = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	sum.P95Error = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	sum.MaxError = floats.Max(sorted)
	return sum
}

// LogState logs the beacons and the targets with their last estimates.
func (s *Simulation) LogState() {
	if !s.logger.Enabled(logging.DEBUG) {
		return
	}
	s.logger.Debug("time %.2fs", s.simulationTime)
	for _, b := range s.beacons {
		s.logger.Debug("  %s", b)
	}
	for _, t := range s.targets {
		estimate := "None"
		if res, ok := s.lastEstimates[t.GetID()]; ok {
			estimate = fmt.Sprintf("Est: %s (Err: %.3f, Inliers: %d)", res.Position, s.lastErrors[t.GetID()], res.InlierCount)
		}
		s.logger.Debug("  %s | %s", t, estimate)
	}
}
