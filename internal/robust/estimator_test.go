package robust

import (
	"math"
	"math/rand/v2"
	"testing"

	"indoor-positioning/internal/common"
	"indoor-positioning/internal/radio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
)

var allMethods = []Method{RANSAC, LMedS, MSAC, PROSAC, PROMedS}

func newTestEstimator(t *testing.T, kind ReadingKind, sources []*radio.Source, readings []radio.Reading, method Method) *Estimator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Method = method
	est, err := NewEstimator(kind, sources, readings, cfg)
	require.NoError(t, err)
	require.NoError(t, est.SetQualityScores(uniformScores(len(sources), 1), uniformScores(len(readings), 1)))
	require.NoError(t, est.SetRandomSource(rand.NewPCG(1, 2)))
	return est
}

func TestEstimatorRecoversNoiselessPosition(t *testing.T) {
	sources := sourcesAt(anchors3D)
	for _, method := range allMethods {
		t.Run(method.String(), func(t *testing.T) {
			for kind, readings := range map[ReadingKind][]radio.Reading{
				RangingKind: rangingReadings(t, sources, target3D, 1e-3),
				RssiKind:    rssiReadings(t, sources, target3D, 1e-3),
			} {
				est := newTestEstimator(t, kind, sources, readings, method)
				require.True(t, est.IsReady())

				res, err := est.Estimate()
				require.NoError(t, err, "%s", kind)
				assert.InDeltaSlice(t, target3D, res.Position, 1e-6, "%s", kind)
				assert.NotNil(t, res.Covariance)
				assert.Equal(t, len(readings), res.InlierCount)
				assert.Equal(t, []bool{true, true, true, true}, res.Inliers)
				assert.Same(t, res, est.Result())
				assert.Equal(t, Idle, est.State())
			}
		})
	}
}

func TestEstimatorSolverVariants(t *testing.T) {
	sources := sourcesAt(append(anchors3D, common.Vector{8, 9, 7}))
	readings := rangingReadings(t, sources, target3D, 1e-3)

	variants := map[string]func(*Config){
		"homogeneous":   func(c *Config) { c.Homogeneous = true },
		"no refinement": func(c *Config) { c.RefinePreliminarySolutions = false; c.RefineResult = false },
		"nonlinear":     func(c *Config) { c.UseLinearSolver = false },
		"fixed subset":  func(c *Config) { c.PreliminarySubsetSize = 5; c.EvenlyDistributeReadings = false },
	}
	for name, modify := range variants {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Method = RANSAC
			modify(&cfg)
			est, err := NewEstimator(RangingKind, sources, readings, cfg)
			require.NoError(t, err)
			if !cfg.UseLinearSolver {
				require.NoError(t, est.SetInitialPosition(common.Vector{2, 2, 2}))
			}

			res, err := est.Estimate()
			require.NoError(t, err)
			assert.InDeltaSlice(t, target3D, res.Position, 1e-6)
			if cfg.RefineResult {
				assert.NotNil(t, res.Covariance)
			} else {
				assert.Nil(t, res.Covariance)
			}
		})
	}
}

func TestEstimatorRejectsOutliers(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for _, method := range allMethods {
		t.Run(method.String(), func(t *testing.T) {
			recovered := 0
			const trials = 20
			for trial := 0; trial < trials; trial++ {
				scene := newOutlierScene(t, rng, 20, 0.05, 0)
				readings := make([]radio.Reading, scene.fingerprint.Len())
				for i, c := range scene.fingerprint.RangingReadings() {
					readings[i] = c.Reading
				}

				cfg := DefaultConfig()
				cfg.Method = method
				est, err := NewEstimator(RangingKind, scene.sources, readings, cfg)
				require.NoError(t, err)
				require.NoError(t, est.SetQualityScores(scene.sourceScores, scene.readingScores))
				require.NoError(t, est.SetRandomSource(rand.NewPCG(uint64(trial), 3)))

				res, err := est.Estimate()
				if err != nil {
					continue
				}
				if res.Position.MustDistance(scene.target) >= 0.5 {
					continue
				}
				recovered++
				for i, bad := range scene.corrupted {
					if bad {
						assert.False(t, res.Inliers[i], "corrupted reading %d kept as inlier", i)
					}
				}
			}
			assert.GreaterOrEqual(t, recovered, trials*3/4)
		})
	}
}

func TestEstimatorSeedIsScoredFirst(t *testing.T) {
	sources := sourcesAt(anchors3D)
	readings := rangingReadings(t, sources, target3D, 1e-3)
	est := newTestEstimator(t, RangingKind, sources, readings, LMedS)
	require.NoError(t, est.SetInitialPosition(target3D))

	iterations := 0
	require.NoError(t, est.SetListener(ListenerFuncs[*Estimator]{
		NextIteration: func(*Estimator, int) { iterations++ },
	}))

	res, err := est.Estimate()
	require.NoError(t, err)
	assert.Equal(t, 0, iterations)
	assert.Equal(t, 0, res.Iterations)
	assert.InDeltaSlice(t, target3D, res.Position, 1e-9)
}

func TestEstimatorNotReady(t *testing.T) {
	sources := sourcesAt(anchors3D)
	readings := rangingReadings(t, sources, target3D, 1e-3)

	cfg := DefaultConfig()
	cfg.Method = PROSAC
	est, err := NewEstimator(RangingKind, sources, readings, cfg)
	require.NoError(t, err)
	assert.False(t, est.IsReady())
	_, err = est.Estimate()
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, est.SetMethod(RANSAC))
	assert.True(t, est.IsReady())

	// readings against an unknown source leave too few usable samples
	stranger := radio.NewSource(common.Vector{5, 5, 5}, 0)
	foreign := append(readings[:3:3], radio.Reading{Type: radio.Ranging, Source: stranger, Distance: 1})
	require.NoError(t, est.SetReadings(foreign))
	_, err = est.Estimate()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestNewEstimatorRejectsInvalidInput(t *testing.T) {
	sources := sourcesAt(anchors3D)
	readings := rangingReadings(t, sources, target3D, 1e-3)

	_, err := NewEstimator(RangingKind, sources[:3], readings, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewEstimator(RangingKind, sources, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewEstimator(RssiKind, sources, readings, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	mixed := append(sourcesAt([]common.Vector{{0, 0}}), sources...)
	_, err = NewEstimator(RangingKind, mixed, readings, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	est, err := NewEstimator(RangingKind, sources, readings, DefaultConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, est.SetThreshold(0), ErrInvalidArgument)
	assert.ErrorIs(t, est.SetPreliminarySubsetSize(3), ErrInvalidArgument)
	assert.ErrorIs(t, est.SetQualityScores([]float64{1}, nil), ErrInvalidArgument)
	assert.ErrorIs(t, est.SetInitialPosition(common.Vector{1, 2}), ErrInvalidArgument)
	assert.ErrorIs(t, est.SetConfidence(1.5), ErrInvalidArgument)
	assert.Equal(t, DefaultConfidence, est.Config().Confidence)
}

func TestEstimatorRejectsNonFiniteScores(t *testing.T) {
	sources := sourcesAt(append(slices.Clone(anchors3D), common.Vector{8, 8, 8}))
	readings := rangingReadings(t, sources, target3D, 1e-3)

	tests := []struct {
		name   string
		value  float64
		source bool
		evenly bool
	}{
		{"nan reading", math.NaN(), false, false},
		{"nan reading evenly", math.NaN(), false, true},
		{"inf reading", math.Inf(1), false, false},
		{"inf reading evenly", math.Inf(1), false, true},
		{"nan source", math.NaN(), true, true},
		{"negative inf source", math.Inf(-1), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Method = PROSAC
			cfg.EvenlyDistributeReadings = tt.evenly
			est, err := NewEstimator(RangingKind, sources, readings, cfg)
			require.NoError(t, err)
			require.NoError(t, est.SetRandomSource(rand.NewPCG(5, 6)))

			sourceScores, readingScores := uniformScores(5, 1), uniformScores(5, 1)
			if tt.source {
				sourceScores[0] = tt.value
			} else {
				readingScores[0] = tt.value
			}
			assert.ErrorIs(t, est.SetQualityScores(sourceScores, readingScores), ErrInvalidArgument)
			assert.False(t, est.IsReady())

			require.NoError(t, est.SetQualityScores(uniformScores(5, 1), uniformScores(5, 1)))
			res, err := est.Estimate()
			require.NoError(t, err)
			assert.InDeltaSlice(t, target3D, res.Position, 1e-6)
		})
	}
}

func TestEstimatorFailsWithoutConsensus(t *testing.T) {
	sources := sourcesAt(append(anchors3D, common.Vector{8, 9, 7}, common.Vector{-5, 3, 2}))
	rng := rand.New(rand.NewPCG(5, 5))
	readings := make([]radio.Reading, len(sources))
	for i, s := range sources {
		d := target3D.MustDistance(s.Position) + 5 + 20*rng.Float64()
		r, err := radio.NewRangingReading(s, d, 1e-3)
		require.NoError(t, err)
		readings[i] = r
	}

	est := newTestEstimator(t, RangingKind, sources, readings, RANSAC)
	require.NoError(t, est.SetMaxIterations(50))
	_, err := est.Estimate()
	assert.ErrorIs(t, err, ErrRobustEstimatorFailure)
	assert.Nil(t, est.Result())
	assert.False(t, est.IsLocked())
}

func TestEstimatorCovarianceNotPositiveDefinite(t *testing.T) {
	// coplanar sources leave the out-of-plane axis unobservable at a point
	// on the plane
	sources := sourcesAt([]common.Vector{{0, 0, 0}, {10, 0, 0}, {0, 10, 0}, {10, 10, 0}, {5, 1, 0}})
	target := common.Vector{3, 4, 0}
	readings := rangingReadings(t, sources, target, 1e-3)

	cfg := DefaultConfig()
	cfg.Method = RANSAC
	cfg.UseLinearSolver = false
	est, err := NewEstimator(RangingKind, sources, readings, cfg)
	require.NoError(t, err)
	require.NoError(t, est.SetInitialPosition(target))

	_, err = est.Estimate()
	assert.ErrorIs(t, err, ErrNumericalFailure)
}

func TestEstimatorListenerEvents(t *testing.T) {
	sources := sourcesAt(anchors3D)
	readings := rangingReadings(t, sources, target3D, 1e-3)
	est := newTestEstimator(t, RangingKind, sources, readings, RANSAC)

	var events []string
	var progress []float64
	require.NoError(t, est.SetListener(ListenerFuncs[*Estimator]{
		Start: func(e *Estimator) {
			assert.True(t, e.IsLocked())
			events = append(events, "start")
		},
		End: func(e *Estimator) {
			assert.True(t, e.IsLocked())
			events = append(events, "end")
		},
		NextIteration:  func(*Estimator, int) { events = append(events, "iteration") },
		ProgressChange: func(_ *Estimator, p float64) { progress = append(progress, p) },
	}))

	_, err := est.Estimate()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "start", events[0])
	assert.Equal(t, "iteration", events[1])
	assert.Equal(t, "end", events[len(events)-1])
	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	assert.IsNonDecreasing(t, progress)
}

func TestEstimatorIsLockedDuringCallbacks(t *testing.T) {
	sources := sourcesAt(anchors3D)
	readings := rangingReadings(t, sources, target3D, 1e-3)
	est := newTestEstimator(t, RangingKind, sources, readings, RANSAC)

	calls := 0
	mutate := func(e *Estimator) {
		calls++
		_, err := e.Estimate()
		assert.ErrorIs(t, err, ErrLocked)
		assert.ErrorIs(t, e.SetSources(sources), ErrLocked)
		assert.ErrorIs(t, e.SetReadings(readings), ErrLocked)
		assert.ErrorIs(t, e.SetQualityScores(nil, nil), ErrLocked)
		assert.ErrorIs(t, e.SetMethod(LMedS), ErrLocked)
		assert.ErrorIs(t, e.SetConfidence(0.5), ErrLocked)
		assert.ErrorIs(t, e.SetMaxIterations(10), ErrLocked)
		assert.ErrorIs(t, e.SetThreshold(1), ErrLocked)
		assert.ErrorIs(t, e.SetPreliminarySubsetSize(5), ErrLocked)
		assert.ErrorIs(t, e.SetInitialPosition(nil), ErrLocked)
		assert.ErrorIs(t, e.SetListener(nil), ErrLocked)
		assert.ErrorIs(t, e.SetRandomSource(nil), ErrLocked)
		assert.ErrorIs(t, e.SetLogger(nil), ErrLocked)
		assert.ErrorIs(t, e.SetConfig(DefaultConfig()), ErrLocked)
	}
	require.NoError(t, est.SetListener(ListenerFuncs[*Estimator]{
		Start:          mutate,
		End:            mutate,
		NextIteration:  func(e *Estimator, _ int) { mutate(e) },
		ProgressChange: func(e *Estimator, _ float64) { mutate(e) },
	}))

	_, err := est.Estimate()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 3)
	assert.Equal(t, RANSAC, est.Config().Method)
	assert.False(t, est.IsLocked())
	require.NoError(t, est.SetMethod(LMedS))
}

func TestEstimatorUnlocksAfterListenerPanic(t *testing.T) {
	sources := sourcesAt(anchors3D)
	readings := rangingReadings(t, sources, target3D, 1e-3)
	est := newTestEstimator(t, RangingKind, sources, readings, RANSAC)
	require.NoError(t, est.SetListener(ListenerFuncs[*Estimator]{
		NextIteration: func(*Estimator, int) { panic("listener failed") },
	}))

	assert.Panics(t, func() { _, _ = est.Estimate() })
	assert.Equal(t, Idle, est.State())
	require.NoError(t, est.SetListener(nil))

	res, err := est.Estimate()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(res.Residuals[0]))
}
