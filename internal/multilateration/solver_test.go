package multilateration

import (
	"math/rand/v2"
	"testing"

	"indoor-positioning/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func measurementsTo(target common.Vector, sources []common.Vector, noise func() float64) []Measurement {
	ms := make([]Measurement, len(sources))
	for i, s := range sources {
		d := target.MustDistance(s)
		if noise != nil {
			d += noise()
		}
		ms[i] = Measurement{SourcePosition: s, Distance: d, StdDev: 0.01}
	}
	return ms
}

var sources3D = []common.Vector{
	{0, 0, 0},
	{10, 0, 1},
	{0, 10, 2},
	{1, 2, 10},
	{8, 9, 7},
}

func TestSolveLeastSquaresNoiseless(t *testing.T) {
	target := common.Vector{3, 4, 5}

	sol, err := SolveLeastSquares(measurementsTo(target, sources3D[:4], nil), 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, target, sol.Position, 1e-9)
	assert.InDelta(t, 0, sol.ResidualError, 1e-9)

	sol, err = SolveLeastSquares(measurementsTo(target, sources3D, nil), 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, target, sol.Position, 1e-9)
}

func TestSolveHomogeneousNoiseless(t *testing.T) {
	target := common.Vector{-2, 7, 1}

	sol, err := SolveHomogeneous(measurementsTo(target, sources3D, nil), 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, target, sol.Position, 1e-7)

	target2D := common.Vector{1.5, -0.5}
	sources2D := []common.Vector{{0, 0}, {4, 0}, {0, 4}}
	sol, err = SolveHomogeneous(measurementsTo(target2D, sources2D, nil), 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, target2D, sol.Position, 1e-9)
}

func TestLinearSolversRejectDegenerateGeometry(t *testing.T) {
	collinear := []common.Vector{{0, 0}, {1, 0}, {2, 0}}
	ms := measurementsTo(common.Vector{1, 1}, collinear, nil)

	_, err := SolveLeastSquares(ms, 2)
	assert.ErrorIs(t, err, ErrRankDeficient)

	_, err = SolveHomogeneous(ms, 2)
	assert.ErrorIs(t, err, ErrRankDeficient)

	_, err = SolveLeastSquares(ms[:2], 2)
	assert.ErrorIs(t, err, ErrInsufficientMeasurements)
}

func TestRefineFromPerturbedStart(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	target := common.Vector{3, 4, 5}
	ms := measurementsTo(target, sources3D, nil)

	for i := 0; i < 20; i++ {
		start := common.Vector{
			target[0] + rng.NormFloat64(),
			target[1] + rng.NormFloat64(),
			target[2] + rng.NormFloat64(),
		}
		sol, err := Refine(ms, start, RefineOptions{KeepCovariance: true})
		require.NoError(t, err)
		assert.True(t, sol.Converged)
		assert.InDeltaSlice(t, target, sol.Position, 1e-8)
		require.NotNil(t, sol.Covariance)
		for j := 0; j < 3; j++ {
			assert.Greater(t, sol.Covariance.At(j, j), 0.0)
		}
	}
}

func TestRefineWithNoiseImprovesOnLinear(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	target := common.Vector{3, 4, 5}
	ms := measurementsTo(target, sources3D, func() float64 { return 0.01 * rng.NormFloat64() })

	linear, err := SolveLeastSquares(ms, 3)
	require.NoError(t, err)
	refined, err := Refine(ms, linear.Position, RefineOptions{})
	require.NoError(t, err)
	assert.LessOrEqual(t, refined.ResidualError, rmsResidual(ms, linear.Position)+1e-15)
	assert.Nil(t, refined.Covariance)
}

func TestRefineCovarianceNotPositiveDefinite(t *testing.T) {
	// Every source on the x axis leaves y unobservable.
	ms := []Measurement{
		{SourcePosition: common.Vector{0, 0}, Distance: 1},
		{SourcePosition: common.Vector{2, 0}, Distance: 1},
		{SourcePosition: common.Vector{4, 0}, Distance: 3},
	}
	_, err := Refine(ms, common.Vector{1, 0}, RefineOptions{KeepCovariance: true})
	assert.ErrorIs(t, err, ErrNotPositiveDefinite)
}

func TestCalculateLocalizationError(t *testing.T) {
	e, err := CalculateLocalizationError(common.Vector{0, 0}, common.Vector{3, 4})
	require.NoError(t, err)
	assert.Equal(t, 5.0, e)

	_, err = CalculateLocalizationError(nil, common.Vector{1})
	assert.Error(t, err)
}
