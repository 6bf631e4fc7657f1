package common

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorDistance(t *testing.T) {
	a := Vector{0, 0, 0}
	b := Vector{1, 2, 2}

	d, err := a.Distance(b)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, d, 1e-12)

	_, err = a.Distance(Vector{1, 2})
	assert.Error(t, err)
}

func TestVectorArithmetic(t *testing.T) {
	a := Vector{1, 2}
	b := Vector{3, 5}

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, Vector{4, 7}, sum)

	diff, err := b.Subtract(a)
	require.NoError(t, err)
	assert.Equal(t, Vector{2, 3}, diff)

	assert.Equal(t, Vector{2, 4}, a.MultiplyByScalar(2))
	assert.InDelta(t, math.Sqrt(5), a.Norm(), 1e-12)
}

func TestCentroid(t *testing.T) {
	c, err := Centroid([]Vector{{0, 0}, {2, 0}, {2, 2}, {0, 2}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1}, c, 1e-12)

	_, err = Centroid(nil)
	assert.Error(t, err)
}

func TestNewRandomVectorStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	bounds := []float64{-1, 1, 10, 20}
	for i := 0; i < 100; i++ {
		v, err := NewRandomVector(rng, 2, bounds)
		require.NoError(t, err)
		assert.True(t, v[0] >= -1 && v[0] <= 1)
		assert.True(t, v[1] >= 10 && v[1] <= 20)
	}

	_, err := NewRandomVector(rng, 3, bounds)
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	a := Vector{1, 2, 3}
	b := a.Clone()
	b[0] = 42
	assert.Equal(t, 1.0, a[0])
	assert.Nil(t, Vector(nil).Clone())
}
