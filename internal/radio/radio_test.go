package radio

import (
	"errors"
	"math"
	"testing"

	"indoor-positioning/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPathLossRoundTrip(t *testing.T) {
	src := NewSource(common.Vector{0, 0, 0}, -40)
	src.PathLossExponent = 2.5

	for _, d := range []float64{0.5, 1, 3.7, 12, 80} {
		rssi, err := RSSIFromDistance(src, d)
		require.NoError(t, err)
		assert.InDelta(t, d, DistanceFromRSSI(src, rssi), 1e-9*d)
	}

	_, err := RSSIFromDistance(src, 0)
	assert.True(t, errors.Is(err, ErrInvalidReading))
}

func TestDistanceStdDevFromRSSI(t *testing.T) {
	src := NewSource(common.Vector{0, 0}, -30)
	rssi, err := RSSIFromDistance(src, 10)
	require.NoError(t, err)

	assert.Zero(t, DistanceStdDevFromRSSI(src, rssi, 0))

	sigma := DistanceStdDevFromRSSI(src, rssi, 1)
	expected := 10 * math.Ln10 / (10 * DefaultPathLossExponent)
	assert.InDelta(t, expected, sigma, 1e-9)

	src.TxPowerStdDev = 1
	assert.InDelta(t, expected*math.Sqrt2, DistanceStdDevFromRSSI(src, rssi, 1), 1e-9)
}

func TestReadingConstructors(t *testing.T) {
	src := NewSource(common.Vector{1, 2}, -40)

	r, err := NewRangingReading(src, 3, 0.1)
	require.NoError(t, err)
	assert.True(t, r.HasDistance())
	assert.False(t, r.HasRSSI())

	r, err = NewRssiReading(src, -60, 1)
	require.NoError(t, err)
	assert.False(t, r.HasDistance())
	assert.True(t, r.HasRSSI())

	r, err = NewRangingAndRssiReading(src, 3, -60, 0.1, 1)
	require.NoError(t, err)
	rc, ok := r.RangingComponent()
	require.True(t, ok)
	assert.Equal(t, Ranging, rc.Type)
	assert.Equal(t, 3.0, rc.Distance)
	sc, ok := r.RssiComponent()
	require.True(t, ok)
	assert.Equal(t, Rssi, sc.Type)
	assert.Equal(t, -60.0, sc.RSSI)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"nil source", func() error { _, err := NewRangingReading(nil, 1, 0); return err }},
		{"negative distance", func() error { _, err := NewRangingReading(src, -1, 0); return err }},
		{"negative std", func() error { _, err := NewRssiReading(src, -50, -1); return err }},
		{"nan rssi", func() error { _, err := NewRssiReading(src, math.NaN(), 0); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(), ErrInvalidReading)
		})
	}
}

func TestFingerprintComponents(t *testing.T) {
	a := NewSource(common.Vector{0, 0}, -40)
	b := NewSource(common.Vector{5, 0}, -40)
	r1, _ := NewRangingReading(a, 1, 0)
	r2, _ := NewRssiReading(b, -60, 1)
	r3, _ := NewRangingAndRssiReading(b, 2, -55, 0, 1)
	r4, _ := NewRangingReading(a, 1.1, 0)

	fp, err := NewFingerprint([]Reading{r1, r2, r3, r4})
	require.NoError(t, err)

	sources := fp.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, a.ID, sources[0].ID)
	assert.Equal(t, b.ID, sources[1].ID)

	ranging := fp.RangingReadings()
	require.Len(t, ranging, 3)
	assert.Equal(t, []int{0, 2, 3}, []int{ranging[0].Index, ranging[1].Index, ranging[2].Index})

	rssi := fp.RssiReadings()
	require.Len(t, rssi, 2)
	assert.Equal(t, 1, rssi[0].Index)
	assert.Equal(t, 2, rssi[1].Index)

	counts := fp.CountByType()
	assert.Equal(t, 2, counts[Ranging])
	assert.Equal(t, 1, counts[Rssi])
	assert.Equal(t, 1, counts[RangingAndRssi])

	_, err = NewFingerprint([]Reading{{Type: Ranging}})
	assert.ErrorIs(t, err, ErrInvalidReading)
}

func TestSourcePositionCovariance(t *testing.T) {
	src := NewSource(common.Vector{0, 0, 0}, -40)
	assert.Zero(t, src.PositionVariance())

	require.NoError(t, src.SetPositionCovariance(mat.NewSymDense(3, []float64{
		1, 0, 0,
		0, 2, 0,
		0, 0, 3,
	})))
	assert.InDelta(t, 2.0, src.PositionVariance(), 1e-12)

	err := src.SetPositionCovariance(mat.NewSymDense(2, nil))
	assert.ErrorIs(t, err, ErrInvalidSource)
	assert.NoError(t, src.Validate())
}
