package robust

import (
	"math/rand/v2"
	"testing"

	"indoor-positioning/internal/common"
	"indoor-positioning/internal/radio"

	"github.com/stretchr/testify/require"
)

var (
	anchors3D = []common.Vector{
		{0, 0, 0},
		{10, 0, 1},
		{0, 10, 2},
		{1, 2, 10},
	}
	target3D = common.Vector{3, 4, 5}
)

func sourcesAt(positions []common.Vector) []*radio.Source {
	sources := make([]*radio.Source, len(positions))
	for i, p := range positions {
		sources[i] = radio.NewSource(p, 0)
	}
	return sources
}

// randomSources scatters n sources in a 20 m cube around the origin,
// keeping them at least a metre away from target.
func randomSources(rng *rand.Rand, n int, target common.Vector) []*radio.Source {
	sources := make([]*radio.Source, 0, n)
	for len(sources) < n {
		p := common.Vector{rng.Float64()*20 - 10, rng.Float64()*20 - 10, rng.Float64()*20 - 10}
		if p.MustDistance(target) < 1 {
			continue
		}
		sources = append(sources, radio.NewSource(p, 0))
	}
	return sources
}

func rssiAt(t *testing.T, src *radio.Source, distance float64) float64 {
	t.Helper()
	rssi, err := radio.RSSIFromDistance(src, distance)
	require.NoError(t, err)
	return rssi
}

func rangingReadings(t *testing.T, sources []*radio.Source, target common.Vector, stdDev float64) []radio.Reading {
	t.Helper()
	readings := make([]radio.Reading, len(sources))
	for i, s := range sources {
		r, err := radio.NewRangingReading(s, target.MustDistance(s.Position), stdDev)
		require.NoError(t, err)
		readings[i] = r
	}
	return readings
}

func rssiReadings(t *testing.T, sources []*radio.Source, target common.Vector, stdDev float64) []radio.Reading {
	t.Helper()
	readings := make([]radio.Reading, len(sources))
	for i, s := range sources {
		r, err := radio.NewRssiReading(s, rssiAt(t, s, target.MustDistance(s.Position)), stdDev)
		require.NoError(t, err)
		readings[i] = r
	}
	return readings
}

func uniformScores(n int, v float64) []float64 {
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = v
	}
	return scores
}

// outlierScene is a fingerprint of combined readings where the readings of
// the first fifth of the sources overshoot by 5 to 15 m and lose 10 to 20 dB.
type outlierScene struct {
	target        common.Vector
	sources       []*radio.Source
	fingerprint   *radio.Fingerprint
	sourceScores  []float64
	readingScores []float64
	corrupted     []bool
}

func newOutlierScene(t *testing.T, rng *rand.Rand, n int, rangingNoise, rssiNoise float64) outlierScene {
	t.Helper()
	target := common.Vector{rng.Float64()*6 - 3, rng.Float64()*6 - 3, rng.Float64()*6 - 3}
	sources := randomSources(rng, n, target)
	scene := outlierScene{
		target:        target,
		sources:       sources,
		sourceScores:  make([]float64, n),
		readingScores: make([]float64, n),
		corrupted:     make([]bool, n),
	}

	readings := make([]radio.Reading, n)
	for i, s := range sources {
		d := target.MustDistance(s.Position)
		measured := d + rng.NormFloat64()*rangingNoise
		rssi := rssiAt(t, s, d) + rng.NormFloat64()*rssiNoise
		quality := 0.95
		if i < n/5 {
			scene.corrupted[i] = true
			measured = d + 5 + 10*rng.Float64()
			rssi -= 10 + 10*rng.Float64()
			quality = 0.05
		}
		scene.sourceScores[i] = quality
		scene.readingScores[i] = quality

		r, err := radio.NewRangingAndRssiReading(s, max(measured, 0), rssi, max(rangingNoise, 0.1), max(rssiNoise, 0.5))
		require.NoError(t, err)
		readings[i] = r
	}

	fp, err := radio.NewFingerprint(readings)
	require.NoError(t, err)
	scene.fingerprint = fp
	return scene
}

// newNormalOutlierScene places n sources whose combined readings carry
// N(0, 1e-3) noise, except the first fifth, whose distance and RSSI are off
// by N(0, outlierStdDev).
func newNormalOutlierScene(t *testing.T, rng *rand.Rand, n int, outlierStdDev float64) outlierScene {
	t.Helper()
	const noise = 1e-3
	target := common.Vector{rng.Float64()*6 - 3, rng.Float64()*6 - 3, rng.Float64()*6 - 3}
	sources := randomSources(rng, n, target)
	scene := outlierScene{
		target:        target,
		sources:       sources,
		sourceScores:  make([]float64, n),
		readingScores: make([]float64, n),
		corrupted:     make([]bool, n),
	}

	readings := make([]radio.Reading, n)
	for i, s := range sources {
		d := target.MustDistance(s.Position)
		measured := d + rng.NormFloat64()*noise
		rssi := rssiAt(t, s, d) + rng.NormFloat64()*noise
		quality := 0.95
		if i < n/5 {
			scene.corrupted[i] = true
			measured = d + rng.NormFloat64()*outlierStdDev
			rssi = rssiAt(t, s, d) + rng.NormFloat64()*outlierStdDev
			quality = 0.05
		}
		scene.sourceScores[i] = quality
		scene.readingScores[i] = quality

		r, err := radio.NewRangingAndRssiReading(s, max(measured, 0), rssi, noise, noise)
		require.NoError(t, err)
		readings[i] = r
	}

	fp, err := radio.NewFingerprint(readings)
	require.NoError(t, err)
	scene.fingerprint = fp
	return scene
}
