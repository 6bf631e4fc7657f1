package robust

import (
	"math"

	"indoor-positioning/internal/common"
	"indoor-positioning/internal/multilateration"
	"indoor-positioning/internal/radio"
)

// ReadingKind selects the reading-type family a robust pass works on.
type ReadingKind int

const (
	// RangingKind uses Ranging readings and the distance of RangingAndRssi readings.
	RangingKind ReadingKind = iota
	// RssiKind uses Rssi readings and the RSSI of RangingAndRssi readings.
	RssiKind
)

func (k ReadingKind) String() string {
	if k == RssiKind {
		return "rssi"
	}
	return "ranging"
}

// accepts reports whether r carries a component of the kind.
func (k ReadingKind) accepts(r radio.Reading) bool {
	if k == RssiKind {
		return r.HasRSSI()
	}
	return r.HasDistance()
}

// sample is one (source position, distance) observation fed to the solver.
type sample struct {
	position  common.Vector
	distance  float64
	stdDev    float64
	threshold float64
	quality   float64
	source    int // index into the estimator's sources
	reading   int // index into the estimator's readings
}

func (s sample) measurement() multilateration.Measurement {
	return multilateration.Measurement{SourcePosition: s.position, Distance: s.distance, StdDev: s.stdDev}
}

func measurementsOf(samples []sample, idxs []int) []multilateration.Measurement {
	ms := make([]multilateration.Measurement, len(idxs))
	for i, idx := range idxs {
		ms[i] = samples[idx].measurement()
	}
	return ms
}

// buildSamples turns readings into samples. Readings whose source is not in
// sources are skipped.
func buildSamples(kind ReadingKind, cfg Config, sources []*radio.Source, readings []radio.Reading, sourceScores, readingScores []float64) []sample {
	index := make(map[string]int, len(sources))
	for i, s := range sources {
		if _, dup := index[s.ID]; !dup {
			index[s.ID] = i
		}
	}

	samples := make([]sample, 0, len(readings))
	for i, r := range readings {
		si, ok := index[r.Source.ID]
		if !ok {
			continue
		}
		src := sources[si]

		var distance, variance float64
		if kind == RssiKind {
			distance = radio.DistanceFromRSSI(src, r.RSSI)
			sd := radio.DistanceStdDevFromRSSI(src, r.RSSI, r.RSSIStdDev)
			variance = sd * sd
		} else {
			distance = r.Distance
			variance = r.DistanceStdDev * r.DistanceStdDev
		}
		if cfg.UseSourcePositionCovariance {
			variance += src.PositionVariance()
		}
		stdDev := math.Sqrt(variance)
		if stdDev <= 0 || math.IsNaN(stdDev) || math.IsInf(stdDev, 0) {
			stdDev = cfg.FallbackDistanceStdDev
		}

		threshold := cfg.Threshold
		if threshold <= 0 {
			threshold = cfg.ThresholdFactor * stdDev
		}

		quality := 0.0
		if sourceScores != nil {
			quality += sourceScores[si]
		}
		if readingScores != nil {
			quality += readingScores[i]
		}

		samples = append(samples, sample{
			position:  src.Position,
			distance:  distance,
			stdDev:    stdDev,
			threshold: threshold,
			quality:   quality,
			source:    si,
			reading:   i,
		})
	}
	return samples
}
