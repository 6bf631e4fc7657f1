package simulation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"indoor-positioning/internal/common"
	"indoor-positioning/internal/radio"
)

// ReadingMode selects which readings each beacon contributes to a fingerprint.
type ReadingMode int

const (
	// ModeCombined gives one RangingAndRssi reading per beacon.
	ModeCombined ReadingMode = iota
	// ModeSeparate gives one Ranging and one Rssi reading per beacon.
	ModeSeparate
	ModeRanging
	ModeRssi
)

var readingModeNames = [...]string{"combined", "separate", "ranging", "rssi"}

func (m ReadingMode) String() string {
	if m >= 0 && int(m) < len(readingModeNames) {
		return readingModeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m ReadingMode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(readingModeNames) {
		return nil, fmt.Errorf("unknown reading mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *ReadingMode) UnmarshalText(text []byte) error {
	for i, name := range readingModeNames {
		if strings.EqualFold(string(text), name) {
			*m = ReadingMode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown reading mode %q", text)
}

func (m ReadingMode) types() []radio.ReadingType {
	switch m {
	case ModeSeparate:
		return []radio.ReadingType{radio.Ranging, radio.Rssi}
	case ModeRanging:
		return []radio.ReadingType{radio.Ranging}
	case ModeRssi:
		return []radio.ReadingType{radio.Rssi}
	default:
		return []radio.ReadingType{radio.RangingAndRssi}
	}
}

// Scoring selects how quality scores are assigned to readings.
type Scoring int

const (
	// ScoreByClass gives 0.95 to clean and 0.05 to corrupted readings.
	ScoreByClass Scoring = iota
	// ScoreByError gives 1/(1+|distance error|).
	ScoreByError
)

var scoringNames = [...]string{"class", "error"}

func (s Scoring) String() string {
	if s >= 0 && int(s) < len(scoringNames) {
		return scoringNames[s]
	}
	return fmt.Sprintf("scoring(%d)", int(s))
}

func (s Scoring) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(scoringNames) {
		return nil, fmt.Errorf("unknown scoring %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Scoring) UnmarshalText(text []byte) error {
	for i, name := range scoringNames {
		if strings.EqualFold(string(text), name) {
			*s = Scoring(i)
			return nil
		}
	}
	return fmt.Errorf("unknown scoring %q", text)
}

const (
	cleanScore     = 0.95
	corruptedScore = 0.05
)

// Observation is what a target sees at one position: the beacons' sources,
// the fingerprint and the quality scores matching both.
type Observation struct {
	Truth         common.Vector
	Sources       []*radio.Source
	Fingerprint   *radio.Fingerprint
	SourceScores  []float64
	ReadingScores []float64

	// Corrupted flags fingerprint readings carrying an injected outlier.
	Corrupted []bool
}

// CorruptedCount returns the number of readings carrying an outlier.
func (o *Observation) CorruptedCount() int {
	n := 0
	for _, c := range o.Corrupted {
		if c {
			n++
		}
	}
	return n
}

// Observe collects the readings of every beacon in range of truth. A
// fraction outlierFraction of those beacons, chosen at random, add
// |N(0, outlierStdDev)| to their path length.
func Observe(rng *rand.Rand, beacons []*Beacon, truth common.Vector, mode ReadingMode, outlierFraction, outlierStdDev float64, scoring Scoring) (*Observation, error) {
	if len(beacons) == 0 {
		return nil, fmt.Errorf("no beacons")
	}

	obs := &Observation{
		Truth:        truth.Clone(),
		Sources:      make([]*radio.Source, len(beacons)),
		SourceScores: make([]float64, len(beacons)),
	}
	var inRange []int
	for i, b := range beacons {
		obs.Sources[i] = b.Source()
		obs.SourceScores[i] = cleanScore
		d, err := b.GetPosition().Distance(truth)
		if err != nil {
			return nil, err
		}
		if b.DetectionRadius() <= 0 || d <= b.DetectionRadius() {
			inRange = append(inRange, i)
		}
	}

	extra := make([]float64, len(beacons))
	nOutliers := int(math.Round(outlierFraction * float64(len(inRange))))
	for _, k := range perm(rng, len(inRange))[:nOutliers] {
		i := inRange[k]
		extra[i] = math.Abs(normFloat64(rng) * outlierStdDev)
		if scoring == ScoreByClass {
			obs.SourceScores[i] = corruptedScore
		}
	}

	var readings []radio.Reading
	for _, i := range inRange {
		b := beacons[i]
		trueDist := b.GetPosition().MustDistance(truth)
		for _, kind := range mode.types() {
			r, ok, err := b.Observe(rng, truth, kind, extra[i])
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			corrupted := extra[i] > 0
			score := cleanScore
			switch {
			case scoring == ScoreByError:
				errAbs := extra[i]
				if r.HasDistance() {
					errAbs = math.Abs(r.Distance - trueDist)
				}
				score = 1 / (1 + errAbs)
			case corrupted:
				score = corruptedScore
			}
			readings = append(readings, r)
			obs.ReadingScores = append(obs.ReadingScores, score)
			obs.Corrupted = append(obs.Corrupted, corrupted)
		}
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("no beacon in range of %s", truth)
	}

	fp, err := radio.NewFingerprint(readings)
	if err != nil {
		return nil, err
	}
	obs.Fingerprint = fp
	return obs, nil
}

func perm(rng *rand.Rand, n int) []int {
	if rng == nil {
		return rand.Perm(n)
	}
	return rng.Perm(n)
}
