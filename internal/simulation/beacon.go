package simulation

import (
	"fmt"
	"math"
	"math/rand/v2"

	"indoor-positioning/internal/common"
	"indoor-positioning/internal/radio"
)

// NoiseFunction perturbs a true value (a distance or an RSSI).
// A nil rng selects the global generator.
type NoiseFunction func(rng *rand.Rand, value float64) float64

// Beacon is a static radio source that can be ranged and heard by targets
// within its detection radius.
type Beacon struct {
	source          *radio.Source
	detectionRadius float64 // zero means unlimited

	rangingNoise  NoiseFunction
	rangingStdDev float64 // declared on readings
	rssiNoise     NoiseFunction
	rssiStdDev    float64
}

// NewBeacon wraps src. Readings are noiseless until noise is set.
func NewBeacon(src *radio.Source, radius float64) *Beacon {
	return &Beacon{source: src, detectionRadius: radius}
}

// SetRangingNoise sets the distance noise and the standard deviation
// attached to ranging readings.
func (b *Beacon) SetRangingNoise(noise NoiseFunction, stdDev float64) {
	b.rangingNoise = noise
	b.rangingStdDev = stdDev
}

// SetRssiNoise sets the RSSI noise (dB) and the standard deviation attached
// to RSSI readings.
func (b *Beacon) SetRssiNoise(noise NoiseFunction, stdDev float64) {
	b.rssiNoise = noise
	b.rssiStdDev = stdDev
}

func (b *Beacon) GetID() string              { return b.source.ID }
func (b *Beacon) GetPosition() common.Vector { return b.source.Position.Clone() }
func (b *Beacon) Source() *radio.Source      { return b.source }
func (b *Beacon) DetectionRadius() float64   { return b.detectionRadius }

// SetPosition moves the beacon.
func (b *Beacon) SetPosition(pos common.Vector) error {
	if pos.Dimension() != b.source.Dimension() {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", b.source.Dimension(), pos.Dimension())
	}
	b.source.Position = pos.Clone()
	return nil
}

// Update is a no-op: beacons are static.
func (b *Beacon) Update(deltaTime float64, bounds []float64) {}

// Observe produces a reading of type kind taken at target. extraDistance is
// added to the true distance before noise, simulating multipath; the RSSI is
// derived from the lengthened path as well. It reports false when target is
// out of range.
func (b *Beacon) Observe(rng *rand.Rand, target common.Vector, kind radio.ReadingType, extraDistance float64) (radio.Reading, bool, error) {
	trueDist, err := b.source.Position.Distance(target)
	if err != nil {
		return radio.Reading{}, false, fmt.Errorf("error calculating distance for beacon %s: %w", b.source.ID, err)
	}
	if b.detectionRadius > 0 && trueDist > b.detectionRadius {
		return radio.Reading{}, false, nil
	}

	path := trueDist + extraDistance
	distance := path
	if b.rangingNoise != nil {
		distance = b.rangingNoise(rng, path)
	}
	distance = max(distance, 0)

	// the path-loss model is undefined on top of the source
	rssi, err := radio.RSSIFromDistance(b.source, max(path, 1e-3))
	if err != nil {
		return radio.Reading{}, false, err
	}
	if b.rssiNoise != nil {
		rssi = b.rssiNoise(rng, rssi)
	}

	var r radio.Reading
	switch kind {
	case radio.Ranging:
		r, err = radio.NewRangingReading(b.source, distance, b.rangingStdDev)
	case radio.Rssi:
		r, err = radio.NewRssiReading(b.source, rssi, b.rssiStdDev)
	default:
		r, err = radio.NewRangingAndRssiReading(b.source, distance, rssi, b.rangingStdDev, b.rssiStdDev)
	}
	if err != nil {
		return radio.Reading{}, false, err
	}
	return r, true, nil
}

func (b *Beacon) String() string {
	return fmt.Sprintf("Beacon[%s] Pos: %s Radius: %.2f Ptx: %.1fdBm", b.source.ID, b.source.Position, b.detectionRadius, b.source.TxPowerDBm)
}

// --- Noise functions ---

func normFloat64(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.NormFloat64()
	}
	return rng.NormFloat64()
}

func float64n(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64()
	}
	return rng.Float64()
}

// NoNoise is a NoiseFunction that adds no noise.
func NoNoise(_ *rand.Rand, value float64) float64 {
	return value
}

// GaussianNoise adds zero-mean normal noise.
func GaussianNoise(stdDev float64) NoiseFunction {
	stdDev = math.Max(stdDev, 0)
	return func(rng *rand.Rand, value float64) float64 {
		return value + normFloat64(rng)*stdDev
	}
}

// UniformNoise adds noise uniformly distributed in [-maxDelta, +maxDelta].
func UniformNoise(maxDelta float64) NoiseFunction {
	maxDelta = math.Max(maxDelta, 0)
	return func(rng *rand.Rand, value float64) float64 {
		return value + (float64n(rng)*2-1)*maxDelta
	}
}

// PercentageNoise adds uniform noise within +/- percentage of the value.
func PercentageNoise(percentage float64) NoiseFunction {
	percentage = math.Max(percentage, 0)
	return func(rng *rand.Rand, value float64) float64 {
		return value + (float64n(rng)*2-1)*math.Abs(value)*percentage
	}
}
