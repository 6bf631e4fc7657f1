package radio

import (
	"fmt"
	"math"
)

// ReadingType tags the variant held by a Reading. The numeric order is the
// processing priority: ranging first, RSSI-only last.
type ReadingType int

const (
	Ranging ReadingType = iota
	RangingAndRssi
	Rssi
)

var readingTypeNames = [...]string{"ranging", "ranging+rssi", "rssi"}

func (t ReadingType) String() string {
	if int(t) >= 0 && int(t) < len(readingTypeNames) {
		return readingTypeNames[t]
	}
	return "unknown"
}

// Reading is a single observation against one source.
// Only the fields meaningful for Type are set.
type Reading struct {
	Type   ReadingType
	Source *Source

	Distance       float64
	DistanceStdDev float64

	RSSI       float64
	RSSIStdDev float64
}

// NewRangingReading creates a distance-only reading.
func NewRangingReading(src *Source, distance, stdDev float64) (Reading, error) {
	r := Reading{Type: Ranging, Source: src, Distance: distance, DistanceStdDev: stdDev}
	return r, r.Validate()
}

// NewRssiReading creates an RSSI-only reading.
func NewRssiReading(src *Source, rssi, stdDev float64) (Reading, error) {
	r := Reading{Type: Rssi, Source: src, RSSI: rssi, RSSIStdDev: stdDev}
	return r, r.Validate()
}

// NewRangingAndRssiReading creates a reading carrying both a distance and an RSSI.
func NewRangingAndRssiReading(src *Source, distance, rssi, distanceStdDev, rssiStdDev float64) (Reading, error) {
	r := Reading{
		Type:           RangingAndRssi,
		Source:         src,
		Distance:       distance,
		DistanceStdDev: distanceStdDev,
		RSSI:           rssi,
		RSSIStdDev:     rssiStdDev,
	}
	return r, r.Validate()
}

// HasDistance reports whether the reading carries a ranging component.
func (r Reading) HasDistance() bool {
	return r.Type == Ranging || r.Type == RangingAndRssi
}

// HasRSSI reports whether the reading carries an RSSI component.
func (r Reading) HasRSSI() bool {
	return r.Type == Rssi || r.Type == RangingAndRssi
}

// RangingComponent returns the ranging part of the reading as a Ranging reading.
func (r Reading) RangingComponent() (Reading, bool) {
	if !r.HasDistance() {
		return Reading{}, false
	}
	return Reading{Type: Ranging, Source: r.Source, Distance: r.Distance, DistanceStdDev: r.DistanceStdDev}, true
}

// RssiComponent returns the RSSI part of the reading as an Rssi reading.
func (r Reading) RssiComponent() (Reading, bool) {
	if !r.HasRSSI() {
		return Reading{}, false
	}
	return Reading{Type: Rssi, Source: r.Source, RSSI: r.RSSI, RSSIStdDev: r.RSSIStdDev}, true
}

// Validate checks the invariants of the tagged variant.
func (r Reading) Validate() error {
	if r.Source == nil {
		return fmt.Errorf("%w: reading has no source", ErrInvalidReading)
	}
	switch r.Type {
	case Ranging, RangingAndRssi, Rssi:
	default:
		return fmt.Errorf("%w: unknown reading type %d", ErrInvalidReading, int(r.Type))
	}
	if r.HasDistance() {
		if r.Distance < 0 || math.IsNaN(r.Distance) || math.IsInf(r.Distance, 0) {
			return fmt.Errorf("%w: distance %v", ErrInvalidReading, r.Distance)
		}
		if r.DistanceStdDev < 0 {
			return fmt.Errorf("%w: negative distance standard deviation", ErrInvalidReading)
		}
	}
	if r.HasRSSI() {
		if math.IsNaN(r.RSSI) || math.IsInf(r.RSSI, 0) {
			return fmt.Errorf("%w: rssi %v", ErrInvalidReading, r.RSSI)
		}
		if r.RSSIStdDev < 0 {
			return fmt.Errorf("%w: negative rssi standard deviation", ErrInvalidReading)
		}
	}
	return nil
}

func (r Reading) String() string {
	id := "<nil>"
	if r.Source != nil {
		id = r.Source.ID
	}
	switch r.Type {
	case Ranging:
		return fmt.Sprintf("%s(%s d=%.3f)", r.Type, id, r.Distance)
	case Rssi:
		return fmt.Sprintf("%s(%s rssi=%.2f)", r.Type, id, r.RSSI)
	default:
		return fmt.Sprintf("%s(%s d=%.3f rssi=%.2f)", r.Type, id, r.Distance, r.RSSI)
	}
}
