package radio

import "fmt"

// Fingerprint is an ordered set of readings taken at one location.
// Reading order is significant: it breaks ties when sorting.
type Fingerprint struct {
	Readings []Reading
}

// NewFingerprint validates the readings and wraps them.
func NewFingerprint(readings []Reading) (*Fingerprint, error) {
	for i, r := range readings {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
	}
	return &Fingerprint{Readings: readings}, nil
}

// Len returns the number of readings.
func (f *Fingerprint) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Readings)
}

// Sources returns the distinct sources referenced by the readings,
// in order of first appearance.
func (f *Fingerprint) Sources() []*Source {
	seen := make(map[string]bool)
	var out []*Source
	for _, r := range f.Readings {
		if r.Source == nil || seen[r.Source.ID] {
			continue
		}
		seen[r.Source.ID] = true
		out = append(out, r.Source)
	}
	return out
}

// Component is a single-type reading extracted from a fingerprint together
// with the index of the reading it came from.
type Component struct {
	Reading Reading
	Index   int
}

// RangingReadings extracts every ranging-capable component.
func (f *Fingerprint) RangingReadings() []Component {
	var out []Component
	for i, r := range f.Readings {
		if c, ok := r.RangingComponent(); ok {
			out = append(out, Component{Reading: c, Index: i})
		}
	}
	return out
}

// RssiReadings extracts every RSSI-capable component.
func (f *Fingerprint) RssiReadings() []Component {
	var out []Component
	for i, r := range f.Readings {
		if c, ok := r.RssiComponent(); ok {
			out = append(out, Component{Reading: c, Index: i})
		}
	}
	return out
}

// CountByType returns how many readings of each type the fingerprint holds.
func (f *Fingerprint) CountByType() map[ReadingType]int {
	counts := make(map[ReadingType]int)
	for _, r := range f.Readings {
		counts[r.Type]++
	}
	return counts
}
