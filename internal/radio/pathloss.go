package radio

import (
	"fmt"
	"math"
)

const (
	SpeedOfLight            = 299792458.0 // m/s
	DefaultPathLossExponent = 2.0         // free space
	DefaultFrequencyHz      = 2.4e9       // WiFi / BLE band
)

func (s *Source) pathLossExponent() float64 {
	if s.PathLossExponent > 0 {
		return s.PathLossExponent
	}
	return DefaultPathLossExponent
}

func (s *Source) wavelength() float64 {
	f := s.FrequencyHz
	if f <= 0 {
		f = DefaultFrequencyHz
	}
	return SpeedOfLight / f
}

// RSSIFromDistance returns the received power in dBm at the given distance
// following the log-distance model
//
//	rssi = Ptx + 10 n log10(lambda / (4 pi d))
func RSSIFromDistance(src *Source, distance float64) (float64, error) {
	if distance <= 0 {
		return 0, fmt.Errorf("%w: distance must be positive, got %v", ErrInvalidReading, distance)
	}
	k := src.wavelength() / (4 * math.Pi)
	return src.TxPowerDBm + 10*src.pathLossExponent()*math.Log10(k/distance), nil
}

// DistanceFromRSSI inverts RSSIFromDistance.
func DistanceFromRSSI(src *Source, rssi float64) float64 {
	k := src.wavelength() / (4 * math.Pi)
	return k * math.Pow(10, (src.TxPowerDBm-rssi)/(10*src.pathLossExponent()))
}

// DistanceStdDevFromRSSI propagates the RSSI and transmitted power deviations
// to the distance obtained from DistanceFromRSSI. It returns zero when
// neither deviation is known.
func DistanceStdDevFromRSSI(src *Source, rssi, rssiStdDev float64) float64 {
	if rssiStdDev <= 0 && src.TxPowerStdDev <= 0 {
		return 0
	}
	d := DistanceFromRSSI(src, rssi)
	derivative := d * math.Ln10 / (10 * src.pathLossExponent())
	return derivative * math.Hypot(rssiStdDev, src.TxPowerStdDev)
}
