package simulation

import (
	"fmt"
	"time"
)

// Config describes the simulated space, its beacons and how they misbehave.
type Config struct {
	Dimension    int           `yaml:"dimension"`
	Bounds       []float64     `yaml:"bounds"` // [minX, maxX, minY, maxY, ...]
	TickDuration time.Duration `yaml:"tick_duration"`

	Beacons         int     `yaml:"beacons"`
	Targets         int     `yaml:"targets"`
	DetectionRadius float64 `yaml:"detection_radius"`

	TxPowerDBm       float64 `yaml:"tx_power_dbm"`
	PathLossExponent float64 `yaml:"path_loss_exponent"`
	FrequencyHz      float64 `yaml:"frequency_hz"`

	RangingStdDev float64     `yaml:"ranging_std_dev"`
	RssiStdDev    float64     `yaml:"rssi_std_dev"`
	Readings      ReadingMode `yaml:"readings"`

	OutlierFraction float64 `yaml:"outlier_fraction"`
	OutlierStdDev   float64 `yaml:"outlier_std_dev"`
	Scoring         Scoring `yaml:"scoring"`

	// TrackTargets seeds each estimate with the target's previous estimate.
	TrackTargets bool `yaml:"track_targets"`
}

// DefaultConfig is a 3D room with 20 beacons, a fifth of them corrupted.
func DefaultConfig() Config {
	return Config{
		Dimension:        3,
		Bounds:           []float64{-10, 10, -10, 10, -3, 3},
		TickDuration:     100 * time.Millisecond,
		Beacons:          20,
		Targets:          2,
		TxPowerDBm:       0,
		PathLossExponent: 2,
		FrequencyHz:      2.4e9,
		RangingStdDev:    0.1,
		RssiStdDev:       1,
		Readings:         ModeCombined,
		OutlierFraction:  0.2,
		OutlierStdDev:    10,
		Scoring:          ScoreByClass,
		TrackTargets:     true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Dimension < 2:
		return fmt.Errorf("dimension must be at least 2, got %d", c.Dimension)
	case len(c.Bounds) != c.Dimension*2:
		return fmt.Errorf("bounds length must be dimension * 2, got %d, expected %d", len(c.Bounds), c.Dimension*2)
	case c.Beacons < c.Dimension+1:
		return fmt.Errorf("need at least %d beacons, got %d", c.Dimension+1, c.Beacons)
	case c.Targets < 0:
		return fmt.Errorf("negative target count %d", c.Targets)
	case c.TickDuration <= 0:
		return fmt.Errorf("tick duration must be positive, got %s", c.TickDuration)
	case c.DetectionRadius < 0 || c.RangingStdDev < 0 || c.RssiStdDev < 0 || c.OutlierStdDev < 0:
		return fmt.Errorf("radius and standard deviations must not be negative")
	case c.PathLossExponent < 0 || c.FrequencyHz < 0:
		return fmt.Errorf("path-loss parameters must not be negative")
	case c.OutlierFraction < 0 || c.OutlierFraction > 1:
		return fmt.Errorf("outlier fraction %v outside [0, 1]", c.OutlierFraction)
	}
	for i := 0; i < c.Dimension; i++ {
		if c.Bounds[i*2] >= c.Bounds[i*2+1] {
			return fmt.Errorf("bounds for axis %d are empty: [%v, %v]", i, c.Bounds[i*2], c.Bounds[i*2+1])
		}
	}
	return nil
}
