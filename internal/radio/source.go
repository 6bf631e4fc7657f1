package radio

import (
	"fmt"

	"indoor-positioning/internal/common"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Source is a located radio source (beacon, access point, UWB anchor).
type Source struct {
	ID       string
	Position common.Vector

	// PositionCovariance is the uncertainty of Position, nil when unknown.
	PositionCovariance *mat.SymDense

	// Path-loss parameters, used only to turn RSSI into distance.
	// Zero values select DefaultPathLossExponent and DefaultFrequencyHz.
	TxPowerDBm       float64
	TxPowerStdDev    float64
	PathLossExponent float64
	FrequencyHz      float64
}

// NewSource creates a source with a generated id at the given position.
func NewSource(pos common.Vector, txPowerDBm float64) *Source {
	return &Source{
		ID:         fmt.Sprintf("source-%s", uuid.NewString()[:8]),
		Position:   pos.Clone(),
		TxPowerDBm: txPowerDBm,
	}
}

// Dimension returns the dimension of the source position.
func (s *Source) Dimension() int {
	return s.Position.Dimension()
}

// SetPositionCovariance validates and stores the position covariance.
func (s *Source) SetPositionCovariance(cov *mat.SymDense) error {
	if cov == nil {
		s.PositionCovariance = nil
		return nil
	}
	if n := cov.SymmetricDim(); n != s.Dimension() {
		return fmt.Errorf("%w: covariance is %dx%d, position has dimension %d", ErrInvalidSource, n, n, s.Dimension())
	}
	s.PositionCovariance = cov
	return nil
}

// PositionVariance returns the mean per-axis variance of the source position,
// or zero when no covariance is known.
func (s *Source) PositionVariance() float64 {
	if s.PositionCovariance == nil || s.Dimension() == 0 {
		return 0
	}
	return mat.Trace(s.PositionCovariance) / float64(s.Dimension())
}

// Validate checks that the source can take part in an estimation.
func (s *Source) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil source", ErrInvalidSource)
	}
	if s.Dimension() < 2 {
		return fmt.Errorf("%w: source %s has dimension %d", ErrInvalidSource, s.ID, s.Dimension())
	}
	if !s.Position.IsFinite() {
		return fmt.Errorf("%w: source %s has a non-finite position", ErrInvalidSource, s.ID)
	}
	if s.PathLossExponent < 0 || s.FrequencyHz < 0 || s.TxPowerStdDev < 0 {
		return fmt.Errorf("%w: source %s has negative path-loss parameters", ErrInvalidSource, s.ID)
	}
	return nil
}

func (s *Source) String() string {
	return fmt.Sprintf("Source[%s] Pos: %s Ptx: %.1fdBm", s.ID, s.Position, s.TxPowerDBm)
}
