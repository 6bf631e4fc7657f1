package accuracy

import (
	"fmt"
	"math"

	"indoor-positioning/internal/common"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Ellipsoid is the confidence region of a position estimate. Axes are unit
// vectors sorted by decreasing SemiAxes.
type Ellipsoid struct {
	Center     common.Vector
	Axes       []common.Vector
	SemiAxes   []float64
	Confidence float64
}

// SemiMajor returns the largest semi-axis.
func (e Ellipsoid) SemiMajor() float64 {
	if len(e.SemiAxes) == 0 {
		return 0
	}
	return e.SemiAxes[0]
}

func (e Ellipsoid) String() string {
	return fmt.Sprintf("Ellipsoid[%.0f%%] Center: %s SemiAxes: %s", e.Confidence*100, e.Center, common.Vector(e.SemiAxes))
}

// FromCovariance returns the region holding the true position with the given
// probability, assuming Gaussian errors with covariance cov.
func FromCovariance(center common.Vector, cov mat.Symmetric, confidence float64) (Ellipsoid, error) {
	dim := center.Dimension()
	if cov == nil || cov.SymmetricDim() != dim {
		return Ellipsoid{}, fmt.Errorf("covariance does not match dimension %d", dim)
	}
	if confidence <= 0 || confidence >= 1 {
		return Ellipsoid{}, fmt.Errorf("confidence %v outside (0, 1)", confidence)
	}

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return Ellipsoid{}, fmt.Errorf("eigen decomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	scale := distuv.ChiSquared{K: float64(dim)}.Quantile(confidence)
	e := Ellipsoid{Center: center.Clone(), Confidence: confidence}
	// eigenvalues come in ascending order
	for i := dim - 1; i >= 0; i-- {
		if values[i] < 0 {
			return Ellipsoid{}, fmt.Errorf("covariance is not positive semi-definite (eigenvalue %g)", values[i])
		}
		e.SemiAxes = append(e.SemiAxes, math.Sqrt(values[i]*scale))
		e.Axes = append(e.Axes, common.VectorFromVec(vectors.ColView(i)))
	}
	return e, nil
}

// Spread describes how a cloud of vectors, such as localization errors, is
// distributed: StdDevs along the principal Axes, largest first.
type Spread struct {
	Axes    []common.Vector
	StdDevs []float64
}

// PrincipalSpread runs a principal component analysis over points.
func PrincipalSpread(points []common.Vector) (Spread, error) {
	if len(points) < 2 {
		return Spread{}, fmt.Errorf("need at least 2 points, got %d", len(points))
	}
	dim := points[0].Dimension()
	data := mat.NewDense(len(points), dim, nil)
	for i, p := range points {
		if p.Dimension() != dim {
			return Spread{}, fmt.Errorf("point %d has dimension %d, expected %d", i, p.Dimension(), dim)
		}
		data.SetRow(i, p)
	}

	var pc stat.PC
	if !pc.PrincipalComponents(data, nil) {
		return Spread{}, fmt.Errorf("PCA computation failed")
	}
	variances := pc.VarsTo(nil)
	var vectors mat.Dense
	pc.VectorsTo(&vectors)

	s := Spread{}
	for i, v := range variances {
		s.StdDevs = append(s.StdDevs, math.Sqrt(math.Max(v, 0)))
		s.Axes = append(s.Axes, common.VectorFromVec(vectors.ColView(i)))
	}
	return s, nil
}
