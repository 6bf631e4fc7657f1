package multilateration

import (
	"fmt"
	"math"

	"indoor-positioning/internal/common"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// maxCondition bounds the condition number accepted from the linear systems.
const maxCondition = 1e12

// Measurement represents a single distance measurement from a source.
type Measurement struct {
	SourcePosition common.Vector
	Distance       float64
	StdDev         float64 // zero when unknown
}

// Solution contains the estimated position and a measure of the solution quality.
type Solution struct {
	Position      common.Vector
	ResidualError float64 // Lower is better. Linear solvers: ||Ax - b|| / sqrt(m); Refine: RMS range residual.

	// Set by Refine only.
	Covariance *mat.SymDense
	Iterations int
	Converged  bool
}

func checkMeasurements(measurements []Measurement, dimension int) error {
	if dimension < 1 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	if len(measurements) < dimension+1 {
		return fmt.Errorf("%w: got %d, need at least %d for dimension %d", ErrInsufficientMeasurements, len(measurements), dimension+1, dimension)
	}
	for i, m := range measurements {
		if m.SourcePosition.Dimension() != dimension {
			return fmt.Errorf("measurement %d: source dimension %d != %d", i, m.SourcePosition.Dimension(), dimension)
		}
	}
	return nil
}

// linearSystem builds the differenced system A x = b using the last
// measurement's source as the reference.
//
//	row i of A: 2 (S_k - S_i)
//	b_i:        d_i^2 - d_k^2 - ||S_i||^2 + ||S_k||^2
func linearSystem(measurements []Measurement, dimension int) (*mat.Dense, *mat.VecDense) {
	numMeasurements := len(measurements)
	ref := measurements[numMeasurements-1]
	refDist := math.Max(ref.Distance, 0)
	refDistSq := refDist * refDist
	refSourceNormSq := ref.SourcePosition.NormSq()

	numEquations := numMeasurements - 1
	aData := make([]float64, numEquations*dimension)
	bData := make([]float64, numEquations)

	for i := 0; i < numEquations; i++ {
		sourcePos := measurements[i].SourcePosition
		dist := math.Max(measurements[i].Distance, 0)

		for j := 0; j < dimension; j++ {
			aData[i*dimension+j] = 2.0 * (ref.SourcePosition[j] - sourcePos[j])
		}
		bData[i] = dist*dist - refDistSq - sourcePos.NormSq() + refSourceNormSq
	}
	return mat.NewDense(numEquations, dimension, aData), mat.NewVecDense(numEquations, bData)
}

// SolveLeastSquares attempts to find the position using the inhomogeneous
// linearised least squares method.
// It requires at least dimension + 1 measurements.
func SolveLeastSquares(measurements []Measurement, dimension int) (Solution, error) {
	var emptySolution Solution
	if err := checkMeasurements(measurements, dimension); err != nil {
		return emptySolution, err
	}

	A, b := linearSystem(measurements, dimension)
	numEquations, _ := A.Dims()

	// QR avoids forming A^T A, which squares the condition number.
	var qr mat.QR
	qr.Factorize(A)
	if c := qr.Cond(); math.IsInf(c, 1) || c > maxCondition {
		return emptySolution, fmt.Errorf("%w: condition number %.3g", ErrRankDeficient, c)
	}

	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return emptySolution, fmt.Errorf("%w: QR least squares solve failed: %v", ErrRankDeficient, err)
	}

	var residualVec mat.VecDense
	residualVec.MulVec(A, &x)
	residualVec.SubVec(b, &residualVec)
	residualNorm := blas64.Nrm2(residualVec.RawVector())

	return Solution{
		Position:      common.VectorFromVec(&x),
		ResidualError: residualNorm / math.Sqrt(float64(numEquations)),
	}, nil
}

// SolveHomogeneous solves the same differenced system written homogeneously,
// [A | -b] [x; w] = 0, taking the right singular vector of the smallest
// singular value and dehomogenising it.
func SolveHomogeneous(measurements []Measurement, dimension int) (Solution, error) {
	var emptySolution Solution
	if err := checkMeasurements(measurements, dimension); err != nil {
		return emptySolution, err
	}

	A, b := linearSystem(measurements, dimension)
	numEquations, _ := A.Dims()

	H := mat.NewDense(numEquations, dimension+1, nil)
	H.Slice(0, numEquations, 0, dimension).(*mat.Dense).Copy(A)
	for i := 0; i < numEquations; i++ {
		H.Set(i, dimension, -b.AtVec(i))
	}

	var svd mat.SVD
	if ok := svd.Factorize(H, mat.SVDFull); !ok {
		return emptySolution, fmt.Errorf("%w: SVD factorization failed", ErrRankDeficient)
	}
	s := svd.Values(nil)
	// The system has rank dimension when the geometry is not degenerate.
	if len(s) < dimension || s[0] == 0 || s[dimension-1]/s[0] < 1/maxCondition {
		return emptySolution, fmt.Errorf("%w: homogeneous system rank below %d", ErrRankDeficient, dimension)
	}

	var V mat.Dense
	svd.VTo(&V)
	w := V.At(dimension, dimension)
	if math.Abs(w) < 1e-14 {
		return emptySolution, fmt.Errorf("%w: solution at infinity", ErrRankDeficient)
	}

	position := common.NewVector(dimension)
	for i := 0; i < dimension; i++ {
		position[i] = V.At(i, dimension) / w
	}

	var residualVec mat.VecDense
	residualVec.MulVec(A, position.VecDense())
	residualVec.SubVec(b, &residualVec)

	return Solution{
		Position:      position,
		ResidualError: blas64.Nrm2(residualVec.RawVector()) / math.Sqrt(float64(numEquations)),
	}, nil
}

// CalculateLocalizationError calculates the Euclidean distance between the true and estimated positions.
func CalculateLocalizationError(truePosition, estimatedPosition common.Vector) (float64, error) {
	if len(truePosition) == 0 || len(estimatedPosition) == 0 {
		return 0, fmt.Errorf("cannot calculate error with empty vectors")
	}
	return truePosition.Distance(estimatedPosition)
}
