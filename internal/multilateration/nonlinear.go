package multilateration

import (
	"fmt"
	"math"

	"indoor-positioning/internal/common"

	"gonum.org/v1/gonum/mat"
)

// RefineOptions controls the Gauss-Newton refinement.
type RefineOptions struct {
	MaxIterations  int     // default 50
	Tolerance      float64 // relative step size at which iteration stops, default 1e-12
	KeepCovariance bool
}

func (o RefineOptions) withDefaults() RefineOptions {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 50
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-12
	}
	return o
}

// normalSystem evaluates the weighted normal matrix J^T W J, the gradient
// J^T W r and the weighted cost sum w_i r_i^2 at x, where
// r_i = d_i - ||x - S_i|| and W = diag(1/sigma_i^2).
func normalSystem(measurements []Measurement, x common.Vector) (*mat.SymDense, *mat.VecDense, float64) {
	dim := x.Dimension()
	JtWJ := mat.NewSymDense(dim, nil)
	JtWr := mat.NewVecDense(dim, nil)
	row := mat.NewVecDense(dim, nil)
	cost := 0.0

	for _, m := range measurements {
		w := 1.0
		if m.StdDev > 0 {
			w = 1 / (m.StdDev * m.StdDev)
		}
		predicted := x.MustDistance(m.SourcePosition)
		r := m.Distance - predicted
		cost += w * r * r
		if predicted == 0 {
			// gradient undefined on top of the source
			continue
		}
		for j := 0; j < dim; j++ {
			row.SetVec(j, (x[j]-m.SourcePosition[j])/predicted)
		}
		JtWJ.SymRankOne(JtWJ, w, row)
		JtWr.AddScaledVec(JtWr, w*r, row)
	}
	return JtWJ, JtWr, cost
}

// Refine minimises the weighted squared range residuals starting from
// initial, using damped Gauss-Newton steps. A step is only accepted when it
// lowers the cost, so the returned position is never worse than initial.
//
// With KeepCovariance the covariance (J^T W J)^-1 at the solution is
// returned; ErrNotPositiveDefinite is reported when it does not exist.
func Refine(measurements []Measurement, initial common.Vector, opts RefineOptions) (Solution, error) {
	var emptySolution Solution
	dimension := initial.Dimension()
	if dimension < 1 {
		return emptySolution, fmt.Errorf("refine: empty initial position")
	}
	if len(measurements) < dimension {
		return emptySolution, fmt.Errorf("%w: got %d, need at least %d to refine", ErrInsufficientMeasurements, len(measurements), dimension)
	}
	for i, m := range measurements {
		if m.SourcePosition.Dimension() != dimension {
			return emptySolution, fmt.Errorf("measurement %d: source dimension %d != %d", i, m.SourcePosition.Dimension(), dimension)
		}
	}
	opts = opts.withDefaults()

	x := initial.Clone()
	JtWJ, JtWr, cost := normalSystem(measurements, x)
	lambda := 0.0
	converged := false
	iter := 0

	for ; iter < opts.MaxIterations && !converged; iter++ {
		A := mat.NewSymDense(dimension, nil)
		A.CopySym(JtWJ)
		if lambda > 0 {
			for j := 0; j < dimension; j++ {
				A.SetSym(j, j, A.At(j, j)*(1+lambda))
			}
		}

		var chol mat.Cholesky
		var dx mat.VecDense
		if !chol.Factorize(A) || chol.SolveVecTo(&dx, JtWr) != nil {
			lambda = nextDamping(lambda)
			if lambda > 1e12 {
				break
			}
			continue
		}

		candidate := x.Clone()
		for j := range candidate {
			candidate[j] += dx.AtVec(j)
		}
		if !candidate.IsFinite() {
			return emptySolution, fmt.Errorf("%w: non-finite step", ErrNoConvergence)
		}

		cJtWJ, cJtWr, cCost := normalSystem(measurements, candidate)
		if cCost > cost {
			lambda = nextDamping(lambda)
			if lambda > 1e12 {
				break
			}
			continue
		}

		step := mat.Norm(&dx, 2)
		x, JtWJ, JtWr = candidate, cJtWJ, cJtWr
		costDrop := cost - cCost
		cost = cCost
		lambda /= 10
		if lambda < 1e-12 {
			lambda = 0
		}
		if step <= opts.Tolerance*(1+x.Norm()) || costDrop <= opts.Tolerance*opts.Tolerance*(1+cost) {
			converged = true
		}
	}

	solution := Solution{
		Position:      x,
		ResidualError: rmsResidual(measurements, x),
		Iterations:    iter,
		Converged:     converged,
	}

	if opts.KeepCovariance {
		var chol mat.Cholesky
		if !chol.Factorize(JtWJ) {
			return emptySolution, fmt.Errorf("%w: cannot factorize %dx%d normal matrix", ErrNotPositiveDefinite, dimension, dimension)
		}
		cov := mat.NewSymDense(dimension, nil)
		if err := chol.InverseTo(cov); err != nil {
			return emptySolution, fmt.Errorf("%w: %v", ErrNotPositiveDefinite, err)
		}
		solution.Covariance = cov
	}
	return solution, nil
}

func nextDamping(lambda float64) float64 {
	if lambda == 0 {
		return 1e-6
	}
	return lambda * 10
}

func rmsResidual(measurements []Measurement, x common.Vector) float64 {
	sum := 0.0
	for _, m := range measurements {
		r := m.Distance - x.MustDistance(m.SourcePosition)
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(measurements)))
}
