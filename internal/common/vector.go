package common

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Vector represents a point or vector in n-dimensional space.
type Vector []float64

// NewVector creates a new vector of a given dimension.
func NewVector(dimension int) Vector {
	return make(Vector, dimension)
}

// NewRandomVector creates a vector with random coordinates within given bounds.
// bounds should have dimension * 2 elements: [minX, maxX, minY, maxY, ...]
func NewRandomVector(rng *rand.Rand, dimension int, bounds []float64) (Vector, error) {
	if len(bounds) != dimension*2 {
		return nil, fmt.Errorf("bounds length must be dimension * 2, got %d, expected %d", len(bounds), dimension*2)
	}
	v := NewVector(dimension)
	for i := 0; i < dimension; i++ {
		lo := bounds[i*2]
		hi := bounds[i*2+1]
		v[i] = lo + rng.Float64()*(hi-lo)
	}
	return v, nil
}

// VectorFromVec copies a gonum vector into a Vector.
func VectorFromVec(v mat.Vector) Vector {
	out := NewVector(v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// Dimension returns the dimension of the vector.
func (v Vector) Dimension() int {
	return len(v)
}

// Distance calculates the Euclidean distance between two vectors.
func (v Vector) Distance(other Vector) (float64, error) {
	if v.Dimension() != other.Dimension() {
		return 0, fmt.Errorf("vectors must have the same dimension: %d != %d", v.Dimension(), other.Dimension())
	}
	sumOfSquares := 0.0
	for i := range v {
		diff := v[i] - other[i]
		sumOfSquares += diff * diff
	}
	return math.Sqrt(sumOfSquares), nil
}

// MustDistance is Distance for callers that already checked dimensions.
// It panics on a dimension mismatch.
func (v Vector) MustDistance(other Vector) float64 {
	d, err := v.Distance(other)
	if err != nil {
		panic(err)
	}
	return d
}

// Add adds another vector to this vector.
func (v Vector) Add(other Vector) (Vector, error) {
	if v.Dimension() != other.Dimension() {
		return nil, fmt.Errorf("vectors must have the same dimension: %d != %d", v.Dimension(), other.Dimension())
	}
	result := NewVector(v.Dimension())
	for i := range v {
		result[i] = v[i] + other[i]
	}
	return result, nil
}

// Subtract subtracts another vector from this vector.
func (v Vector) Subtract(other Vector) (Vector, error) {
	if v.Dimension() != other.Dimension() {
		return nil, fmt.Errorf("vectors must have the same dimension: %d != %d", v.Dimension(), other.Dimension())
	}
	result := NewVector(v.Dimension())
	for i := range v {
		result[i] = v[i] - other[i]
	}
	return result, nil
}

// MultiplyByScalar multiplies the vector by a scalar value.
func (v Vector) MultiplyByScalar(scalar float64) Vector {
	result := NewVector(v.Dimension())
	for i := range v {
		result[i] = v[i] * scalar
	}
	return result
}

// NormSq calculates the squared Euclidean norm of the vector.
func (v Vector) NormSq() float64 {
	sumOfSquares := 0.0
	for _, val := range v {
		sumOfSquares += val * val
	}
	return sumOfSquares
}

// Norm returns the Euclidean norm of the vector.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.NormSq())
}

// Centroid returns the mean of a set of points of equal dimension.
func Centroid(points []Vector) (Vector, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("cannot compute centroid of no points")
	}
	c := NewVector(points[0].Dimension())
	for _, p := range points {
		if p.Dimension() != c.Dimension() {
			return nil, fmt.Errorf("vectors must have the same dimension: %d != %d", c.Dimension(), p.Dimension())
		}
		for i := range p {
			c[i] += p[i]
		}
	}
	return c.MultiplyByScalar(1 / float64(len(points))), nil
}

// IsFinite reports whether every coordinate is a finite number.
func (v Vector) IsFinite() bool {
	for _, val := range v {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return false
		}
	}
	return true
}

// VecDense returns a gonum copy of the vector.
func (v Vector) VecDense() *mat.VecDense {
	return mat.NewVecDense(len(v), v.Clone())
}

// String returns a string representation of the vector.
func (v Vector) String() string {
	strs := make([]string, len(v))
	for i, val := range v {
		strs[i] = fmt.Sprintf("%.3f", val)
	}
	return fmt.Sprintf("[%s]", strings.Join(strs, ", "))
}

// Clone creates a deep copy of the vector.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	clone := make(Vector, len(v))
	copy(clone, v)
	return clone
}
