package robust

import "math"

// IterationBound returns the number of iterations needed to draw at least
// one outlier-free subset of subsetSize samples with the given confidence
// when a fraction inlierRatio of the samples are inliers:
//
//	log(1 - confidence) / log(1 - inlierRatio^subsetSize)
//
// The result is clamped to [1, current], so successive calls within a run
// never raise the bound.
func IterationBound(confidence float64, subsetSize int, inlierRatio float64, current int) int {
	if current < 1 {
		return current
	}
	if inlierRatio <= 0 || math.IsNaN(inlierRatio) {
		return current
	}
	if inlierRatio >= 1 {
		return 1
	}
	outlierFree := math.Pow(inlierRatio, float64(subsetSize))
	denominator := math.Log1p(-outlierFree)
	if denominator == 0 {
		return current
	}
	n := math.Ceil(math.Log1p(-confidence) / denominator)
	if math.IsNaN(n) || n >= float64(current) {
		return current
	}
	if n < 1 {
		return 1
	}
	return int(n)
}
