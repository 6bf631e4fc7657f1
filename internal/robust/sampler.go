package robust

import (
	"math/rand/v2"

	"indoor-positioning/internal/radio"

	"gonum.org/v1/gonum/stat/sampleuv"
)

// subsetSampler draws preliminary subsets of sample indices.
type subsetSampler struct {
	n        int
	weighted bool
	weights  []float64 // per sample, only when weighted

	// groups holds sample indices per source, ordered by the reading sorter.
	// nil when readings are not evenly distributed.
	groups       [][]int
	groupWeights []float64

	src rand.Source
	rng *rand.Rand
}

func newSubsetSampler(samples []sample, weighted, evenly bool, sources []*radio.Source, readings []radio.Reading, sourceScores []float64, src rand.Source) *subsetSampler {
	s := &subsetSampler{n: len(samples), weighted: weighted, src: src}
	if src != nil {
		s.rng = rand.New(src)
	}

	qualities := make([]float64, len(samples))
	for i, smp := range samples {
		qualities[i] = smp.quality
	}
	if weighted {
		s.weights = samplingWeights(qualities)
	}

	if evenly {
		scoredSources := make([]ScoredSource, len(sources))
		for i, source := range sources {
			q := 0.0
			if sourceScores != nil {
				q = sourceScores[i]
			}
			scoredSources[i] = ScoredSource{Source: source, Quality: q}
		}
		scoredReadings := make([]ScoredReading, len(samples))
		for i, smp := range samples {
			scoredReadings[i] = ScoredReading{Reading: readings[smp.reading], Quality: smp.quality, Index: i}
		}
		for _, g := range SortScored(scoredSources, scoredReadings) {
			members := make([]int, len(g.Readings))
			w := 0.0
			for j, r := range g.Readings {
				members[j] = r.Index
				if weighted {
					w = max(w, s.weights[r.Index])
				}
			}
			s.groups = append(s.groups, members)
			s.groupWeights = append(s.groupWeights, w)
		}
	}
	return s
}

// samplingWeights maps quality scores to strictly positive weights.
func samplingWeights(qualities []float64) []float64 {
	lo, hi := 0.0, 0.0
	for i, q := range qualities {
		if i == 0 || q < lo {
			lo = q
		}
		if i == 0 || q > hi {
			hi = q
		}
	}
	w := make([]float64, len(qualities))
	for i, q := range qualities {
		switch {
		case hi <= 0 || hi == lo:
			w[i] = 1
		case lo <= 0:
			// shift so the worst sample keeps a small chance
			w[i] = q - lo + 1e-3*(hi-lo)
		default:
			w[i] = q
		}
	}
	return w
}

func (s *subsetSampler) intn(n int) int {
	if s.rng != nil {
		return s.rng.IntN(n)
	}
	return rand.IntN(n)
}

// draw fills dst with distinct sample indices.
func (s *subsetSampler) draw(dst []int) {
	if len(s.groups) >= len(dst) {
		s.drawFromGroups(dst)
		return
	}
	if s.weighted {
		takeWeighted(dst, s.weights, s.src)
		return
	}
	sampleuv.WithoutReplacement(dst, s.n, s.src)
}

// drawFromGroups picks distinct sources first and then one of their
// readings, so a subset never repeats a source.
func (s *subsetSampler) drawFromGroups(dst []int) {
	picked := make([]int, len(dst))
	if s.weighted {
		takeWeighted(picked, s.groupWeights, s.src)
	} else {
		sampleuv.WithoutReplacement(picked, len(s.groups), s.src)
	}

	for i, g := range picked {
		members := s.groups[g]
		if len(members) == 1 {
			dst[i] = members[0]
			continue
		}
		if !s.weighted {
			dst[i] = members[s.intn(len(members))]
			continue
		}
		w := make([]float64, len(members))
		for j, m := range members {
			w[j] = s.weights[m]
		}
		one := []int{0}
		takeWeighted(one, w, s.src)
		dst[i] = members[one[0]]
	}
}

// takeWeighted draws len(dst) distinct indices with probability
// proportional to weights.
func takeWeighted(dst []int, weights []float64, src rand.Source) {
	w := sampleuv.NewWeighted(weights, src)
	for i := range dst {
		idx, ok := w.Take()
		if !ok {
			panic("robust: weighted draw exhausted")
		}
		dst[i] = idx
	}
}
