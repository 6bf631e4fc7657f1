package robust

import (
	"cmp"
	"fmt"
	"math"

	"indoor-positioning/internal/radio"

	"golang.org/x/exp/slices"
)

// ScoredSource pairs a source with its quality score.
type ScoredSource struct {
	Source  *radio.Source
	Quality float64
}

// ScoredReading pairs a reading with its quality score. Index is the
// position of the reading in the caller's list.
type ScoredReading struct {
	Reading radio.Reading
	Quality float64
	Index   int
}

// SortedGroup holds the readings of one source ordered by type priority and
// then by descending quality.
type SortedGroup struct {
	Source   *radio.Source
	Quality  float64
	Readings []ScoredReading
}

// SortReadings pairs sources and readings with their positionally matching
// quality scores and sorts them with SortScored.
func SortReadings(sources []*radio.Source, readings []radio.Reading, sourceScores, readingScores []float64) ([]SortedGroup, error) {
	if len(sourceScores) != len(sources) {
		return nil, fmt.Errorf("%w: %d source quality scores for %d sources", ErrInvalidArgument, len(sourceScores), len(sources))
	}
	if len(readingScores) != len(readings) {
		return nil, fmt.Errorf("%w: %d reading quality scores for %d readings", ErrInvalidArgument, len(readingScores), len(readings))
	}
	if err := checkScores(sourceScores, readingScores); err != nil {
		return nil, err
	}

	scoredSources := make([]ScoredSource, len(sources))
	for i, s := range sources {
		if s == nil {
			return nil, fmt.Errorf("%w: source %d is nil", ErrInvalidArgument, i)
		}
		scoredSources[i] = ScoredSource{Source: s, Quality: sourceScores[i]}
	}
	scoredReadings := make([]ScoredReading, len(readings))
	for i, r := range readings {
		if r.Source == nil {
			return nil, fmt.Errorf("%w: reading %d has no source", ErrInvalidArgument, i)
		}
		scoredReadings[i] = ScoredReading{Reading: r, Quality: readingScores[i], Index: i}
	}
	return SortScored(scoredSources, scoredReadings), nil
}

// checkScores rejects NaN and infinite quality scores.
func checkScores(sourceScores, readingScores []float64) error {
	for i, q := range sourceScores {
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return fmt.Errorf("%w: source quality score %d is %v", ErrInvalidArgument, i, q)
		}
	}
	for i, q := range readingScores {
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return fmt.Errorf("%w: reading quality score %d is %v", ErrInvalidArgument, i, q)
		}
	}
	return nil
}

// SortScored groups readings by source. Inside a group readings are ordered
// Ranging, RangingAndRssi, Rssi and, within a type, by descending quality.
// Groups are ordered by descending source quality. Both sorts are stable,
// so equal scores keep their input order. Readings of sources missing from
// sources are dropped, as are nil sources and sources without readings.
// Inputs are not modified.
func SortScored(sources []ScoredSource, readings []ScoredReading) []SortedGroup {
	position := make(map[string]int, len(sources))
	groups := make([]SortedGroup, 0, len(sources))
	for _, s := range sources {
		if s.Source == nil {
			continue
		}
		if _, dup := position[s.Source.ID]; dup {
			continue
		}
		position[s.Source.ID] = len(groups)
		groups = append(groups, SortedGroup{Source: s.Source, Quality: s.Quality})
	}

	for _, r := range readings {
		if r.Reading.Source == nil {
			continue
		}
		if i, ok := position[r.Reading.Source.ID]; ok {
			groups[i].Readings = append(groups[i].Readings, r)
		}
	}

	nonEmpty := groups[:0]
	for _, g := range groups {
		if len(g.Readings) == 0 {
			continue
		}
		slices.SortStableFunc(g.Readings, func(a, b ScoredReading) int {
			if c := cmp.Compare(a.Reading.Type, b.Reading.Type); c != 0 {
				return c
			}
			return cmp.Compare(b.Quality, a.Quality)
		})
		nonEmpty = append(nonEmpty, g)
	}

	slices.SortStableFunc(nonEmpty, func(a, b SortedGroup) int {
		return cmp.Compare(b.Quality, a.Quality)
	})
	return nonEmpty
}
