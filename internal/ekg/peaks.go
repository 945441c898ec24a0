package ekg

import (
	"cmp"
	"slices"
	"sort"
)

const (
	DefaultMinDistance   = 200
	DefaultMinHeight     = 340.0
	DefaultMinProminence = 30.0
)

// PeakParams tunes R-wave detection. MinDistance is measured in samples,
// MinHeight and MinProminence in the recording's voltage units.
type PeakParams struct {
	MinDistance   int     `json:"min_distance" yaml:"min_distance"`
	MinHeight     float64 `json:"min_height" yaml:"min_height"`
	MinProminence float64 `json:"min_prominence" yaml:"min_prominence"`
}

// DefaultPeakParams returns the tuning used for resting single-lead recordings.
func DefaultPeakParams() PeakParams {
	return PeakParams{
		MinDistance:   DefaultMinDistance,
		MinHeight:     DefaultMinHeight,
		MinProminence: DefaultMinProminence,
	}
}

// Validate rejects non-positive knobs.
func (p PeakParams) Validate() error {
	if p.MinDistance <= 0 {
		return invalidParameter("min distance must be positive, got %d", p.MinDistance)
	}
	if p.MinHeight <= 0 {
		return invalidParameter("min height must be positive, got %g", p.MinHeight)
	}
	if p.MinProminence <= 0 {
		return invalidParameter("min prominence must be positive, got %g", p.MinProminence)
	}
	return nil
}

// DetectPeaks returns the indices of R-wave peaks in ascending order.
//
// A candidate is a strict local maximum that reaches MinHeight and stands at
// least MinProminence above its higher base. Candidates closer than
// MinDistance samples compete; the higher voltage wins and ties go to the
// earlier index.
func DetectPeaks(samples []Sample, params PeakParams) ([]int, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	v := Voltages(samples)
	candidates := []int{}
	for i := 1; i < len(v)-1; i++ {
		if v[i] <= v[i-1] || v[i] <= v[i+1] {
			continue
		}
		if v[i] < params.MinHeight {
			continue
		}
		if prominence(v, i) < params.MinProminence {
			continue
		}
		candidates = append(candidates, i)
	}

	return selectByDistance(v, candidates, params.MinDistance), nil
}

// prominence measures how far v[i] rises above the higher of its two bases.
// Each base is the lowest value between i and the first strictly higher
// sample on that side, or the sequence boundary.
func prominence(v []float64, i int) float64 {
	peak := v[i]

	leftMin := peak
	for j := i - 1; j >= 0 && v[j] <= peak; j-- {
		leftMin = min(leftMin, v[j])
	}

	rightMin := peak
	for j := i + 1; j < len(v) && v[j] <= peak; j++ {
		rightMin = min(rightMin, v[j])
	}

	return peak - max(leftMin, rightMin)
}

// selectByDistance visits candidates from highest to lowest voltage. A kept
// candidate suppresses every other candidate inside its window, so each
// candidate is touched by at most two kept windows. Read left to right, every
// pair closer than minDistance resolves to the higher peak (the earlier one
// on a tie), as a sweep would, except that a peak already dropped in favour
// of a higher neighbour never drops anything itself.
func selectByDistance(v []float64, candidates []int, minDistance int) []int {
	if len(candidates) < 2 || minDistance <= 1 {
		return candidates
	}

	order := make([]int, len(candidates))
	for k := range order {
		order[k] = k
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(v[candidates[b]], v[candidates[a]])
	})

	keep := make([]bool, len(candidates))
	suppressed := make([]bool, len(candidates))
	for _, k := range order {
		if suppressed[k] {
			continue
		}
		keep[k] = true

		center := candidates[k]
		lo := sort.SearchInts(candidates, center-minDistance+1)
		hi := sort.SearchInts(candidates, center+minDistance)
		for j := lo; j < hi; j++ {
			if j != k {
				suppressed[j] = true
			}
		}
	}

	peaks := make([]int, 0, len(candidates))
	for k, idx := range candidates {
		if keep[k] {
			peaks = append(peaks, idx)
		}
	}
	return peaks
}

// MarkPeaks returns a per-sample flag that is true at every peak index.
// Indices outside the sample range are ignored.
func MarkPeaks(samples []Sample, peaks []int) []bool {
	marks := make([]bool, len(samples))
	for _, p := range peaks {
		if p >= 0 && p < len(marks) {
			marks[p] = true
		}
	}
	return marks
}
