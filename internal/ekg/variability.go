package ekg

import "math"

// RMSSD returns the root mean square of successive RR-interval differences
// in milliseconds. It needs two usable intervals (three peaks); with fewer it
// returns 0 and ok=false so callers can report the value as undefined rather
// than as perfect regularity.
func RMSSD(peaks []int, samples []Sample) (ms float64, ok bool) {
	intervals := Intervals(peaks, samples)
	if len(intervals) < 2 {
		return 0, false
	}

	var sumSquares float64
	for i := 1; i < len(intervals); i++ {
		d := float64(intervals[i].DurationMS() - intervals[i-1].DurationMS())
		sumSquares += d * d
	}
	return math.Sqrt(sumSquares / float64(len(intervals)-1)), true
}
