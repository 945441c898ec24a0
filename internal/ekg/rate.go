package ekg

const msPerMinute = 60000.0

// Interval is the RR-interval between two temporally adjacent peaks.
type Interval struct {
	StartIndex int   `json:"start_index"`
	EndIndex   int   `json:"end_index"`
	StartMS    int64 `json:"start_ms"`
	EndMS      int64 `json:"end_ms"`
}

// DurationMS returns the RR-interval length in milliseconds.
func (iv Interval) DurationMS() int64 {
	return iv.EndMS - iv.StartMS
}

// BPM converts the interval to beats per minute.
func (iv Interval) BPM() float64 {
	return msPerMinute / float64(iv.DurationMS())
}

// MidpointMS returns the time halfway between the bounding peaks.
func (iv Interval) MidpointMS() float64 {
	return float64(iv.StartMS+iv.EndMS) / 2
}

// Intervals pairs adjacent peaks and keeps only intervals with a positive
// duration. Peak indices outside samples are skipped, so every returned
// interval is safe to divide by.
func Intervals(peaks []int, samples []Sample) []Interval {
	valid := make([]int, 0, len(peaks))
	for _, p := range peaks {
		if p >= 0 && p < len(samples) {
			valid = append(valid, p)
		}
	}
	if len(valid) < 2 {
		return nil
	}

	out := make([]Interval, 0, len(valid)-1)
	for i := 0; i+1 < len(valid); i++ {
		iv := Interval{
			StartIndex: valid[i],
			EndIndex:   valid[i+1],
			StartMS:    samples[valid[i]].TimeMS,
			EndMS:      samples[valid[i+1]].TimeMS,
		}
		if iv.DurationMS() <= 0 {
			continue
		}
		out = append(out, iv)
	}
	return out
}

// RateSample is one instantaneous heart rate, stamped at the start of its interval.
type RateSample struct {
	TimeMS     int64   `json:"time_ms"`
	BPM        float64 `json:"bpm"`
	IntervalMS int64   `json:"interval_ms"`
}

// RateSeries returns the instantaneous heart rate of every usable interval.
func RateSeries(peaks []int, samples []Sample) []RateSample {
	intervals := Intervals(peaks, samples)
	series := make([]RateSample, 0, len(intervals))
	for _, iv := range intervals {
		series = append(series, RateSample{
			TimeMS:     iv.StartMS,
			BPM:        iv.BPM(),
			IntervalMS: iv.DurationMS(),
		})
	}
	return series
}

// AverageRate returns the mean instantaneous heart rate. ok is false, and
// the rate zero, when fewer than two usable peaks exist.
func AverageRate(peaks []int, samples []Sample) (bpm float64, ok bool) {
	return meanRate(RateSeries(peaks, samples))
}

func meanRate(series []RateSample) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range series {
		sum += s.BPM
	}
	return sum / float64(len(series)), true
}

// RateRange returns the lowest and highest instantaneous rate of a series.
func RateRange(series []RateSample) (lo, hi float64, ok bool) {
	if len(series) == 0 {
		return 0, 0, false
	}
	lo, hi = series[0].BPM, series[0].BPM
	for _, s := range series[1:] {
		lo = min(lo, s.BPM)
		hi = max(hi, s.BPM)
	}
	return lo, hi, true
}
