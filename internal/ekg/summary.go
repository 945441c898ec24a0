package ekg

// Summary aggregates the statistics used to compare recordings.
type Summary struct {
	RecordingID       string   `json:"recording_id"`
	Date              string   `json:"date"`
	SampleCount       int      `json:"sample_count"`
	DurationMinutes   float64  `json:"duration_minutes"`
	PeakCount         int      `json:"peak_count"`
	AverageBPM        float64  `json:"average_bpm"`
	MinBPM            *float64 `json:"min_bpm"`
	MaxBPM            *float64 `json:"max_bpm"`
	RMSSDMS           *float64 `json:"rmssd_ms"`
	AnomalyCount      int      `json:"anomaly_count"`
	InsufficientPeaks bool     `json:"insufficient_peaks"`
}

// Summarize detects peaks with params and composes duration, average rate,
// variability and anomaly count for one recording. Duration is the elapsed
// time span of the samples.
func Summarize(rec *Recording, age int, params PeakParams, minHR float64) (Summary, error) {
	band, err := NewBand(age, minHR)
	if err != nil {
		return Summary{}, err
	}

	peaks, err := DetectPeaks(rec.Samples, params)
	if err != nil {
		return Summary{}, err
	}

	return SummarizePeaks(rec, peaks, band), nil
}

// SummarizePeaks composes the summary from peaks already detected in rec.
func SummarizePeaks(rec *Recording, peaks []int, band Band) Summary {
	intervals := Intervals(peaks, rec.Samples)
	series := RateSeries(peaks, rec.Samples)
	avg, ok := meanRate(series)

	summary := Summary{
		RecordingID:       rec.ID,
		Date:              rec.Date,
		SampleCount:       rec.Len(),
		DurationMinutes:   float64(rec.Span()) / msPerMinute,
		PeakCount:         len(peaks),
		AverageBPM:        avg,
		AnomalyCount:      len(band.Anomalies(intervals)),
		InsufficientPeaks: !ok,
	}

	if lo, hi, ok := RateRange(series); ok {
		summary.MinBPM = &lo
		summary.MaxBPM = &hi
	}
	if rmssd, ok := RMSSD(peaks, rec.Samples); ok {
		summary.RMSSDMS = &rmssd
	}

	return summary
}
