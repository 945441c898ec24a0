package ekg

// DefaultMinHeartRate is the lower bound of the physiological band in bpm.
const DefaultMinHeartRate = 40.0

// MaxHeartRate returns the age-predicted maximum heart rate, 220 minus age.
func MaxHeartRate(age int) float64 {
	return float64(220 - age)
}

// AnomalyKind tells which side of the band an anomaly fell on.
type AnomalyKind string

const (
	AnomalyLow  AnomalyKind = "low"
	AnomalyHigh AnomalyKind = "high"
)

// Anomaly is an RR-interval whose rate lies outside [minHR, MaxHeartRate(age)],
// stamped at the midpoint between its two peaks.
type Anomaly struct {
	TimeMS float64     `json:"time_ms"`
	BPM    float64     `json:"bpm"`
	Kind   AnomalyKind `json:"kind"`
}

// Band is the accepted heart-rate range for a person.
type Band struct {
	MinBPM float64 `json:"min_bpm"`
	MaxBPM float64 `json:"max_bpm"`
}

// NewBand validates age and minHR and returns the accepted range.
func NewBand(age int, minHR float64) (Band, error) {
	if age <= 0 {
		return Band{}, invalidParameter("age must be positive, got %d", age)
	}
	if minHR <= 0 {
		return Band{}, invalidParameter("min heart rate must be positive, got %g", minHR)
	}
	maxHR := MaxHeartRate(age)
	if minHR >= maxHR {
		return Band{}, invalidParameter("min heart rate %g is not below the maximum %g for age %d", minHR, maxHR, age)
	}
	return Band{MinBPM: minHR, MaxBPM: maxHR}, nil
}

// Classify reports whether bpm lies strictly outside the band and on which side.
func (b Band) Classify(bpm float64) (AnomalyKind, bool) {
	switch {
	case bpm < b.MinBPM:
		return AnomalyLow, true
	case bpm > b.MaxBPM:
		return AnomalyHigh, true
	default:
		return "", false
	}
}

// DetectAnomalies flags every usable RR-interval whose rate falls outside the
// band for the given age. Fewer than two peaks yield an empty result.
func DetectAnomalies(peaks []int, samples []Sample, age int, minHR float64) ([]Anomaly, error) {
	band, err := NewBand(age, minHR)
	if err != nil {
		return nil, err
	}
	return band.Anomalies(Intervals(peaks, samples)), nil
}

// Anomalies screens intervals against the band.
func (b Band) Anomalies(intervals []Interval) []Anomaly {
	anomalies := []Anomaly{}
	for _, iv := range intervals {
		bpm := iv.BPM()
		if kind, ok := b.Classify(bpm); ok {
			anomalies = append(anomalies, Anomaly{TimeMS: iv.MidpointMS(), BPM: bpm, Kind: kind})
		}
	}
	return anomalies
}
