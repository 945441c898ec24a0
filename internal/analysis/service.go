// Package analysis runs the ECG core against recordings from the person
// database.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"ekg-insight/internal/ekg"
	"ekg-insight/internal/metrics"
	"ekg-insight/internal/models"
	"ekg-insight/internal/persons"
)

// PersonSource resolves persons and their recording descriptors.
type PersonSource interface {
	Person(id models.ID) (models.Person, error)
	Recording(personID, recordingID models.ID) (models.Person, models.RecordingDescriptor, error)
}

// Tuning selects the detection parameters for one request.
type Tuning struct {
	Peaks        ekg.PeakParams
	MinHeartRate float64
}

// Options configures a Service.
type Options struct {
	DataRoot string
	Tuning   Tuning
	Load     ekg.LoadOptions
	Workers  int
	Now      func() time.Time
}

// Service loads recordings on demand and runs the core operations. Results
// are recomputed on every call.
type Service struct {
	root    string
	persons PersonSource
	tuning  Tuning
	load    ekg.LoadOptions
	workers int
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates a Service reading recordings below opts.DataRoot.
func New(source PersonSource, opts Options, logger zerolog.Logger) *Service {
	root := filepath.Clean(opts.DataRoot)
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		root:    root,
		persons: source,
		tuning:  opts.Tuning,
		load:    opts.Load,
		workers: opts.Workers,
		now:     now,
		logger:  logger,
	}
}

// DefaultTuning returns the tuning the service was configured with.
func (s *Service) DefaultTuning() Tuning {
	return s.tuning
}

// Peak is a detected beat.
type Peak struct {
	Index     int     `json:"index"`
	TimeMS    int64   `json:"time_ms"`
	VoltageMV float64 `json:"voltage_mv"`
}

// PeaksResult lists the beats of one recording. InsufficientPeaks is set
// when the beats do not form a single usable RR-interval.
type PeaksResult struct {
	RecordingID       string         `json:"recording_id"`
	Params            ekg.PeakParams `json:"params"`
	Peaks             []Peak         `json:"peaks"`
	InsufficientPeaks bool           `json:"insufficient_peaks"`
}

// SignalPoint is a sample prepared for plotting.
type SignalPoint struct {
	ekg.Sample
	IsPeak bool `json:"is_peak"`
}

// SignalResult is the plotted time series of one recording.
type SignalResult struct {
	RecordingID string        `json:"recording_id"`
	Date        string        `json:"date"`
	Points      []SignalPoint `json:"points"`
}

// Window limits a signal to samples with from <= time <= to. A zero To means
// no upper bound.
type Window struct {
	FromMS int64
	ToMS   int64
}

func (w Window) contains(t int64) bool {
	return t >= w.FromMS && (w.ToMS == 0 || t <= w.ToMS)
}

// HeartRateResult holds the average and the instantaneous series.
type HeartRateResult struct {
	RecordingID       string           `json:"recording_id"`
	AverageBPM        float64          `json:"average_bpm"`
	Series            []ekg.RateSample `json:"series"`
	InsufficientPeaks bool             `json:"insufficient_peaks"`
}

// VariabilityResult holds RMSSD. RMSSDMS is nil when fewer than three peaks exist.
type VariabilityResult struct {
	RecordingID       string   `json:"recording_id"`
	RMSSDMS           *float64 `json:"rmssd_ms"`
	IntervalCount     int      `json:"interval_count"`
	InsufficientPeaks bool     `json:"insufficient_peaks"`
}

// AnomalyResult lists the intervals outside the age-adjusted band. An empty
// list with InsufficientPeaks set means nothing could be screened.
type AnomalyResult struct {
	RecordingID       string        `json:"recording_id"`
	Age               int           `json:"age"`
	Band              ekg.Band      `json:"band"`
	Anomalies         []ekg.Anomaly `json:"anomalies"`
	InsufficientPeaks bool          `json:"insufficient_peaks"`
}

// ComparisonRow is one line of a cross-recording comparison.
type ComparisonRow struct {
	RecordingID models.ID    `json:"recording_id"`
	Date        string       `json:"date"`
	Summary     *ekg.Summary `json:"summary,omitempty"`
	Error       string       `json:"error,omitempty"`
	err         error
}

// Err returns the failure of this row, if any.
func (r ComparisonRow) Err() error {
	return r.err
}

// ComparisonResult is a comparison across recordings of one person.
type ComparisonResult struct {
	PersonID models.ID       `json:"person_id"`
	Age      int             `json:"age"`
	Rows     []ComparisonRow `json:"rows"`
}

// Signal returns the samples of a recording flagged with detected peaks.
func (s *Service) Signal(personID, recordingID models.ID, tuning Tuning, window Window) (SignalResult, error) {
	defer s.observe("signal")()

	_, rec, peaks, err := s.detect(personID, recordingID, tuning)
	if err != nil {
		return SignalResult{}, err
	}

	marks := ekg.MarkPeaks(rec.Samples, peaks)
	points := make([]SignalPoint, 0, len(rec.Samples))
	for i, sample := range rec.Samples {
		if window.contains(sample.TimeMS) {
			points = append(points, SignalPoint{Sample: sample, IsPeak: marks[i]})
		}
	}

	return SignalResult{RecordingID: rec.ID, Date: rec.Date, Points: points}, nil
}

// Peaks returns the detected beats of a recording.
func (s *Service) Peaks(personID, recordingID models.ID, tuning Tuning) (PeaksResult, error) {
	defer s.observe("peaks")()

	_, rec, peaks, err := s.detect(personID, recordingID, tuning)
	if err != nil {
		return PeaksResult{}, err
	}

	out := make([]Peak, len(peaks))
	for i, idx := range peaks {
		out[i] = Peak{Index: idx, TimeMS: rec.Samples[idx].TimeMS, VoltageMV: rec.Samples[idx].VoltageMV}
	}
	return PeaksResult{
		RecordingID:       rec.ID,
		Params:            tuning.Peaks,
		Peaks:             out,
		InsufficientPeaks: len(ekg.Intervals(peaks, rec.Samples)) == 0,
	}, nil
}

// HeartRate returns the average and instantaneous heart rate of a recording.
func (s *Service) HeartRate(personID, recordingID models.ID, tuning Tuning) (HeartRateResult, error) {
	defer s.observe("heart_rate")()

	_, rec, peaks, err := s.detect(personID, recordingID, tuning)
	if err != nil {
		return HeartRateResult{}, err
	}

	avg, ok := ekg.AverageRate(peaks, rec.Samples)
	return HeartRateResult{
		RecordingID:       rec.ID,
		AverageBPM:        avg,
		Series:            ekg.RateSeries(peaks, rec.Samples),
		InsufficientPeaks: !ok,
	}, nil
}

// Variability returns the RMSSD of a recording.
func (s *Service) Variability(personID, recordingID models.ID, tuning Tuning) (VariabilityResult, error) {
	defer s.observe("variability")()

	_, rec, peaks, err := s.detect(personID, recordingID, tuning)
	if err != nil {
		return VariabilityResult{}, err
	}

	result := VariabilityResult{
		RecordingID:   rec.ID,
		IntervalCount: len(ekg.Intervals(peaks, rec.Samples)),
	}
	if rmssd, ok := ekg.RMSSD(peaks, rec.Samples); ok {
		result.RMSSDMS = &rmssd
	} else {
		result.InsufficientPeaks = true
	}
	return result, nil
}

// Anomalies screens a recording against the person's age-adjusted band.
func (s *Service) Anomalies(personID, recordingID models.ID, tuning Tuning) (AnomalyResult, error) {
	defer s.observe("anomalies")()

	person, rec, peaks, err := s.detect(personID, recordingID, tuning)
	if err != nil {
		return AnomalyResult{}, err
	}

	age := person.Age(s.now())
	band, err := ekg.NewBand(age, tuning.MinHeartRate)
	if err != nil {
		return AnomalyResult{}, err
	}

	intervals := ekg.Intervals(peaks, rec.Samples)
	anomalies := band.Anomalies(intervals)
	for _, a := range anomalies {
		metrics.AnomaliesTotal.WithLabelValues(string(a.Kind)).Inc()
	}

	return AnomalyResult{
		RecordingID:       rec.ID,
		Age:               age,
		Band:              band,
		Anomalies:         anomalies,
		InsufficientPeaks: len(intervals) == 0,
	}, nil
}

// Summary returns the per-recording statistics.
func (s *Service) Summary(personID, recordingID models.ID, tuning Tuning) (ekg.Summary, error) {
	defer s.observe("summary")()

	person, desc, err := s.persons.Recording(personID, recordingID)
	if err != nil {
		return ekg.Summary{}, err
	}

	rec, err := s.open(desc)
	if err != nil {
		return ekg.Summary{}, err
	}

	summary, err := ekg.Summarize(rec, person.Age(s.now()), tuning.Peaks, tuning.MinHeartRate)
	if err != nil {
		return ekg.Summary{}, err
	}
	metrics.PeaksPerRecording.Observe(float64(summary.PeakCount))
	return summary, nil
}

// Compare summarizes the selected recordings of a person concurrently. An
// empty selection compares all of the person's recordings. Failures are
// reported per row.
func (s *Service) Compare(ctx context.Context, personID models.ID, recordingIDs []models.ID, tuning Tuning) (ComparisonResult, error) {
	defer s.observe("compare")()

	person, err := s.persons.Person(personID)
	if err != nil {
		return ComparisonResult{}, err
	}

	age := person.Age(s.now())
	if _, err := ekg.NewBand(age, tuning.MinHeartRate); err != nil {
		return ComparisonResult{}, err
	}
	if err := tuning.Peaks.Validate(); err != nil {
		return ComparisonResult{}, err
	}

	if len(recordingIDs) == 0 {
		for _, rec := range person.Recordings {
			recordingIDs = append(recordingIDs, rec.ID)
		}
	}

	rows := make([]ComparisonRow, len(recordingIDs))
	var descs []ekg.Descriptor
	var slots []int
	for i, id := range recordingIDs {
		rows[i].RecordingID = id
		rd, ok := person.Recording(id)
		if !ok {
			rows[i].setErr(fmt.Errorf("person %s recording %s: %w", personID, id, persons.ErrNotFound))
			continue
		}
		rows[i].Date = rd.Date
		desc, err := s.resolve(rd)
		if err != nil {
			rows[i].setErr(err)
			continue
		}
		descs = append(descs, desc)
		slots = append(slots, i)
	}

	results := ekg.Compare(ctx, descs, s.loadDescriptor, ekg.CompareOptions{
		Age:          age,
		Params:       tuning.Peaks,
		MinHeartRate: tuning.MinHeartRate,
		Workers:      s.workers,
	})
	for j, res := range results {
		row := &rows[slots[j]]
		if res.Err != nil {
			row.setErr(res.Err)
			continue
		}
		row.Summary = res.Summary
	}

	for _, row := range rows {
		if row.err != nil {
			metrics.ComparisonRowsTotal.WithLabelValues(metrics.ResultError).Inc()
			s.logger.Warn().Err(row.err).Str("person", string(personID)).Str("recording", string(row.RecordingID)).Msg("comparison row failed")
			continue
		}
		metrics.ComparisonRowsTotal.WithLabelValues(metrics.ResultOK).Inc()
	}

	return ComparisonResult{PersonID: person.ID, Age: age, Rows: rows}, nil
}

func (r *ComparisonRow) setErr(err error) {
	r.err = err
	r.Error = err.Error()
}

func (s *Service) detect(personID, recordingID models.ID, tuning Tuning) (models.Person, *ekg.Recording, []int, error) {
	if err := tuning.Peaks.Validate(); err != nil {
		return models.Person{}, nil, nil, err
	}

	person, desc, err := s.persons.Recording(personID, recordingID)
	if err != nil {
		return models.Person{}, nil, nil, err
	}

	rec, err := s.open(desc)
	if err != nil {
		return models.Person{}, nil, nil, err
	}

	peaks, err := ekg.DetectPeaks(rec.Samples, tuning.Peaks)
	if err != nil {
		return models.Person{}, nil, nil, err
	}
	metrics.PeaksPerRecording.Observe(float64(len(peaks)))

	s.logger.Debug().
		Str("person", string(personID)).
		Str("recording", string(recordingID)).
		Int("samples", rec.Len()).
		Int("peaks", len(peaks)).
		Msg("detected peaks")

	return person, rec, peaks, nil
}

func (s *Service) open(rd models.RecordingDescriptor) (*ekg.Recording, error) {
	desc, err := s.resolve(rd)
	if err != nil {
		return nil, err
	}
	return s.loadDescriptor(desc)
}

func (s *Service) loadDescriptor(desc ekg.Descriptor) (*ekg.Recording, error) {
	rec, err := ekg.Open(desc, s.load)
	metrics.RecordingLoadsTotal.WithLabelValues(loadResult(err)).Inc()
	if err != nil {
		s.logger.Warn().Err(err).Str("recording", desc.ID).Str("source", desc.Source).Msg("recording load failed")
		return nil, err
	}
	return rec, nil
}

func loadResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ekg.ErrMalformedRecording):
		return metrics.ResultMalformed
	case errors.Is(err, ekg.ErrRecordingTooLarge):
		return metrics.ResultTooLarge
	case errors.Is(err, os.ErrNotExist):
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}

// resolve maps a descriptor's result_link to a file below the data root.
// Links are relative to the data root; a leading element equal to the data
// root's own name is accepted too, matching databases written relative to the
// directory above it.
func (s *Service) resolve(rd models.RecordingDescriptor) (ekg.Descriptor, error) {
	link := filepath.FromSlash(strings.TrimSpace(rd.ResultLink))

	var candidates []string
	if filepath.IsAbs(link) {
		candidates = append(candidates, filepath.Clean(link))
	} else {
		candidates = append(candidates, filepath.Join(s.root, link))
		first, rest, ok := strings.Cut(filepath.ToSlash(filepath.Clean(link)), "/")
		if ok && first == filepath.Base(s.root) {
			candidates = append(candidates, filepath.Join(s.root, filepath.FromSlash(rest)))
		}
	}

	var inside []string
	for _, c := range candidates {
		if pathWithinRoot(s.root, c) {
			inside = append(inside, c)
		}
	}
	if len(inside) == 0 {
		return ekg.Descriptor{}, fmt.Errorf("%w: recording %s points outside the data directory", ekg.ErrInvalidParameter, rd.ID)
	}

	source := inside[0]
	for _, c := range inside {
		if _, err := os.Stat(c); err == nil {
			source = c
			break
		}
	}

	return ekg.Descriptor{ID: string(rd.ID), Date: rd.Date, Source: source}, nil
}

func (s *Service) observe(operation string) func() {
	timer := prometheus.NewTimer(metrics.AnalysisDuration.WithLabelValues(operation))
	return func() { timer.ObserveDuration() }
}

func pathWithinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

// Age returns the person's age at the service clock.
func (s *Service) Age(p models.Person) int {
	return p.Age(s.now())
}
