// Package ekg derives heartbeat locations, heart rate, heart-rate variability
// and rhythm anomalies from single-lead ECG recordings.
//
// Every exported operation is a pure function of its arguments. Nothing in
// this package caches results or holds state between calls.
package ekg

import (
	"fmt"
	"strings"
)

// Descriptor identifies a recording and where its samples live.
type Descriptor struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Source string `json:"source"`
}

// Validate checks the fields the loader depends on.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return invalidParameter("recording id is empty")
	}
	if strings.TrimSpace(d.Source) == "" {
		return invalidParameter("recording %s has no source", d.ID)
	}
	return nil
}

// Sample is one voltage reading and the milliseconds elapsed since the
// recording started.
type Sample struct {
	VoltageMV float64 `json:"voltage_mv"`
	TimeMS    int64   `json:"time_ms"`
}

// Recording is a loaded, immutable sample sequence.
type Recording struct {
	Descriptor
	Samples []Sample
}

// Len returns the number of samples.
func (r *Recording) Len() int {
	return len(r.Samples)
}

// Span returns the elapsed time between the first and the last sample in
// milliseconds.
func (r *Recording) Span() int64 {
	return span(r.Samples)
}

func (r *Recording) String() string {
	return fmt.Sprintf("recording %s (%s, %d samples)", r.ID, r.Date, len(r.Samples))
}

func span(samples []Sample) int64 {
	if len(samples) < 2 {
		return 0
	}
	return samples[len(samples)-1].TimeMS - samples[0].TimeMS
}

// Voltages returns the voltage column.
func Voltages(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.VoltageMV
	}
	return out
}
