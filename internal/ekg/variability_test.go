package ekg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRMSSDKnownValue(t *testing.T) {
	// RR = 800, 810, 790, 800 -> differences 10, -20, 10.
	samples, peaks := beatsAt(0, 800, 1610, 2400, 3200)

	got, ok := RMSSD(peaks, samples)
	require.True(t, ok)
	assert.InDelta(t, math.Sqrt((100.0+400.0+100.0)/3), got, 1e-9)
}

func TestRMSSDConstantRhythmIsZero(t *testing.T) {
	samples, peaks := beatsAt(0, 750, 1500, 2250)

	got, ok := RMSSD(peaks, samples)
	require.True(t, ok)
	assert.Zero(t, got)
}

func TestRMSSDUndefinedBelowThreePeaks(t *testing.T) {
	samples, peaks := beatsAt(0, 800)
	for _, p := range [][]int{nil, peaks[:1], peaks} {
		got, ok := RMSSD(p, samples)
		assert.False(t, ok)
		assert.Zero(t, got)
	}

	// Three peaks but one degenerate interval leave a single usable interval.
	samples, peaks = beatsAt(0, 800, 800)
	_, ok := RMSSD(peaks, samples)
	assert.False(t, ok)
}

func TestRMSSDScalesWithGaps(t *testing.T) {
	gaps := []int64{812, 790, 845, 803, 770, 826}
	base := rmssdForGaps(t, gaps, 1)

	for _, k := range []int64{2, 3, 7} {
		scaled := rmssdForGaps(t, gaps, k)
		assert.InDelta(t, float64(k)*base, scaled, 1e-9, "scale %d", k)
	}
}

func rmssdForGaps(t *testing.T, gaps []int64, k int64) float64 {
	t.Helper()
	times := []int64{0}
	for _, g := range gaps {
		times = append(times, times[len(times)-1]+g*k)
	}
	samples, peaks := beatsAt(times...)
	got, ok := RMSSD(peaks, samples)
	require.True(t, ok)
	return got
}
