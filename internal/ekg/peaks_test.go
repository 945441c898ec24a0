package ekg

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPeaksThreeSpikes(t *testing.T) {
	samples := flatWithSpikes(1000, 2, 400, 100, 300, 520)

	peaks, err := DetectPeaks(samples, DefaultPeakParams())
	require.NoError(t, err)
	assert.Equal(t, []int{100, 300, 520}, peaks)
}

func TestDetectPeaksEmptyAndShortInput(t *testing.T) {
	for _, samples := range [][]Sample{nil, {}, {{VoltageMV: 500}}, {{VoltageMV: 0}, {VoltageMV: 500}}} {
		peaks, err := DetectPeaks(samples, DefaultPeakParams())
		require.NoError(t, err)
		assert.Empty(t, peaks)
		assert.NotNil(t, peaks)
	}
}

func TestDetectPeaksIgnoresBoundaries(t *testing.T) {
	samples := flatWithSpikes(600, 2, 400, 0, 599, 300)

	peaks, err := DetectPeaks(samples, DefaultPeakParams())
	require.NoError(t, err)
	assert.Equal(t, []int{300}, peaks)
}

func TestDetectPeaksPlateauIsNotAPeak(t *testing.T) {
	samples := flatWithSpikes(600, 2, 400, 300, 301)

	peaks, err := DetectPeaks(samples, DefaultPeakParams())
	require.NoError(t, err)
	assert.Empty(t, peaks)
}

func TestDetectPeaksHeightFilter(t *testing.T) {
	samples := flatWithSpikes(1000, 2, 339, 100)
	samples[500].VoltageMV = 340

	peaks, err := DetectPeaks(samples, DefaultPeakParams())
	require.NoError(t, err)
	assert.Equal(t, []int{500}, peaks)
}

func TestDetectPeaksProminenceFilter(t *testing.T) {
	// Two R-waves sit on a broad 350 mV wave. A 20 mV ripple between them is
	// high enough but does not stand out from the wave it rides on.
	samples := flatWithSpikes(1200, 2, 0)
	for i := 150; i <= 650; i++ {
		samples[i].VoltageMV = 350
	}
	samples[200].VoltageMV = 500
	samples[400].VoltageMV = 370
	samples[600].VoltageMV = 500

	peaks, err := DetectPeaks(samples, DefaultPeakParams())
	require.NoError(t, err)
	assert.Equal(t, []int{200, 600}, peaks)

	relaxed := DefaultPeakParams()
	relaxed.MinProminence = 15
	peaks, err = DetectPeaks(samples, relaxed)
	require.NoError(t, err)
	assert.Equal(t, []int{200, 400, 600}, peaks)
}

func TestProminenceUsesHigherBase(t *testing.T) {
	v := []float64{100, 0, 200, 50, 500, 10, 300}
	// Index 2: the left scan reaches the boundary (base 0), the right scan
	// stops at 500 (base 50).
	assert.InDelta(t, 150.0, prominence(v, 2), 1e-9)
	// Index 4 is the global maximum: bases are 0 (left) and 10 (right).
	assert.InDelta(t, 490.0, prominence(v, 4), 1e-9)
}

func TestDetectPeaksDistanceKeepsHigher(t *testing.T) {
	samples := flatWithSpikes(1000, 2, 400, 100)
	samples[250].VoltageMV = 450 // within 200 samples of 100, higher

	peaks, err := DetectPeaks(samples, DefaultPeakParams())
	require.NoError(t, err)
	assert.Equal(t, []int{250}, peaks)
}

func TestDetectPeaksDistanceTieKeepsEarlier(t *testing.T) {
	samples := flatWithSpikes(1000, 2, 400, 100, 250)

	peaks, err := DetectPeaks(samples, DefaultPeakParams())
	require.NoError(t, err)
	assert.Equal(t, []int{100}, peaks)
}

func TestDetectPeaksDistanceChain(t *testing.T) {
	// 400 suppresses both neighbours; 100 and 700 then survive on their own.
	samples := flatWithSpikes(1000, 2, 0)
	samples[100].VoltageMV = 380
	samples[250].VoltageMV = 390
	samples[400].VoltageMV = 500
	samples[550].VoltageMV = 390
	samples[700].VoltageMV = 380

	peaks, err := DetectPeaks(samples, DefaultPeakParams())
	require.NoError(t, err)
	assert.Equal(t, []int{100, 400, 700}, peaks)
}

func TestDetectPeaksRejectsInvalidParams(t *testing.T) {
	cases := []PeakParams{
		{MinDistance: 0, MinHeight: 340, MinProminence: 30},
		{MinDistance: 200, MinHeight: 0, MinProminence: 30},
		{MinDistance: 200, MinHeight: 340, MinProminence: -1},
	}
	for _, params := range cases {
		_, err := DetectPeaks(flatWithSpikes(10, 2, 0), params)
		assert.ErrorIs(t, err, ErrInvalidParameter, "params %+v", params)
	}
}

func TestDetectPeaksOrderingAndSpacingProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	params := PeakParams{MinDistance: 25, MinHeight: 300, MinProminence: 20}

	for round := 0; round < 50; round++ {
		samples := make([]Sample, 2000)
		for i := range samples {
			samples[i] = Sample{
				VoltageMV: 200 + 150*math.Sin(float64(i)/7) + rng.Float64()*120,
				TimeMS:    int64(i) * 2,
			}
		}

		peaks, err := DetectPeaks(samples, params)
		require.NoError(t, err)

		for i, p := range peaks {
			assert.GreaterOrEqual(t, samples[p].VoltageMV, params.MinHeight)
			if i == 0 {
				continue
			}
			require.Greater(t, p, peaks[i-1], "peaks must be strictly increasing")
			require.GreaterOrEqual(t, p-peaks[i-1], params.MinDistance, "peaks %d and %d too close", peaks[i-1], p)
		}
	}
}

func TestMarkPeaks(t *testing.T) {
	samples := flatWithSpikes(5, 2, 0)
	assert.Equal(t, []bool{false, true, false, true, false}, MarkPeaks(samples, []int{1, 3, 9, -1}))
}
