package ekg

// flatWithSpikes returns n samples at 0 mV spaced stepMS apart, with a
// single-sample spike of height mV at each index in spikes.
func flatWithSpikes(n int, stepMS int64, height float64, spikes ...int) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		samples[i].TimeMS = int64(i) * stepMS
	}
	for _, idx := range spikes {
		samples[idx].VoltageMV = height
	}
	return samples
}

// beatsAt returns one sample per timestamp together with the peak index of
// every sample, for exercising the interval math without detection.
func beatsAt(times ...int64) ([]Sample, []int) {
	samples := make([]Sample, len(times))
	peaks := make([]int, len(times))
	for i, t := range times {
		samples[i] = Sample{VoltageMV: 400, TimeMS: t}
		peaks[i] = i
	}
	return samples, peaks
}
