package ekg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// DefaultMaxBytes bounds the size of a recording file when LoadOptions.MaxBytes is zero.
const DefaultMaxBytes int64 = 64 << 20

const maxLineBytes = 4096

// LoadOptions controls how recording files are read.
type LoadOptions struct {
	// MaxBytes caps the input size. Zero selects DefaultMaxBytes.
	MaxBytes int64
}

func (o LoadOptions) maxBytes() int64 {
	if o.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return o.MaxBytes
}

// Open loads the recording referenced by desc.Source from disk.
func Open(desc Descriptor, opts LoadOptions) (*Recording, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(desc.Source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f, desc, opts)
}

// Load parses tab-separated "voltage<TAB>elapsed_ms" rows from r. Values are
// carried through unchanged.
func Load(r io.Reader, desc Descriptor, opts LoadOptions) (*Recording, error) {
	samples, err := ReadSamples(r, opts)
	if err != nil {
		if desc.ID != "" {
			return nil, fmt.Errorf("recording %s: %w", desc.ID, err)
		}
		return nil, err
	}
	return &Recording{Descriptor: desc, Samples: samples}, nil
}

// ReadSamples parses the sample rows without a descriptor.
func ReadSamples(r io.Reader, opts LoadOptions) ([]Sample, error) {
	limit := opts.maxBytes()
	limited := &io.LimitedReader{R: r, N: limit + 1}
	exceeded := func() bool { return limited.N <= 0 }

	tooLarge := fmt.Errorf("%w (%d bytes)", ErrRecordingTooLarge, limit)
	// A row cut short by the limit may look malformed, so the size check
	// wins over any row error.
	rowError := func(line int, reason string) error {
		if exceeded() {
			return tooLarge
		}
		return &LineError{Line: line, Reason: reason}
	}

	scanner := bufio.NewScanner(limited)
	scanner.Buffer(make([]byte, 0, maxLineBytes), maxLineBytes)

	var samples []Sample
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		sample, reason := parseRow(text)
		if reason != "" {
			return nil, rowError(line, reason)
		}

		if n := len(samples); n > 0 && sample.TimeMS < samples[n-1].TimeMS {
			return nil, rowError(line, fmt.Sprintf("elapsed time %d ms precedes %d ms", sample.TimeMS, samples[n-1].TimeMS))
		}
		samples = append(samples, sample)
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, rowError(line+1, "row too long")
		}
		return nil, err
	}
	if exceeded() {
		return nil, tooLarge
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrMalformedRecording)
	}
	return samples, nil
}

func parseRow(text string) (Sample, string) {
	fields := strings.Split(text, "\t")
	if len(fields) != 2 {
		return Sample{}, fmt.Sprintf("expected 2 tab-separated fields, got %d", len(fields))
	}

	voltage, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil || math.IsNaN(voltage) || math.IsInf(voltage, 0) {
		return Sample{}, fmt.Sprintf("voltage %q is not a number", fields[0])
	}

	elapsed, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return Sample{}, fmt.Sprintf("elapsed time %q is not an integer", fields[1])
	}

	return Sample{VoltageMV: voltage, TimeMS: elapsed}, ""
}
