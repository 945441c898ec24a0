package ekg

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecording is returned when a recording cannot be parsed: an
	// unparsable row, an empty file or elapsed time going backwards.
	ErrMalformedRecording = errors.New("malformed recording")

	// ErrInvalidParameter is returned for non-positive tuning knobs or ages.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrRecordingTooLarge is returned when the input exceeds LoadOptions.MaxBytes.
	ErrRecordingTooLarge = errors.New("recording exceeds size limit")
)

// LineError describes a malformed row in a recording file.
type LineError struct {
	Line   int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%v: line %d: %s", ErrMalformedRecording, e.Line, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedRecording.
func (e *LineError) Unwrap() error {
	return ErrMalformedRecording
}

func invalidParameter(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}
