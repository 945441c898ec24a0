package metadata

import (
	"os"
	"path/filepath"
	"time"

	"ekg-insight/internal/ekg"
	"ekg-insight/internal/models"
)

// BuildRecordingFile constructs a metadata snapshot for the given recording
// file path. Sample count and duration are only filled when the file parses.
func BuildRecordingFile(path string, root string, opts ekg.LoadOptions) (models.RecordingFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.RecordingFile{}, err
	}

	relative, err := filepath.Rel(root, path)
	if err != nil {
		relative = filepath.Base(path)
	}
	relative = filepath.ToSlash(relative)

	file := models.RecordingFile{
		ID:           relative,
		Filename:     filepath.Base(path),
		RelativePath: relative,
		SizeBytes:    info.Size(),
		ModifiedAt:   info.ModTime().UTC().Round(time.Second),
	}

	if count, span, err := scanSamples(path, opts); err == nil {
		file.SampleCount = &count
		file.DurationMS = &span
	}

	return file, nil
}

func scanSamples(path string, opts ekg.LoadOptions) (int, int64, error) {
	rec, err := ekg.Open(ekg.Descriptor{ID: filepath.Base(path), Source: path}, opts)
	if err != nil {
		return 0, 0, err
	}
	return rec.Len(), rec.Span(), nil
}
