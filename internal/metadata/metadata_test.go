package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ekg-insight/internal/ekg"
)

func TestBuildRecordingFileWithSamples(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "ekg_data")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	path := filepath.Join(sub, "01_Ruhe.txt")
	if err := os.WriteFile(path, []byte("344\t0\n350\t2\n347\t4\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	file, err := BuildRecordingFile(path, root, ekg.LoadOptions{})
	if err != nil {
		t.Fatalf("BuildRecordingFile: %v", err)
	}

	relative := filepath.ToSlash(filepath.Join("ekg_data", "01_Ruhe.txt"))
	if file.ID != relative || file.RelativePath != relative {
		t.Fatalf("expected id %s, got %s", relative, file.ID)
	}
	if file.Filename != "01_Ruhe.txt" {
		t.Fatalf("unexpected filename %q", file.Filename)
	}
	if file.SampleCount == nil || *file.SampleCount != 3 {
		t.Fatalf("expected 3 samples, got %v", file.SampleCount)
	}
	if file.DurationMS == nil || *file.DurationMS != 4 {
		t.Fatalf("expected 4 ms span, got %v", file.DurationMS)
	}

	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if file.SizeBytes != stat.Size() {
		t.Fatalf("expected size %d, got %d", stat.Size(), file.SizeBytes)
	}
	expectedTime := stat.ModTime().UTC().Round(time.Second)
	if !file.ModifiedAt.Equal(expectedTime) {
		t.Fatalf("expected modified time %s, got %s", expectedTime, file.ModifiedAt)
	}
}

func TestBuildRecordingFileMalformedContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "broken.txt")
	if err := os.WriteFile(path, []byte("not really a recording"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	file, err := BuildRecordingFile(path, root, ekg.LoadOptions{})
	if err != nil {
		t.Fatalf("BuildRecordingFile unexpected error: %v", err)
	}
	if file.SampleCount != nil || file.DurationMS != nil {
		t.Fatalf("expected sample stats to be nil for malformed content")
	}
}

func TestBuildRecordingFileRespectsSizeLimit(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "large.tsv")
	if err := os.WriteFile(path, []byte("344\t0\n350\t2\n347\t4\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	file, err := BuildRecordingFile(path, root, ekg.LoadOptions{MaxBytes: 8})
	if err != nil {
		t.Fatalf("BuildRecordingFile: %v", err)
	}
	if file.SampleCount != nil {
		t.Fatalf("expected oversized file to have no sample count")
	}
}

func TestBuildRecordingFileNonexistentFile(t *testing.T) {
	root := t.TempDir()
	if _, err := BuildRecordingFile(filepath.Join(root, "missing.txt"), root, ekg.LoadOptions{}); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}
