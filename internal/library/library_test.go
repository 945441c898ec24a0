package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ekg-insight/internal/ekg"
)

const tinyRecording = "344\t0\n351\t2\n"

func newTestLibrary(t *testing.T, root string, allowed ...string) *Library {
	t.Helper()
	if len(allowed) == 0 {
		allowed = []string{".txt"}
	}
	lib, err := NewLibrary(root, allowed, 10*time.Millisecond, ekg.LoadOptions{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	t.Cleanup(func() {
		if err := lib.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})
	return lib
}

func TestLibraryWatchesAndRefreshes(t *testing.T) {
	root := t.TempDir()
	initial := filepath.Join(root, "01_Ruhe.txt")
	writeFile(t, initial, tinyRecording)

	lib := newTestLibrary(t, root)
	waitFor(t, func() bool { return len(lib.ListRecordingFiles()) == 1 }, "initial scan")

	second := filepath.Join(root, "02_Ruhe.txt")
	writeFile(t, second, tinyRecording)
	waitFor(t, func() bool { return len(lib.ListRecordingFiles()) == 2 }, "detect second file")

	subdir := filepath.Join(root, "ekg_data")
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	writeFile(t, filepath.Join(subdir, "03_Belastung.txt"), tinyRecording)
	waitFor(t, func() bool { return len(lib.ListRecordingFiles()) == 3 }, "detect nested file")

	renamePath := filepath.Join(root, "01_Ruhe-renamed.txt")
	if err := os.Rename(initial, renamePath); err != nil {
		t.Fatalf("rename file: %v", err)
	}
	waitFor(t, func() bool {
		_, ok := lib.Lookup("01_Ruhe-renamed.txt")
		return ok
	}, "detect rename")

	if err := os.Remove(second); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	waitFor(t, func() bool { return len(lib.ListRecordingFiles()) == 2 }, "reflect removal")

	files := lib.ListRecordingFiles()
	files[0].Filename = "mutated"
	if lib.ListRecordingFiles()[0].Filename == "mutated" {
		t.Fatalf("expected ListRecordingFiles to return a defensive copy")
	}
}

func TestLibraryIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "person_db.json"), "[]")
	writeFile(t, filepath.Join(root, "01_Ruhe.txt"), tinyRecording)

	lib := newTestLibrary(t, root)
	waitFor(t, func() bool { return len(lib.ListRecordingFiles()) == 1 }, "initial scan")

	if files := lib.ListRecordingFiles(); files[0].Filename != "01_Ruhe.txt" {
		t.Fatalf("expected 01_Ruhe.txt, got %s", files[0].Filename)
	}

	// Adding a picture should not change the count.
	writeFile(t, filepath.Join(root, "portrait.jpg"), "jpeg")
	time.Sleep(100 * time.Millisecond)

	if len(lib.ListRecordingFiles()) != 1 {
		t.Fatalf("expected still 1 file, got %d", len(lib.ListRecordingFiles()))
	}
}

func TestLibraryMultipleExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), tinyRecording)
	writeFile(t, filepath.Join(root, "b.TSV"), tinyRecording)
	writeFile(t, filepath.Join(root, "c.csv"), "1,2\n")

	lib := newTestLibrary(t, root, ".txt", ".tsv")
	waitFor(t, func() bool { return len(lib.ListRecordingFiles()) == 2 }, "scan txt and tsv")
}

func TestLibraryIndexesSampleStats(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "good.txt"), tinyRecording)
	writeFile(t, filepath.Join(root, "bad.txt"), "garbage")

	lib := newTestLibrary(t, root)

	good, ok := lib.Lookup("good.txt")
	if !ok {
		t.Fatalf("expected good.txt to be indexed")
	}
	if good.SampleCount == nil || *good.SampleCount != 2 {
		t.Fatalf("expected 2 samples, got %v", good.SampleCount)
	}

	bad, ok := lib.Lookup("bad.txt")
	if !ok {
		t.Fatalf("expected malformed file to still be indexed")
	}
	if bad.SampleCount != nil {
		t.Fatalf("expected no sample count for malformed file")
	}

	if _, ok := lib.Lookup("missing.txt"); ok {
		t.Fatalf("expected missing file lookup to fail")
	}
}

func TestLibraryEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	lib := newTestLibrary(t, root)

	time.Sleep(50 * time.Millisecond)
	if len(lib.ListRecordingFiles()) != 0 {
		t.Fatalf("expected 0 files for empty dir, got %d", len(lib.ListRecordingFiles()))
	}

	// Adding a file to an initially empty library should be detected.
	writeFile(t, filepath.Join(root, "new.txt"), tinyRecording)
	waitFor(t, func() bool { return len(lib.ListRecordingFiles()) == 1 }, "detect new file")
}

func TestLibraryPreexistingSubdirectory(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "ekg_data", "2023")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(sub, "05_Ruhe.txt"), tinyRecording)

	lib := newTestLibrary(t, root)
	waitFor(t, func() bool { return len(lib.ListRecordingFiles()) == 1 }, "scan pre-existing nested file")

	if _, ok := lib.Lookup("ekg_data/2023/05_Ruhe.txt"); !ok {
		t.Fatalf("expected nested file to be addressable by relative path")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func waitFor(t *testing.T, predicate func() bool, label string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", label)
}
