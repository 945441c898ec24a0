package library

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"ekg-insight/internal/ekg"
	"ekg-insight/internal/metadata"
	"ekg-insight/internal/models"
)

// Library monitors the data directory and keeps an index of raw recording files.
type Library struct {
	root     string
	allowed  map[string]struct{}
	loadOpts ekg.LoadOptions
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger

	mu    sync.RWMutex
	files []models.RecordingFile

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	refreshDelay time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewLibrary creates a new Library and starts watching the provided root path.
func NewLibrary(root string, allowed []string, debounce time.Duration, loadOpts ekg.LoadOptions, logger zerolog.Logger) (*Library, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	lib := &Library{
		root:         root,
		allowed:      make(map[string]struct{}, len(allowed)),
		loadOpts:     loadOpts,
		watcher:      watcher,
		logger:       logger,
		refreshDelay: debounce,
		done:         make(chan struct{}),
	}

	for _, ext := range allowed {
		lib.allowed[strings.ToLower(ext)] = struct{}{}
	}

	lib.addWatchRecursive(root)

	if err := lib.refresh(); err != nil {
		watcher.Close()
		return nil, err
	}

	lib.wg.Add(1)
	go lib.run()

	return lib, nil
}

// Close stops the watcher and cleans up resources.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)

		l.refreshMu.Lock()
		if l.refreshTimer != nil {
			l.refreshTimer.Stop()
			l.refreshTimer = nil
		}
		l.refreshMu.Unlock()

		l.closeErr = l.watcher.Close()
		l.wg.Wait()
	})
	return l.closeErr
}

// ListRecordingFiles returns a snapshot of the indexed files.
func (l *Library) ListRecordingFiles() []models.RecordingFile {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]models.RecordingFile, len(l.files))
	copy(result, l.files)
	return result
}

// Lookup returns the indexed file with the given slash-separated relative path.
func (l *Library) Lookup(relativePath string) (models.RecordingFile, bool) {
	relativePath = filepath.ToSlash(filepath.Clean(relativePath))

	l.mu.RLock()
	defer l.mu.RUnlock()

	i := sort.Search(len(l.files), func(i int) bool {
		return l.files[i].RelativePath >= relativePath
	})
	if i < len(l.files) && l.files[i].RelativePath == relativePath {
		return l.files[i], true
	}
	return models.RecordingFile{}, false
}

func (l *Library) run() {
	defer l.wg.Done()

	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn().Err(err).Msg("watcher error")
		case <-l.done:
			return
		}
	}
}

func (l *Library) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			l.addWatchRecursive(event.Name)
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		if l.isAllowed(event.Name) || event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			l.scheduleRefresh()
		}
	}
}

func (l *Library) refresh() error {
	var files []models.RecordingFile

	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("walk error")
			return nil
		}

		if d.IsDir() || !l.isAllowed(path) {
			return nil
		}

		file, err := metadata.BuildRecordingFile(path, l.root, l.loadOpts)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("metadata error")
			return nil
		}

		files = append(files, file)
		return nil
	})
	if err != nil {
		return err
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].RelativePath < files[j].RelativePath
	})

	l.mu.Lock()
	l.files = files
	l.mu.Unlock()

	l.logger.Info().Int("files", len(files)).Msg("recording index refreshed")
	return nil
}

func (l *Library) scheduleRefresh() {
	select {
	case <-l.done:
		return
	default:
	}

	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	if l.refreshTimer != nil {
		l.refreshTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(l.refreshDelay, func() {
		if err := l.refresh(); err != nil {
			l.logger.Error().Err(err).Msg("refresh error")
		}

		l.refreshMu.Lock()
		if l.refreshTimer == timer {
			l.refreshTimer = nil
		}
		l.refreshMu.Unlock()
	})

	l.refreshTimer = timer
}

func (l *Library) addWatchRecursive(path string) {
	filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn().Err(err).Str("path", p).Msg("walk error")
			return nil
		}

		if d.IsDir() {
			if err := l.watcher.Add(p); err != nil {
				l.logger.Warn().Err(err).Str("path", p).Msg("watcher add failure")
			}
		}
		return nil
	})
}

func (l *Library) isAllowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := l.allowed[ext]
	return ok
}
