// Package persons keeps the person database in memory and reloads it when the
// backing JSON file changes.
package persons

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"ekg-insight/internal/models"
)

// ErrNotFound is returned when a person or recording id is unknown.
var ErrNotFound = errors.New("not found")

// Store serves persons from a single JSON file on disk.
type Store struct {
	file         string
	logger       zerolog.Logger
	watcher      *fsnotify.Watcher
	refreshDelay time.Duration

	mu      sync.RWMutex
	persons []models.Person
	byID    map[models.ID]int

	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	done         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error
}

// NewStore loads filePath and starts watching it. The file holds a JSON array
// of persons; a missing file is an empty database.
func NewStore(filePath string, debounce time.Duration, logger zerolog.Logger) (*Store, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	s := &Store{
		file:         filepath.Clean(filePath),
		logger:       logger,
		watcher:      watcher,
		refreshDelay: debounce,
		byID:         make(map[models.ID]int),
		done:         make(chan struct{}),
	}

	if err := s.refresh(); err != nil {
		watcher.Close()
		return nil, err
	}

	// Editors replace files by rename, so the directory is watched as well.
	dir := filepath.Dir(s.file)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	if err := watcher.Add(s.file); err != nil {
		s.logger.Debug().Err(err).Str("file", s.file).Msg("person database not watched directly")
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// Close stops the file watcher and releases resources.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.refreshMu.Lock()
		if s.refreshTimer != nil {
			s.refreshTimer.Stop()
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()

		s.closeErr = s.watcher.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

// ListPersons returns a snapshot of all persons ordered by name.
func (s *Store) ListPersons() []models.Person {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Person, len(s.persons))
	for i, p := range s.persons {
		result[i] = p.Clone()
	}
	return result
}

// Names returns "Lastname, Firstname" for every person, in list order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.persons))
	for i, p := range s.persons {
		names[i] = p.FullName()
	}
	return names
}

// Person returns the person with the given id.
func (s *Store) Person(id models.ID) (models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return models.Person{}, fmt.Errorf("person %s: %w", id, ErrNotFound)
	}
	return s.persons[idx].Clone(), nil
}

// FindByName looks a person up by "Lastname, Firstname".
func (s *Store) FindByName(name string) (models.Person, error) {
	lastname, firstname, ok := strings.Cut(name, ", ")
	if !ok {
		return models.Person{}, fmt.Errorf("person %q: %w", name, ErrNotFound)
	}
	lastname = strings.TrimSpace(lastname)
	firstname = strings.TrimSpace(firstname)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.persons {
		if p.Lastname == lastname && p.Firstname == firstname {
			return p.Clone(), nil
		}
	}
	return models.Person{}, fmt.Errorf("person %q: %w", name, ErrNotFound)
}

// Recording returns a person together with one of their recording descriptors.
func (s *Store) Recording(personID, recordingID models.ID) (models.Person, models.RecordingDescriptor, error) {
	person, err := s.Person(personID)
	if err != nil {
		return models.Person{}, models.RecordingDescriptor{}, err
	}
	rec, ok := person.Recording(recordingID)
	if !ok {
		return models.Person{}, models.RecordingDescriptor{}, fmt.Errorf("person %s recording %s: %w", personID, recordingID, ErrNotFound)
	}
	return person, rec, nil
}

func (s *Store) run() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("person database watcher error")
		case <-s.done:
			return
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != s.file {
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		s.scheduleRefresh()
	}
}

func (s *Store) scheduleRefresh() {
	select {
	case <-s.done:
		return
	default:
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.refreshDelay, func() {
		if err := s.refresh(); err != nil {
			s.logger.Error().Err(err).Str("file", s.file).Msg("person database reload failed; keeping previous snapshot")
		}

		s.refreshMu.Lock()
		if s.refreshTimer == timer {
			s.refreshTimer = nil
		}
		s.refreshMu.Unlock()
	})

	s.refreshTimer = timer
}

func (s *Store) refresh() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.swap(nil)
			s.logger.Warn().Str("file", s.file).Msg("person database missing; no persons loaded")
			return nil
		}
		return err
	}

	persons, err := decode(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.file, err)
	}

	s.swap(persons)
	s.logger.Info().Int("persons", len(persons)).Msg("loaded person database")
	return nil
}

func decode(data []byte) ([]models.Person, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var persons []models.Person
	if err := json.Unmarshal(data, &persons); err != nil {
		return nil, err
	}

	seen := make(map[models.ID]struct{}, len(persons))
	for _, p := range persons {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate person id %s", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	sort.SliceStable(persons, func(i, j int) bool {
		return persons[i].FullName() < persons[j].FullName()
	})
	return persons, nil
}

func (s *Store) swap(persons []models.Person) {
	byID := make(map[models.ID]int, len(persons))
	for i, p := range persons {
		byID[p.ID] = i
	}

	s.mu.Lock()
	s.persons = persons
	s.byID = byID
	s.mu.Unlock()
}
