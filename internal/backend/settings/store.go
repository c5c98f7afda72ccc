package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jo-hoe/bedready/internal/backend/database"
)

// ErrVersionConflict is returned when saving settings derived from an outdated version
var ErrVersionConflict = errors.New("settings were changed concurrently")

// Store loads and saves Settings through a key/value database
type Store struct {
	db database.DatabaseService
	mu sync.Mutex
}

func NewStore(db database.DatabaseService) *Store {
	return &Store{db: db}
}

// Load returns the current settings
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Settings, error) {
	values, err := s.db.GetValues()
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return FromValues(values)
}

// Save persists next if it was derived from the stored version and returns
// the saved settings carrying the incremented version.
func (s *Store) Save(next Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return Settings{}, err
	}
	if next.Version != current.Version {
		return Settings{}, fmt.Errorf("%w: have version %d, stored version is %d", ErrVersionConflict, next.Version, current.Version)
	}

	next.Version = current.Version + 1
	if err := s.db.SetValues(next.Values()); err != nil {
		return Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}

	slog.Info("settings saved", "version", next.Version)
	return next, nil
}

// Update applies mutate to the current settings and saves the result
func (s *Store) Update(mutate func(*Settings)) (Settings, error) {
	s.mu.Lock()
	current, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return Settings{}, err
	}

	mutate(&current)
	return s.Save(current)
}
