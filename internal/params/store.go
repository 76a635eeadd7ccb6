package params

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"inverter-drive/internal/drive"
)

// Store holds the live parameter set. Every write is validated as a whole and
// rejected writes leave the last known-good set in place.
type Store struct {
	mu      sync.RWMutex
	current drive.DriveParameters
	version uint64
	logger  *zap.Logger
}

func NewStore(initial drive.DriveParameters, logger *zap.Logger) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{current: initial, logger: logger}, nil
}

// Snapshot implements drive.ParameterSource.
func (s *Store) Snapshot() drive.DriveParameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Version increments on every accepted write.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Set parses a text value for one named parameter.
func (s *Store) Set(name, raw string) error {
	return s.ApplyText(map[string]string{name: raw})
}

// ApplyText applies several text values atomically.
func (s *Store) ApplyText(values map[string]string) error {
	return s.update(func(p *drive.DriveParameters) error {
		for _, name := range sortedKeys(values) {
			f, ok := LookupName(name)
			if !ok {
				return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
			}
			v, err := f.Parse(values[name])
			if err != nil {
				return err
			}
			if err := f.Apply(p, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update is one wire-level write.
type Update struct {
	ID    uint8
	Value float64
}

// Apply applies wire updates atomically.
func (s *Store) Apply(updates []Update) error {
	return s.update(func(p *drive.DriveParameters) error {
		for _, u := range updates {
			f, ok := LookupID(u.ID)
			if !ok {
				return fmt.Errorf("%w: id %d", ErrUnknownParameter, u.ID)
			}
			if err := f.Apply(p, u.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Replace swaps in a whole parameter set.
func (s *Store) Replace(p drive.DriveParameters) error {
	return s.update(func(dst *drive.DriveParameters) error {
		*dst = p
		return nil
	})
}

func (s *Store) update(fn func(*drive.DriveParameters) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.current
	if err := fn(&candidate); err != nil {
		s.logger.Warn("Parameter update rejected", zap.Error(err))
		return err
	}
	if err := candidate.Validate(); err != nil {
		s.logger.Warn("Parameter update rejected", zap.Error(err))
		return err
	}
	s.current = candidate
	s.version++
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
