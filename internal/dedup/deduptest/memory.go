// Package deduptest provides an in-memory dedup.Store for tests.
package deduptest

import (
	"sync"

	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
)

var _ dedup.Store = (*MemoryStore)(nil)

// MemoryStore keeps the state in memory. Saves counts successful saves.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	Saves int
	// Err, when set, is returned by every Save.
	Err error
}

func (s *MemoryStore) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, dedup.ErrNoState
	}
	return append([]byte(nil), s.data...), nil
}

func (s *MemoryStore) Save(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.data = append([]byte(nil), data...)
	s.Saves++
	return nil
}

// Bytes returns a copy of the last saved state.
func (s *MemoryStore) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

func (s *MemoryStore) String() string { return "memory" }
