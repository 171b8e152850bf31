package metadata

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps metadata in process. Records are validated on Put.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]UpdateMetadata
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]UpdateMetadata)}
}

// Put validates and stores m, replacing any record for the same platform.
func (s *MemoryStore) Put(m UpdateMetadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m.PlatformID] = m
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, platformID string) (UpdateMetadata, error) {
	if err := ValidatePlatformID(platformID); err != nil {
		return UpdateMetadata{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.records[platformID]
	if !ok {
		return UpdateMetadata{}, ErrNotFound
	}
	return m, nil
}

// List implements Lister.
func (s *MemoryStore) List(_ context.Context) ([]UpdateMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UpdateMetadata, 0, len(s.records))
	for _, m := range s.records {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlatformID < out[j].PlatformID })
	return out, nil
}
