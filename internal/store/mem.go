package store

import (
	"context"
	"sync"

	"github.com/jonesrussell/prospector/internal/domain"
)

// MemStore is an in-memory KV used in tests and dry runs.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
	sets map[string]map[string]map[string]struct{}
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]map[string][]byte),
		sets: make(map[string]map[string]map[string]struct{}),
	}
}

// Get implements KV.
func (s *MemStore) Get(_ context.Context, collection, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, ok := s.data[collection]
	if !ok {
		return nil, ErrNotFound
	}
	val, ok := coll[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Put implements KV.
func (s *MemStore) Put(_ context.Context, collection, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.data[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.data[collection] = coll
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	coll[key] = stored
	return nil
}

// Delete implements KV.
func (s *MemStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if coll, ok := s.data[collection]; ok {
		delete(coll, key)
	}
	return nil
}

// Keys implements KV.
func (s *MemStore) Keys(_ context.Context, collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll := s.data[collection]
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	return keys, nil
}

// SAdd implements KV.
func (s *MemStore) SAdd(_ context.Context, collection, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.sets[collection]
	if !ok {
		coll = make(map[string]map[string]struct{})
		s.sets[collection] = coll
	}
	set, ok := coll[key]
	if !ok {
		set = make(map[string]struct{})
		coll[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

// SMembers implements KV.
func (s *MemStore) SMembers(_ context.Context, collection, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[collection][key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	return members, nil
}

// Close implements KV.
func (s *MemStore) Close() error { return nil }

// MemPageStore is an in-memory PageStore used in tests.
type MemPageStore struct {
	mu    sync.RWMutex
	pages map[string]*domain.PageRecord
}

// NewMemPageStore returns an empty in-memory page store.
func NewMemPageStore() *MemPageStore {
	return &MemPageStore{pages: make(map[string]*domain.PageRecord)}
}

// Index implements PageStore.
func (s *MemPageStore) Index(_ context.Context, page *domain.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *page
	s.pages[page.ID] = &copied
	return nil
}

// CountByDomain implements PageStore.
func (s *MemPageStore) CountByDomain(_ context.Context, domainName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.pages {
		if p.Domain == domainName {
			count++
		}
	}
	return count, nil
}

// Pages returns every stored page, for assertions in tests.
func (s *MemPageStore) Pages() []*domain.PageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.PageRecord, 0, len(s.pages))
	for _, p := range s.pages {
		copied := *p
		out = append(out, &copied)
	}
	return out
}

// Close implements PageStore.
func (s *MemPageStore) Close() error { return nil }
