package storage

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/tcmartin/connectsync/pkg/connecterr"
)

// MemoryStore implements FlowStore in memory
type MemoryStore struct {
	files map[string][]byte
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

// Save implements FlowStore
func (s *MemoryStore) Save(name string, data []byte) (string, error) {
	if name == "" {
		return "", connecterr.Validation("cannot save a flow without a name")
	}
	path := FileName(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = append([]byte(nil), data...)
	return path, nil
}

// Load implements FlowStore
func (s *MemoryStore) Load(patterns ...string) ([]LocalFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var flows []LocalFlow
	for path, data := range s.files {
		for _, pattern := range patterns {
			ok, err := filepath.Match(pattern, path)
			if err != nil {
				return nil, connecterr.Validation("invalid pattern %q: %v", pattern, err)
			}
			if ok {
				flows = append(flows, LocalFlow{Path: path, Content: data})
				break
			}
		}
	}
	if len(flows) == 0 {
		return nil, connecterr.Validation("no files match %v", patterns)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].Path < flows[j].Path })
	return flows, nil
}

// Get returns the stored content of a file
func (s *MemoryStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[path]
	return data, ok
}
