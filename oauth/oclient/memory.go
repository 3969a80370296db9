package oclient

import (
	"context"
	"sync"
)

var _ TokenStore = &MemoryStore{}

// MemoryStore keeps credentials in process memory. It does not survive a
// restart and is not shared between processes.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]Credential
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]Credential)}
}

// GetToken returns a copy of the stored credential.
func (s *MemoryStore) GetToken(_ context.Context, openID string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.tokens[openID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

// SaveToken stores a copy of cred under openID.
func (s *MemoryStore) SaveToken(_ context.Context, openID string, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[openID] = *cred
	return nil
}

// Count returns the number of stored credentials.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
