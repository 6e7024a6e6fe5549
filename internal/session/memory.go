package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	username string
	expires  time.Time
}

// MemoryStore keeps session bindings in process. Expired entries are dropped
// lazily when looked up.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create stores a new binding for username and returns its token.
func (s *MemoryStore) Create(_ context.Context, username string) (string, error) {
	token := newToken()

	s.mu.Lock()
	s.sessions[token] = memoryEntry{username: username, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return token, nil
}

// Lookup resolves token and slides its expiry forward.
func (s *MemoryStore) Lookup(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return "", nil
	}
	now := s.now()
	if now.After(e.expires) {
		delete(s.sessions, token)
		return "", nil
	}
	e.expires = now.Add(s.ttl)
	s.sessions[token] = e
	return e.username, nil
}

// Delete removes token. Unknown tokens are ignored.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}
