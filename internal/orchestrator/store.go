package orchestrator

import (
	"context"
	"sort"
	"sync"
)

// SessionStore is the Active-Session Registry: a keyed store of running
// sessions. Implementations can be in-memory or remote; the Service never
// depends on which one is used. Get returns ok=false for unknown ids.
type SessionStore interface {
	Get(ctx context.Context, id SessionID) (*Session, bool, error)
	Put(ctx context.Context, s *Session) error
	Remove(ctx context.Context, id SessionID) error
	List(ctx context.Context) ([]*Session, error)
}

// InMemorySessionStore is a concurrency-safe in-memory SessionStore. It
// stores and returns copies so callers cannot mutate registry state.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[SessionID]*Session
}

// NewInMemorySessionStore returns a new empty in-memory store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[SessionID]*Session)}
}

// Get implements SessionStore.Get.
func (s *InMemorySessionStore) Get(_ context.Context, id SessionID) (*Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, nil
	}
	return sess.Clone(), true, nil
}

// Put implements SessionStore.Put.
func (s *InMemorySessionStore) Put(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Remove implements SessionStore.Remove. Removing an unknown id is a no-op.
func (s *InMemorySessionStore) Remove(_ context.Context, id SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// List implements SessionStore.List, ordered by session id.
func (s *InMemorySessionStore) List(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
