package match

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a single-process Store used when no REDIS_URL is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	matches  map[string]*Match
	sessions map[string]map[string]struct{} // sessionID -> match ids
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches:  make(map[string]*Match),
		sessions: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Create(ctx context.Context, m *Match) (bool, error) {
	if m == nil {
		return false, ErrInvalidArgs
	}
	id := NormalizeID(m.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[id]; exists {
		return false, nil
	}
	s.matches[id] = m.Clone()
	return true, nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[NormalizeID(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*Match) error) (*Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := NormalizeID(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.matches[key]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errNoop) {
			return cur.Clone(), nil
		}
		return cur.Clone(), err
	}
	next.Version = cur.Version + 1
	s.matches[key] = next
	return next.Clone(), nil
}

func (s *MemoryStore) IndexSession(ctx context.Context, sessionID, matchID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	key := strings.TrimSpace(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sessions[key]
	if set == nil {
		set = make(map[string]struct{})
		s.sessions[key] = set
	}
	set[NormalizeID(matchID)] = struct{}{}
	return nil
}

func (s *MemoryStore) MatchIDsBySession(ctx context.Context, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sessions[strings.TrimSpace(sessionID)]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }
