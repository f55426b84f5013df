package checkout

import "sync"

type syncAttempts struct {
	mu sync.RWMutex
	m  map[string]*Attempt
}

func (s *syncAttempts) put(a *Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]*Attempt)
	}
	s.m[a.ID] = a
}

func (s *syncAttempts) get(id string) (*Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.m[id]
	return a, ok
}

func (s *syncAttempts) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}
