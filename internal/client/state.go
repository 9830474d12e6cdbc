package client

import "sync"

// SessionState tracks the latest result of each inhibiting condition and
// aggregates them into the session's inhibition intent
type SessionState struct {
	mu     sync.Mutex
	values map[string]bool
}

// NewSessionState creates an empty state; an empty state wants no inhibition
func NewSessionState() *SessionState {
	return &SessionState{values: make(map[string]bool)}
}

// Set records a condition's latest result and reports the new aggregate and
// whether it changed
func (s *SessionState) Set(name string, value bool) (aggregate, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.aggregateLocked()
	s.values[name] = value
	after := s.aggregateLocked()
	return after, before != after
}

// Remove drops a condition from the aggregate, reporting the new aggregate
// and whether it changed
func (s *SessionState) Remove(name string) (aggregate, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.aggregateLocked()
	delete(s.values, name)
	after := s.aggregateLocked()
	return after, before != after
}

// Reset clears all recorded results
func (s *SessionState) Reset() {
	s.mu.Lock()
	s.values = make(map[string]bool)
	s.mu.Unlock()
}

// WantsInhibit reports whether any condition currently inhibits sleep
func (s *SessionState) WantsInhibit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregateLocked()
}

func (s *SessionState) aggregateLocked() bool {
	for _, v := range s.values {
		if v {
			return true
		}
	}
	return false
}
