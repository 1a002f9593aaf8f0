package redirect

import "sync"

// HiddenServiceSlot holds the hostname of the last hidden service resolved to
// the 0.0.0.2 sentinel until a connect to the sentinel takes it.
type HiddenServiceSlot struct {
	mu   sync.Mutex
	name string
}

// Store replaces any pending hostname with name.
func (s *HiddenServiceSlot) Store(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// Take returns the pending hostname, or "" if there is none, and empties the
// slot.
func (s *HiddenServiceSlot) Take() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.name
	s.name = ""
	return name
}
