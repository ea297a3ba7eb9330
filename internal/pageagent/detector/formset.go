package detector

import (
	"sync"

	"github.com/atinyakov/keeperbridge/internal/pageagent/dom"
)

// FormSet records the forms already wired with a submit listener. Members
// are keyed by stable element identity and are evicted explicitly when the
// form leaves the document or the document unloads.
type FormSet struct {
	mu  sync.Mutex
	ids map[dom.NodeID]struct{}
}

// NewFormSet returns an empty set.
func NewFormSet() *FormSet {
	return &FormSet{ids: make(map[dom.NodeID]struct{})}
}

// Add inserts id and reports whether it was absent.
func (s *FormSet) Add(id dom.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Forget evicts id.
func (s *FormSet) Forget(id dom.NodeID) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// Clear evicts everything.
func (s *FormSet) Clear() {
	s.mu.Lock()
	s.ids = make(map[dom.NodeID]struct{})
	s.mu.Unlock()
}

// Len returns the number of members.
func (s *FormSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
