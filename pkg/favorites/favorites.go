// Package favorites tracks the user's wishlist so that pushed updates to
// saved properties, POIs and experiences can be called out.
package favorites

import (
	"sort"
	"sync"

	"github.com/tripnest/tripsync/pkg/models"
)

type Item struct {
	Kind models.Kind `json:"kind"`
	ID   string      `json:"id"`
}

// Set is safe for concurrent use. The zero value is empty and ready to use.
type Set struct {
	mu    sync.RWMutex
	items map[Item]struct{}
}

func New(items ...Item) *Set {
	s := &Set{}
	for _, it := range items {
		s.Add(it.Kind, it.ID)
	}
	return s
}

// Add reports whether the item was newly added.
func (s *Set) Add(kind models.Kind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[Item]struct{})
	}
	it := Item{Kind: kind, ID: id}
	if _, ok := s.items[it]; ok {
		return false
	}
	s.items[it] = struct{}{}
	return true
}

// Remove reports whether the item was present.
func (s *Set) Remove(kind models.Kind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := Item{Kind: kind, ID: id}
	if _, ok := s.items[it]; !ok {
		return false
	}
	delete(s.items, it)
	return true
}

func (s *Set) Contains(kind models.Kind, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[Item{Kind: kind, ID: id}]
	return ok
}

// Toggle flips membership and returns the new state.
func (s *Set) Toggle(kind models.Kind, id string) bool {
	if s.Remove(kind, id) {
		return false
	}
	s.Add(kind, id)
	return true
}

// List returns the items sorted by kind, then id.
func (s *Set) List() []Item {
	s.mu.RLock()
	out := make([]Item, 0, len(s.items))
	for it := range s.items {
		out = append(out, it)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
