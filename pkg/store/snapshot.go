package store

import (
	"sort"

	"github.com/tripnest/tripsync/pkg/cache"
	"github.com/tripnest/tripsync/pkg/models"
)

// Snapshot is the persistable state of one Store.
type Snapshot[E models.Entity] struct {
	Kind     models.Kind     `json:"kind" cbor:"kind"`
	Entities []E             `json:"entities" cbor:"entities"`
	IDs      []string        `json:"ids" cbor:"ids"`
	Pending  []PendingUpdate `json:"pending,omitempty" cbor:"pending,omitempty"`
	Entries  []cache.Entry   `json:"entries,omitempty" cbor:"entries,omitempty"`
}

// Export copies the base entities, list order, overlays and cache
// timestamps. Overlay fields written by a mutation still in flight are left
// out, and so are the cache entries of their entities: the next Fetch after
// an Import asks the server instead of trusting an unconfirmed change.
func (s *Store[E]) Export() Snapshot[E] {
	s.mu.Lock()
	snap := Snapshot[E]{
		Kind:     s.kind,
		Entities: make([]E, 0, len(s.base)),
		IDs:      append([]string(nil), s.ids...),
	}
	for _, id := range sortedKeys(s.base) {
		snap.Entities = append(snap.Entities, s.base[id])
	}
	for _, id := range sortedKeys(s.pending) {
		p := s.pending[id]
		patch := make(models.Patch, len(p.Patch))
		for k, v := range p.Patch {
			if _, ok := s.active[p.seqs[k]]; ok {
				continue
			}
			patch[k] = v
		}
		if len(patch) == 0 {
			continue
		}
		snap.Pending = append(snap.Pending, PendingUpdate{
			EntityID:   p.EntityID,
			Patch:      patch,
			ObservedAt: p.ObservedAt,
		})
	}
	unconfirmed := make(map[string]struct{}, len(s.inflight))
	for id := range s.inflight {
		unconfirmed[cache.EntityKey(s.kind, id)] = struct{}{}
	}
	s.mu.Unlock()

	for _, e := range s.entries.Snapshot() {
		if _, ok := unconfirmed[e.Key]; ok {
			continue
		}
		snap.Entries = append(snap.Entries, e)
	}
	return snap
}

// Import merges snap into the store. Entities already present are kept.
func (s *Store[E]) Import(snap Snapshot[E]) {
	s.mu.Lock()
	for _, e := range snap.Entities {
		if _, ok := s.base[e.EntityID()]; !ok {
			s.base[e.EntityID()] = e
		}
	}
	s.ids = appendUnique(s.ids, snap.IDs)
	for _, p := range snap.Pending {
		if _, ok := s.pending[p.EntityID]; !ok {
			s.pending[p.EntityID] = &PendingUpdate{
				EntityID:   p.EntityID,
				Patch:      p.Patch.Clone(),
				ObservedAt: p.ObservedAt,
			}
		}
	}
	s.mu.Unlock()

	s.entries.Restore(snap.Entries)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
