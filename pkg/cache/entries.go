package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tripnest/tripsync/internal/clock"
)

type Entry struct {
	Key       string    `json:"key"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Entries records when each key was last fetched.
type Entries struct {
	mu        sync.RWMutex
	clock     clock.Clock
	fetchedAt map[string]time.Time
}

func NewEntries(c clock.Clock) *Entries {
	if c == nil {
		c = clock.Real()
	}
	return &Entries{
		clock:     c,
		fetchedAt: make(map[string]time.Time),
	}
}

// Touch marks key as fetched now.
func (e *Entries) Touch(key string) {
	now := e.clock.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetchedAt[key] = now
}

func (e *Entries) Get(key string) (Entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	at, ok := e.fetchedAt[key]
	return Entry{Key: key, FetchedAt: at}, ok
}

// Valid reports whether key was fetched less than ttl ago.
func (e *Entries) Valid(key string, ttl time.Duration) bool {
	entry, ok := e.Get(key)
	if !ok {
		return false
	}
	return IsValid(entry.FetchedAt, ttl, e.clock.Now())
}

func (e *Entries) Delete(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.fetchedAt[key]
	delete(e.fetchedAt, key)
	return ok
}

// Invalidate removes every key containing pattern and returns how many
// were removed.
func (e *Entries) Invalidate(pattern string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for key := range e.fetchedAt {
		if strings.Contains(key, pattern) {
			delete(e.fetchedAt, key)
			n++
		}
	}
	return n
}

func (e *Entries) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetchedAt = make(map[string]time.Time)
}

func (e *Entries) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.fetchedAt)
}

// Snapshot returns all entries sorted by key.
func (e *Entries) Snapshot() []Entry {
	e.mu.RLock()
	out := make([]Entry, 0, len(e.fetchedAt))
	for k, at := range e.fetchedAt {
		out = append(out, Entry{Key: k, FetchedAt: at})
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Restore adds entries, keeping the newer timestamp when a key exists.
func (e *Entries) Restore(entries []Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range entries {
		if at, ok := e.fetchedAt[entry.Key]; ok && at.After(entry.FetchedAt) {
			continue
		}
		e.fetchedAt[entry.Key] = entry.FetchedAt
	}
}
