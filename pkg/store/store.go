package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tripnest/tripsync/internal/clock"
	"github.com/tripnest/tripsync/internal/codec"
	"github.com/tripnest/tripsync/pkg/cache"
	"github.com/tripnest/tripsync/pkg/constants"
	"github.com/tripnest/tripsync/pkg/events"
	"github.com/tripnest/tripsync/pkg/logger"
	"github.com/tripnest/tripsync/pkg/models"
)

type Config[E models.Entity] struct {
	Kind models.Kind

	// TTL applies to single-entity fetches.
	TTL time.Duration

	// ListTTL applies to list and search pages. Defaults to TTL.
	ListTTL time.Duration

	Source Source[E]
	Clock  clock.Clock
	Logger logger.Logger
}

// PendingUpdate is the overlay of unconfirmed fields for one entity.
type PendingUpdate struct {
	EntityID   string       `json:"entityId"`
	Patch      models.Patch `json:"patch"`
	ObservedAt time.Time    `json:"observedAt"`

	// seqs holds the sequence number of the last write to each field.
	seqs map[string]uint64
}

type Result[E models.Entity] struct {
	Value     E
	FromCache bool
}

type ListResult[E models.Entity] struct {
	Items     []E
	Total     int
	HasMore   bool
	FromCache bool
}

type listPage struct {
	ids     []string
	total   int
	hasMore bool
}

// Store is safe for concurrent use. Its mutex is never held across a call
// to the Source.
type Store[E models.Entity] struct {
	kind    models.Kind
	ttl     time.Duration
	listTTL time.Duration
	source  Source[E]
	clock   clock.Clock
	logger  logger.Logger
	codec   codec.Codec
	entries *cache.Entries

	mu       sync.Mutex
	base     map[string]E
	pending  map[string]*PendingUpdate
	inflight map[string]int
	seq      uint64
	active   map[uint64]struct{}
	ids      []string
	pages    map[string]listPage
	loading  map[string]int
	errs     map[string]error
}

func New[E models.Entity](cfg Config[E]) *Store[E] {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.ListTTL == 0 {
		cfg.ListTTL = cfg.TTL
	}

	s := &Store[E]{
		kind:    cfg.Kind,
		ttl:     cfg.TTL,
		listTTL: cfg.ListTTL,
		source:  cfg.Source,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		codec:   codec.JSON{},
		entries: cache.NewEntries(cfg.Clock),
	}
	s.reset()
	return s
}

func (s *Store[E]) reset() {
	s.base = make(map[string]E)
	s.pending = make(map[string]*PendingUpdate)
	s.inflight = make(map[string]int)
	s.active = make(map[uint64]struct{})
	s.ids = nil
	s.pages = make(map[string]listPage)
	s.loading = make(map[string]int)
	s.errs = make(map[string]error)
}

func (s *Store[E]) Kind() models.Kind { return s.kind }

// Entries exposes the cache timestamps backing this store.
func (s *Store[E]) Entries() *cache.Entries { return s.entries }

// Get returns the base entity with any pending overlay applied.
func (s *Store[E]) Get(id string) (E, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(id)
}

func (s *Store[E]) viewLocked(id string) (E, bool) {
	e, ok := s.base[id]
	if !ok {
		return e, false
	}
	p, ok := s.pending[id]
	if !ok {
		return e, true
	}
	view, err := applyPatch(s.codec, e, p.Patch)
	if err != nil {
		s.logger.Warn("store: failed to apply pending patch", "kind", s.kind, "id", id, "error", err)
		return e, true
	}
	return view, true
}

// IDs returns the ordered ids accumulated by List.
func (s *Store[E]) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// All returns the views of the listed entities, in list order.
func (s *Store[E]) All() []E {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewsLocked(s.ids)
}

func (s *Store[E]) viewsLocked(ids []string) []E {
	out := make([]E, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.viewLocked(id); ok {
			out = append(out, e)
		}
	}
	return out
}

// Loading reports whether the operation keyed by op (an entity id or a list
// cache key) is in progress.
func (s *Store[E]) Loading(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading[op] > 0
}

// Err returns the error recorded by the last failed operation keyed by op.
func (s *Store[E]) Err(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[op]
}

func (s *Store[E]) Pending(id string) (PendingUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return PendingUpdate{}, false
	}
	return PendingUpdate{EntityID: p.EntityID, Patch: p.Patch.Clone(), ObservedAt: p.ObservedAt}, true
}

func (s *Store[E]) begin(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading[op]++
	delete(s.errs, op)
}

// finish records err under op and returns it wrapped with ErrFetch.
func (s *Store[E]) finish(op, verb string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading[op]--; s.loading[op] <= 0 {
		delete(s.loading, op)
	}
	if err == nil {
		return nil
	}
	err = fmt.Errorf("%w: %s %s %s: %w", constants.ErrFetch, verb, s.kind, op, err)
	s.errs[op] = err
	return err
}

// Fetch returns entity id, from cache when its entry is still valid.
func (s *Store[E]) Fetch(ctx context.Context, id string) (Result[E], error) {
	key := cache.EntityKey(s.kind, id)
	if s.entries.Valid(key, s.ttl) {
		if e, ok := s.Get(id); ok {
			return Result[E]{Value: e, FromCache: true}, nil
		}
	}
	if s.source == nil {
		return Result[E]{}, fmt.Errorf("%w: %s %s has no source", constants.ErrNotFound, s.kind, id)
	}

	s.begin(id)
	e, err := s.source.Get(ctx, id)
	if err = s.finish(id, "get", err); err != nil {
		return Result[E]{}, err
	}

	s.mu.Lock()
	s.storeLocked(e)
	view, _ := s.viewLocked(id)
	s.mu.Unlock()

	s.entries.Touch(key)
	return Result[E]{Value: view}, nil
}

// storeLocked overwrites the base copy. The overlay is dropped unless a
// mutation on the id is still in flight, since the server copy is newer than
// anything pushed before it.
func (s *Store[E]) storeLocked(e E) {
	id := e.EntityID()
	s.base[id] = e
	if s.inflight[id] == 0 {
		delete(s.pending, id)
	}
}

// ListKey is the cache and operation key for q.
func (s *Store[E]) ListKey(q Query) string {
	if q.Search {
		return cache.SearchKey(q.Params, q.Page)
	}
	return cache.ListKey(s.kind, q.Params, q.Page)
}

// List fetches one page. Page 1 (or Reset) replaces the accumulated ids,
// later pages append ids not already present.
func (s *Store[E]) List(ctx context.Context, q Query) (ListResult[E], error) {
	key := s.ListKey(q)
	if s.entries.Valid(key, s.listTTL) {
		s.mu.Lock()
		page, ok := s.pages[key]
		var res ListResult[E]
		if ok {
			s.accumulateLocked(q, page.ids)
			res = ListResult[E]{
				Items:     s.viewsLocked(page.ids),
				Total:     page.total,
				HasMore:   page.hasMore,
				FromCache: true,
			}
		}
		s.mu.Unlock()
		if ok {
			return res, nil
		}
	}
	if s.source == nil {
		return ListResult[E]{}, fmt.Errorf("%w: %s list has no source", constants.ErrNotFound, s.kind)
	}

	s.begin(key)
	page, err := s.source.List(ctx, q)
	if err = s.finish(key, "list", err); err != nil {
		return ListResult[E]{}, err
	}

	ids := make([]string, 0, len(page.Items))
	s.mu.Lock()
	for _, e := range page.Items {
		s.storeLocked(e)
		ids = append(ids, e.EntityID())
	}
	s.pages[key] = listPage{ids: ids, total: page.Total, hasMore: page.HasMore}
	s.accumulateLocked(q, ids)
	items := s.viewsLocked(ids)
	s.mu.Unlock()

	for _, id := range ids {
		s.entries.Touch(cache.EntityKey(s.kind, id))
	}
	s.entries.Touch(key)

	return ListResult[E]{Items: items, Total: page.Total, HasMore: page.HasMore}, nil
}

func (s *Store[E]) accumulateLocked(q Query, ids []string) {
	if q.Page <= 1 || q.Reset {
		s.ids = append([]string(nil), ids...)
		return
	}
	s.ids = appendUnique(s.ids, ids)
}

func appendUnique(dst, ids []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, id := range dst {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		dst = append(dst, id)
	}
	return dst
}

// priorValue is what an overlay field held before a mutation wrote it.
type priorValue struct {
	value   any
	seq     uint64
	present bool
}

// mutation records the overlay fields one Mutate call wrote.
type mutation struct {
	id    string
	prior map[string]priorValue
	seqs  map[string]uint64
}

// applyLocked lays patch over the overlay for id and stamps every field with
// a fresh sequence number.
func (s *Store[E]) applyLocked(id string, patch models.Patch) *mutation {
	p, ok := s.pending[id]
	if !ok {
		p = &PendingUpdate{EntityID: id, Patch: models.Patch{}}
		s.pending[id] = p
	}
	if p.seqs == nil {
		p.seqs = make(map[string]uint64, len(patch))
	}

	m := &mutation{
		id:    id,
		prior: make(map[string]priorValue, len(patch)),
		seqs:  make(map[string]uint64, len(patch)),
	}
	for k := range patch {
		v, present := p.Patch[k]
		m.prior[k] = priorValue{value: v, seq: p.seqs[k], present: present}
		s.seq++
		p.seqs[k] = s.seq
		m.seqs[k] = s.seq
		s.active[s.seq] = struct{}{}
	}
	p.Patch = p.Patch.Merge(patch)
	p.ObservedAt = s.clock.Now()
	s.inflight[id]++
	return m
}

// settleLocked ends m: the server copy e is committed when err is nil,
// otherwise the fields m still owns are put back.
func (s *Store[E]) settleLocked(m *mutation, e E, err error) {
	for _, seq := range m.seqs {
		delete(s.active, seq)
	}
	if s.inflight[m.id]--; s.inflight[m.id] <= 0 {
		delete(s.inflight, m.id)
	}
	if err != nil {
		s.rollbackLocked(m)
		return
	}
	s.commitLocked(e)
}

// Mutate applies patch optimistically and runs call. On success the server
// copy is committed. On failure the overlay fields this call set are put
// back the way they were and the error is recorded under id.
func (s *Store[E]) Mutate(ctx context.Context, id string, patch models.Patch, call CallFunc[E]) (E, error) {
	m := s.start(id, patch)
	e, err := s.run(ctx, id, call)
	return s.end(m, e, err)
}

func (s *Store[E]) start(id string, patch models.Patch) *mutation {
	s.mu.Lock()
	m := s.applyLocked(id, patch)
	s.mu.Unlock()

	s.logger.Debug("store: optimistic update", "kind", s.kind, "id", id, "fields", patch.Keys())
	return m
}

func (s *Store[E]) end(m *mutation, e E, err error) (E, error) {
	s.mu.Lock()
	s.settleLocked(m, e, err)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("store: update rolled back", "kind", s.kind, "id", m.id, "error", err)
		var zero E
		return zero, err
	}
	s.entries.Touch(cache.EntityKey(s.kind, e.EntityID()))
	return e, nil
}

func (s *Store[E]) run(ctx context.Context, id string, call CallFunc[E]) (E, error) {
	s.begin(id)
	e, err := call(ctx)
	return e, s.finish(id, "update", err)
}

// rollbackLocked restores only fields whose sequence number is still the one
// the failed mutation wrote, so anything merged in the meantime is kept.
func (s *Store[E]) rollbackLocked(m *mutation) {
	p, ok := s.pending[m.id]
	if !ok {
		return
	}
	for k, seq := range m.seqs {
		if p.seqs[k] != seq {
			continue
		}
		if pv := m.prior[k]; pv.present {
			p.Patch[k] = pv.value
			p.seqs[k] = pv.seq
		} else {
			delete(p.Patch, k)
			delete(p.seqs, k)
		}
	}
	if len(p.Patch) == 0 {
		delete(s.pending, m.id)
	}
}

// Update patches entity id through the Source.
func (s *Store[E]) Update(ctx context.Context, id string, patch models.Patch) (E, error) {
	if s.source == nil {
		var zero E
		return zero, fmt.Errorf("%w: %s %s has no source", constants.ErrNotFound, s.kind, id)
	}
	return s.Mutate(ctx, id, patch, func(ctx context.Context) (E, error) {
		return s.source.Update(ctx, id, patch)
	})
}

// Commit makes e the base copy, refreshes its cache entry and drops its
// overlay. Committing the same entity twice leaves the same state.
func (s *Store[E]) Commit(e E) E {
	s.mu.Lock()
	s.commitLocked(e)
	s.mu.Unlock()

	s.entries.Touch(cache.EntityKey(s.kind, e.EntityID()))
	return e
}

func (s *Store[E]) commitLocked(e E) {
	id := e.EntityID()
	s.base[id] = e
	delete(s.pending, id)
}

// Put inserts e as if it had just been fetched, without touching the list.
func (s *Store[E]) Put(e E) {
	s.mu.Lock()
	s.storeLocked(e)
	s.mu.Unlock()
	s.entries.Touch(cache.EntityKey(s.kind, e.EntityID()))
}

// Prepend inserts e at the head of the id list, moving it if already listed.
// It reports whether the id was new to the list.
func (s *Store[E]) Prepend(e E) bool {
	id := e.EntityID()

	s.mu.Lock()
	isNew := true
	ids := make([]string, 0, len(s.ids)+1)
	ids = append(ids, id)
	for _, existing := range s.ids {
		if existing == id {
			isNew = false
			continue
		}
		ids = append(ids, existing)
	}
	s.ids = ids
	s.storeLocked(e)
	s.mu.Unlock()

	s.entries.Touch(cache.EntityKey(s.kind, id))
	return isNew
}

// MergePending lays patch over the overlay for id. Later fields win.
func (s *Store[E]) MergePending(id string, patch models.Patch) {
	if len(patch) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mergeLocked(id, patch)
}

// mergeLocked stamps the merged fields with new sequence numbers, so a
// mutation in flight no longer owns them.
func (s *Store[E]) mergeLocked(id string, patch models.Patch) {
	p, ok := s.pending[id]
	if !ok {
		p = &PendingUpdate{EntityID: id}
		s.pending[id] = p
	}
	if p.seqs == nil {
		p.seqs = make(map[string]uint64, len(patch))
	}
	for k := range patch {
		s.seq++
		p.seqs[k] = s.seq
	}
	p.Patch = p.Patch.Merge(patch)
	p.ObservedAt = s.clock.Now()
}

// InvalidateEntity forces the next Fetch of id to hit the network.
func (s *Store[E]) InvalidateEntity(id string) {
	s.entries.Delete(cache.EntityKey(s.kind, id))
}

// Invalidate drops every cache entry whose key contains pattern.
func (s *Store[E]) Invalidate(pattern string) int {
	return s.entries.Invalidate(pattern)
}

// Clear drops all entities, overlays and cache entries.
func (s *Store[E]) Clear() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
	s.entries.Clear()
}

// Bind subscribes the store to pushed patches and invalidations for its kind.
func (s *Store[E]) Bind(bus *events.Bus) (unbind func()) {
	unpatch := events.On(bus, func(ev events.EntityPatched) {
		if ev.Kind == s.kind {
			s.MergePending(ev.ID, ev.Patch)
		}
	})
	uninvalidate := events.On(bus, func(ev events.EntityInvalidated) {
		if ev.Kind == s.kind {
			s.InvalidateEntity(ev.ID)
		}
	})
	return func() {
		unpatch()
		uninvalidate()
	}
}

// IsFetchError reports whether err came from a failed store operation.
func IsFetchError(err error) bool {
	return errors.Is(err, constants.ErrFetch)
}
