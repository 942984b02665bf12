// Package store provides a generic, thread-safe, in-memory table keyed by
// numeric ids, plus the simulated clock the twin runs on.
package store

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Store is a thread-safe table of T keyed by sequential int64 ids.
type Store[T any] struct {
	mu    sync.RWMutex
	items map[int64]T
	order []int64 // insertion order for deterministic listing
	last  int64
}

// New creates an empty Store.
func New[T any]() *Store[T] {
	return &Store[T]{items: make(map[int64]T)}
}

// NextID reserves the next id. Ids start at 1.
func (s *Store[T]) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

// Set stores item under id. An existing id keeps its position in the order.
func (s *Store[T]) Set(id int64, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = item
	if id > s.last {
		s.last = id
	}
}

// Insert assigns the next id to item, lets assign record it, and stores it.
func (s *Store[T]) Insert(item T, assign func(id int64, item *T)) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	id := s.last
	if assign != nil {
		assign(id, &item)
	}
	s.items[id] = item
	s.order = append(s.order, id)
	return item
}

// Get returns the item stored under id.
func (s *Store[T]) Get(id int64) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Update applies fn to the item under id while holding the write lock. If fn
// returns an error the item is left unchanged.
func (s *Store[T]) Update(id int64, fn func(item *T) error) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false, nil
	}
	if err := fn(&item); err != nil {
		return s.items[id], true, err
	}
	s.items[id] = item
	return item, true, nil
}

// Delete removes id and reports whether it existed.
func (s *Store[T]) Delete(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return false
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns all items in insertion order.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]T, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.items[id])
	}
	return result
}

// Filter returns matching items in insertion order. The result is never nil.
func (s *Store[T]) Filter(predicate func(id int64, item T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []T{}
	for _, id := range s.order {
		if predicate(id, s.items[id]) {
			result = append(result, s.items[id])
		}
	}
	return result
}

// Find returns the first matching item and its id.
func (s *Store[T]) Find(predicate func(item T) bool) (int64, T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if predicate(s.items[id]) {
			return id, s.items[id], true
		}
	}
	var zero T
	return 0, zero, false
}

// Count returns the number of items.
func (s *Store[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Reset clears all items and restarts ids at 1.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[int64]T)
	s.order = nil
	s.last = 0
}

// Snapshot returns all items keyed by decimal id.
func (s *Store[T]) Snapshot() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]T, len(s.items))
	for k, v := range s.items {
		snapshot[strconv.FormatInt(k, 10)] = v
	}
	return snapshot
}

// LoadSnapshot replaces all items. Keys that are not decimal ids are skipped.
// Ids are ordered numerically and the next id continues after the largest.
func (s *Store[T]) LoadSnapshot(snapshot map[string]T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[int64]T, len(snapshot))
	s.order = make([]int64, 0, len(snapshot))
	s.last = 0
	for k, v := range snapshot {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		s.items[id] = v
		s.order = append(s.order, id)
		if id > s.last {
			s.last = id
		}
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
}

// MarshalJSON serializes the store as its snapshot.
func (s *Store[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// UnmarshalJSON replaces the store contents from a snapshot.
func (s *Store[T]) UnmarshalJSON(data []byte) error {
	var snapshot map[string]T
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	s.LoadSnapshot(snapshot)
	return nil
}

// Clock is the twin's simulated clock: a base clock plus an adjustable offset.
type Clock struct {
	base   clockwork.Clock
	mu     sync.RWMutex
	offset time.Duration
}

// NewClock creates a Clock over base. A nil base uses the real clock.
func NewClock(base clockwork.Clock) *Clock {
	if base == nil {
		base = clockwork.NewRealClock()
	}
	return &Clock{base: base}
}

// Now returns the simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.Now().Add(c.offset)
}

// Advance moves simulated time forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Reset drops the offset.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
}

// Offset returns the current offset from the base clock.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
