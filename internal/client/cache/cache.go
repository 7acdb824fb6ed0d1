// Package cache provides the read-optimized in-memory mirror of a collection.
//
// The cache keeps an immutable snapshot (key index plus ordered list) behind
// an atomic pointer. Every change builds a new snapshot and swaps it in, so
// readers never observe a half-applied update. Snapshots returned to callers
// are shared and must be treated as read-only. Entities holding reference
// fields (maps, slices) share them with the snapshot as well: a change must
// go through the collection, which rebuilds the snapshot from the store.
// models.Document exposes With as its copying mutation path.
package cache

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/iudanet/gophsync/internal/models"
)

// Source is what the cache reloads from. localstore.LocalStore satisfies it.
type Source[T models.Entity] interface {
	Scan(ctx context.Context, pred func(T) bool, limit int) ([]T, error)
}

type snapshot[T models.Entity] struct {
	byKey map[string]int
	list  []T
}

// MemCache mirrors the contents of a local store
type MemCache[T models.Entity] struct {
	source Source[T]
	snap   atomic.Pointer[snapshot[T]]
}

// New creates an empty cache backed by source
func New[T models.Entity](source Source[T]) *MemCache[T] {
	c := &MemCache[T]{source: source}
	c.snap.Store(build[T](nil))
	return c
}

// Load replaces the snapshot with the contents of the source.
// filter may be nil.
func (c *MemCache[T]) Load(ctx context.Context, filter func(T) bool) error {
	entities, err := c.source.Scan(ctx, filter, 0)
	if err != nil {
		return err
	}
	c.snap.Store(build(entities))
	return nil
}

// Reset drops every cached entity
func (c *MemCache[T]) Reset() {
	c.snap.Store(build[T](nil))
}

// Unique returns the entity with key. The entity shares its reference
// fields with the snapshot.
func (c *MemCache[T]) Unique(key string) (T, bool) {
	s := c.snap.Load()
	i, ok := s.byKey[key]
	if !ok {
		var zero T
		return zero, false
	}
	return s.list[i], true
}

// Has reports whether key is cached
func (c *MemCache[T]) Has(key string) bool {
	_, ok := c.snap.Load().byKey[key]
	return ok
}

// All returns the current ordered snapshot. The slice must not be modified.
func (c *MemCache[T]) All() []T {
	return slices.Clip(c.snap.Load().list)
}

// Len returns the number of cached entities
func (c *MemCache[T]) Len() int {
	return len(c.snap.Load().list)
}

// Keys returns the keys of all cached entities in snapshot order
func (c *MemCache[T]) Keys() []string {
	s := c.snap.Load()
	keys := make([]string, 0, len(s.list))
	for _, e := range s.list {
		keys = append(keys, e.Key())
	}
	return keys
}

// Filter returns the entities accepted by pred
func (c *MemCache[T]) Filter(pred func(T) bool) []T {
	var out []T
	for _, e := range c.snap.Load().list {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the first entity accepted by pred
func (c *MemCache[T]) Find(pred func(T) bool) (T, bool) {
	for _, e := range c.snap.Load().list {
		if pred(e) {
			return e, true
		}
	}
	var zero T
	return zero, false
}

// Sort returns a sorted copy of the snapshot
func (c *MemCache[T]) Sort(cmp func(a, b T) int) []T {
	out := slices.Clone(c.snap.Load().list)
	slices.SortStableFunc(out, cmp)
	return out
}

// OnEntriesUpdated replaces cached entities with the same keys and appends
// the new versions. Only the collection controller calls it.
func (c *MemCache[T]) OnEntriesUpdated(entities []T) {
	if len(entities) == 0 {
		return
	}

	cur := c.snap.Load()

	// Во входной пачке ключ может повторяться - побеждает последняя версия
	incoming := make(map[string]int, len(entities))
	for i, e := range entities {
		incoming[e.Key()] = i
	}

	list := make([]T, 0, len(cur.list)+len(entities))
	for _, e := range cur.list {
		if _, ok := incoming[e.Key()]; !ok {
			list = append(list, e)
		}
	}
	for i, e := range entities {
		if incoming[e.Key()] == i {
			list = append(list, e)
		}
	}

	c.snap.Store(build(list))
}

// OnEntriesDeleted removes cached entities with matching keys.
// Only the collection controller calls it.
func (c *MemCache[T]) OnEntriesDeleted(entities []T) {
	if len(entities) == 0 {
		return
	}

	cur := c.snap.Load()

	removed := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		removed[e.Key()] = struct{}{}
	}

	list := make([]T, 0, len(cur.list))
	for _, e := range cur.list {
		if _, ok := removed[e.Key()]; !ok {
			list = append(list, e)
		}
	}

	c.snap.Store(build(list))
}

// Map applies fn to every cached entity
func Map[T models.Entity, R any](c *MemCache[T], fn func(T) R) []R {
	list := c.snap.Load().list
	out := make([]R, 0, len(list))
	for _, e := range list {
		out = append(out, fn(e))
	}
	return out
}

// Reduce folds the cached entities into an accumulator
func Reduce[T models.Entity, A any](c *MemCache[T], init A, fn func(A, T) A) A {
	acc := init
	for _, e := range c.snap.Load().list {
		acc = fn(acc, e)
	}
	return acc
}

func build[T models.Entity](list []T) *snapshot[T] {
	s := &snapshot[T]{
		byKey: make(map[string]int, len(list)),
		list:  list,
	}
	for i, e := range list {
		s.byKey[e.Key()] = i
	}
	return s
}
