package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/iudanet/gophsync/internal/models"
)

// Collection is the type-independent view of a Controller used by the
// registry and the sync coordinator
type Collection interface {
	Name() string
	Schema() models.CollectionSchema
	Status() models.DataStatus
	Open(ctx context.Context) error
	Reset(ctx context.Context) error
	Descriptor(ctx context.Context) (models.SyncDescriptor, error)
	NeedsFullSync() bool
	ApplyUpToDate(ctx context.Context) error
	ApplyDelta(ctx context.Context, toUpdate, toDelete []json.RawMessage) error
	ApplyFull(ctx context.Context) error
}

var _ Collection = (*Controller[models.Document])(nil)

// Registry holds the controllers of the application.
// It is created at startup and passed to whoever needs a collection.
type Registry struct {
	byName map[string]Collection
	order  []string
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Collection)}
}

// Register adds a collection
func (r *Registry) Register(c Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[c.Name()]; ok {
		return fmt.Errorf("%s: %w", c.Name(), ErrDuplicateCollection)
	}
	r.byName[c.Name()] = c
	r.order = append(r.order, c.Name())
	return nil
}

// Get returns the collection with name
func (r *Registry) Get(name string) (Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// All returns the collections in registration order
func (r *Registry) All() []Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Collection, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered collections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// OpenAll opens every collection. Collections that fail to open are reported
// in the joined error, the others stay usable.
func (r *Registry) OpenAll(ctx context.Context) error {
	var errs []error
	for _, c := range r.All() {
		if err := c.Open(ctx); err != nil {
			errs = append(errs, fmt.Errorf("open %s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the typed controller registered under name
func Lookup[T models.Entity](r *Registry, name string) (*Controller[T], error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownCollection)
	}
	typed, ok := c.(*Controller[T])
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrWrongType)
	}
	return typed, nil
}
