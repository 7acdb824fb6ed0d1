// Package collection implements the per-collection controller that owns the
// local store, the in-memory cache and the mutation gateway of one collection,
// and the registry that holds every controller of the application.
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/iudanet/gophsync/internal/client/api"
	"github.com/iudanet/gophsync/internal/client/cache"
	"github.com/iudanet/gophsync/internal/client/gateway"
	"github.com/iudanet/gophsync/internal/client/localstore"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
	"github.com/iudanet/gophsync/internal/validation"
	wire "github.com/iudanet/gophsync/pkg/api"
)

// DefaultQueryCacheSize is the number of remembered server query results
const DefaultQueryCacheSize = 64

// Options configures a Controller
type Options struct {
	// Rules are per-field validation rules for upsert and patch payloads
	Rules map[string][]validation.Rule
	// Logger defaults to slog.Default()
	Logger *slog.Logger
	// QueryCacheSize defaults to DefaultQueryCacheSize
	QueryCacheSize int
}

// Controller orchestrates one collection.
//
// Every incoming change is written to the local store first, then to the
// cache, then delivered to observers. The apply lock keeps this order strict
// between concurrent writers of the same collection.
type Controller[T models.Entity] struct {
	db        storage.Database
	client    api.ClientAPI
	store     *localstore.LocalStore[T]
	cache     *cache.MemCache[T]
	gateway   *gateway.Gateway[wire.Mutation, T]
	validator *validation.FieldValidator
	queries   *lru.Cache[string, []string]
	logger    *slog.Logger

	schema    models.CollectionSchema
	keyFields []string

	subs   []subscription[T]
	nextID uint64
	subsMu sync.RWMutex

	applyMu   sync.Mutex
	openMu    sync.Mutex
	status    atomic.Int32
	needsFull atomic.Bool
	opened    atomic.Bool
}

// New creates a controller and registers its schema in db.
// It must be called before db is opened.
func New[T models.Entity](db storage.Database, client api.ClientAPI, schema models.CollectionSchema, opts Options) (*Controller[T], error) {
	if err := db.Register(schema); err != nil {
		return nil, fmt.Errorf("failed to register collection %s: %w", schema.Name, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.QueryCacheSize
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	queries, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	c := &Controller[T]{
		db:        db,
		client:    client,
		schema:    schema,
		keyFields: schema.KeyFields(),
		validator: validation.NewFieldValidator(schema, opts.Rules),
		queries:   queries,
		logger:    logger.With("collection", schema.Name),
	}
	c.gateway = gateway.New[wire.Mutation, T](c.send, c.logger)
	c.status.Store(int32(models.NoData))

	return c, nil
}

// Name returns the collection name
func (c *Controller[T]) Name() string {
	return c.schema.Name
}

// Schema returns the collection schema
func (c *Controller[T]) Schema() models.CollectionSchema {
	return c.schema
}

// Status returns the current data status
func (c *Controller[T]) Status() models.DataStatus {
	return models.DataStatus(c.status.Load())
}

// Open opens the database, compares the stored schema version with the declared
// one and loads the cache.
//
// When a previous version exists and differs, the collection is cleared and
// marked for a full resync; its status stays NoData until that resync is
// delivered. A first run without a stored version only records the version.
func (c *Controller[T]) Open(ctx context.Context) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if c.opened.Load() {
		return nil
	}

	if err := c.db.Open(ctx); err != nil {
		return err
	}
	st, err := c.db.Store(c.schema.Name)
	if err != nil {
		return err
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.store = localstore.New[T](st, c.keyFields...)
	c.cache = cache.New[T](c.store)

	stored, found, err := c.store.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if found && stored != c.schema.Version {
		c.logger.Info("Schema version changed, clearing collection",
			"from", stored,
			"to", c.schema.Version)
		if err := c.upgrade(ctx); err != nil {
			return err
		}
		c.opened.Store(true)
		return nil
	}

	if !found {
		if err := c.store.SaveSchemaVersion(ctx, c.schema.Version); err != nil {
			return fmt.Errorf("failed to save schema version: %w", err)
		}
	}

	if err := c.cache.Load(ctx, nil); err != nil {
		return fmt.Errorf("failed to load cache: %w", err)
	}

	lastSync, err := c.store.LastSyncTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last sync timestamp: %w", err)
	}
	if lastSync > 0 || c.cache.Len() > 0 {
		c.setStatus(models.ContainsData)
	}

	c.opened.Store(true)
	c.logger.Debug("Collection opened",
		"entries", c.cache.Len(),
		"last_sync", lastSync,
		"status", c.Status().String())

	return nil
}

// upgrade очищает коллекцию после смены версии схемы. Вызывается под applyMu.
func (c *Controller[T]) upgrade(ctx context.Context) error {
	c.setStatus(models.UpdatingData)

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	if err := c.store.SaveLastSyncTimestamp(ctx, 0); err != nil {
		return fmt.Errorf("failed to reset last sync timestamp: %w", err)
	}
	if err := c.store.SaveSchemaVersion(ctx, c.schema.Version); err != nil {
		return fmt.Errorf("failed to save schema version: %w", err)
	}

	c.cache.Reset()
	c.queries.Purge()
	c.needsFull.Store(true)
	c.setStatus(models.NoData)

	return nil
}

// Reset clears the local store and the cache and moves the status to NoData
func (c *Controller[T]) Reset(ctx context.Context) error {
	if !c.opened.Load() {
		return ErrNotOpen
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	if err := c.store.SaveLastSyncTimestamp(ctx, 0); err != nil {
		return fmt.Errorf("failed to reset last sync timestamp: %w", err)
	}

	c.cache.Reset()
	c.queries.Purge()
	c.setStatus(models.NoData)

	return nil
}

// Subscribe registers an observer and returns a function that removes it
func (c *Controller[T]) Subscribe(o Observer[T]) (unsubscribe func()) {
	c.subsMu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription[T]{id: id, observer: o})
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			defer c.subsMu.Unlock()
			for i, s := range c.subs {
				if s.id == id {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Controller[T]) emit(e Event[T]) {
	e.Collection = c.schema.Name

	c.subsMu.RLock()
	subs := c.subs
	c.subsMu.RUnlock()

	for _, s := range subs {
		s.observer.OnEvent(e)
	}
}

// setStatus вызывается под applyMu (или openMu на этапе открытия)
func (c *Controller[T]) setStatus(s models.DataStatus) {
	prev := models.DataStatus(c.status.Swap(int32(s)))
	if prev == s {
		return
	}

	c.logger.Debug("Data status changed", "from", prev.String(), "to", s.String())
	c.emit(Event[T]{Kind: EventStatus, Status: s})
}

func (c *Controller[T]) ready() error {
	if !c.opened.Load() {
		return fmt.Errorf("%s: %w", c.schema.Name, ErrNotOpen)
	}
	return nil
}
