package boltdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

var (
	// BoltDB bucket names внутри bucket'а коллекции
	bucketRecords  = []byte("records")
	bucketMetadata = []byte("metadata")
)

const (
	collectionPrefix = "c:"
	indexPrefix      = "idx:"
)

// DB represents a BoltDB file hosting all collections of one group
type DB struct {
	db      *bbolt.DB
	openErr error
	schemas map[string]models.CollectionSchema
	stores  map[string]*Store
	path    string
	order   []string
	timeout time.Duration
	mu      sync.Mutex
}

var _ storage.Database = (*DB)(nil)

// New creates a new BoltDB database handle.
// dbPath is the path to the BoltDB database file. The file is not touched
// until Open is called, so schemas can be registered first.
func New(dbPath string) *DB {
	return &DB{
		path:    dbPath,
		schemas: make(map[string]models.CollectionSchema),
		stores:  make(map[string]*Store),
		timeout: time.Second,
	}
}

// Register adds a collection schema to the database
func (d *DB) Register(schema models.CollectionSchema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil || d.openErr != nil {
		return fmt.Errorf("register %s: %w", schema.Name, storage.ErrAlreadyOpen)
	}
	if _, ok := d.schemas[schema.Name]; ok {
		return fmt.Errorf("collection %s already registered", schema.Name)
	}

	d.schemas[schema.Name] = schema
	d.order = append(d.order, schema.Name)
	return nil
}

// Open opens the BoltDB file and creates buckets for every registered schema
func (d *DB) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openErr != nil {
		return d.openErr
	}
	if d.db != nil {
		return nil
	}

	// Открываем BoltDB
	db, err := bbolt.Open(d.path, 0600, &bbolt.Options{Timeout: d.timeout})
	if err != nil {
		d.openErr = fmt.Errorf("%w: failed to open boltdb: %v", storage.ErrSchemaOpen, err)
		return d.openErr
	}

	if err := d.initBuckets(db); err != nil {
		_ = db.Close()
		d.openErr = fmt.Errorf("%w: failed to initialize buckets: %v", storage.ErrSchemaOpen, err)
		return d.openErr
	}

	d.db = db
	for _, name := range d.order {
		d.stores[name] = &Store{db: d, schema: d.schemas[name]}
	}

	return nil
}

// Store returns the per-collection store
func (d *DB) Store(name string) (storage.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.db == nil {
		return nil, storage.ErrNotOpen
	}

	s, ok := d.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownCollection, name)
	}
	return s, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	d.openErr = storage.ErrStorageClosed
	return err
}

// initBuckets создает bucket'ы всех зарегистрированных коллекций одной транзакцией
func (d *DB) initBuckets(db *bbolt.DB) error {
	return db.Update(func(tx *bbolt.Tx) error {
		for _, name := range d.order {
			schema := d.schemas[name]

			root, err := tx.CreateBucketIfNotExists(collectionBucket(name))
			if err != nil {
				return fmt.Errorf("failed to create bucket for %s: %w", name, err)
			}
			if _, err := root.CreateBucketIfNotExists(bucketRecords); err != nil {
				return fmt.Errorf("failed to create records bucket for %s: %w", name, err)
			}
			if _, err := root.CreateBucketIfNotExists(bucketMetadata); err != nil {
				return fmt.Errorf("failed to create metadata bucket for %s: %w", name, err)
			}

			for _, idx := range schema.Indices {
				if root.Bucket(indexBucket(idx.Name)) != nil {
					continue
				}
				// Новый индекс на существующих данных строим сразу
				ib, err := root.CreateBucket(indexBucket(idx.Name))
				if err != nil {
					return fmt.Errorf("failed to create index %s for %s: %w", idx.Name, name, err)
				}
				if err := reindex(root.Bucket(bucketRecords), ib, idx); err != nil {
					return fmt.Errorf("failed to build index %s for %s: %w", idx.Name, name, err)
				}
			}
		}
		return nil
	})
}

// bolt returns the opened bbolt handle
func (d *DB) bolt() (*bbolt.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.db == nil {
		return nil, storage.ErrStorageClosed
	}
	return d.db, nil
}

func collectionBucket(name string) []byte {
	return []byte(collectionPrefix + name)
}

func indexBucket(name string) []byte {
	return []byte(indexPrefix + name)
}

func reindex(records, ib *bbolt.Bucket, idx models.Index) error {
	return records.ForEach(func(k, v []byte) error {
		_, data, err := decodeValue(v)
		if err != nil {
			return err
		}
		if val, ok := storage.IndexValue(data, idx.Path); ok {
			return ib.Put(indexKey(val, string(k)), emptyValue)
		}
		return nil
	})
}

var errCorruptValue = errors.New("corrupt record value")
