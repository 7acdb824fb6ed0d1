package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// gooseMu goose хранит dialect и base FS в глобальном состоянии
var gooseMu sync.Mutex

// DB represents a SQLite database hosting all collections of one group
type DB struct {
	db      *sql.DB
	openErr error
	schemas map[string]models.CollectionSchema
	stores  map[string]*Store
	path    string
	order   []string
	mu      sync.Mutex
}

var _ storage.Database = (*DB)(nil)

// New creates a new SQLite database handle.
// dbPath is the path to the SQLite database file.
// Use ":memory:" for in-memory database (useful for testing)
func New(dbPath string) *DB {
	return &DB{
		path:    dbPath,
		schemas: make(map[string]models.CollectionSchema),
		stores:  make(map[string]*Store),
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

// Open opens the database, runs migrations and registers collections
func (d *DB) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openErr != nil {
		return d.openErr
	}
	if d.db != nil {
		return nil
	}

	db, err := d.open(ctx)
	if err != nil {
		d.openErr = fmt.Errorf("%w: %v", storage.ErrSchemaOpen, err)
		return d.openErr
	}

	d.db = db
	for _, name := range d.order {
		d.stores[name] = &Store{db: d, schema: d.schemas[name]}
	}

	return nil
}

func (d *DB) open(ctx context.Context) (*sql.DB, error) {
	// Открываем соединение с БД
	db, err := sql.Open("sqlite", d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite с WAL mode может поддерживать несколько читателей, но только одного писателя
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := d.initCollections(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize collections: %w", err)
	}

	return db, nil
}

// runMigrations выполняет миграции из embedded FS
func runMigrations(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	goose.SetLogger(goose.NopLogger())

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// initCollections регистрирует коллекции и строит недостающие индексы одной транзакцией
func (d *DB) initCollections(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, name := range d.order {
		schema := d.schemas[name]

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collections (name, group_name) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET group_name = excluded.group_name`,
			schema.Name, schema.Group); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collection_meta (collection) VALUES (?) ON CONFLICT(collection) DO NOTHING`,
			schema.Name); err != nil {
			return fmt.Errorf("failed to init metadata for %s: %w", name, err)
		}

		for _, idx := range schema.Indices {
			if err := buildIndex(ctx, tx, schema.Name, idx); err != nil {
				return fmt.Errorf("failed to build index %s for %s: %w", idx.Name, name, err)
			}
		}
	}

	return tx.Commit()
}

// buildIndex строит индекс по уже сохранённым записям, если он ещё не построен
func buildIndex(ctx context.Context, tx *sql.Tx, collection string, idx models.Index) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO collection_indices (collection, index_name) VALUES (?, ?)
		 ON CONFLICT(collection, index_name) DO NOTHING`,
		collection, idx.Name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT record_key, data FROM records WHERE collection = ?`, collection)
	if err != nil {
		return err
	}

	type entry struct{ key, value string }
	var entries []entry
	for rows.Next() {
		var (
			key  string
			data []byte
		)
		if err := rows.Scan(&key, &data); err != nil {
			rows.Close()
			return err
		}
		if val, ok := storage.IndexValue(data, idx.Path); ok {
			entries = append(entries, entry{key: key, value: val})
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO record_index (collection, index_name, idx_value, record_key) VALUES (?, ?, ?, ?)`,
			collection, idx.Name, e.value, e.key); err != nil {
			return err
		}
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

// conn returns the opened database connection
func (d *DB) conn() (*sql.DB, error) {
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
