package collection

import (
	"context"
	"fmt"

	"github.com/iudanet/gophsync/internal/client/cache"
	"github.com/iudanet/gophsync/internal/client/storage"
	wire "github.com/iudanet/gophsync/pkg/api"
)

// FetchUnique loads the record with key from the server and stores it.
// Returns the stored record, which is the local one if the server copy was stale.
func (c *Controller[T]) FetchUnique(ctx context.Context, key string) (T, error) {
	var zero T
	if err := c.ready(); err != nil {
		return zero, err
	}

	raw, err := c.client.FetchUnique(ctx, c.schema.Name, key)
	if err != nil {
		return zero, err
	}
	rec, err := decode[T](raw, c.keyFields)
	if err != nil {
		return zero, err
	}

	if err := c.OnUnique(ctx, rec); err != nil {
		return zero, err
	}

	if cached, ok := c.cache.Unique(rec.Key()); ok {
		return cached, nil
	}
	return rec, nil
}

// FetchQuery runs q on the server and stores the result.
// For unlimited queries local records matching q that the server did not
// return are removed. The result keys are remembered for QueryResult.
func (c *Controller[T]) FetchQuery(ctx context.Context, q storage.Query) ([]T, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	resp, err := c.client.FetchQuery(ctx, c.schema.Name, wire.QueryRequest{
		Index: q.Index,
		Field: q.Field,
		Value: q.Value,
		Limit: q.Limit,
	})
	if err != nil {
		return nil, err
	}
	records, err := decodeAll[T](resp.Records, c.keyFields)
	if err != nil {
		return nil, err
	}

	var toDelete []T
	if q.Limit <= 0 {
		local, err := c.store.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to query local store: %w", err)
		}
		returned := make(map[string]struct{}, len(records))
		for _, r := range records {
			returned[r.Key()] = struct{}{}
		}
		for _, l := range local {
			if _, ok := returned[l.Key()]; !ok {
				toDelete = append(toDelete, l)
			}
		}
	}

	if err := c.OnQueryResult(ctx, records, toDelete); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.Key())
	}
	c.queries.Add(queryKey(q), keys)

	return records, nil
}

// QueryResult returns the current cached records of the last FetchQuery for q
func (c *Controller[T]) QueryResult(q storage.Query) ([]T, bool) {
	keys, ok := c.queries.Get(queryKey(q))
	if !ok || !c.opened.Load() {
		return nil, false
	}

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if rec, ok := c.cache.Unique(k); ok {
			out = append(out, rec)
		}
	}
	return out, true
}

// Query runs q against the local store
func (c *Controller[T]) Query(ctx context.Context, q storage.Query) ([]T, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.store.Query(ctx, q)
}

// Unique returns the cached record with key
func (c *Controller[T]) Unique(key string) (T, bool) {
	if !c.opened.Load() {
		var zero T
		return zero, false
	}
	return c.cache.Unique(key)
}

// All returns the cached records. The slice must not be modified.
func (c *Controller[T]) All() []T {
	if !c.opened.Load() {
		return nil
	}
	return c.cache.All()
}

// Cache returns the in-memory mirror, nil before Open
func (c *Controller[T]) Cache() *cache.MemCache[T] {
	if !c.opened.Load() {
		return nil
	}
	return c.cache
}

func queryKey(q storage.Query) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%d", q.Index, q.Field, q.Value, q.Limit)
}
