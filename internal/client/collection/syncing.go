package collection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iudanet/gophsync/internal/models"
)

// Descriptor returns the local sync state sent to the server
func (c *Controller[T]) Descriptor(ctx context.Context) (models.SyncDescriptor, error) {
	if err := c.ready(); err != nil {
		return models.SyncDescriptor{}, err
	}

	ts, err := c.store.LastSyncTimestamp(ctx)
	if err != nil {
		return models.SyncDescriptor{}, fmt.Errorf("failed to read last sync timestamp: %w", err)
	}
	return models.SyncDescriptor{CollectionID: c.schema.Name, LocalLastUpdated: ts}, nil
}

// NeedsFullSync reports whether the collection must be fully resynced
// regardless of the server classification
func (c *Controller[T]) NeedsFullSync() bool {
	return c.needsFull.Load()
}

// ApplyUpToDate reloads the cache from the local store
func (c *Controller[T]) ApplyUpToDate(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	if err := c.cache.Load(ctx, nil); err != nil {
		return fmt.Errorf("failed to load cache: %w", err)
	}
	c.setStatus(models.ContainsData)
	return nil
}

// ApplyDelta decodes and applies a delta classification
func (c *Controller[T]) ApplyDelta(ctx context.Context, toUpdate, toDelete []json.RawMessage) error {
	updates, err := decodeAll[T](toUpdate, c.keyFields)
	if err != nil {
		return err
	}
	deletes, err := decodeAll[T](toDelete, c.keyFields)
	if err != nil {
		return err
	}
	return c.OnDeltaSyncDelivered(ctx, updates, deletes)
}

// ApplyFull fetches the whole collection and replaces the local contents.
// If the fetch fails the status returns to what it was before.
func (c *Controller[T]) ApplyFull(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.applyMu.Lock()
	prev := c.Status()
	c.setStatus(models.UpdatingData)
	c.applyMu.Unlock()

	records, err := c.fetchAll(ctx)
	if err != nil {
		c.applyMu.Lock()
		// пока шла загрузка статус мог смениться (Reset)
		if c.Status() == models.UpdatingData {
			c.setStatus(prev)
		}
		c.applyMu.Unlock()
		return err
	}

	return c.OnFullSyncDelivered(ctx, records)
}

func (c *Controller[T]) fetchAll(ctx context.Context) ([]T, error) {
	resp, err := c.client.FetchAll(ctx, c.schema.Name)
	if err != nil {
		return nil, err
	}
	records, err := decodeAll[T](resp.Records, c.keyFields)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Fetched full collection",
		"entries", len(records),
		"server_timestamp", resp.Timestamp)
	return records, nil
}
