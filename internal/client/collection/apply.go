package collection

import (
	"context"
	"fmt"

	"github.com/iudanet/gophsync/internal/models"
)

// OnUnique stores a record fetched by key. A stale record is ignored.
func (c *Controller[T]) OnUnique(ctx context.Context, rec T) error {
	if err := c.ready(); err != nil {
		return err
	}
	rec = c.bind(rec)

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	applied, err := c.store.Upsert(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", rec.Key(), err)
	}
	if !applied {
		return nil
	}

	c.cache.OnEntriesUpdated([]T{rec})
	c.emit(Event[T]{Kind: EventUnique, Records: []T{rec}})
	return nil
}

// OnQueryResult stores the records returned by a server query and removes the
// local ones the server no longer returns
func (c *Controller[T]) OnQueryResult(ctx context.Context, toUpdate, toDelete []T) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	updated, deleted, err := c.persist(ctx, toUpdate, toDelete)
	if err != nil {
		return err
	}

	c.emit(Event[T]{Kind: EventQuery, Records: updated, Deleted: deleted})
	return nil
}

// OnEntryUpdated stores an acknowledged upsert
func (c *Controller[T]) OnEntryUpdated(ctx context.Context, rec T, isNew bool) error {
	kind := EventUpdate
	if isNew {
		kind = EventCreate
	}
	return c.applyOne(ctx, rec, kind)
}

// OnEntryPatched stores an acknowledged patch
func (c *Controller[T]) OnEntryPatched(ctx context.Context, rec T) error {
	return c.applyOne(ctx, rec, EventPatch)
}

// OnEntryDeleted removes a record unless the stored one is newer.
// Returns the stored record and whether it was removed.
func (c *Controller[T]) OnEntryDeleted(ctx context.Context, rec T) (T, bool, error) {
	var zero T
	if err := c.ready(); err != nil {
		return zero, false, err
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	existing, deleted, err := c.store.Delete(ctx, rec)
	if err != nil {
		return zero, false, fmt.Errorf("failed to delete %s: %w", rec.Key(), err)
	}
	if !deleted {
		return existing, false, nil
	}

	c.cache.OnEntriesDeleted([]T{existing})
	c.emit(Event[T]{Kind: EventDelete, Deleted: []T{existing}})
	return existing, true, nil
}

// OnEntriesUpdated stores many records in one transaction
func (c *Controller[T]) OnEntriesUpdated(ctx context.Context, recs []T) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	updated, _, err := c.persist(ctx, recs, nil)
	if err != nil {
		return err
	}

	c.emit(Event[T]{Kind: EventUpsertAll, Records: updated})
	return nil
}

// OnEntriesDeleted removes many records in one transaction
func (c *Controller[T]) OnEntriesDeleted(ctx context.Context, recs []T) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	_, deleted, err := c.persist(ctx, nil, recs)
	if err != nil {
		return err
	}

	c.emit(Event[T]{Kind: EventDeleteMulti, Deleted: deleted})
	return nil
}

// OnFullSyncDelivered replaces the whole collection with records.
// The status goes through UpdatingData and ends at ContainsData. If the
// replacement fails after the store was cleared, the status drops to NoData
// and the next sync pass is forced to full.
func (c *Controller[T]) OnFullSyncDelivered(ctx context.Context, records []T) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.setStatus(models.UpdatingData)

	if err := c.replace(ctx, records); err != nil {
		c.needsFull.Store(true)
		if loadErr := c.cache.Load(ctx, nil); loadErr != nil {
			c.logger.Warn("Failed to reload cache after failed full sync", "error", loadErr)
		}
		c.setStatus(models.NoData)
		return err
	}

	c.needsFull.Store(false)
	c.setStatus(models.ContainsData)
	return nil
}

// replace вызывается под applyMu
func (c *Controller[T]) replace(ctx context.Context, records []T) error {
	lastSync := maxVersion(0, records)

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	// после очистки кэш не должен отдавать удалённые записи
	c.cache.Reset()
	c.queries.Purge()

	if _, err := c.store.UpsertAll(ctx, records); err != nil {
		return fmt.Errorf("failed to store full sync: %w", err)
	}
	if err := c.store.SaveLastSyncTimestamp(ctx, lastSync); err != nil {
		return fmt.Errorf("failed to save last sync timestamp: %w", err)
	}
	if err := c.cache.Load(ctx, nil); err != nil {
		return fmt.Errorf("failed to load cache: %w", err)
	}

	c.logger.Info("Full sync delivered", "entries", c.cache.Len(), "last_sync", lastSync)
	return nil
}

// OnDeltaSyncDelivered applies the changes since the last sync
func (c *Controller[T]) OnDeltaSyncDelivered(ctx context.Context, toUpdate, toDelete []T) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	local, err := c.store.LastSyncTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last sync timestamp: %w", err)
	}

	updated, deleted, err := c.persist(ctx, toUpdate, toDelete)
	if err != nil {
		return err
	}

	lastSync := maxVersion(maxVersion(local, toUpdate), toDelete)
	if lastSync != local {
		if err := c.store.SaveLastSyncTimestamp(ctx, lastSync); err != nil {
			return fmt.Errorf("failed to save last sync timestamp: %w", err)
		}
	}

	// Кэш, который ещё не загружался, перечитываем целиком
	if c.Status() != models.ContainsData {
		if err := c.cache.Load(ctx, nil); err != nil {
			return fmt.Errorf("failed to load cache: %w", err)
		}
		c.setStatus(models.ContainsData)
	}

	if len(updated) > 0 {
		c.emit(Event[T]{Kind: EventUpsertAll, Records: updated})
	}
	if len(deleted) > 0 {
		c.emit(Event[T]{Kind: EventDeleteMulti, Deleted: deleted})
	}

	c.logger.Debug("Delta sync delivered",
		"updated", len(updated),
		"deleted", len(deleted),
		"last_sync", lastSync)
	return nil
}

func (c *Controller[T]) applyOne(ctx context.Context, rec T, kind EventKind) error {
	if err := c.ready(); err != nil {
		return err
	}
	rec = c.bind(rec)

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	applied, err := c.store.Upsert(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", rec.Key(), err)
	}
	if !applied {
		c.logger.Debug("Stale write skipped", "key", rec.Key(), "version", rec.Version())
		return nil
	}

	c.cache.OnEntriesUpdated([]T{rec})
	c.emit(Event[T]{Kind: kind, Records: []T{rec}})
	return nil
}

// persist пишет изменения в хранилище и затем в кэш. Вызывается под applyMu.
func (c *Controller[T]) persist(ctx context.Context, toUpdate, toDelete []T) (updated, deleted []T, err error) {
	updated, err = c.store.UpsertAll(ctx, toUpdate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store %d records: %w", len(toUpdate), err)
	}
	deleted, err = c.store.DeleteAll(ctx, toDelete)
	if err != nil {
		// записанное уже в хранилище, кэш догоняет его
		c.cache.OnEntriesUpdated(updated)
		return nil, nil, fmt.Errorf("failed to delete %d records: %w", len(toDelete), err)
	}

	if len(updated) > 0 {
		c.cache.OnEntriesUpdated(updated)
	}
	if len(deleted) > 0 {
		c.cache.OnEntriesDeleted(deleted)
	}
	return updated, deleted, nil
}

func maxVersion[T models.Entity](start int64, recs []T) int64 {
	out := start
	for _, r := range recs {
		if v := r.Version(); v > out {
			out = v
		}
	}
	return out
}
