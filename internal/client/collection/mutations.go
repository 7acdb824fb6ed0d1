package collection

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/iudanet/gophsync/internal/client/gateway"
	"github.com/iudanet/gophsync/internal/models"
	wire "github.com/iudanet/gophsync/pkg/api"
)

// Upsert validates rec and submits it to the server through the mutation gateway.
// The returned future resolves with the acknowledged record after it was stored locally.
// Validation errors and gateway.ErrConflictingMutation are returned synchronously.
func (c *Controller[T]) Upsert(ctx context.Context, rec T) (*gateway.Future[T], error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	rec = c.bind(rec)

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", rec.Key(), err)
	}
	if err := c.validator.Validate(payload); err != nil {
		return nil, err
	}

	return c.gateway.Submit(ctx, rec.Key(), gateway.OpUpsert, wire.Mutation{
		Type:    wire.MutationUpsert,
		Key:     rec.Key(),
		Payload: payload,
	})
}

// Patch submits a partial update of the record with key
func (c *Controller[T]) Patch(ctx context.Context, key string, fields map[string]any) (*gateway.Future[T], error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch for %s: %w", key, err)
	}
	if err := c.validator.ValidatePatch(payload); err != nil {
		return nil, err
	}

	return c.gateway.Submit(ctx, key, gateway.OpPatch, wire.Mutation{
		Type:    wire.MutationPatch,
		Key:     key,
		Payload: payload,
	})
}

// Delete submits the removal of rec. The carried version is used by the
// local stale-write guard when the deletion is acknowledged.
func (c *Controller[T]) Delete(ctx context.Context, rec T) (*gateway.Future[T], error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	rec = c.bind(rec)

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", rec.Key(), err)
	}

	return c.gateway.Submit(ctx, rec.Key(), gateway.OpDelete, wire.Mutation{
		Type:    wire.MutationDelete,
		Key:     rec.Key(),
		Payload: payload,
	})
}

// bind применяет ключевые поля схемы к записи
func (c *Controller[T]) bind(rec T) T {
	return models.BindKey(rec, c.keyFields)
}

// ClearPending abandons the mutation slot of key
func (c *Controller[T]) ClearPending(key string) {
	c.gateway.Clear(key)
}

// send доставляет мутацию на сервер и применяет подтверждение локально
func (c *Controller[T]) send(ctx context.Context, op gateway.Operation[wire.Mutation]) (T, error) {
	var zero T

	m := op.Request
	m.RequestID = op.RequestID

	resp, err := c.client.SubmitMutation(ctx, c.schema.Name, m)
	if err != nil {
		return zero, err
	}

	if op.Type == gateway.OpDelete {
		// сервер может вернуть удалённую запись с актуальной версией
		body := m.Payload
		if len(resp.Record) > 0 {
			body = resp.Record
		}
		target, err := decode[T](body, c.keyFields)
		if err != nil {
			return zero, err
		}
		existing, deleted, err := c.OnEntryDeleted(ctx, target)
		if err != nil {
			return zero, err
		}
		if deleted {
			return existing, nil
		}
		return target, nil
	}

	if len(resp.Record) == 0 {
		return zero, fmt.Errorf("%s %s: %w", op.Type, op.Key, ErrEmptyAck)
	}
	rec, err := decode[T](resp.Record, c.keyFields)
	if err != nil {
		return zero, err
	}

	if op.Type == gateway.OpPatch {
		err = c.OnEntryPatched(ctx, rec)
	} else {
		err = c.OnEntryUpdated(ctx, rec, resp.Created)
	}
	if err != nil {
		return zero, err
	}
	return rec, nil
}

func decode[T any](raw []byte, keyFields []string) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode record: %w", err)
	}
	return models.BindKey(v, keyFields), nil
}

func decodeAll[T any, R ~[]byte](raws []R, keyFields []string) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		v, err := decode[T](raw, keyFields)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
