// Package gateway serializes writes per record key.
//
// For every key at most one operation is in flight. While it runs, newer
// submissions collapse into a single pending slot: each one replaces the
// previous pending operation, so only the latest is sent once the running one
// completes. A delete in either slot poisons the key until it finishes.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// OpType is the kind of a mutation
type OpType int

const (
	OpUpsert OpType = iota
	OpPatch
	OpDelete
)

// String returns a human-readable representation of the operation.
func (t OpType) String() string {
	switch t {
	case OpUpsert:
		return "upsert"
	case OpPatch:
		return "patch"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is a mutation travelling through the gateway
type Operation[Req any] struct {
	Request   Req
	RequestID string
	Key       string
	Type      OpType
}

// SendFunc delivers an operation to the server and applies the result locally
type SendFunc[Req, Resp any] func(ctx context.Context, op Operation[Req]) (Resp, error)

type call[Req, Resp any] struct {
	ctx    context.Context
	future *Future[Resp]
	op     Operation[Req]
}

// slot неизменяем: каждый переход создаёт новый slot внутри Compute
type slot[Req, Resp any] struct {
	running *call[Req, Resp]
	pending *call[Req, Resp]
}

func (s *slot[Req, Resp]) poisoned() bool {
	return s.running.op.Type == OpDelete || (s.pending != nil && s.pending.op.Type == OpDelete)
}

// Gateway allows exactly one in-flight write per key
type Gateway[Req, Resp any] struct {
	send   SendFunc[Req, Resp]
	slots  *xsync.MapOf[string, *slot[Req, Resp]]
	logger *slog.Logger
}

// New creates a gateway that delivers operations with send
func New[Req, Resp any](send SendFunc[Req, Resp], logger *slog.Logger) *Gateway[Req, Resp] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway[Req, Resp]{
		send:   send,
		slots:  xsync.NewMapOf[string, *slot[Req, Resp]](),
		logger: logger,
	}
}

// Submit queues an operation for key.
// If nothing runs for key the operation is sent immediately, otherwise it
// becomes the pending operation, replacing (and superseding) an older pending one.
// Returns ErrConflictingMutation synchronously when a delete occupies the slot.
func (g *Gateway[Req, Resp]) Submit(ctx context.Context, key string, typ OpType, req Req) (*Future[Resp], error) {
	if key == "" {
		return nil, fmt.Errorf("submit %s: empty key", typ)
	}

	c := &call[Req, Resp]{
		ctx:    ctx,
		future: newFuture[Resp](),
		op: Operation[Req]{
			Request:   req,
			RequestID: uuid.NewString(),
			Key:       key,
			Type:      typ,
		},
	}

	var (
		start    bool
		replaced *call[Req, Resp]
		conflict bool
	)

	g.slots.Compute(key, func(cur *slot[Req, Resp], loaded bool) (*slot[Req, Resp], bool) {
		// Внутри Compute нельзя обращаться к самой карте
		start, replaced, conflict = false, nil, false

		if !loaded {
			start = true
			return &slot[Req, Resp]{running: c}, false
		}
		if cur.poisoned() {
			conflict = true
			return cur, false
		}

		replaced = cur.pending
		return &slot[Req, Resp]{running: cur.running, pending: c}, false
	})

	if conflict {
		return nil, fmt.Errorf("%s %s: %w", typ, key, ErrConflictingMutation)
	}

	if replaced != nil {
		g.logger.Debug("Pending mutation superseded",
			"key", key,
			"replaced", replaced.op.RequestID,
			"by", c.op.RequestID)
		var zero Resp
		replaced.future.resolve(zero, ErrSuperseded)
	}

	if start {
		g.run(key, c)
	}

	return c.future, nil
}

// Clear drops the slot of key. The running operation keeps going but its
// completion will no longer promote anything; a pending operation is dropped.
// Callers use it after abandoning a running request.
func (g *Gateway[Req, Resp]) Clear(key string) {
	s, ok := g.slots.LoadAndDelete(key)
	if !ok || s.pending == nil {
		return
	}
	var zero Resp
	s.pending.future.resolve(zero, ErrCleared)
}

// InFlight reports whether an operation for key is running
func (g *Gateway[Req, Resp]) InFlight(key string) bool {
	_, ok := g.slots.Load(key)
	return ok
}

// HasPending reports whether an operation for key waits for the running one
func (g *Gateway[Req, Resp]) HasPending(key string) bool {
	s, ok := g.slots.Load(key)
	return ok && s.pending != nil
}

// Size returns the number of keys with a running operation
func (g *Gateway[Req, Resp]) Size() int {
	return g.slots.Size()
}

func (g *Gateway[Req, Resp]) run(key string, c *call[Req, Resp]) {
	go func() {
		resp, err := g.send(c.ctx, c.op)
		if err != nil {
			g.logger.Warn("Mutation failed",
				"key", key,
				"type", c.op.Type.String(),
				"request_id", c.op.RequestID,
				"error", err)
		}
		c.future.resolve(resp, err)
		g.complete(key, c)
	}()
}

// complete освобождает slot или запускает отложенную операцию
func (g *Gateway[Req, Resp]) complete(key string, c *call[Req, Resp]) {
	var next *call[Req, Resp]

	g.slots.Compute(key, func(cur *slot[Req, Resp], loaded bool) (*slot[Req, Resp], bool) {
		next = nil

		if !loaded {
			// Slot очищен вызывающим кодом
			return nil, true
		}
		if cur.running != c {
			// После Clear под ключом уже живёт другой slot
			return cur, false
		}
		if cur.pending == nil {
			return nil, true
		}

		next = cur.pending
		return &slot[Req, Resp]{running: next}, false
	})

	if next != nil {
		g.run(key, next)
	}
}
