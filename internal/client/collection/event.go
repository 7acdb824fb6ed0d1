package collection

import "github.com/iudanet/gophsync/internal/models"

// EventKind tags an Event
type EventKind int

const (
	EventUnique EventKind = iota
	EventQuery
	EventCreate
	EventUpdate
	EventPatch
	EventDelete
	EventUpsertAll
	EventDeleteMulti
	EventStatus
)

// String returns a human-readable representation of the kind.
func (k EventKind) String() string {
	switch k {
	case EventUnique:
		return "unique"
	case EventQuery:
		return "query"
	case EventCreate:
		return "create"
	case EventUpdate:
		return "update"
	case EventPatch:
		return "patch"
	case EventDelete:
		return "delete"
	case EventUpsertAll:
		return "upsert-all"
	case EventDeleteMulti:
		return "delete-multi"
	case EventStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Event is emitted after a change reached both the local store and the cache.
// Records holds written entities, Deleted holds removed ones.
// Status is set for EventStatus only.
type Event[T models.Entity] struct {
	Collection string
	Records    []T
	Deleted    []T
	Kind       EventKind
	Status     models.DataStatus
}

// Observer receives controller events. OnEvent runs while the controller
// holds its apply lock, so it must not call apply operations of the same
// controller synchronously.
type Observer[T models.Entity] interface {
	OnEvent(e Event[T])
}

// ObserverFunc adapts a function to Observer
type ObserverFunc[T models.Entity] func(e Event[T])

// OnEvent calls f(e)
func (f ObserverFunc[T]) OnEvent(e Event[T]) {
	f(e)
}

type subscription[T models.Entity] struct {
	observer Observer[T]
	id       uint64
}
