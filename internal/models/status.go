package models

// DataStatus describes whether the in-memory mirror of a collection is safe to read.
type DataStatus int

const (
	// NoData the cache has not been loaded yet or was reset.
	NoData DataStatus = iota
	// UpdatingData a full resync or a schema upgrade clear is running.
	UpdatingData
	// ContainsData the cache has been (re)loaded from the local store.
	ContainsData
)

// String returns a human-readable representation of the status.
func (s DataStatus) String() string {
	switch s {
	case NoData:
		return "no-data"
	case UpdatingData:
		return "updating-data"
	case ContainsData:
		return "contains-data"
	default:
		return "unknown"
	}
}
