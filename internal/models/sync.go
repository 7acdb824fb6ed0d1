package models

// SyncDescriptor is the unit exchanged with the server to choose a sync strategy.
type SyncDescriptor struct {
	CollectionID     string `json:"collectionId"`
	LocalLastUpdated int64  `json:"localLastUpdated"`
}

// SyncStrategy классификация коллекции, которую возвращает сервер на batch-проверку.
type SyncStrategy string

const (
	StrategyUpToDate SyncStrategy = "upToDate"
	StrategyDelta    SyncStrategy = "delta"
	StrategyFull     SyncStrategy = "full"
)

// Valid reports whether s is one of the known strategies.
func (s SyncStrategy) Valid() bool {
	switch s {
	case StrategyUpToDate, StrategyDelta, StrategyFull:
		return true
	}
	return false
}

// Notification is a push message telling that a collection changed on the server.
type Notification struct {
	CollectionID string `json:"collectionId"`
	Timestamp    int64  `json:"timestamp"`
}
