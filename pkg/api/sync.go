package api

import "encoding/json"

// Стратегии синхронизации, которые сервер возвращает в SyncCheckResult
const (
	StrategyUpToDate = "upToDate"
	StrategyDelta    = "delta"
	StrategyFull     = "full"
)

// CollectionState описывает локальное состояние одной коллекции
type CollectionState struct {
	CollectionID     string `json:"collectionId"`
	LocalLastUpdated int64  `json:"localLastUpdated"`
}

// SyncCheckRequest представляет батч-запрос классификации коллекций
type SyncCheckRequest struct {
	Collections []CollectionState `json:"collections"`
}

// SyncCheckResult представляет решение сервера для одной коллекции
type SyncCheckResult struct {
	Strategy  string            `json:"strategy"`           // upToDate, delta или full
	ToUpdate  []json.RawMessage `json:"toUpdate,omitempty"` // изменённые записи (delta)
	ToDelete  []json.RawMessage `json:"toDelete,omitempty"` // удалённые записи (delta)
	Timestamp int64             `json:"timestamp"`          // серверное время классификации
}

// SyncCheckResponse представляет ответ сервера на батч-запрос
type SyncCheckResponse struct {
	Results   map[string]SyncCheckResult `json:"results"`   // ключ - collectionId
	Timestamp int64                      `json:"timestamp"` // текущее время сервера
}

// FetchAllResponse представляет полную выгрузку коллекции
type FetchAllResponse struct {
	Records   []json.RawMessage `json:"records"`
	Timestamp int64             `json:"timestamp"`
}
