package api

import "encoding/json"

// Типы мутаций
const (
	MutationUpsert = "upsert"
	MutationPatch  = "patch"
	MutationDelete = "delete"
)

// QueryRequest представляет запрос выборки по индексу или полю
type QueryRequest struct {
	Index string `json:"index,omitempty"`
	Field string `json:"field,omitempty"`
	Value string `json:"value"`
	Limit int    `json:"limit,omitempty"`
}

// QueryResponse представляет результат выборки
type QueryResponse struct {
	Records []json.RawMessage `json:"records"`
}

// Mutation представляет запись клиента, отправляемую на сервер
type Mutation struct {
	RequestID string          `json:"requestId"`         // идентификатор запроса для идемпотентности
	Type      string          `json:"type"`              // upsert, patch или delete
	Key       string          `json:"key"`               // ключ записи
	Payload   json.RawMessage `json:"payload,omitempty"` // документ или набор полей
}

// MutationResponse представляет подтверждение мутации сервером
type MutationResponse struct {
	Record  json.RawMessage `json:"record,omitempty"` // итоговая запись с новой версией
	Created bool            `json:"created,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
