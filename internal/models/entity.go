package models

import "strings"

// Служебные поля, которые сервер проставляет в каждой записи.
const (
	FieldID      = "_id"
	FieldCreated = "__created"
	FieldUpdated = "__updated"
)

// compositeKeySep разделитель частей составного ключа.
// Символ 0x1f (unit separator) не встречается в обычных строковых ключах.
const compositeKeySep = "\x1f"

// Entity is a server-owned record mirrored on the client.
// Key returns the unique key of the record (the _id or a composite key),
// Version returns the monotonic __updated version timestamp.
type Entity interface {
	Key() string
	Version() int64
}

// Meta содержит обязательные поля любой записи коллекции.
// Конкретные структуры коллекций встраивают Meta.
type Meta struct {
	ID      string `json:"_id,omitempty"`      // ID уникальный идентификатор записи
	Created int64  `json:"__created,omitempty"` // Created версия создания записи
	Updated int64  `json:"__updated,omitempty"` // Updated версия последнего изменения
}

// Key returns the record _id.
func (m Meta) Key() string {
	return m.ID
}

// Version returns the __updated version timestamp.
func (m Meta) Version() int64 {
	return m.Updated
}

// KeyBinder is implemented by entities whose key depends on the unique key
// fields of their collection.
type KeyBinder[T any] interface {
	WithKeyFields(fields []string) T
}

// BindKey binds the unique key fields to e when e derives its key from them.
// Other entities are returned unchanged.
func BindKey[T any](e T, fields []string) T {
	if b, ok := any(e).(KeyBinder[T]); ok {
		return b.WithKeyFields(fields)
	}
	return e
}

// CompositeKey joins parts of a composite unique key into one storage key.
func CompositeKey(parts ...string) string {
	return strings.Join(parts, compositeKeySep)
}

// SplitCompositeKey is the inverse of CompositeKey.
func SplitCompositeKey(key string) []string {
	return strings.Split(key, compositeKeySep)
}

// IsNewer сообщает, что запись a свежее записи b.
// В отличие от LWW здесь нет tie-break по узлу: равные версии считаются одной и той же записью.
func IsNewer(a, b Entity) bool {
	return a.Version() > b.Version()
}

// IsStale сообщает, что входящая версия не новее сохранённой и запись можно пропустить.
func IsStale(incoming, stored int64) bool {
	return incoming <= stored
}
