package models

import (
	"fmt"
	"regexp"
)

// namePattern допустимые имена коллекций и индексов: они становятся именами bucket'ов и ключами таблиц.
var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-]{0,63}$`)

// Index describes a secondary index. Path is a gjson path evaluated
// against the stored JSON document (for example "owner" or "tags.0").
type Index struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// CollectionSchema describes one collection of the local mirror.
type CollectionSchema struct {
	Name       string   `json:"name" yaml:"name"`             // Name имя коллекции
	Group      string   `json:"group" yaml:"group"`           // Group идентификатор базы, в которой живёт коллекция
	Version    string   `json:"version" yaml:"version"`       // Version версия схемы, смена версии = деструктивный ресинк
	UniqueKeys []string `json:"unique_keys" yaml:"unique_keys"` // UniqueKeys поля уникального ключа, по умолчанию _id
	Indices    []Index  `json:"indices" yaml:"indices"`       // Indices вторичные индексы
	Modifiable []string `json:"modifiable" yaml:"modifiable"` // Modifiable поля, которые клиент может изменять
}

// KeyFields returns the declared unique key fields, defaulting to _id.
func (s CollectionSchema) KeyFields() []string {
	if len(s.UniqueKeys) == 0 {
		return []string{FieldID}
	}
	return s.UniqueKeys
}

// HasCompositeKey reports whether the collection uses a composite unique key.
func (s CollectionSchema) HasCompositeKey() bool {
	return len(s.UniqueKeys) > 1 || (len(s.UniqueKeys) == 1 && s.UniqueKeys[0] != FieldID)
}

// IndexByName returns the declared index with the given name.
func (s CollectionSchema) IndexByName(name string) (Index, bool) {
	for _, idx := range s.Indices {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// Validate проверяет, что схема может быть зарегистрирована в хранилище.
func (s CollectionSchema) Validate() error {
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("invalid collection name %q", s.Name)
	}
	if s.Version == "" {
		return fmt.Errorf("collection %s: schema version cannot be empty", s.Name)
	}

	seen := make(map[string]struct{}, len(s.Indices))
	for _, idx := range s.Indices {
		if !namePattern.MatchString(idx.Name) {
			return fmt.Errorf("collection %s: invalid index name %q", s.Name, idx.Name)
		}
		if idx.Path == "" {
			return fmt.Errorf("collection %s: index %s has empty path", s.Name, idx.Name)
		}
		if _, ok := seen[idx.Name]; ok {
			return fmt.Errorf("collection %s: duplicate index %s", s.Name, idx.Name)
		}
		seen[idx.Name] = struct{}{}
	}

	return nil
}
