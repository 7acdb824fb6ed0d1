package models

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Document is a schemaless entity used for collections that are declared only
// in configuration. The service fields are lifted into Meta, every other field
// stays in Fields as raw JSON.
//
// The key of a Document comes from the unique key fields of its collection,
// bound with WithKeyFields; an unbound Document is keyed by _id.
//
// Documents returned by a collection share Fields with the in-memory cache.
// Fields must not be modified in place: use With, which copies the map.
type Document struct {
	Fields    map[string]json.RawMessage
	keyFields []string
	Meta
}

// WithKeyFields returns the document keyed by the given unique key fields.
func (d Document) WithKeyFields(fields []string) Document {
	d.keyFields = fields
	return d
}

// Key returns the _id or, for a composite unique key, the joined key field
// values. A missing key field yields an empty key.
func (d Document) Key() string {
	if len(d.keyFields) == 0 || (len(d.keyFields) == 1 && d.keyFields[0] == FieldID) {
		return d.ID
	}

	parts := make([]string, 0, len(d.keyFields))
	for _, f := range d.keyFields {
		if f == FieldID {
			if d.ID == "" {
				return ""
			}
			parts = append(parts, d.ID)
			continue
		}
		raw, ok := d.Fields[f]
		if !ok {
			return ""
		}
		v := gjson.ParseBytes(raw)
		if v.Type == gjson.Null || v.String() == "" {
			return ""
		}
		parts = append(parts, v.String())
	}
	return CompositeKey(parts...)
}

// Get decodes a single field into v.
func (d Document) Get(field string, v any) error {
	raw, ok := d.Fields[field]
	if !ok {
		return fmt.Errorf("field %q not found", field)
	}
	return json.Unmarshal(raw, v)
}

// With returns a copy of the document with field set to value.
func (d Document) With(field string, value any) (Document, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return d, fmt.Errorf("failed to marshal field %q: %w", field, err)
	}

	fields := make(map[string]json.RawMessage, len(d.Fields)+1)
	for k, v := range d.Fields {
		fields[k] = v
	}
	fields[field] = raw

	return Document{Meta: d.Meta, Fields: fields, keyFields: d.keyFields}, nil
}

// MarshalJSON flattens Meta and Fields into one JSON object.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Fields)+3)
	for k, v := range d.Fields {
		out[k] = v
	}

	// Служебные поля всегда берутся из Meta, даже если они есть в Fields
	delete(out, FieldID)
	delete(out, FieldCreated)
	delete(out, FieldUpdated)

	if d.ID != "" {
		id, err := json.Marshal(d.ID)
		if err != nil {
			return nil, err
		}
		out[FieldID] = id
	}
	if d.Created != 0 {
		out[FieldCreated] = json.RawMessage(fmt.Sprintf("%d", d.Created))
	}
	if d.Updated != 0 {
		out[FieldUpdated] = json.RawMessage(fmt.Sprintf("%d", d.Updated))
	}

	return json.Marshal(out)
}

// UnmarshalJSON splits a flat JSON object into Meta and Fields.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to decode service fields: %w", err)
	}

	delete(raw, FieldID)
	delete(raw, FieldCreated)
	delete(raw, FieldUpdated)

	d.Meta = meta
	d.Fields = raw
	return nil
}
