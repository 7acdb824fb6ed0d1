// Package validation checks client mutations against the collection schema
// and per-field rules before they reach the mutation gateway.
package validation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/iudanet/gophsync/internal/models"
)

// FieldValidator validates documents of one collection.
//
// Service fields (_id, __created, __updated) are never validated. When the
// schema declares Modifiable fields, any other field except the unique key
// fields is rejected.
type FieldValidator struct {
	rules      map[string][]Rule
	modifiable map[string]struct{}
	keyFields  map[string]struct{}
}

// NewFieldValidator creates a validator for schema with the given rules per field
func NewFieldValidator(schema models.CollectionSchema, rules map[string][]Rule) *FieldValidator {
	v := &FieldValidator{
		rules:     rules,
		keyFields: make(map[string]struct{}),
	}
	if v.rules == nil {
		v.rules = make(map[string][]Rule)
	}

	for _, f := range schema.KeyFields() {
		v.keyFields[f] = struct{}{}
	}
	if len(schema.Modifiable) > 0 {
		v.modifiable = make(map[string]struct{}, len(schema.Modifiable))
		for _, f := range schema.Modifiable {
			v.modifiable[f] = struct{}{}
		}
	}

	return v
}

// Validate checks a full document as sent by an upsert.
// Every rule is evaluated, including rules of absent fields.
func (v *FieldValidator) Validate(doc []byte) error {
	fields, err := decodeObject(doc)
	if err != nil {
		return err
	}

	var errs []error
	errs = append(errs, v.checkAllowed(fields, true)...)

	for _, name := range sortedKeys(v.rules) {
		value := fieldResult(fields, name)
		errs = append(errs, v.apply(name, value)...)
	}

	return errors.Join(errs...)
}

// ValidatePatch checks only the fields present in an encoded patch object.
// Unique key fields cannot be patched.
func (v *FieldValidator) ValidatePatch(doc []byte) error {
	patch, err := decodeObject(doc)
	if err != nil {
		return err
	}

	var errs []error
	errs = append(errs, v.checkAllowed(patch, false)...)

	for _, name := range sortedKeys(patch) {
		if isMeta(name) {
			continue
		}
		errs = append(errs, v.apply(name, gjson.ParseBytes(patch[name]))...)
	}

	return errors.Join(errs...)
}

func (v *FieldValidator) checkAllowed(fields map[string]json.RawMessage, allowKeys bool) []error {
	var errs []error
	for _, name := range sortedKeys(fields) {
		if isMeta(name) {
			continue
		}
		if _, ok := v.keyFields[name]; ok {
			if !allowKeys {
				errs = append(errs, &FieldError{Field: name, Reason: "is part of the unique key and cannot be patched"})
			}
			continue
		}
		if v.modifiable == nil {
			continue
		}
		if _, ok := v.modifiable[name]; !ok {
			errs = append(errs, &FieldError{Field: name, Reason: "is not modifiable"})
		}
	}
	return errs
}

func (v *FieldValidator) apply(name string, value gjson.Result) []error {
	var errs []error
	for _, rule := range v.rules[name] {
		if err := rule(value); err != nil {
			errs = append(errs, &FieldError{Field: name, Reason: err.Error()})
			// первое нарушение по полю достаточно
			break
		}
	}
	return errs
}

func decodeObject(doc []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("%w: document is not a JSON object: %w", ErrValidation, err)
	}
	return fields, nil
}

func fieldResult(fields map[string]json.RawMessage, name string) gjson.Result {
	raw, ok := fields[name]
	if !ok {
		return gjson.Result{}
	}
	return gjson.ParseBytes(raw)
}

func isMeta(name string) bool {
	return name == models.FieldID || name == models.FieldCreated || name == models.FieldUpdated
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
