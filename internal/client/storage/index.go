package storage

import (
	"github.com/tidwall/gjson"
)

// FieldValue extracts the value at a gjson path from a JSON document as a string.
// Missing paths yield an empty string.
func FieldValue(data []byte, path string) string {
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return ""
	}
	return res.String()
}

// IndexValue extracts the index key of a document. ok is false when the
// document has no value at path, such documents are not indexed.
func IndexValue(data []byte, path string) (string, bool) {
	res := gjson.GetBytes(data, path)
	if !res.Exists() || res.Type == gjson.Null {
		return "", false
	}
	return res.String(), true
}
