package validation

import (
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/iudanet/gophsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgetsSchema = models.CollectionSchema{
	Name:       "widgets",
	Group:      "test",
	Version:    "1.0.0",
	Modifiable: []string{"color", "size", "label"},
}

func widgetsValidator() *FieldValidator {
	return NewFieldValidator(widgetsSchema, map[string][]Rule{
		"color": {Required(), OneOf("red", "green", "blue")},
		"size":  {Number(0, 100)},
		"label": {String(1, 8), Pattern(regexp.MustCompile(`^[a-z]+$`))},
	})
}

func TestFieldValidator_Validate(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantFields []string
	}{
		{
			name: "valid document",
			doc:  `{"_id":"w1","__updated":150,"color":"red","size":10,"label":"abc"}`,
		},
		{
			name: "optional fields absent",
			doc:  `{"_id":"w1","color":"blue"}`,
		},
		{
			name:       "required field missing",
			doc:        `{"_id":"w1","size":10}`,
			wantFields: []string{"color"},
		},
		{
			name:       "required field null",
			doc:        `{"_id":"w1","color":null}`,
			wantFields: []string{"color"},
		},
		{
			name:       "value outside enum",
			doc:        `{"_id":"w1","color":"purple"}`,
			wantFields: []string{"color"},
		},
		{
			name:       "number out of range",
			doc:        `{"_id":"w1","color":"red","size":101}`,
			wantFields: []string{"size"},
		},
		{
			name:       "wrong type",
			doc:        `{"_id":"w1","color":"red","size":"big"}`,
			wantFields: []string{"size"},
		},
		{
			name:       "string too long",
			doc:        `{"_id":"w1","color":"red","label":"abcdefghij"}`,
			wantFields: []string{"label"},
		},
		{
			name:       "pattern mismatch",
			doc:        `{"_id":"w1","color":"red","label":"ABC"}`,
			wantFields: []string{"label"},
		},
		{
			name:       "field not modifiable",
			doc:        `{"_id":"w1","color":"red","owner":"bob"}`,
			wantFields: []string{"owner"},
		},
		{
			name:       "several violations",
			doc:        `{"_id":"w1","owner":"bob","size":-1}`,
			wantFields: []string{"owner", "color", "size"},
		},
	}

	v := widgetsValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate([]byte(tt.doc))
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.ElementsMatch(t, tt.wantFields, failedFields(err))
		})
	}
}

func TestFieldValidator_ValidateNotObject(t *testing.T) {
	err := widgetsValidator().Validate([]byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFieldValidator_ValidatePatch(t *testing.T) {
	tests := []struct {
		name       string
		patch      map[string]string
		wantFields []string
	}{
		{
			name:  "valid patch",
			patch: map[string]string{"size": `42`},
		},
		{
			name:  "required field not in patch",
			patch: map[string]string{"label": `"abc"`},
		},
		{
			name:  "service fields ignored",
			patch: map[string]string{"__updated": `"not a number"`, "color": `"green"`},
		},
		{
			name:       "invalid value",
			patch:      map[string]string{"color": `"black"`},
			wantFields: []string{"color"},
		},
		{
			name:       "_id in patch is ignored",
			patch:      map[string]string{"_id": `"w2"`, "size": `1`},
			wantFields: nil,
		},
		{
			name:       "unknown field",
			patch:      map[string]string{"weight": `3`},
			wantFields: []string{"weight"},
		},
	}

	v := widgetsValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidatePatch(encodePatch(t, tt.patch))
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrValidation)
			assert.ElementsMatch(t, tt.wantFields, failedFields(err))
		})
	}
}

func TestFieldValidator_CompositeKey(t *testing.T) {
	schema := models.CollectionSchema{
		Name:       "memberships",
		Version:    "1",
		UniqueKeys: []string{"userId", "groupId"},
		Modifiable: []string{"role"},
	}
	v := NewFieldValidator(schema, nil)

	// поля ключа разрешены в upsert
	require.NoError(t, v.Validate([]byte(`{"userId":"u1","groupId":"g1","role":"admin"}`)))

	err := v.ValidatePatch([]byte(`{"groupId":"g2"}`))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []string{"groupId"}, failedFields(err))
}

func TestFieldValidator_NoModifiableRestriction(t *testing.T) {
	v := NewFieldValidator(models.CollectionSchema{Name: "free", Version: "1"}, nil)
	assert.NoError(t, v.Validate([]byte(`{"_id":"x","anything":true}`)))
	assert.NoError(t, v.ValidatePatch([]byte(`{"anything":1}`)))
}

func TestFieldError(t *testing.T) {
	err := error(&FieldError{Field: "color", Reason: "is required"})
	assert.Equal(t, `field "color": is required`, err.Error())
	assert.True(t, errors.Is(err, ErrValidation))

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "color", fe.Field)
}

func failedFields(err error) []string {
	var out []string
	var walk func(error)
	walk = func(err error) {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		var fe *FieldError
		if errors.As(err, &fe) {
			out = append(out, fe.Field)
		}
	}
	walk(err)
	return out
}

func encodePatch(t *testing.T, fields map[string]string) []byte {
	t.Helper()
	patch := make(map[string]json.RawMessage, len(fields))
	for k, raw := range fields {
		patch[k] = json.RawMessage(raw)
	}
	b, err := json.Marshal(patch)
	require.NoError(t, err)
	return b
}
