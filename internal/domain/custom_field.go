package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldType is the declared scalar type of a custom field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
)

// Valid reports whether the field type is one of the supported scalar types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeNumber, FieldTypeBoolean:
		return true
	default:
		return false
	}
}

// CustomFieldDefinition is a user-authored column attached to every entry.
type CustomFieldDefinition struct {
	ID                  int64     `json:"id"`
	IDName              string    `json:"idName"`
	DataType            FieldType `json:"dataType"`
	Label               string    `json:"label"`
	Description         string    `json:"description,omitempty"`
	AIDescription       string    `json:"aiDescription,omitempty"`
	AutocompleteEnabled bool      `json:"autocompleteEnabled"`
	IsDisabled          bool      `json:"isDisabled"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Validate checks the definition before it is persisted.
func (d CustomFieldDefinition) Validate() error {
	name := strings.TrimSpace(d.IDName)
	if name == "" {
		return fmt.Errorf("%w: custom field id name is required", ErrInvalidCustomField)
	}
	if name != d.IDName || strings.ContainsAny(name, " .") {
		return fmt.Errorf("%w: id name %q must not contain spaces or dots", ErrInvalidCustomField, d.IDName)
	}
	if !d.DataType.Valid() {
		return fmt.Errorf("%w: unsupported data type %q", ErrInvalidCustomField, d.DataType)
	}
	if strings.TrimSpace(d.Label) == "" {
		return fmt.Errorf("%w: label is required for %s", ErrInvalidCustomField, d.IDName)
	}
	return nil
}

// Coerce converts a stored text value into the declared scalar type.
// Empty text coerces to nil for number and boolean fields.
func (d CustomFieldDefinition) Coerce(raw string) (any, error) {
	switch d.DataType {
	case FieldTypeNumber:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil, nil
		}
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a number", d.IDName, raw)
		}
		return n, nil
	case FieldTypeBoolean:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil, nil
		}
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a boolean", d.IDName, raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}

// CustomFieldValue is one (entry, field) value, always stored as text.
type CustomFieldValue struct {
	ID            int64     `json:"id"`
	EntryID       int64     `json:"entryId"`
	CustomFieldID int64     `json:"customFieldId"`
	Value         *string   `json:"value"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
