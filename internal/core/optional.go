// ABOUTME: OptionalField[T] gives JSON fields three states: absent, explicit null, or a value.
// ABOUTME: Needed by partial-update commands (UpdateCard.body) where "clear the field" and
// ABOUTME: "leave it alone" must be distinguishable on the wire.
package core

import (
	"bytes"
	"encoding/json"
)

// OptionalField represents a field that may be absent from the JSON payload,
// explicitly null, or carrying a concrete value.
//
//   - Set=false:             field absent (do not touch the current value)
//   - Set=true, Valid=false: field is JSON null (clear the value)
//   - Set=true, Valid=true:  field carries Value (set it)
type OptionalField[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// Absent returns an OptionalField representing a missing field.
func Absent[T any]() OptionalField[T] {
	return OptionalField[T]{}
}

// Null returns an OptionalField representing an explicit JSON null.
func Null[T any]() OptionalField[T] {
	return OptionalField[T]{Set: true}
}

// Present returns an OptionalField carrying a concrete value.
func Present[T any](v T) OptionalField[T] {
	return OptionalField[T]{Set: true, Valid: true, Value: v}
}

// MarshalJSON emits null for absent/null states, or the wrapped value.
// Parent structs normally omit this field entirely via a custom marshaler;
// this exists for direct use.
func (o OptionalField[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON sets Set/Valid based on whether the JSON value is null.
func (o *OptionalField[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Valid = false
		return nil
	}
	o.Valid = true
	return json.Unmarshal(data, &o.Value)
}
