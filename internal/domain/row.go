package domain

import (
	"bytes"
	"encoding/json"
)

// Row is a flattened, ordered, string-keyed view of one entry: its native
// attributes, its custom field values and, after derivation, its derived
// columns. Keys keep insertion order so exports and JSON output are stable.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow creates an empty row with room for capacity keys.
func NewRow(capacity int) *Row {
	return &Row{
		keys:   make([]string, 0, capacity),
		values: make(map[string]any, capacity),
	}
}

// Set stores value under key. An existing key keeps its position.
func (r *Row) Set(key string, value any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key and whether the key is present.
func (r *Row) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present, even if its value is nil.
func (r *Row) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Delete removes key from the row.
func (r *Row) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the row keys in insertion order.
func (r *Row) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// Len returns the number of keys.
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Map returns a shallow copy of the row as a plain map.
func (r *Row) Map() map[string]any {
	out := make(map[string]any, r.Len())
	if r == nil {
		return out
	}
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of the row. Nested values are shared.
func (r *Row) Clone() *Row {
	clone := NewRow(r.Len())
	if r == nil {
		return clone
	}
	for _, k := range r.keys {
		clone.Set(k, r.values[k])
	}
	return clone
}

// MarshalJSON writes the row as a JSON object preserving key order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
