// Package response normalizes Pure API records.
//
// A Record is a deep copy of a decoded JSON object with path accessors.
// Per-collection transforms add explicit defaults for a known set of
// optional fields (nil or an empty list) so consumers can read them without
// presence checks. Transforms never remove, rename or overwrite fields and
// are idempotent.
package response

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Record is one normalized Pure record.
type Record map[string]any

// NewRecord returns a deep copy of raw as a Record.
func NewRecord(raw map[string]any) Record {
	if raw == nil {
		return Record{}
	}
	return Record(deepCopyMap(raw))
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	return NewRecord(r)
}

// Get returns the value at path.
func (r Record) Get(path ...string) (any, bool) {
	var cur any = map[string]any(r)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path. ok is false for missing, nil and
// non-string values.
func (r Record) String(path ...string) (string, bool) {
	v, ok := r.Get(path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Map returns the object at path.
func (r Record) Map(path ...string) (Record, bool) {
	v, ok := r.Get(path...)
	if !ok {
		return nil, false
	}
	m, ok := asMap(v)
	return Record(m), ok
}

// Slice returns the list at path.
func (r Record) Slice(path ...string) ([]any, bool) {
	v, ok := r.Get(path...)
	if !ok {
		return nil, false
	}
	switch s := v.(type) {
	case []any:
		return s, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

// SetDefault stores value at path when the final key is absent. Missing
// intermediate objects are created. Existing values, including explicit
// nulls and non-object intermediates, are never replaced.
func (r Record) SetDefault(value any, path ...string) {
	if len(path) == 0 {
		return
	}

	cur := map[string]any(r)
	for _, key := range path[:len(path)-1] {
		next, exists := cur[key]
		if !exists {
			created := map[string]any{}
			cur[key] = created
			cur = created
			continue
		}
		m, ok := asMap(next)
		if !ok {
			return
		}
		cur = m
	}

	last := path[len(path)-1]
	if _, exists := cur[last]; !exists {
		cur[last] = value
	}
}

// Decode copies r into out, a pointer to a struct with json tags.
func (r Record) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(r)); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// As decodes r into a new T.
func As[T any](r Record) (T, error) {
	var out T
	err := r.Decode(&out)
	return out, err
}

// MarshalJSON keeps Record output identical to the underlying object.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(r))
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case Record:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyMap(e)
		}
		return out
	default:
		return v
	}
}
