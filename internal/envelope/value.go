// Package envelope implements the canonical serialization, signing, and
// verification contract for the control bus's signed command envelopes.
package envelope

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Value is a sealed interface over the bounded set of value shapes a policy
// argument or envelope field may hold. Only the types in this file satisfy
// it. There is deliberately no float variant: the canonical form forbids
// floats.
type Value interface {
	value()
}

// String is a UTF-8 string scalar.
type String string

func (String) value() {}

// Int is a signed integer scalar. Always int64; JSON numbers with a
// fractional or exponent part are rejected during decode.
type Int int64

func (Int) value() {}

// Bool is a boolean scalar.
type Bool bool

func (Bool) value() {}

// Array is an ordered list of Values.
type Array []Value

func (Array) value() {}

// Object is a string-keyed map of Values. Iteration order is insignificant;
// canonical serialization always sorts keys (see canonical.go).
type Object map[string]Value

func (Object) value() {}

// NewObject builds an Object from key/value pairs, panicking on an odd
// argument count. Convenience constructor for tests and call sites that
// build envelopes programmatically.
func NewObject(kv ...any) Object {
	if len(kv)%2 != 0 {
		panic("envelope.NewObject: odd number of arguments")
	}
	obj := make(Object, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic("envelope.NewObject: key must be a string")
		}
		val, ok := kv[i+1].(Value)
		if !ok {
			panic("envelope.NewObject: value must be an envelope.Value")
		}
		obj[key] = val
	}
	return obj
}

// SortedKeys returns the object's keys sorted by Unicode code point, the
// ordering canonical serialization requires. Go's native string comparison
// already orders valid UTF-8 by code point, so this is a plain sort — no
// UTF-16 code-unit conversion is needed (contrast with RFC 8785, which
// some prior art in this space uses).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnmarshalJSON decodes a JSON object into an Object, rejecting floats and
// null per the canonical value model.
func (obj *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Object, len(raw))
	for k, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = val
	}
	*obj = out
	return nil
}

// UnmarshalJSON decodes a JSON array into an Array, applying the same
// per-element rules as Object.
func (arr *Array) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Array, len(raw))
	for i, v := range raw {
		val, err := unmarshalValue(v)
		if err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = val
	}
	*arr = out
	return nil
}

// unmarshalValue decodes a single JSON value into a Value, rejecting floats
// and null.
func unmarshalValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case 'n':
		return nil, fmt.Errorf("null is forbidden in the canonical value model")
	case '[':
		var arr Array
		if err := arr.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return arr, nil
	case '{':
		var obj Object
		if err := obj.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return obj, nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are forbidden in the canonical value model: %s", string(data))
		}
		return Int(i), nil
	}
}

// MarshalJSON renders an Object with sorted keys for human-facing output
// (status documents, CLI --dry-run printing). This is NOT canonical
// serialization in the signing sense — see Canonicalize for that — but it
// is deterministic and stable across repeated calls.
func (obj Object) MarshalJSON() ([]byte, error) {
	keys := obj.SortedKeys()
	m := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		raw, err := marshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		m[k] = raw
	}
	// encoding/json preserves neither map order, but we only ever need this
	// for human consumption; Canonicalize is authoritative for ordering.
	return json.Marshal(rawObjectInOrder(keys, m))
}

func marshalValue(v Value) (json.RawMessage, error) {
	switch val := v.(type) {
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		items := make([]json.RawMessage, len(val))
		for i, e := range val {
			raw, err := marshalValue(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = raw
		}
		return json.Marshal(items)
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// rawObjectInOrder renders a map preserving key order by building the raw
// JSON text directly, since encoding/json always re-sorts map[string]any.
func rawObjectInOrder(keys []string, m map[string]json.RawMessage) json.RawMessage {
	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, m[k]...)
	}
	buf = append(buf, '}')
	return buf
}
