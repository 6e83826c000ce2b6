package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ----------------------------------------------------------------------------
// Ordered Map

// Go's built-in map type iterates in randomized order, which is a problem for
// every stage of this pipeline: class/subroutine/module iteration order feeds
// directly into label and address allocation (see jack.Lowerer's doc comment),
// so two runs over the same input must walk entries in the same order to
// produce byte-identical output. OrderedMap keeps insertion order alongside
// O(1) lookup by key.

// MapEntry is a single Key/Value pair, used both as OrderedMap's internal
// storage and as the input to NewOrderedMapFromList.
type MapEntry[K comparable, V any] struct {
	Key   K
	Value V
}

// OrderedMap is a map that remembers the order in which keys were first set.
// The zero value is a valid, empty OrderedMap.
type OrderedMap[K comparable, V any] struct {
	entries []MapEntry[K, V]
	index   map[K]int
}

// NewOrderedMapFromList builds an OrderedMap preserving the given slice's order.
// Later entries with a duplicate key overwrite earlier ones in place (position
// is taken from the first occurrence), mirroring Set's semantics.
func NewOrderedMapFromList[K comparable, V any](entries []MapEntry[K, V]) OrderedMap[K, V] {
	om := OrderedMap[K, V]{}
	for _, entry := range entries {
		om.Set(entry.Key, entry.Value)
	}
	return om
}

// Set inserts or updates the value for 'key'. Insertion order is preserved:
// updating an existing key does not move it.
func (om *OrderedMap[K, V]) Set(key K, value V) {
	if om.index == nil {
		om.index = map[K]int{}
	}

	if pos, found := om.index[key]; found {
		om.entries[pos].Value = value
		return
	}

	om.index[key] = len(om.entries)
	om.entries = append(om.entries, MapEntry[K, V]{Key: key, Value: value})
}

// Get looks up 'key', returning the zero value and false if not present.
func (om *OrderedMap[K, V]) Get(key K) (V, bool) {
	if om.index == nil {
		var zero V
		return zero, false
	}

	pos, found := om.index[key]
	if !found {
		var zero V
		return zero, false
	}
	return om.entries[pos].Value, true
}

// Size returns the number of entries currently stored.
func (om *OrderedMap[K, V]) Size() int { return len(om.entries) }

// Entries returns the stored values in insertion order.
func (om *OrderedMap[K, V]) Entries() []V {
	values := make([]V, 0, len(om.entries))
	for _, entry := range om.entries {
		values = append(values, entry.Value)
	}
	return values
}

// Keys returns the stored keys in insertion order.
func (om *OrderedMap[K, V]) Keys() []K {
	keys := make([]K, 0, len(om.entries))
	for _, entry := range om.entries {
		keys = append(keys, entry.Key)
	}
	return keys
}

// MarshalJSON emits the map as a JSON object, keys in insertion order. Only string
// keys are supported since JSON object keys are always strings.
func (om OrderedMap[K, V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, entry := range om.entries {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(fmt.Sprint(entry.Key))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := json.Marshal(entry.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON populates the map from a JSON object, preserving the key order the
// object was written in (Go's map[string]V would randomize it). Only works for
// string-keyed OrderedMaps, which covers every use in this module.
func (om *OrderedMap[K, V]) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))

	if tok, err := decoder.Token(); err != nil {
		return err
	} else if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %v", tok)
		}

		var value V
		if err := decoder.Decode(&value); err != nil {
			return err
		}

		var typedKey any = key
		om.Set(typedKey.(K), value)
	}

	return nil
}
