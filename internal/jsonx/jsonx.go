// Package jsonx provides best-effort JSON decoding helpers.
//
// Both the draft slot and the relay treat malformed JSON as "no value" rather
// than as an error. These helpers make that fallback explicit at the call site.
package jsonx

import (
	"bytes"
	"encoding/json"
)

// ParseOrDefault decodes data into a value of type T.
// It returns def and false if data is empty or cannot be decoded.
func ParseOrDefault[T any](data []byte, def T) (T, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return def, false
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return def, false
	}
	return v, true
}

// Object decodes data as a JSON object.
// Anything that is not an object (including null) yields an empty, non-nil map.
func Object(data []byte) map[string]any {
	obj, ok := ParseOrDefault[map[string]any](data, nil)
	if !ok || obj == nil {
		return map[string]any{}
	}
	return obj
}

// String returns obj[key] if it is a non-empty string.
func String(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
