package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeRows decodes a tabular payload into its row objects. The backend
// sometimes double-encodes the data frame as a JSON string containing the
// array, so a string payload gets one extra parse step before the array
// decode. A payload that is not an array after parsing is an error.
func DecodeRows(raw json.RawMessage) ([]json.RawMessage, error) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("empty payload")
	}

	// Unwrap one level of string encoding if present.
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("unwrap string payload: %w", err)
		}
		data = bytes.TrimSpace([]byte(inner))
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("payload is not a row array: %w", err)
	}
	return rows, nil
}

// DisplayValue converts a raw JSON scalar to its display string, handling
// values that arrive as numbers or booleans instead of strings. Null maps
// to ok=false so the caller can substitute its placeholder.
func DisplayValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal, true
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal)), true
		}
		return fmt.Sprintf("%g", numVal), true
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal), true
	}

	// Nested objects/arrays render as their compact JSON text.
	return string(raw), true
}

// ObjectKeys returns the keys of a JSON object in their order of
// appearance. encoding/json maps lose ordering, so the column set of a
// result table is recovered by walking the first row's tokens instead.
func ObjectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key token %v", keyTok)
		}
		keys = append(keys, key)

		// Skip the value, whatever its shape.
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
