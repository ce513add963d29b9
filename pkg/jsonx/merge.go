package jsonx

import (
	"fmt"
	"maps"
	"slices"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MergeTopLevel sets every key of values on the top level of the JSON object doc.
// Keys are applied in sorted order so the output is deterministic. Existing keys
// are overwritten.
func MergeTopLevel(doc []byte, values map[string]any) ([]byte, error) {
	if len(values) == 0 {
		return doc, nil
	}
	out := doc
	for _, key := range slices.Sorted(maps.Keys(values)) {
		raw, err := json.Marshal(values[key])
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", key, err)
		}
		out, err = sjson.SetRawBytes(out, escapePath(key), raw)
		if err != nil {
			return nil, fmt.Errorf("set %q: %w", key, err)
		}
	}
	return out, nil
}

// StripKeys removes every object member named in keys, at any depth.
func StripKeys(doc []byte, keys ...string) ([]byte, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("invalid json")
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, err
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	return json.Marshal(strip(v, drop))
}

func strip(v any, drop map[string]struct{}) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if _, ok := drop[k]; ok {
				delete(val, k)
				continue
			}
			val[k] = strip(child, drop)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = strip(child, drop)
		}
		return val
	default:
		return v
	}
}

func escapePath(key string) string {
	var b []byte
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			b = append(b, '\\')
		}
		b = append(b, key[i])
	}
	return string(b)
}
