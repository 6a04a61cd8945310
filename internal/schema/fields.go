package schema

import "strings"

// Payload field accessors. Validated payloads are map[string]any straight out
// of encoding/json, so numbers are float64 and lists are []any; these helpers
// read fields without re-asserting shapes the validator already checked.

// Str returns a trimmed string field, or "" when absent or not a string.
func Str(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return strings.TrimSpace(s)
}

// Num returns a numeric field and whether it was present as a number.
func Num(payload map[string]any, key string) (float64, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Bool returns a boolean field, false when absent.
func Bool(payload map[string]any, key string) bool {
	if payload == nil {
		return false
	}
	b, _ := payload[key].(bool)
	return b
}

// List returns a list field as raw elements, nil when absent or not a list.
func List(payload map[string]any, key string) []any {
	if payload == nil {
		return nil
	}
	items, _ := payload[key].([]any)
	return items
}

// Strings returns a list field keeping only its non-empty string elements.
func Strings(payload map[string]any, key string) []string {
	items := List(payload, key)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// Records returns a list field keeping only its object elements.
func Records(payload map[string]any, key string) []map[string]any {
	items := List(payload, key)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if record, ok := item.(map[string]any); ok {
			out = append(out, record)
		}
	}
	return out
}

// Object returns an object field, nil when absent or not an object.
func Object(payload map[string]any, key string) map[string]any {
	if payload == nil {
		return nil
	}
	record, _ := payload[key].(map[string]any)
	return record
}
