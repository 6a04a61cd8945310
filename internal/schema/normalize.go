package schema

import "strings"

// Normalize applies the documented shape rules before validation. The one
// that matters: a list field that arrives wrapped in a single-key record is
// unwrapped; a record that does not carry the list yields an empty list
// instead of a violation. String fields are whitespace-trimmed. The input map
// is not modified.
func Normalize(spec Spec, payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	for _, field := range spec.Fields {
		value, present := out[field.Name]
		switch field.Kind {
		case KindList:
			if !present {
				continue
			}
			out[field.Name] = unwrapList(value)
		case KindString:
			if s, ok := value.(string); ok {
				out[field.Name] = strings.TrimSpace(s)
			}
		}
	}
	return out
}

// unwrapList resolves the list-or-wrapped-record ambiguity. Lists pass
// through; a single-key record whose value is a list unwraps to that list;
// any other record shape substitutes an empty list.
func unwrapList(value any) any {
	switch v := value.(type) {
	case []any:
		return v
	case map[string]any:
		if len(v) == 1 {
			for _, inner := range v {
				if list, ok := inner.([]any); ok {
					return list
				}
			}
		}
		return []any{}
	default:
		return value
	}
}
