package schema

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the first JSON object out of free-form worker text.
// Workers routinely wrap payloads in markdown fences or surround them with
// prose; both are tolerated. Returns the trimmed input unchanged when no
// object can be isolated.
func ExtractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimLeft(trimmed, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		trimmed = strings.TrimSpace(trimmed)
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	if obj, ok := extractObject(trimmed); ok {
		return obj
	}
	return trimmed
}

// extractObject scans for a balanced top-level {...}, respecting strings and
// escapes so braces inside quoted text do not confuse the depth count.
func extractObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escape := false
	for i, r := range text {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
				inString = false
				escape = false
			}
			continue
		}
		if inString {
			if escape {
				escape = false
				continue
			}
			if r == '\\' {
				escape = true
				continue
			}
			if r == '"' {
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1]), true
			}
		}
	}
	return "", false
}

// ParsePayload extracts and unmarshals a worker payload. The bool reports
// whether a JSON object was obtained at all.
func ParsePayload(raw string) (map[string]any, bool) {
	candidate := ExtractJSON(raw)
	if candidate == "" {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, false
	}
	return payload, true
}
