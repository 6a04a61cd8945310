package schema

import (
	"fmt"
	"strings"
)

// Kind is the expected JSON shape of a field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindList
	KindObject
)

// FieldSpec declares one field of a worker output contract.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Required bool
	// Enum restricts string values when non-empty. Case-sensitive.
	Enum []string
	// Min/Max bound numeric values when non-nil.
	Min *float64
	Max *float64
	// MinItems bounds list length.
	MinItems int
	// StringItems requires every list element to be a string.
	StringItems bool
	// ItemFields, when non-empty, requires list elements (or object members
	// for KindObject) to satisfy these sub-fields.
	ItemFields []FieldSpec
}

// Spec is the full contract for one worker output key.
type Spec struct {
	OutputKey string
	Fields    []FieldSpec
}

// Violation is one machine-readable contract breach, formatted "field: message".
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string { return v.Field + ": " + v.Message }

// ValidationError carries the violation list for one output. It is recovered
// by the invocation retry loop and never treated as fatal.
type ValidationError struct {
	OutputKey  string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, v.String())
	}
	return fmt.Sprintf("output %q invalid: %s", e.OutputKey, strings.Join(lines, "; "))
}

// Outcome is the result of checking one raw worker response.
type Outcome struct {
	OutputKey  string         `json:"output_key"`
	Valid      bool           `json:"valid"`
	Payload    map[string]any `json:"payload,omitempty"`
	Violations []Violation    `json:"violations,omitempty"`
	// Retries is filled by the invocation loop, not by Check.
	Retries int `json:"retries"`
}

// Err returns the outcome as a typed error, or nil when valid.
func (o Outcome) Err() error {
	if o.Valid {
		return nil
	}
	return &ValidationError{OutputKey: o.OutputKey, Violations: o.Violations}
}

// Check extracts, normalizes and validates one raw worker response against
// the catalog entry for outputKey. An output key with no registered contract
// passes unconditionally, matching the catalog's skip-unknown rule.
func Check(outputKey, raw string) Outcome {
	spec, known := Catalog[outputKey]
	payload, parsed := ParsePayload(raw)
	if !known {
		return Outcome{OutputKey: outputKey, Valid: true, Payload: payload}
	}
	if !parsed {
		return Outcome{
			OutputKey:  outputKey,
			Violations: []Violation{{Field: "payload", Message: "no JSON object found in response"}},
		}
	}
	payload = Normalize(spec, payload)
	violations := validate(spec, payload)
	return Outcome{
		OutputKey:  outputKey,
		Valid:      len(violations) == 0,
		Payload:    payload,
		Violations: violations,
	}
}

func validate(spec Spec, payload map[string]any) []Violation {
	var out []Violation
	for _, field := range spec.Fields {
		out = append(out, checkField(field.Name, field, payload)...)
	}
	return out
}

func checkField(path string, field FieldSpec, payload map[string]any) []Violation {
	value, present := payload[field.Name]
	if !present || value == nil {
		if field.Required {
			return []Violation{{Field: path, Message: "required field missing"}}
		}
		return nil
	}
	switch field.Kind {
	case KindString:
		s, ok := value.(string)
		if !ok {
			return []Violation{{Field: path, Message: "must be a string"}}
		}
		if field.Required && strings.TrimSpace(s) == "" {
			return []Violation{{Field: path, Message: "must not be empty"}}
		}
		if len(field.Enum) > 0 && !contains(field.Enum, s) {
			return []Violation{{Field: path, Message: fmt.Sprintf("must be one of %s", strings.Join(field.Enum, "|"))}}
		}
	case KindNumber:
		n, ok := value.(float64)
		if !ok {
			return []Violation{{Field: path, Message: "must be a number"}}
		}
		if field.Min != nil && n < *field.Min {
			return []Violation{{Field: path, Message: fmt.Sprintf("must be >= %v", *field.Min)}}
		}
		if field.Max != nil && n > *field.Max {
			return []Violation{{Field: path, Message: fmt.Sprintf("must be <= %v", *field.Max)}}
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return []Violation{{Field: path, Message: "must be a boolean"}}
		}
	case KindList:
		list, ok := value.([]any)
		if !ok {
			return []Violation{{Field: path, Message: "must be a list"}}
		}
		if len(list) < field.MinItems {
			return []Violation{{Field: path, Message: fmt.Sprintf("must have at least %d items", field.MinItems)}}
		}
		return checkItems(path, field, list)
	case KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return []Violation{{Field: path, Message: "must be an object"}}
		}
		var out []Violation
		for _, sub := range field.ItemFields {
			out = append(out, checkField(path+"."+sub.Name, sub, obj)...)
		}
		return out
	}
	return nil
}

func checkItems(path string, field FieldSpec, list []any) []Violation {
	var out []Violation
	for i, item := range list {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		switch {
		case len(field.ItemFields) > 0:
			obj, ok := item.(map[string]any)
			if !ok {
				out = append(out, Violation{Field: itemPath, Message: "must be an object"})
				continue
			}
			for _, sub := range field.ItemFields {
				out = append(out, checkField(itemPath+"."+sub.Name, sub, obj)...)
			}
		case field.StringItems:
			if _, ok := item.(string); !ok {
				out = append(out, Violation{Field: itemPath, Message: "must be a string"})
			}
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
