// Package fieldmap implements the Field Mapper: applying an
// integration's configured FieldMapping rules to translate a vendor's
// raw payload into the fusion engine's normalized field set, including
// dotted-path traversal, value transforms, and required/default
// handling.
package fieldmap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iff-guardian/fusion/internal/domain"
)

// RequiredFieldMissingError is returned when a FieldMapping marked
// required has no value at sourceField and no defaultValue configured.
type RequiredFieldMissingError struct {
	SourceField string
	TargetField string
}

func (e *RequiredFieldMissingError) Error() string {
	return fmt.Sprintf("fieldmap: required field %q (-> %q) missing from source payload", e.SourceField, e.TargetField)
}

// TransformFunc is a named, custom transform a caller can register
// beyond the four built-ins.
type TransformFunc func(any) (any, error)

// Mapper applies a set of FieldMapping rules to raw payloads.
type Mapper struct {
	rules   []domain.FieldMapping
	customs map[string]TransformFunc
}

// New builds a Mapper over rules, with optional custom transform
// functions keyed by the name referenced in FieldMapping.Transform.
func New(rules []domain.FieldMapping, customs map[string]TransformFunc) *Mapper {
	return &Mapper{rules: rules, customs: customs}
}

// Apply walks every configured rule against source, writing resolved
// values into a fresh map[string]any keyed by each rule's TargetField.
// Dotted target paths (e.g. "network.sourceIP") produce nested maps.
func (m *Mapper) Apply(source map[string]any) (map[string]any, error) {
	out := make(map[string]any)

	for _, rule := range m.rules {
		value, found := getPath(source, rule.SourceField)
		if !found {
			if rule.Required && rule.DefaultValue == nil {
				return nil, &RequiredFieldMissingError{SourceField: rule.SourceField, TargetField: rule.TargetField}
			}
			if rule.DefaultValue == nil {
				continue
			}
			value = rule.DefaultValue
		}

		transformed, err := m.transform(rule.Transform, value)
		if err != nil {
			return nil, fmt.Errorf("fieldmap: transform %q for field %q: %w", rule.Transform, rule.SourceField, err)
		}

		setPath(out, rule.TargetField, transformed)
	}

	return out, nil
}

func (m *Mapper) transform(name string, value any) (any, error) {
	switch name {
	case "", "direct":
		return value, nil
	case "uppercase":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("uppercase transform requires a string, got %T", value)
		}
		return strings.ToUpper(s), nil
	case "lowercase":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("lowercase transform requires a string, got %T", value)
		}
		return strings.ToLower(s), nil
	case "date":
		return toISO8601(value)
	default:
		fn, ok := m.customs[name]
		if !ok {
			return nil, fmt.Errorf("unknown transform %q", name)
		}
		return fn(value)
	}
}

// toISO8601 coerces a handful of common vendor timestamp shapes
// (RFC3339 string, unix seconds as float64/int64, time.Time) into an
// ISO-8601 string.
func toISO8601(value any) (string, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339), nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return "", fmt.Errorf("date transform: %w", err)
		}
		return t.UTC().Format(time.RFC3339), nil
	case float64:
		return time.Unix(int64(v), 0).UTC().Format(time.RFC3339), nil
	case int64:
		return time.Unix(v, 0).UTC().Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("date transform: unsupported type %T", value)
	}
}

// getPath reads a dotted path (e.g. "network.sourceIP") out of a
// nested map[string]any, also accepting numeric array indices
// (e.g. "tags.0").
func getPath(source map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = source

	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// setPath writes value into dest at a dotted target path, creating
// intermediate maps as needed.
func setPath(dest map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	node := dest

	for i, seg := range segments {
		if i == len(segments)-1 {
			node[seg] = value
			return
		}
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[seg] = next
		}
		node = next
	}
}
