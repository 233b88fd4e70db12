package correlation

import (
	"strconv"
	"strings"

	"github.com/iff-guardian/fusion/internal/domain"
)

// fieldValue reads field off a normalized event. A name with a
// first-class struct slot is read from that slot only, even when the
// slot is empty; any other name falls back to the Extra bag so rules
// can reference vendor-specific attributes (assetCriticality,
// exploitAvailable, assetId, ...) the field mapper wrote there.
func fieldValue(e *domain.NormalizedEvent, field string) any {
	switch field {
	case "id":
		return e.ID
	case "timestamp":
		return e.Timestamp
	case "sourceType":
		return string(e.SourceType)
	case "sourceIntegrationId":
		return e.SourceIntegrationID
	case "eventType":
		return e.EventType
	case "severity":
		return string(e.Severity)
	case "title":
		return e.Title
	case "description":
		return e.Description
	case "category":
		return e.Category
	case "subcategory":
		return e.Subcategory
	case "sourceIP":
		return e.SourceIP
	case "destIP":
		return e.DestIP
	case "user":
		return e.User
	case "host":
		return e.Host
	case "protocol":
		return e.Protocol
	case "status":
		return string(e.Status)
	}
	if e.Extra != nil {
		if v, ok := e.Extra[field]; ok {
			return v
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// evaluateCondition implements one rule condition's operator against
// an event's field value.
func evaluateCondition(e *domain.NormalizedEvent, c domain.Condition) bool {
	actual := fieldValue(e, c.Field)

	if c.Operator == domain.OpIn {
		for _, v := range inValues(c.Value) {
			if compareEq(actual, v, c.CaseInsensitive) {
				return true
			}
		}
		return false
	}

	if c.Operator == domain.OpContains {
		haystack := toString(actual)
		needle := toString(c.Value)
		if c.CaseInsensitive {
			haystack = strings.ToLower(haystack)
			needle = strings.ToLower(needle)
		}
		return strings.Contains(haystack, needle)
	}

	switch c.Operator {
	case domain.OpEq:
		return compareEq(actual, c.Value, c.CaseInsensitive)
	case domain.OpNe:
		return !compareEq(actual, c.Value, c.CaseInsensitive)
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		a, aok := toFloat(actual)
		b, bok := toFloat(c.Value)
		if !aok || !bok {
			return false
		}
		switch c.Operator {
		case domain.OpGt:
			return a > b
		case domain.OpGte:
			return a >= b
		case domain.OpLt:
			return a < b
		case domain.OpLte:
			return a <= b
		}
	}
	return false
}

// inValues normalizes an "in" condition's value list. JSON-decoded
// rules carry []any; rules built in Go tend to carry a typed slice.
func inValues(v any) []any {
	switch values := v.(type) {
	case []any:
		return values
	case []string:
		out := make([]any, len(values))
		for i, s := range values {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]any, len(values))
		for i, f := range values {
			out[i] = f
		}
		return out
	case []int:
		out := make([]any, len(values))
		for i, n := range values {
			out[i] = n
		}
		return out
	}
	return nil
}

func compareEq(a, b any, caseInsensitive bool) bool {
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		if caseInsensitive {
			return strings.EqualFold(as, bs)
		}
		return as == bs
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}
