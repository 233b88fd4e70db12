package correlation

import (
	"strings"

	"github.com/iff-guardian/fusion/internal/domain"
)

// applyAggregation groups events by agg.GroupBy (or agg.Field if
// GroupBy is empty), reduces each group with agg.Function, filters
// groups through agg.Having, and returns the union of events in
// surviving groups.
func applyAggregation(events []*domain.NormalizedEvent, agg domain.Aggregation) []*domain.NormalizedEvent {
	groupFields := agg.GroupBy
	if len(groupFields) == 0 {
		groupFields = []string{agg.Field}
	}

	groups := make(map[string][]*domain.NormalizedEvent)
	var order []string
	for _, e := range events {
		key := groupKey(e, groupFields)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	var survivors []*domain.NormalizedEvent
	for _, key := range order {
		group := groups[key]
		value, ok := reduce(group, agg)
		if !ok {
			continue
		}
		if agg.Having != nil && !satisfiesHaving(value, agg.Function, *agg.Having) {
			continue
		}
		survivors = append(survivors, group...)
	}
	return survivors
}

func groupKey(e *domain.NormalizedEvent, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = toString(fieldValue(e, f))
	}
	return strings.Join(parts, "\x1f")
}

// reduce computes agg.Function over group, returning the synthesized
// having-record value (count, sum/avg/min/max, or unique cardinality).
// The second return is false for min/max over an empty numeric set,
// so the caller omits that group rather than treating zero as real.
func reduce(group []*domain.NormalizedEvent, agg domain.Aggregation) (float64, bool) {
	switch agg.Function {
	case domain.AggCount:
		return float64(len(group)), true
	case domain.AggSum, domain.AggAvg:
		var sum float64
		for _, e := range group {
			v, _ := toFloat(fieldValue(e, agg.Field))
			sum += v
		}
		if agg.Function == domain.AggAvg {
			if len(group) == 0 {
				return 0, false
			}
			return sum / float64(len(group)), true
		}
		return sum, true
	case domain.AggMin, domain.AggMax:
		var result float64
		found := false
		for _, e := range group {
			v, ok := toFloat(fieldValue(e, agg.Field))
			if !ok {
				continue
			}
			if !found || (agg.Function == domain.AggMin && v < result) || (agg.Function == domain.AggMax && v > result) {
				result = v
				found = true
			}
		}
		return result, found
	case domain.AggUnique:
		set := make(map[string]struct{})
		for _, e := range group {
			set[toString(fieldValue(e, agg.Field))] = struct{}{}
		}
		return float64(len(set)), true
	}
	return 0, false
}

// satisfiesHaving evaluates the having condition against the
// synthesized record {count: value} for a count aggregation, or
// {value: value} otherwise. An empty h.Field reads that record's single
// key; any other field name is absent from the record, so the group
// does not satisfy the condition.
func satisfiesHaving(value float64, fn domain.AggregationFunction, h domain.Having) bool {
	recordKey := "value"
	if fn == domain.AggCount {
		recordKey = "count"
	}
	if h.Field != "" && h.Field != recordKey {
		return false
	}
	threshold, ok := toFloat(h.Value)
	if !ok {
		return false
	}
	switch h.Operator {
	case domain.OpEq:
		return value == threshold
	case domain.OpNe:
		return value != threshold
	case domain.OpGt:
		return value > threshold
	case domain.OpGte:
		return value >= threshold
	case domain.OpLt:
		return value < threshold
	case domain.OpLte:
		return value <= threshold
	}
	return false
}
