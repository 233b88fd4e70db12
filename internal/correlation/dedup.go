package correlation

import (
	"fmt"
	"strings"

	"github.com/iff-guardian/fusion/internal/domain"
)

// deduplicate collapses threats emitted in one engine invocation by a
// key equal to the concatenation of cfg.DeduplicationFields values,
// keeping the first occurrence and merging eventCount/sources/
// confidence/lastSeen into it. Also stamps every surviving threat's
// DedupKey, so the same key can be used to collapse against threats
// already persisted from earlier ticks.
func deduplicate(threats []*domain.UnifiedThreat, cfg domain.CorrelationConfig) []*domain.UnifiedThreat {
	if !cfg.DeduplicationEnabled || len(cfg.DeduplicationFields) == 0 {
		return threats
	}

	byKey := make(map[string]*domain.UnifiedThreat)
	var order []string
	for _, t := range threats {
		key := dedupKey(t, cfg.DeduplicationFields)
		t.DedupKey = key
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = t
			order = append(order, key)
			continue
		}
		merge(existing, t)
	}

	out := make([]*domain.UnifiedThreat, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

// dedupKey concatenates the named fields off t, in order, separated by
// a byte that can't appear in any of them. Fields unknown to
// UnifiedThreat.Field collapse to "", matching every other threat
// missing the same field rather than erroring — a misconfigured field
// name degrades dedup granularity instead of breaking the tick.
func dedupKey(t *domain.UnifiedThreat, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, ok := t.Field(f)
		if !ok {
			parts[i] = ""
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f")
}

func merge(into, other *domain.UnifiedThreat) {
	into.EventCount += other.EventCount
	into.Sources = append(into.Sources, other.Sources...)
	if other.Confidence > into.Confidence {
		into.Confidence = other.Confidence
	}
	if other.LastSeen.After(into.LastSeen) {
		into.LastSeen = other.LastSeen
	}
}
