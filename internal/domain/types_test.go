package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleIDFromCorrelationID_StripsTickTimestamp(t *testing.T) {
	assert.Equal(t, "multi-source-critical", RuleIDFromCorrelationID("multi-source-critical-1690000000000"))
}

func TestRuleIDFromCorrelationID_NoDashReturnsInput(t *testing.T) {
	assert.Equal(t, "norule", RuleIDFromCorrelationID("norule"))
}

func TestUnifiedThreat_Field_RuleIDDerivesFromCorrelationID(t *testing.T) {
	threat := &UnifiedThreat{CorrelationID: "rule-a-123"}
	v, ok := threat.Field("ruleId")
	assert.True(t, ok)
	assert.Equal(t, "rule-a", v)
}

func TestUnifiedThreat_Field_SourceIDUsesFirstSource(t *testing.T) {
	threat := &UnifiedThreat{Sources: []ThreatSource{{SourceID: "evt-1"}, {SourceID: "evt-2"}}}
	v, ok := threat.Field("sourceId")
	assert.True(t, ok)
	assert.Equal(t, "evt-1", v)
}

func TestUnifiedThreat_Field_SourceIDMissingWhenNoSources(t *testing.T) {
	threat := &UnifiedThreat{}
	_, ok := threat.Field("sourceId")
	assert.False(t, ok)
}

func TestUnifiedThreat_Field_UnknownNameNotOK(t *testing.T) {
	threat := &UnifiedThreat{}
	_, ok := threat.Field("nonsense")
	assert.False(t, ok)
}
