package severity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/internal/severity"
)

func TestMapper_FirstMatchCaseInsensitive(t *testing.T) {
	mapping := domain.SeverityMapping{
		domain.SeverityCritical: {"Crit", "Sev1"},
		domain.SeverityHigh:     {"High", "Sev2"},
	}
	m := severity.New(mapping)

	assert.Equal(t, domain.SeverityCritical, m.Map("crit"))
	assert.Equal(t, domain.SeverityCritical, m.Map("SEV1"))
	assert.Equal(t, domain.SeverityHigh, m.Map("high"))
}

func TestMapper_UnmatchedDefaultsToMedium(t *testing.T) {
	m := severity.New(domain.SeverityMapping{domain.SeverityCritical: {"crit"}})
	assert.Equal(t, domain.SeverityMedium, m.Map("unknown-label"))
}

func TestMapper_NilMappingDefaultsToMedium(t *testing.T) {
	m := severity.New(nil)
	assert.Equal(t, domain.SeverityMedium, m.Map("anything"))
}

func TestMapper_HigherPriorityWinsWhenLabelAppearsTwice(t *testing.T) {
	mapping := domain.SeverityMapping{
		domain.SeverityCritical: {"dup"},
		domain.SeverityLow:      {"dup"},
	}
	m := severity.New(mapping)
	assert.Equal(t, domain.SeverityCritical, m.Map("dup"))
}
