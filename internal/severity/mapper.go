// Package severity implements the Severity Mapper: translation of a
// vendor's free-text severity label onto the canonical scale every
// downstream component operates over.
package severity

import (
	"strings"

	"github.com/iff-guardian/fusion/internal/domain"
)

// Mapper resolves a vendor label to a canonical Severity using a
// per-integration mapping, falling back to medium when nothing
// matches.
type Mapper struct {
	mapping domain.SeverityMapping
}

// New builds a Mapper over an integration's configured severityMapping.
// A nil or empty mapping is valid; every lookup then falls back to
// SeverityMedium.
func New(mapping domain.SeverityMapping) *Mapper {
	return &Mapper{mapping: mapping}
}

// Map resolves label to a canonical Severity. It walks
// domain.CanonicalSeverities in priority order and returns the first
// level whose configured label list contains label, case-insensitively.
// If nothing matches, it returns SeverityMedium.
func (m *Mapper) Map(label string) domain.Severity {
	for _, level := range domain.CanonicalSeverities {
		for _, candidate := range m.mapping[level] {
			if strings.EqualFold(candidate, label) {
				return level
			}
		}
	}
	return domain.SeverityMedium
}
