package fieldmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/internal/fieldmap"
)

func TestMapper_DirectAndDottedPaths(t *testing.T) {
	rules := []domain.FieldMapping{
		{SourceField: "event.name", TargetField: "title", Transform: "direct"},
		{SourceField: "event.network.src", TargetField: "sourceIP"},
	}
	m := fieldmap.New(rules, nil)

	source := map[string]any{
		"event": map[string]any{
			"name":    "Suspicious login",
			"network": map[string]any{"src": "10.0.0.5"},
		},
	}

	out, err := m.Apply(source)
	require.NoError(t, err)
	assert.Equal(t, "Suspicious login", out["title"])
	assert.Equal(t, "10.0.0.5", out["sourceIP"])
}

func TestMapper_UppercaseLowercaseTransforms(t *testing.T) {
	rules := []domain.FieldMapping{
		{SourceField: "sev", TargetField: "severityLabel", Transform: "uppercase"},
		{SourceField: "user", TargetField: "userLower", Transform: "lowercase"},
	}
	m := fieldmap.New(rules, nil)

	out, err := m.Apply(map[string]any{"sev": "high", "user": "ADMIN"})
	require.NoError(t, err)
	assert.Equal(t, "HIGH", out["severityLabel"])
	assert.Equal(t, "admin", out["userLower"])
}

func TestMapper_RequiredFieldMissing(t *testing.T) {
	rules := []domain.FieldMapping{
		{SourceField: "missing", TargetField: "x", Required: true},
	}
	m := fieldmap.New(rules, nil)

	_, err := m.Apply(map[string]any{})
	var reqErr *fieldmap.RequiredFieldMissingError
	assert.ErrorAs(t, err, &reqErr)
}

func TestMapper_DefaultValueAppliedWhenMissing(t *testing.T) {
	rules := []domain.FieldMapping{
		{SourceField: "missing", TargetField: "category", DefaultValue: "uncategorized"},
	}
	m := fieldmap.New(rules, nil)

	out, err := m.Apply(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "uncategorized", out["category"])
}

func TestMapper_CustomTransform(t *testing.T) {
	rules := []domain.FieldMapping{
		{SourceField: "raw", TargetField: "doubled", Transform: "double"},
	}
	customs := map[string]fieldmap.TransformFunc{
		"double": func(v any) (any, error) {
			return v.(int) * 2, nil
		},
	}
	m := fieldmap.New(rules, customs)

	out, err := m.Apply(map[string]any{"raw": 21})
	require.NoError(t, err)
	assert.Equal(t, 42, out["doubled"])
}

func TestMapper_NestedTargetPath(t *testing.T) {
	rules := []domain.FieldMapping{
		{SourceField: "src", TargetField: "network.sourceIP"},
	}
	m := fieldmap.New(rules, nil)

	out, err := m.Apply(map[string]any{"src": "1.2.3.4"})
	require.NoError(t, err)
	network, ok := out["network"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4", network["sourceIP"])
}
