package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")

	cfg, err := config.Load("fusion-engine")
	assert.NoError(t, err)
	assert.Equal(t, "fusion-engine", cfg.ServiceName)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 3, cfg.Engine.MaxConcurrentSyncs)
	assert.Equal(t, 15, cfg.Engine.CorrelationWindowMinutes)
	assert.NotEmpty(t, cfg.Database.URL)
	assert.NotEmpty(t, cfg.Redis.URL)
}

func TestDefaultSeverityMapping_IsCopy(t *testing.T) {
	m1 := config.DefaultSeverityMapping()
	m1[domain.SeverityCritical][0] = "mutated"
	m1[domain.SeverityLow] = nil

	m2 := config.DefaultSeverityMapping()
	assert.Equal(t, "critical", m2[domain.SeverityCritical][0])
	assert.NotEmpty(t, m2[domain.SeverityLow])
}

func TestDefaultSeverityMapping_CoversEveryCanonicalLevel(t *testing.T) {
	m := config.DefaultSeverityMapping()
	for _, level := range domain.CanonicalSeverities {
		assert.NotEmpty(t, m[level], "level %s has no labels", level)
	}
}

func TestIsProductionIsDevelopment(t *testing.T) {
	cfg := &config.Config{Environment: "Production"}
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
