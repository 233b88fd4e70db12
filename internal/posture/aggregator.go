// Package posture implements the Posture Aggregator: the read-only
// dashboard surface that rolls the persistent store and the sync
// orchestrator's per-integration counters up into top threats, top
// vulnerabilities, critical findings, trend histograms,
// per-integration health, and per-tool-type coverage — plus the live
// threat stream in hub.go.
package posture

import (
	"context"
	"time"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/pkg/database"
	"github.com/iff-guardian/fusion/pkg/logger"
	"github.com/iff-guardian/fusion/pkg/redis"
)

// IntegrationHealth is one integration's row in the health view.
type IntegrationHealth struct {
	IntegrationID  string                   `json:"integrationId"`
	Name           string                   `json:"name"`
	ToolType       domain.ToolType          `json:"toolType"`
	Status         domain.IntegrationStatus `json:"status"`
	LastSync       *time.Time               `json:"lastSync,omitempty"`
	SyncErrors     int64                    `json:"syncErrors"`
	DataLagMinutes float64                  `json:"dataLagMinutes"`
	Availability   float64                  `json:"availability"`
}

// Snapshot is the full dashboard read served by the Posture Aggregator.
type Snapshot struct {
	TopThreats         []*domain.UnifiedThreat             `json:"topThreats"`
	TopVulnerabilities []*domain.Vulnerability              `json:"topVulnerabilities"`
	CriticalFindings   []*domain.CloudSecurityFinding        `json:"criticalFindings"`
	ThreatTrend        map[string]database.DailyStat        `json:"threatTrend"`
	VulnerabilityTrend map[string]database.DailyStat        `json:"vulnerabilityTrend"`
	IntegrationHealth  []IntegrationHealth                  `json:"integrationHealth"`
	ToolTypeCoverage   map[string]int                       `json:"toolTypeCoverage"`
	OverallRiskScore   float64                              `json:"overallRiskScore"`
	GeneratedAt        time.Time                            `json:"generatedAt"`
}

// Aggregator reads the persistent store and the orchestrator's Redis
// counters to build a Snapshot on demand. It holds no state of its own
// beyond its collaborators, so it's safe for concurrent use.
type Aggregator struct {
	repo  *database.Repository
	redis *redis.Client
	log   logger.Logger
}

// New builds an Aggregator.
func New(repo *database.Repository, r *redis.Client, log logger.Logger) *Aggregator {
	return &Aggregator{repo: repo, redis: r, log: log}
}

// Snapshot assembles the dashboard view. topN bounds the threat and
// vulnerability lists; trendDays bounds the daily histograms.
func (a *Aggregator) Snapshot(ctx context.Context, topN, trendDays int) (*Snapshot, error) {
	threats, err := a.repo.TopThreatsByRisk(ctx, topN)
	if err != nil {
		return nil, err
	}
	vulns, err := a.repo.TopVulnerabilitiesByRisk(ctx, topN)
	if err != nil {
		return nil, err
	}
	findings, err := a.repo.CriticalFindings(ctx, topN)
	if err != nil {
		return nil, err
	}
	threatTrend, err := a.repo.ThreatDailyStats(ctx, trendDays)
	if err != nil {
		return nil, err
	}
	vulnTrend, err := a.repo.VulnerabilityDailyStats(ctx, trendDays)
	if err != nil {
		return nil, err
	}
	connectedByType, err := a.repo.CountConnectedIntegrationsByToolType(ctx)
	if err != nil {
		return nil, err
	}
	coverage := toolTypeCoverage(connectedByType)

	integrations, err := a.repo.ListIntegrations(ctx)
	if err != nil {
		return nil, err
	}
	health := make([]IntegrationHealth, 0, len(integrations))
	for _, in := range integrations {
		health = append(health, a.integrationHealth(ctx, in))
	}

	return &Snapshot{
		TopThreats:         threats,
		TopVulnerabilities: vulns,
		CriticalFindings:   findings,
		ThreatTrend:        threatTrend,
		VulnerabilityTrend: vulnTrend,
		IntegrationHealth:  health,
		ToolTypeCoverage:   coverage,
		OverallRiskScore:   overallRiskScore(threats, findings),
		GeneratedAt:        time.Now(),
	}, nil
}

// integrationHealth reads one integration's Redis-tracked counters.
// A counter read failure degrades to zero rather than failing the
// whole snapshot: health is best-effort telemetry, not a source of
// truth.
func (a *Aggregator) integrationHealth(ctx context.Context, in *domain.Integration) IntegrationHealth {
	h := IntegrationHealth{
		IntegrationID: in.ID,
		Name:          in.Name,
		ToolType:      in.Type,
		Status:        in.Status,
		LastSync:      in.LastSync,
	}

	if a.redis != nil {
		if n, err := a.redis.GetIntegrationMetric(ctx, in.ID, "sync-errors"); err == nil {
			h.SyncErrors = n
		} else {
			a.log.Warn("read sync-errors metric failed", "integrationId", in.ID, "error", err)
		}
	}

	if in.LastSync != nil {
		h.DataLagMinutes = time.Since(*in.LastSync).Minutes()
	}

	h.Availability = availability(in.Status, h.SyncErrors)
	return h
}

// toolTypeCoverage maps each known tool type to 100 if at least one
// connected integration of that type exists, else 0, per spec.
func toolTypeCoverage(connectedByType map[string]int) map[string]int {
	knownTypes := []domain.ToolType{
		domain.ToolTypeSIEM, domain.ToolTypeVulnerabilityScanner,
		domain.ToolTypeCloudSecurity, domain.ToolTypeTicketing,
	}
	out := make(map[string]int, len(knownTypes))
	for _, t := range knownTypes {
		if connectedByType[string(t)] > 0 {
			out[string(t)] = 100
		} else {
			out[string(t)] = 0
		}
	}
	return out
}

// availability is a bounded heuristic: a connected integration starts
// at 100% and loses 5 points per recorded sync error, never going
// below 0; anything not connected is unavailable.
func availability(status domain.IntegrationStatus, syncErrors int64) float64 {
	if status != domain.IntegrationStatusConnected {
		return 0
	}
	score := 100.0 - float64(syncErrors)*5
	if score < 0 {
		return 0
	}
	return score
}

// overallRiskScore is a bounded additive rollup: the single highest
// threat risk score observed, plus 5 points per critical/high
// non-compliant finding, capped at 100 so it stays comparable across
// snapshots regardless of how many findings exist.
func overallRiskScore(threats []*domain.UnifiedThreat, findings []*domain.CloudSecurityFinding) float64 {
	var base float64
	for _, t := range threats {
		if t.RiskScore > base {
			base = t.RiskScore
		}
	}
	score := base + float64(len(findings))*5
	if score > 100 {
		return 100
	}
	return score
}
