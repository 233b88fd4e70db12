package correlation

import (
	"fmt"
	"time"

	"github.com/iff-guardian/fusion/internal/domain"
)

// synthesize builds the UnifiedThreat a rule produces from its
// surviving events, applying the confidence/riskScore/riskFactors
// formulas to the matched window.
func synthesize(rule domain.CorrelationRule, events []*domain.NormalizedEvent, tick time.Time) *domain.UnifiedThreat {
	if len(events) == 0 {
		return nil
	}

	sourceTypes := make(map[domain.ToolType]struct{})
	var recent int
	var criticalAssetEvents, exploitableEvents int
	assetSet := make(map[string]struct{})
	assets := make(map[string]struct{})
	users := make(map[string]struct{})
	firstSeen, lastSeen := events[0].Timestamp, events[0].Timestamp
	sources := make([]domain.ThreatSource, 0, len(events))
	evidence := make([]string, 0, len(events))

	cutoff := tick.Add(-time.Hour)
	for _, e := range events {
		sourceTypes[e.SourceType] = struct{}{}
		if e.Timestamp.After(cutoff) || e.Timestamp.Equal(cutoff) {
			recent++
		}
		if e.Timestamp.Before(firstSeen) {
			firstSeen = e.Timestamp
		}
		if e.Timestamp.After(lastSeen) {
			lastSeen = e.Timestamp
		}

		if toString(fieldValue(e, "assetCriticality")) == string(domain.SeverityCritical) {
			criticalAssetEvents++
		}
		if b, ok := fieldValue(e, "exploitAvailable").(bool); ok && b {
			exploitableEvents++
		}

		for _, f := range []string{"assetId", "hostname", "ipAddress", "resourceId"} {
			if v := toString(fieldValue(e, f)); v != "" {
				assets[v] = struct{}{}
				assetSet[v] = struct{}{}
			}
		}
		for _, f := range []string{"user", "username", "userId"} {
			if v := toString(fieldValue(e, f)); v != "" {
				users[v] = struct{}{}
			}
		}

		sources = append(sources, domain.ThreatSource{
			ToolType:      e.SourceType,
			IntegrationID: e.SourceIntegrationID,
			SourceID:      e.ID,
			Timestamp:     e.Timestamp,
		})
		evidence = append(evidence, e.Title)
	}

	confidence := 50.0 + minF(float64(len(events))*5, 30) + float64(len(sourceTypes))*10 + (float64(recent)/float64(len(events)))*20
	confidence = minF(confidence, 100)

	riskScore := float64(domain.SeverityScore[rule.Severity]) + minF(float64(len(events))*2, 30) + 5*float64(criticalAssetEvents) + 10*float64(exploitableEvents)
	riskScore = minF(riskScore, 100)

	var riskFactors []domain.RiskFactor
	if criticalAssetEvents > 0 {
		riskFactors = append(riskFactors, domain.RiskFactor{Factor: "Critical Assets Affected", Weight: 30, Description: "one or more events affected a critical asset"})
	}
	if exploitableEvents > 0 {
		riskFactors = append(riskFactors, domain.RiskFactor{Factor: "Exploits Available", Weight: 25, Description: "one or more events reference a known exploit"})
	}
	if lastSeen.Sub(firstSeen) > 24*time.Hour {
		riskFactors = append(riskFactors, domain.RiskFactor{Factor: "Persistent Threat", Weight: 20, Description: "activity spans more than 24 hours"})
	}
	if len(assetSet) > 5 {
		riskFactors = append(riskFactors, domain.RiskFactor{Factor: "Lateral Movement", Weight: 25, Description: "more than five distinct assets involved"})
	}

	return &domain.UnifiedThreat{
		Title:          rule.Name,
		Description:    fmt.Sprintf("rule %q matched %d events", rule.Name, len(events)),
		Severity:       rule.Severity,
		Confidence:     confidence,
		Sources:        sources,
		FirstSeen:      firstSeen,
		LastSeen:       lastSeen,
		EventCount:     len(events),
		AffectedAssets: keys(assets),
		AffectedUsers:  keys(users),
		Status:         domain.ThreatStatusActive,
		Evidence:       evidence,
		RiskScore:      riskScore,
		RiskFactors:    riskFactors,
		CorrelationID:  fmt.Sprintf("%s-%d", rule.ID, tick.UnixMilli()),
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
