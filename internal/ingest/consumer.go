// Package ingest drains the adapter event bus into the persistent
// store: normalized events, vulnerabilities and cloud findings land in
// their tables here, and the side-store counters the Posture
// Aggregator reads get bumped here. Adapters never write to the store
// themselves; this consumer is the single path from the event channel
// into the rows the correlation engine reads on tick.
package ingest

import (
	"context"
	"time"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/pkg/logger"
)

// Store is the subset of *database.Repository the consumer writes
// through. Kept as an interface here so the consumer can be tested
// against a fake without a running Postgres.
type Store interface {
	InsertSecurityEvent(ctx context.Context, e *domain.NormalizedEvent) error
	UpsertVulnerability(ctx context.Context, v *domain.Vulnerability) error
	UpsertCloudSecurityFinding(ctx context.Context, f *domain.CloudSecurityFinding) error
	UpdateIntegrationStatus(ctx context.Context, id string, status domain.IntegrationStatus, connectedAt *time.Time) error
}

// Counters is the subset of *redis.Client the consumer bumps. May be
// nil; counters are best-effort telemetry.
type Counters interface {
	IncrementIntegrationMetric(ctx context.Context, integrationID, metric string) (int64, error)
}

// Consumer drains one bus subscription.
type Consumer struct {
	store    Store
	counters Counters
	log      logger.Logger
}

// New builds a Consumer.
func New(store Store, counters Counters, log logger.Logger) *Consumer {
	return &Consumer{store: store, counters: counters, log: log}
}

// Run consumes events until ctx is canceled or events closes. A failed
// write is logged and dropped rather than retried: the next scheduled
// sync re-pulls whatever a dropped write lost.
func (c *Consumer) Run(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, ev domain.Event) {
	switch ev.Kind {
	case domain.EventThreatDetected:
		e, ok := asNormalizedEvent(ev.Payload["event"])
		if !ok {
			c.log.Warn("threat.detected payload carried no event", "integrationId", ev.IntegrationID)
			return
		}
		if e.SourceIntegrationID == "" {
			e.SourceIntegrationID = ev.IntegrationID
		}
		if err := c.store.InsertSecurityEvent(ctx, e); err != nil {
			c.log.Error("persist normalized event failed", "integrationId", ev.IntegrationID, "eventId", e.ID, "error", err)
		}

	case domain.EventVulnerabilityDiscovered:
		v, ok := asVulnerability(ev.Payload["vulnerability"])
		if !ok {
			c.log.Warn("vulnerability.discovered payload carried no vulnerability", "integrationId", ev.IntegrationID)
			return
		}
		if err := c.store.UpsertVulnerability(ctx, v); err != nil {
			c.log.Error("persist vulnerability failed", "integrationId", ev.IntegrationID, "vulnerabilityId", v.ID, "error", err)
		}

	case domain.EventFindingCreated:
		f, ok := asFinding(ev.Payload["finding"])
		if !ok {
			c.log.Warn("finding.created payload carried no finding", "integrationId", ev.IntegrationID)
			return
		}
		if err := c.store.UpsertCloudSecurityFinding(ctx, f); err != nil {
			c.log.Error("persist cloud finding failed", "integrationId", ev.IntegrationID, "findingId", f.ID, "error", err)
		}

	case domain.EventSyncCompleted:
		c.bump(ctx, ev.IntegrationID, "syncs")

	case domain.EventSyncFailed:
		c.bump(ctx, ev.IntegrationID, "sync-errors")

	case domain.EventIntegrationError:
		if err := c.store.UpdateIntegrationStatus(ctx, ev.IntegrationID, domain.IntegrationStatusError, nil); err != nil {
			c.log.Error("mark integration errored failed", "integrationId", ev.IntegrationID, "error", err)
		}
	}
}

func (c *Consumer) bump(ctx context.Context, integrationID, metric string) {
	if c.counters == nil {
		return
	}
	if _, err := c.counters.IncrementIntegrationMetric(ctx, integrationID, metric); err != nil {
		c.log.Warn("increment integration metric failed", "integrationId", integrationID, "metric", metric, "error", err)
	}
}

// Payload records may arrive by value or by pointer; both shapes are
// accepted.
func asNormalizedEvent(v any) (*domain.NormalizedEvent, bool) {
	switch e := v.(type) {
	case domain.NormalizedEvent:
		return &e, true
	case *domain.NormalizedEvent:
		return e, e != nil
	}
	return nil, false
}

func asVulnerability(v any) (*domain.Vulnerability, bool) {
	switch e := v.(type) {
	case domain.Vulnerability:
		return &e, true
	case *domain.Vulnerability:
		return e, e != nil
	}
	return nil, false
}

func asFinding(v any) (*domain.CloudSecurityFinding, bool) {
	switch e := v.(type) {
	case domain.CloudSecurityFinding:
		return &e, true
	case *domain.CloudSecurityFinding:
		return e, e != nil
	}
	return nil, false
}
