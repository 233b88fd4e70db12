// Package dispatcher implements the Action Dispatcher: the component a
// correlation rule's actions[] drive once a threat has been
// synthesized. It resolves a Ticketable adapter through
// the Integration Registry the same way the Sync Orchestrator resolves
// the adapter it syncs, and hands off alerts and playbook
// invocations to small, independently swappable sinks so the
// correlation engine never imports a vendor SDK directly.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/domain"
	fusionerrors "github.com/iff-guardian/fusion/internal/errors"
	"github.com/iff-guardian/fusion/pkg/logger"
	"github.com/iff-guardian/fusion/pkg/metrics"
)

// severityToPriority is the fixed ticket priority table applied to
// every create-ticket action, regardless of which ticketing platform
// serves it.
var severityToPriority = map[domain.Severity]string{
	domain.SeverityCritical: "Highest",
	domain.SeverityHigh:     "High",
	domain.SeverityMedium:   "Medium",
	domain.SeverityLow:      "Low",
	domain.SeverityInfo:     "Lowest",
}

// AdapterResolver is the subset of *registry.Registry the dispatcher
// needs to reach a ticketing adapter.
type AdapterResolver interface {
	GetAdapter(ctx context.Context, id string) (adapter.Adapter, error)
}

// Store is the subset of *database.Repository the dispatcher writes
// through. Kept as an interface here so action execution can be tested
// against a fake without a running Postgres.
type Store interface {
	ListIntegrations(ctx context.Context) ([]*domain.Integration, error)
	CreateTicket(ctx context.Context, t *domain.Ticket) error
	CreateTicketMapping(ctx context.Context, m *domain.TicketMapping) error
	UpdateThreat(ctx context.Context, id string, fields map[string]any) error
}

// AlertSink delivers a send-alert action's payload to an external
// channel. Implemented by KafkaAlertSink; a Dispatcher with no sink
// configured falls back to logging the alert.
type AlertSink interface {
	SendAlert(ctx context.Context, threat *domain.UnifiedThreat, parameters map[string]any) error
}

// PlaybookInvoker triggers an external SOAR playbook run for an
// execute-playbook action. Implemented by *JWTPlaybookInvoker.
type PlaybookInvoker interface {
	Invoke(ctx context.Context, playbookID string, threat *domain.UnifiedThreat, parameters map[string]any) error
}

// Dispatcher executes the side effects a correlation rule's actions
// list names. It implements correlation.ActionExecutor.
type Dispatcher struct {
	registry  AdapterResolver
	repo      Store
	alerts    AlertSink
	playbooks PlaybookInvoker
	metrics   *metrics.Collector
	log       logger.Logger
}

// New builds a Dispatcher. alerts and playbooks may be nil: a nil
// AlertSink logs alerts instead of publishing them, a nil
// PlaybookInvoker fails execute-playbook actions with a recoverable
// error.
func New(reg AdapterResolver, repo Store, alerts AlertSink, playbooks PlaybookInvoker, m *metrics.Collector, log logger.Logger) *Dispatcher {
	return &Dispatcher{registry: reg, repo: repo, alerts: alerts, playbooks: playbooks, metrics: m, log: log}
}

// Execute runs one rule action against threat. A failure here is
// logged by the caller and never aborts the rule's remaining actions
// or other rules' dispatch, so Execute itself never panics and always
// returns a FusionError the caller can classify.
func (d *Dispatcher) Execute(ctx context.Context, action domain.Action, threat *domain.UnifiedThreat) error {
	switch action.Type {
	case domain.ActionCreateThreat:
		return d.executeCreateThreat(ctx, threat)
	case domain.ActionUpdateThreat:
		return d.executeUpdateThreat(ctx, action, threat)
	case domain.ActionCreateTicket:
		return d.executeCreateTicket(ctx, action, threat)
	case domain.ActionSendAlert:
		return d.executeSendAlert(ctx, action, threat)
	case domain.ActionExecutePlaybook:
		return d.executeExecutePlaybook(ctx, action, threat)
	default:
		return fusionerrors.New(fusionerrors.KindValidation, fmt.Sprintf("unknown action type %q", action.Type))
	}
}

// executeCreateThreat is a no-op: the correlation engine already
// persists every synthesized threat before dispatching its rule's
// actions, so re-inserting here would collide on the threat's primary
// key. The action still exists in the rule vocabulary for rules
// authored before a threat-producing condition was known to always
// hold, and for symmetry with update-threat.
func (d *Dispatcher) executeCreateThreat(ctx context.Context, threat *domain.UnifiedThreat) error {
	d.log.Debug("create-threat action is a no-op, threat already persisted", "correlationId", threat.CorrelationID)
	return nil
}

func (d *Dispatcher) executeUpdateThreat(ctx context.Context, action domain.Action, threat *domain.UnifiedThreat) error {
	if threat.ID == "" {
		return fusionerrors.New(fusionerrors.KindValidation, "update-threat: threat has no persisted id yet")
	}
	if err := d.repo.UpdateThreat(ctx, threat.ID, action.Parameters); err != nil {
		return fusionerrors.Wrap(fusionerrors.KindDatabaseError, "update-threat", err)
	}
	return nil
}

// executeCreateTicket resolves a connected ticketing integration
// (explicitly named via parameters.integrationId, or the first
// connected ticketing integration otherwise), maps the threat's
// severity onto a ticket priority, creates the ticket against the
// adapter, and persists the local Ticket and TicketMapping rows. No
// connected ticketing integration at all is a recoverable condition:
// it is logged and the action reports success, so the rule's remaining
// actions run and nothing retries automatically.
func (d *Dispatcher) executeCreateTicket(ctx context.Context, action domain.Action, threat *domain.UnifiedThreat) error {
	integrationID, _ := action.Parameters["integrationId"].(string)

	in, err := d.resolveTicketingIntegration(ctx, integrationID)
	if err != nil {
		if integrationID == "" && fusionerrors.KindOf(err) == fusionerrors.KindNotFound {
			d.log.Warn("create-ticket skipped, no connected ticketing integration", "correlationId", threat.CorrelationID)
			return nil
		}
		return err
	}

	a, err := d.registry.GetAdapter(ctx, in.ID)
	if err != nil {
		return fusionerrors.Wrap(fusionerrors.KindIntegrationError, "create-ticket: resolve adapter", err)
	}
	ticketable, ok := a.(adapter.Ticketable)
	if !ok {
		return fusionerrors.New(fusionerrors.KindIntegrationError, fmt.Sprintf("create-ticket: integration %s is not ticketable", in.ID))
	}

	now := time.Now()
	t := &domain.Ticket{
		ID:            uuid.NewString(),
		Platform:      in.Platform,
		Title:         threat.Title,
		Description:   threat.Description,
		Priority:      priorityFor(threat.Severity),
		Severity:      threat.Severity,
		Reporter:      "fusion-engine",
		Status:        "open",
		LinkedThreats: []string{threat.ID},
		CreatedAt:     now,
		UpdatedAt:     now,
		SLAStatus:     domain.SLAStatusOnTrack,
	}

	externalID, err := ticketable.CreateTicket(ctx, t)
	if err != nil {
		return fusionerrors.Wrap(fusionerrors.KindIntegrationError, "create-ticket: vendor call", err).
			WithIntegration(in.ID, string(in.Type), in.Platform)
	}
	t.ExternalID = externalID

	if err := d.repo.CreateTicket(ctx, t); err != nil {
		return fusionerrors.Wrap(fusionerrors.KindDatabaseError, "create-ticket: persist ticket", err)
	}
	mapping := &domain.TicketMapping{
		TicketID:      t.ID,
		ExternalID:    externalID,
		IntegrationID: in.ID,
		ThreatID:      threat.ID,
	}
	if err := d.repo.CreateTicketMapping(ctx, mapping); err != nil {
		return fusionerrors.Wrap(fusionerrors.KindDatabaseError, "create-ticket: persist mapping", err)
	}

	return nil
}

func (d *Dispatcher) resolveTicketingIntegration(ctx context.Context, integrationID string) (*domain.Integration, error) {
	integrations, err := d.repo.ListIntegrations(ctx)
	if err != nil {
		return nil, fusionerrors.Wrap(fusionerrors.KindDatabaseError, "create-ticket: list integrations", err)
	}

	if integrationID != "" {
		for _, in := range integrations {
			if in.ID == integrationID {
				return in, nil
			}
		}
		return nil, fusionerrors.New(fusionerrors.KindNotFound, fmt.Sprintf("create-ticket: integration %s not found", integrationID))
	}

	for _, in := range integrations {
		if in.Type == domain.ToolTypeTicketing && in.Status == domain.IntegrationStatusConnected {
			return in, nil
		}
	}
	return nil, fusionerrors.New(fusionerrors.KindNotFound, "create-ticket: no connected ticketing integration")
}

func priorityFor(sev domain.Severity) string {
	if p, ok := severityToPriority[sev]; ok {
		return p
	}
	return severityToPriority[domain.SeverityMedium]
}

func (d *Dispatcher) executeSendAlert(ctx context.Context, action domain.Action, threat *domain.UnifiedThreat) error {
	if d.alerts == nil {
		d.log.Info("send-alert", "title", threat.Title, "severity", threat.Severity, "riskScore", threat.RiskScore)
		return nil
	}
	if err := d.alerts.SendAlert(ctx, threat, action.Parameters); err != nil {
		return fusionerrors.Wrap(fusionerrors.KindIntegrationError, "send-alert", err)
	}
	return nil
}

func (d *Dispatcher) executeExecutePlaybook(ctx context.Context, action domain.Action, threat *domain.UnifiedThreat) error {
	if d.playbooks == nil {
		return fusionerrors.New(fusionerrors.KindIntegrationError, "execute-playbook: no playbook invoker configured")
	}
	playbookID, _ := action.Parameters["playbookId"].(string)
	if playbookID == "" {
		return fusionerrors.New(fusionerrors.KindValidation, "execute-playbook: parameters.playbookId is required")
	}
	if err := d.playbooks.Invoke(ctx, playbookID, threat, action.Parameters); err != nil {
		return fusionerrors.Wrap(fusionerrors.KindIntegrationError, "execute-playbook", err)
	}
	return nil
}
