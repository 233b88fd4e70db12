// Package adapter defines the uniform contract every vendor driver
// implements: connect/testConnection/sync/disconnect plus a closed
// set of capability interfaces for tool-specific primitives, favoring
// type assertions over a small interface set instead of
// dynamic-dispatch-over-subclasses.
package adapter

import (
	"context"
	"fmt"

	"github.com/iff-guardian/fusion/internal/domain"
)

// State is the adapter lifecycle state machine.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateSyncing      State = "syncing"
	StateError        State = "error"
	StateDisconnecting State = "disconnecting"
)

// Status is what getStatus() reports to callers outside the adapter.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Adapter is the universal contract every (toolType, platform) driver
// implements.
type Adapter interface {
	// Connect establishes the vendor connection, transitioning
	// idle -> connecting -> connected|error.
	Connect(ctx context.Context) error
	// TestConnection reports reachability without mutating adapter
	// state; it never returns past the boundary as an error for
	// ordinary unreachability, only false.
	TestConnection(ctx context.Context) bool
	// Sync pulls data matching filter, emitting events onto the
	// adapter's event channel (sync.started, threat.detected per
	// normalized event, sync.completed|sync.failed).
	Sync(ctx context.Context, filter map[string]any) error
	// Disconnect releases the vendor connection, transitioning
	// connected -> disconnecting -> idle.
	Disconnect(ctx context.Context) error
	// GetStatus reports the adapter's current externally-visible status.
	GetStatus() Status
	// Events returns the channel adapters publish domain.Event onto.
	Events() <-chan domain.Event
}

// Scannable is implemented by vulnerability-scanner adapters.
type Scannable interface {
	CreateScan(ctx context.Context, params map[string]any) (string, error)
	LaunchScan(ctx context.Context, scanID string) error
	GetScanStatus(ctx context.Context, scanID string) (string, error)
	ExportScan(ctx context.Context, scanID string) ([]domain.Vulnerability, error)
}

// Ticketable is implemented by ticketing-platform adapters.
type Ticketable interface {
	CreateTicket(ctx context.Context, t *domain.Ticket) (string, error)
	UpdateTicket(ctx context.Context, externalID string, fields map[string]any) error
	AddComment(ctx context.Context, externalID, comment string) error
	TransitionTicket(ctx context.Context, externalID, toStatus string) error
	LinkTickets(ctx context.Context, externalID, otherExternalID, relation string) error
}

// SIEMSearchable is implemented by SIEM adapters that support ad hoc
// search beyond the standard sync pull.
type SIEMSearchable interface {
	Search(ctx context.Context, query string, limit int) ([]domain.NormalizedEvent, error)
}

// Remediable is implemented by adapters that can execute a remediation
// action directly (e.g. cloud security posture auto-fix), distinct
// from the Action Dispatcher's execute-playbook call to an external
// orchestrator.
type Remediable interface {
	Remediate(ctx context.Context, findingID string, parameters map[string]any) error
}

// WebhookReceivable is implemented by adapters for tools that prefer
// to push data rather than be polled (e.g. cloud-security services
// with event-driven notifications). internal/webhook dispatches an
// inbound vendor payload to this method when present instead of
// waiting for the next scheduled Sync.
type WebhookReceivable interface {
	ReceiveWebhook(ctx context.Context, payload []byte) error
}

// UnsupportedIntegrationError is returned by a Factory when asked to
// build an adapter for a (type, platform) pair with no registered
// constructor.
type UnsupportedIntegrationError struct {
	ToolType domain.ToolType
	Platform string
}

func (e *UnsupportedIntegrationError) Error() string {
	return fmt.Sprintf("adapter: unsupported integration (%s, %s)", e.ToolType, e.Platform)
}
