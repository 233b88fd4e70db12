// Package jira implements the ticketing adapter for the jira platform.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/domain"
	fusionerrors "github.com/iff-guardian/fusion/internal/errors"
)

// severityToPriority maps a canonical Severity onto Jira's fixed
// priority names.
var severityToPriority = map[domain.Severity]string{
	domain.SeverityCritical: "Highest",
	domain.SeverityHigh:     "High",
	domain.SeverityMedium:   "Medium",
	domain.SeverityLow:      "Low",
	domain.SeverityInfo:     "Lowest",
}

// Adapter drives the Jira REST API.
type Adapter struct {
	*adapter.Base

	endpoint string
	email    string
	apiToken string
	client   *http.Client
}

// New builds a Jira adapter. credentials must carry "email" and
// "apiToken".
func New(integrationID string, cfg domain.ConnectionConfig) (*Adapter, error) {
	email, ok1 := cfg.Credentials["email"]
	token, ok2 := cfg.Credentials["apiToken"]
	if !ok1 || !ok2 {
		return nil, fusionerrors.New(fusionerrors.KindAuthenticationFailed, "jira: missing email/apiToken credentials").
			WithIntegration(integrationID, string(domain.ToolTypeTicketing), "jira")
	}

	return &Adapter{
		Base:     adapter.NewBase(integrationID, domain.ToolTypeTicketing, "jira", 500*time.Millisecond, 5, 5, cfg.RetryAttempts, cfg.RetryDelay),
		endpoint: cfg.Endpoint,
		email:    email,
		apiToken: token,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (a *Adapter) do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(a.email, a.apiToken)
	req.Header.Set("Content-Type", "application/json")
	return a.client.Do(req)
}

// Connect verifies credentials against the current-user endpoint.
func (a *Adapter) Connect(ctx context.Context) error {
	a.SetState(adapter.StateConnecting)
	if !a.TestConnection(ctx) {
		a.SetState(adapter.StateError)
		a.SetStatus(adapter.StatusError)
		err := fusionerrors.New(fusionerrors.KindConnectionRefused, "jira: connect failed").
			WithIntegration(a.IntegrationID, string(domain.ToolTypeTicketing), "jira")
		a.Emit(domain.EventIntegrationError, map[string]any{"error": err.Error()})
		return err
	}
	a.SetState(adapter.StateConnected)
	a.SetStatus(adapter.StatusConnected)
	a.Emit(domain.EventIntegrationConnected, nil)
	return nil
}

// TestConnection calls Jira's myself endpoint.
func (a *Adapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/rest/api/3/myself", nil)
	if err != nil {
		return false
	}
	resp, err := a.do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Sync is a no-op for ticketing integrations: it emits sync.started and
// sync.completed with a count of 0 and pulls no ticket state. This
// adapter does not implement adapter.WebhookReceivable, so the webhook
// receiver (internal/webhook) does not accept its payloads either.
func (a *Adapter) Sync(ctx context.Context, filter map[string]any) error {
	a.Emit(domain.EventSyncStarted, map[string]any{"filter": filter})
	a.Emit(domain.EventSyncCompleted, map[string]any{"count": 0})
	return nil
}

// Disconnect tears down the adapter's connection state.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.SetState(adapter.StateDisconnecting)
	a.SetState(adapter.StateIdle)
	a.SetStatus(adapter.StatusDisconnected)
	a.Emit(domain.EventIntegrationDisconnected, nil)
	return nil
}

// CreateTicket implements adapter.Ticketable.
func (a *Adapter) CreateTicket(ctx context.Context, t *domain.Ticket) (string, error) {
	a.WaitOperation(ctx, "createTicket")

	payload := map[string]any{
		"fields": map[string]any{
			"summary":     t.Title,
			"description": t.Description,
			"priority":    map[string]string{"name": priorityFor(t.Severity)},
			"issuetype":   map[string]string{"name": "Bug"},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/rest/api/3/issue", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	resp, err := a.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("jira: create issue failed with status %d", resp.StatusCode)
	}

	var out struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	a.Emit(domain.EventTicketCreated, map[string]any{"externalId": out.Key})
	return out.Key, nil
}

// UpdateTicket implements adapter.Ticketable.
func (a *Adapter) UpdateTicket(ctx context.Context, externalID string, fields map[string]any) error {
	a.WaitOperation(ctx, "updateTicket")

	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.endpoint+"/rest/api/3/issue/"+externalID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := a.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("jira: update issue failed with status %d", resp.StatusCode)
	}
	a.Emit(domain.EventTicketUpdated, map[string]any{"externalId": externalID})
	return nil
}

// AddComment implements adapter.Ticketable.
func (a *Adapter) AddComment(ctx context.Context, externalID, comment string) error {
	a.WaitOperation(ctx, "addComment")

	body, err := json.Marshal(map[string]any{"body": comment})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/rest/api/3/issue/"+externalID+"/comment", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := a.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("jira: add comment failed with status %d", resp.StatusCode)
	}
	return nil
}

// TransitionTicket implements adapter.Ticketable.
func (a *Adapter) TransitionTicket(ctx context.Context, externalID, toStatus string) error {
	a.WaitOperation(ctx, "transitionTicket")

	body, err := json.Marshal(map[string]any{"transition": map[string]string{"id": toStatus}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/rest/api/3/issue/"+externalID+"/transitions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := a.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("jira: transition failed with status %d", resp.StatusCode)
	}
	return nil
}

// LinkTickets implements adapter.Ticketable.
func (a *Adapter) LinkTickets(ctx context.Context, externalID, otherExternalID, relation string) error {
	a.WaitOperation(ctx, "linkTickets")

	payload := map[string]any{
		"type":         map[string]string{"name": relation},
		"inwardIssue":  map[string]string{"key": externalID},
		"outwardIssue": map[string]string{"key": otherExternalID},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/rest/api/3/issueLink", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := a.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("jira: link issues failed with status %d", resp.StatusCode)
	}
	return nil
}

func priorityFor(sev domain.Severity) string {
	if p, ok := severityToPriority[sev]; ok {
		return p
	}
	return "Medium"
}
