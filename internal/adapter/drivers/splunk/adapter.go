// Package splunk implements the SIEM adapter for the splunk platform,
// one of the whitelisted (siem, platform) pairs in
// domain.SupportedPlatforms.
package splunk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/domain"
	fusionerrors "github.com/iff-guardian/fusion/internal/errors"
	"github.com/iff-guardian/fusion/internal/fieldmap"
	"github.com/iff-guardian/fusion/internal/severity"
)

// Adapter drives a Splunk REST search endpoint.
type Adapter struct {
	*adapter.Base

	endpoint string
	apiKey   string
	client   *http.Client
	mapper   *fieldmap.Mapper
	severity *severity.Mapper
}

// New builds a Splunk adapter. credentials must carry "apiKey".
func New(integrationID string, cfg domain.ConnectionConfig, mappings []domain.FieldMapping, sevMapping domain.SeverityMapping) (*Adapter, error) {
	apiKey, ok := cfg.Credentials["apiKey"]
	if !ok {
		return nil, fusionerrors.New(fusionerrors.KindAuthenticationFailed, "splunk: missing apiKey credential").
			WithIntegration(integrationID, string(domain.ToolTypeSIEM), "splunk")
	}

	return &Adapter{
		Base:     adapter.NewBase(integrationID, domain.ToolTypeSIEM, "splunk", 200*time.Millisecond, 10, 5, cfg.RetryAttempts, cfg.RetryDelay),
		endpoint: cfg.Endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		mapper:   fieldmap.New(mappings, nil),
		severity: severity.New(sevMapping),
	}, nil
}

// Connect verifies the endpoint and API key are reachable.
func (a *Adapter) Connect(ctx context.Context) error {
	a.SetState(adapter.StateConnecting)
	if !a.TestConnection(ctx) {
		a.SetState(adapter.StateError)
		a.SetStatus(adapter.StatusError)
		err := fusionerrors.New(fusionerrors.KindConnectionRefused, "splunk: connect failed").
			WithIntegration(a.IntegrationID, string(domain.ToolTypeSIEM), "splunk")
		a.Emit(domain.EventIntegrationError, map[string]any{"error": err.Error()})
		return err
	}
	a.SetState(adapter.StateConnected)
	a.SetStatus(adapter.StatusConnected)
	a.Emit(domain.EventIntegrationConnected, nil)
	return nil
}

// TestConnection pings Splunk's server info endpoint.
func (a *Adapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/services/server/info", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Sync runs a saved search against filter and emits one threat.detected
// event per normalized result.
func (a *Adapter) Sync(ctx context.Context, filter map[string]any) error {
	a.SetState(adapter.StateSyncing)
	a.Emit(domain.EventSyncStarted, map[string]any{"filter": filter})

	if err := a.WaitIntegrationRate(ctx); err != nil {
		return err
	}
	a.WaitOperation(ctx, "sync")

	var raw []map[string]any
	err := a.Retry(ctx, classify, func() error {
		var fetchErr error
		raw, fetchErr = a.search(ctx, filter)
		return fetchErr
	})
	if err != nil {
		a.SetState(adapter.StateConnected)
		a.Emit(domain.EventSyncFailed, map[string]any{"error": err.Error()})
		return err
	}

	count := 0
	for _, r := range raw {
		mapped, mapErr := a.mapper.Apply(r)
		if mapErr != nil {
			continue
		}
		event := normalize(a.IntegrationID, mapped, a.severity)
		a.Emit(domain.EventThreatDetected, map[string]any{"event": event})
		count++
	}

	a.SetState(adapter.StateConnected)
	a.Emit(domain.EventSyncCompleted, map[string]any{"count": count})
	return nil
}

func (a *Adapter) search(ctx context.Context, filter map[string]any) ([]map[string]any, error) {
	body, err := json.Marshal(filter)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/services/search/jobs/export", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("splunk: server error %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("splunk: unexpected status %d", resp.StatusCode)
	}

	var results []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}
	return results, nil
}

// Search implements adapter.SIEMSearchable.
func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]domain.NormalizedEvent, error) {
	a.WaitOperation(ctx, "search")

	raw, err := a.search(ctx, map[string]any{"query": query, "limit": limit})
	if err != nil {
		return nil, err
	}

	out := make([]domain.NormalizedEvent, 0, len(raw))
	for _, r := range raw {
		mapped, mapErr := a.mapper.Apply(r)
		if mapErr != nil {
			continue
		}
		out = append(out, normalize(a.IntegrationID, mapped, a.severity))
	}
	return out, nil
}

// ReceiveWebhook implements adapter.WebhookReceivable: pushed alert
// payloads run through the same mapping pipeline Sync pulls through,
// so a Splunk HEC-style forwarder can feed the engine between
// scheduled syncs. Accepts a single object or an array of objects.
func (a *Adapter) ReceiveWebhook(ctx context.Context, payload []byte) error {
	var raw []map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		var single map[string]any
		if err := json.Unmarshal(payload, &single); err != nil {
			return fmt.Errorf("splunk: undecodable webhook payload: %w", err)
		}
		raw = []map[string]any{single}
	}

	for _, r := range raw {
		mapped, mapErr := a.mapper.Apply(r)
		if mapErr != nil {
			continue
		}
		a.Emit(domain.EventThreatDetected, map[string]any{"event": normalize(a.IntegrationID, mapped, a.severity)})
	}
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

func normalize(integrationID string, mapped map[string]any, sevMapper *severity.Mapper) domain.NormalizedEvent {
	title, _ := mapped["title"].(string)
	description, _ := mapped["description"].(string)
	sevLabel, _ := mapped["severity"].(string)

	return domain.NormalizedEvent{
		ID:                  uuid.NewString(),
		Timestamp:           time.Now(),
		SourceType:          domain.ToolTypeSIEM,
		SourceIntegrationID: integrationID,
		EventType:           "siem.alert",
		Severity:            sevMapper.Map(sevLabel),
		Title:               title,
		Description:         description,
		Status:              domain.EventStatusNew,
		Extra:               mapped,
	}
}

// classify maps a raw adapter error to a retry class the Base's
// backoff loop understands.
func classify(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "server error"):
		return "5xx"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection refused"):
		return "connection-refused"
	default:
		return ""
	}
}
