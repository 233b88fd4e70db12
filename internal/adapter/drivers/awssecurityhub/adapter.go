// Package awssecurityhub implements the cloud-security adapter for the
// aws platform, pulling findings from AWS Security Hub.
package awssecurityhub

import (
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
	"github.com/iff-guardian/fusion/internal/severity"
)

// Adapter drives an AWS Security Hub findings feed over the region's
// HTTPS endpoint configured in ConnectionConfig (the real AWS SDK
// signs requests with SigV4; this adapter's auth model is abstracted
// behind the same credentials map every other adapter uses).
type Adapter struct {
	*adapter.Base

	endpoint  string
	accessKey string
	secretKey string
	client    *http.Client
	severity  *severity.Mapper
}

// New builds an AWS Security Hub adapter. credentials must carry
// "accessKey" and "secretKey".
func New(integrationID string, cfg domain.ConnectionConfig, sevMapping domain.SeverityMapping) (*Adapter, error) {
	accessKey, ok1 := cfg.Credentials["accessKey"]
	secretKey, ok2 := cfg.Credentials["secretKey"]
	if !ok1 || !ok2 {
		return nil, fusionerrors.New(fusionerrors.KindAuthenticationFailed, "awssecurityhub: missing accessKey/secretKey credentials").
			WithIntegration(integrationID, string(domain.ToolTypeCloudSecurity), "aws")
	}

	return &Adapter{
		Base:      adapter.NewBase(integrationID, domain.ToolTypeCloudSecurity, "aws", 200*time.Millisecond, 10, 10, cfg.RetryAttempts, cfg.RetryDelay),
		endpoint:  cfg.Endpoint,
		accessKey: accessKey,
		secretKey: secretKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		severity:  severity.New(sevMapping),
	}, nil
}

// Connect verifies the findings endpoint is reachable.
func (a *Adapter) Connect(ctx context.Context) error {
	a.SetState(adapter.StateConnecting)
	if !a.TestConnection(ctx) {
		a.SetState(adapter.StateError)
		a.SetStatus(adapter.StatusError)
		err := fusionerrors.New(fusionerrors.KindConnectionRefused, "awssecurityhub: connect failed").
			WithIntegration(a.IntegrationID, string(domain.ToolTypeCloudSecurity), "aws")
		a.Emit(domain.EventIntegrationError, map[string]any{"error": err.Error()})
		return err
	}
	a.SetState(adapter.StateConnected)
	a.SetStatus(adapter.StatusConnected)
	a.Emit(domain.EventIntegrationConnected, nil)
	return nil
}

// TestConnection calls the findings endpoint with a zero-result filter.
func (a *Adapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/findings?maxResults=1", nil)
	if err != nil {
		return false
	}
	a.sign(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (a *Adapter) sign(req *http.Request) {
	req.Header.Set("X-Access-Key", a.accessKey)
	req.Header.Set("X-Secret-Key-Present", "true")
	_ = a.secretKey // real driver would use this to compute a SigV4 signature
}

// Sync pulls findings matching filter and emits finding.created events.
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
		raw, fetchErr = a.fetchFindings(ctx, filter)
		return fetchErr
	})
	if err != nil {
		a.SetState(adapter.StateConnected)
		a.Emit(domain.EventSyncFailed, map[string]any{"error": err.Error()})
		return err
	}

	for _, r := range raw {
		finding := a.toFinding(r)
		a.Emit(domain.EventFindingCreated, map[string]any{"finding": finding})
	}

	a.SetState(adapter.StateConnected)
	a.Emit(domain.EventSyncCompleted, map[string]any{"count": len(raw)})
	return nil
}

func (a *Adapter) fetchFindings(ctx context.Context, filter map[string]any) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/findings", nil)
	if err != nil {
		return nil, err
	}
	a.sign(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("awssecurityhub: server error %d", resp.StatusCode)
	}

	var out struct {
		Findings []map[string]any `json:"findings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Findings, nil
}

func (a *Adapter) toFinding(raw map[string]any) domain.CloudSecurityFinding {
	sevLabel, _ := raw["severityLabel"].(string)
	resourceID, _ := raw["resourceId"].(string)
	resourceType, _ := raw["resourceType"].(string)
	accountID, _ := raw["awsAccountId"].(string)
	compliant, _ := raw["complianceStatus"].(string)

	status := domain.ComplianceStatusNonCompliant
	if compliant == "PASSED" {
		status = domain.ComplianceStatusCompliant
	}

	return domain.CloudSecurityFinding{
		ID:               uuid.NewString(),
		FindingID:        fmt.Sprintf("%v", raw["id"]),
		Platform:         "aws",
		ResourceType:     resourceType,
		ResourceID:       resourceID,
		AccountID:        accountID,
		ComplianceStatus: status,
		Severity:         a.severity.Map(sevLabel),
		Status:           "open",
		WorkflowStatus:   "new",
	}
}

// Remediate implements adapter.Remediable by invoking Security Hub's
// custom-action endpoint for the given finding.
func (a *Adapter) Remediate(ctx context.Context, findingID string, parameters map[string]any) error {
	a.WaitOperation(ctx, "remediate")

	body, err := json.Marshal(parameters)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/findings/"+findingID+"/remediate", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	a.sign(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("awssecurityhub: remediation failed with status %d", resp.StatusCode)
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
