// Package nessus implements the vulnerability-scanner adapter for the
// nessus platform.
package nessus

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
	"github.com/iff-guardian/fusion/internal/severity"
)

// Adapter drives the Nessus REST API.
type Adapter struct {
	*adapter.Base

	endpoint   string
	accessKey  string
	secretKey  string
	client     *http.Client
	severity   *severity.Mapper
}

// New builds a Nessus adapter. credentials must carry "accessKey" and
// "secretKey".
func New(integrationID string, cfg domain.ConnectionConfig, sevMapping domain.SeverityMapping) (*Adapter, error) {
	accessKey, ok1 := cfg.Credentials["accessKey"]
	secretKey, ok2 := cfg.Credentials["secretKey"]
	if !ok1 || !ok2 {
		return nil, fusionerrors.New(fusionerrors.KindAuthenticationFailed, "nessus: missing accessKey/secretKey credentials").
			WithIntegration(integrationID, string(domain.ToolTypeVulnerabilityScanner), "nessus")
	}

	return &Adapter{
		Base:      adapter.NewBase(integrationID, domain.ToolTypeVulnerabilityScanner, "nessus", 250*time.Millisecond, 5, 5, cfg.RetryAttempts, cfg.RetryDelay),
		endpoint:  cfg.Endpoint,
		accessKey: accessKey,
		secretKey: secretKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		severity:  severity.New(sevMapping),
	}, nil
}

func (a *Adapter) authHeader() string {
	return fmt.Sprintf("accessKey=%s; secretKey=%s", a.accessKey, a.secretKey)
}

// Connect validates the API keys against the server status endpoint.
func (a *Adapter) Connect(ctx context.Context) error {
	a.SetState(adapter.StateConnecting)
	if !a.TestConnection(ctx) {
		a.SetState(adapter.StateError)
		a.SetStatus(adapter.StatusError)
		err := fusionerrors.New(fusionerrors.KindConnectionRefused, "nessus: connect failed").
			WithIntegration(a.IntegrationID, string(domain.ToolTypeVulnerabilityScanner), "nessus")
		a.Emit(domain.EventIntegrationError, map[string]any{"error": err.Error()})
		return err
	}
	a.SetState(adapter.StateConnected)
	a.SetStatus(adapter.StatusConnected)
	a.Emit(domain.EventIntegrationConnected, nil)
	return nil
}

// TestConnection checks the scanner's server status endpoint.
func (a *Adapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/server/status", nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-ApiKeys", a.authHeader())

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// CreateScan implements adapter.Scannable.
func (a *Adapter) CreateScan(ctx context.Context, params map[string]any) (string, error) {
	a.WaitOperation(ctx, "createScan")

	body, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/scans", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("X-ApiKeys", a.authHeader())
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Scan struct {
			ID string `json:"id"`
		} `json:"scan"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Scan.ID, nil
}

// LaunchScan implements adapter.Scannable.
func (a *Adapter) LaunchScan(ctx context.Context, scanID string) error {
	a.WaitOperation(ctx, "launchScan")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/scans/"+scanID+"/launch", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-ApiKeys", a.authHeader())

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nessus: launch scan failed with status %d", resp.StatusCode)
	}
	return nil
}

// GetScanStatus implements adapter.Scannable.
func (a *Adapter) GetScanStatus(ctx context.Context, scanID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/scans/"+scanID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-ApiKeys", a.authHeader())

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Info struct {
			Status string `json:"status"`
		} `json:"info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Info.Status, nil
}

// ExportScan implements adapter.Scannable, normalizing the scanner's
// vulnerability list onto domain.Vulnerability.
func (a *Adapter) ExportScan(ctx context.Context, scanID string) ([]domain.Vulnerability, error) {
	var raw []map[string]any
	err := a.Retry(ctx, classify, func() error {
		var fetchErr error
		raw, fetchErr = a.fetchVulnerabilities(ctx, scanID)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Vulnerability, 0, len(raw))
	for _, r := range raw {
		out = append(out, a.toVulnerability(scanID, r))
	}
	return out, nil
}

func (a *Adapter) fetchVulnerabilities(ctx context.Context, scanID string) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/scans/"+scanID+"/vulnerabilities", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-ApiKeys", a.authHeader())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("nessus: server error %d", resp.StatusCode)
	}

	var out struct {
		Vulnerabilities []map[string]any `json:"vulnerabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Vulnerabilities, nil
}

func (a *Adapter) toVulnerability(scanID string, raw map[string]any) domain.Vulnerability {
	title, _ := raw["plugin_name"].(string)
	sevLabel, _ := raw["severity"].(string)
	cvss, _ := raw["cvss_base_score"].(float64)
	exploit, _ := raw["exploit_available"].(bool)

	risk := cvss * 10
	if exploit {
		risk += 15
	}
	if risk > 100 {
		risk = 100
	}

	return domain.Vulnerability{
		ID:               uuid.NewString(),
		ScannerVulnID:    fmt.Sprintf("%v", raw["plugin_id"]),
		Title:            title,
		Severity:         a.severity.Map(sevLabel),
		CVSSScore:        cvss,
		ExploitAvailable: exploit,
		ScanID:           scanID,
		FirstSeen:        time.Now(),
		LastSeen:         time.Now(),
		RiskScore:        risk,
		Status:           domain.VulnerabilityStatusOpen,
	}
}

// Sync pulls completed scan results for hosts matching filter and
// emits vulnerability.discovered events.
func (a *Adapter) Sync(ctx context.Context, filter map[string]any) error {
	a.SetState(adapter.StateSyncing)
	a.Emit(domain.EventSyncStarted, map[string]any{"filter": filter})

	if err := a.WaitIntegrationRate(ctx); err != nil {
		return err
	}

	scanID, _ := filter["scanId"].(string)
	vulns, err := a.ExportScan(ctx, scanID)
	if err != nil {
		a.SetState(adapter.StateConnected)
		a.Emit(domain.EventSyncFailed, map[string]any{"error": err.Error()})
		return err
	}

	for i := range vulns {
		a.Emit(domain.EventVulnerabilityDiscovered, map[string]any{"vulnerability": vulns[i]})
	}

	a.SetState(adapter.StateConnected)
	a.Emit(domain.EventSyncCompleted, map[string]any{"count": len(vulns)})
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
