package nessus_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/adapter/drivers/nessus"
	"github.com/iff-guardian/fusion/internal/domain"
)

func testConfig(endpoint string) domain.ConnectionConfig {
	return domain.ConnectionConfig{
		Endpoint:    endpoint,
		Timeout:     2 * time.Second,
		Credentials: map[string]string{"accessKey": "ak-1", "secretKey": "sk-1"},
	}
}

func testSeverityMapping() domain.SeverityMapping {
	return domain.SeverityMapping{
		domain.SeverityCritical: {"critical", "4"},
		domain.SeverityHigh:     {"high", "3"},
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := nessus.New("int-1", domain.ConnectionConfig{
		Endpoint:    "http://localhost",
		Credentials: map[string]string{"accessKey": "ak-1"},
	}, nil)
	assert.Error(t, err)
}

func TestAdapter_TestConnectionUnreachableReturnsFalse(t *testing.T) {
	a, err := nessus.New("int-1", testConfig("http://127.0.0.1:1"), nil)
	require.NoError(t, err)
	assert.False(t, a.TestConnection(context.Background()))
}

func TestAdapter_SyncEmitsDiscoveredVulnerabilities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scans/scan-7/vulnerabilities", r.URL.Path)
		w.Write([]byte(`{"vulnerabilities": [
			{"plugin_id": 19506, "plugin_name": "OpenSSL heap overflow", "severity": "critical", "cvss_base_score": 9.8, "exploit_available": true},
			{"plugin_id": 10863, "plugin_name": "Expired TLS certificate", "severity": "high", "cvss_base_score": 7.4}
		]}`))
	}))
	defer srv.Close()

	a, err := nessus.New("int-1", testConfig(srv.URL), testSeverityMapping())
	require.NoError(t, err)

	require.NoError(t, a.Sync(context.Background(), map[string]any{"scanId": "scan-7"}))

	kinds := drainKinds(t, a, 4)
	assert.Equal(t, []domain.EventKind{
		domain.EventSyncStarted,
		domain.EventVulnerabilityDiscovered,
		domain.EventVulnerabilityDiscovered,
		domain.EventSyncCompleted,
	}, kinds)
	assert.Equal(t, adapter.StateConnected, a.GetState())
}

func TestAdapter_SyncNormalizesVulnerabilityFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"vulnerabilities": [
			{"plugin_id": 19506, "plugin_name": "OpenSSL heap overflow", "severity": "critical", "cvss_base_score": 9.8, "exploit_available": true}
		]}`))
	}))
	defer srv.Close()

	a, err := nessus.New("int-1", testConfig(srv.URL), testSeverityMapping())
	require.NoError(t, err)
	require.NoError(t, a.Sync(context.Background(), map[string]any{"scanId": "scan-7"}))

	v := drainVulnerability(t, a)
	assert.Equal(t, "19506", v.ScannerVulnID)
	assert.Equal(t, "OpenSSL heap overflow", v.Title)
	assert.Equal(t, domain.SeverityCritical, v.Severity)
	assert.Equal(t, 9.8, v.CVSSScore)
	assert.True(t, v.ExploitAvailable)
	assert.Equal(t, "scan-7", v.ScanID)
	assert.Equal(t, domain.VulnerabilityStatusOpen, v.Status)
	assert.True(t, v.RiskScore > 0 && v.RiskScore <= 100)
}

func TestAdapter_SyncFailureEmitsSyncFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RetryAttempts = 0
	a, err := nessus.New("int-1", cfg, nil)
	require.NoError(t, err)

	require.Error(t, a.Sync(context.Background(), map[string]any{"scanId": "scan-7"}))

	kinds := drainKinds(t, a, 2)
	assert.Equal(t, []domain.EventKind{domain.EventSyncStarted, domain.EventSyncFailed}, kinds)
	assert.Equal(t, adapter.StateConnected, a.GetState(), "a failed sync leaves the adapter connected")
}

func TestAdapter_ExportScanRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"vulnerabilities": []}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RetryAttempts = 2
	cfg.RetryDelay = time.Millisecond
	a, err := nessus.New("int-1", cfg, nil)
	require.NoError(t, err)

	vulns, err := a.ExportScan(context.Background(), "scan-7")
	require.NoError(t, err)
	assert.Empty(t, vulns)
	assert.Equal(t, 2, attempts)
}

func drainKinds(t *testing.T, a *nessus.Adapter, n int) []domain.EventKind {
	t.Helper()
	kinds := make([]domain.EventKind, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-a.Events():
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatalf("expected %d events, got %d", n, len(kinds))
		}
	}
	return kinds
}

func drainVulnerability(t *testing.T, a *nessus.Adapter) domain.Vulnerability {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-a.Events():
			if ev.Kind != domain.EventVulnerabilityDiscovered {
				continue
			}
			v, ok := ev.Payload["vulnerability"].(domain.Vulnerability)
			require.True(t, ok)
			return v
		case <-deadline:
			t.Fatal("no vulnerability.discovered event emitted")
		}
	}
}
