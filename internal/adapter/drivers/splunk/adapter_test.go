package splunk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/adapter/drivers/splunk"
	"github.com/iff-guardian/fusion/internal/domain"
)

func testConfig(endpoint string) domain.ConnectionConfig {
	return domain.ConnectionConfig{
		Endpoint:    endpoint,
		Timeout:     2 * time.Second,
		Credentials: map[string]string{"apiKey": "key-123"},
	}
}

func testMappings() []domain.FieldMapping {
	return []domain.FieldMapping{
		{SourceField: "search_name", TargetField: "title", Transform: "direct"},
		{SourceField: "urgency", TargetField: "severity", Transform: "lowercase"},
		{SourceField: "src", TargetField: "sourceIP", Transform: "direct"},
	}
}

func testSeverityMapping() domain.SeverityMapping {
	return domain.SeverityMapping{
		domain.SeverityCritical: {"critical", "highest"},
		domain.SeverityHigh:     {"high"},
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := splunk.New("int-1", domain.ConnectionConfig{Endpoint: "http://localhost"}, nil, nil)
	assert.Error(t, err)
}

func TestAdapter_TestConnectionUnreachableReturnsFalse(t *testing.T) {
	a, err := splunk.New("int-1", testConfig("http://127.0.0.1:1"), nil, nil)
	require.NoError(t, err)
	assert.False(t, a.TestConnection(context.Background()))
}

func TestAdapter_SyncEmitsNormalizedEventsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"search_name": "brute force", "urgency": "CRITICAL", "src": "10.0.0.1"},
			{"search_name": "port scan", "urgency": "HIGH", "src": "10.0.0.2"}
		]`))
	}))
	defer srv.Close()

	a, err := splunk.New("int-1", testConfig(srv.URL), testMappings(), testSeverityMapping())
	require.NoError(t, err)

	require.NoError(t, a.Sync(context.Background(), map[string]any{"query": "index=security"}))

	kinds := drainKinds(t, a, 4)
	assert.Equal(t, []domain.EventKind{
		domain.EventSyncStarted,
		domain.EventThreatDetected,
		domain.EventThreatDetected,
		domain.EventSyncCompleted,
	}, kinds)
}

func TestAdapter_SyncFailureEmitsSyncFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a, err := splunk.New("int-1", testConfig(srv.URL), nil, nil)
	require.NoError(t, err)

	require.Error(t, a.Sync(context.Background(), nil))

	kinds := drainKinds(t, a, 2)
	assert.Equal(t, []domain.EventKind{domain.EventSyncStarted, domain.EventSyncFailed}, kinds)
	assert.Equal(t, adapter.StateConnected, a.GetState(), "a failed sync leaves the adapter connected")
}

func TestAdapter_ReceiveWebhookNormalizesPushedPayloads(t *testing.T) {
	a, err := splunk.New("int-1", testConfig("http://127.0.0.1:1"), testMappings(), testSeverityMapping())
	require.NoError(t, err)

	payload := []byte(`{"search_name": "lateral movement", "urgency": "Critical", "src": "10.0.0.9"}`)
	require.NoError(t, a.ReceiveWebhook(context.Background(), payload))

	select {
	case ev := <-a.Events():
		require.Equal(t, domain.EventThreatDetected, ev.Kind)
		e, ok := ev.Payload["event"].(domain.NormalizedEvent)
		require.True(t, ok)
		assert.Equal(t, "lateral movement", e.Title)
		assert.Equal(t, domain.SeverityCritical, e.Severity)
	default:
		t.Fatal("no event emitted for pushed payload")
	}
}

func TestAdapter_ReceiveWebhookRejectsGarbage(t *testing.T) {
	a, err := splunk.New("int-1", testConfig("http://127.0.0.1:1"), nil, nil)
	require.NoError(t, err)
	assert.Error(t, a.ReceiveWebhook(context.Background(), []byte("not json")))
}

func drainKinds(t *testing.T, a *splunk.Adapter, n int) []domain.EventKind {
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
