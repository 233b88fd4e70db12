package posture

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/pkg/logger"
)

func TestAvailability_ConnectedWithNoErrorsIsFull(t *testing.T) {
	assert.Equal(t, 100.0, availability(domain.IntegrationStatusConnected, 0))
}

func TestAvailability_DegradesWithSyncErrors(t *testing.T) {
	assert.Equal(t, 70.0, availability(domain.IntegrationStatusConnected, 6))
}

func TestAvailability_FloorsAtZero(t *testing.T) {
	assert.Equal(t, 0.0, availability(domain.IntegrationStatusConnected, 100))
}

func TestAvailability_DisconnectedIsZero(t *testing.T) {
	assert.Equal(t, 0.0, availability(domain.IntegrationStatusError, 0))
}

func TestOverallRiskScore_UsesHighestThreatPlusFindings(t *testing.T) {
	threats := []*domain.UnifiedThreat{{RiskScore: 40}, {RiskScore: 65}}
	findings := []*domain.CloudSecurityFinding{{}, {}}
	assert.Equal(t, 75.0, overallRiskScore(threats, findings))
}

func TestOverallRiskScore_CapsAt100(t *testing.T) {
	threats := []*domain.UnifiedThreat{{RiskScore: 95}}
	findings := make([]*domain.CloudSecurityFinding, 10)
	assert.Equal(t, 100.0, overallRiskScore(threats, findings))
}

func TestOverallRiskScore_NoDataIsZero(t *testing.T) {
	assert.Equal(t, 0.0, overallRiskScore(nil, nil))
}

func TestToolTypeCoverage_ConnectedTypeIsFullCoverage(t *testing.T) {
	coverage := toolTypeCoverage(map[string]int{string(domain.ToolTypeSIEM): 2})
	assert.Equal(t, 100, coverage[string(domain.ToolTypeSIEM)])
	assert.Equal(t, 0, coverage[string(domain.ToolTypeTicketing)])
}

func TestToolTypeCoverage_NoConnectedIntegrationsIsZero(t *testing.T) {
	coverage := toolTypeCoverage(nil)
	for _, v := range coverage {
		assert.Equal(t, 0, v)
	}
}

func TestHub_PublishBroadcastsToConnectedClient(t *testing.T) {
	hub := NewHub(logger.NewNoop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(ctx, w, r)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	threat := &domain.UnifiedThreat{CorrelationID: "rule-1-123", Title: "test"}
	require.NoError(t, hub.Publish(ctx, threat))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "threat.detected", msg.Type)

	data, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var got domain.UnifiedThreat
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, threat.CorrelationID, got.CorrelationID)
}
