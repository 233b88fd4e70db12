package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/pkg/logger"
)

type fakeAlertSink struct {
	called    bool
	threat    *domain.UnifiedThreat
	returnErr error
}

func (f *fakeAlertSink) SendAlert(ctx context.Context, threat *domain.UnifiedThreat, parameters map[string]any) error {
	f.called = true
	f.threat = threat
	return f.returnErr
}

type fakePlaybookInvoker struct {
	called     bool
	playbookID string
}

func (f *fakePlaybookInvoker) Invoke(ctx context.Context, playbookID string, threat *domain.UnifiedThreat, parameters map[string]any) error {
	f.called = true
	f.playbookID = playbookID
	return nil
}

type fakeStore struct {
	integrations []*domain.Integration
	ticket       *domain.Ticket
	mapping      *domain.TicketMapping
}

func (s *fakeStore) ListIntegrations(ctx context.Context) ([]*domain.Integration, error) {
	return s.integrations, nil
}

func (s *fakeStore) CreateTicket(ctx context.Context, t *domain.Ticket) error {
	s.ticket = t
	return nil
}

func (s *fakeStore) CreateTicketMapping(ctx context.Context, m *domain.TicketMapping) error {
	s.mapping = m
	return nil
}

func (s *fakeStore) UpdateThreat(ctx context.Context, id string, fields map[string]any) error {
	return nil
}

type fakeTicketingAdapter struct {
	events     chan domain.Event
	created    *domain.Ticket
	externalID string
}

func newFakeTicketingAdapter(externalID string) *fakeTicketingAdapter {
	return &fakeTicketingAdapter{events: make(chan domain.Event, 1), externalID: externalID}
}

func (f *fakeTicketingAdapter) Connect(ctx context.Context) error       { return nil }
func (f *fakeTicketingAdapter) TestConnection(ctx context.Context) bool { return true }
func (f *fakeTicketingAdapter) Sync(ctx context.Context, filter map[string]any) error {
	return nil
}
func (f *fakeTicketingAdapter) Disconnect(ctx context.Context) error { return nil }
func (f *fakeTicketingAdapter) GetStatus() adapter.Status            { return adapter.StatusConnected }
func (f *fakeTicketingAdapter) Events() <-chan domain.Event          { return f.events }

func (f *fakeTicketingAdapter) CreateTicket(ctx context.Context, t *domain.Ticket) (string, error) {
	f.created = t
	return f.externalID, nil
}
func (f *fakeTicketingAdapter) UpdateTicket(ctx context.Context, externalID string, fields map[string]any) error {
	return nil
}
func (f *fakeTicketingAdapter) AddComment(ctx context.Context, externalID, comment string) error {
	return nil
}
func (f *fakeTicketingAdapter) TransitionTicket(ctx context.Context, externalID, toStatus string) error {
	return nil
}
func (f *fakeTicketingAdapter) LinkTickets(ctx context.Context, externalID, otherExternalID, relation string) error {
	return nil
}

type fakeResolver struct {
	adapters map[string]adapter.Adapter
}

func (r *fakeResolver) GetAdapter(ctx context.Context, id string) (adapter.Adapter, error) {
	return r.adapters[id], nil
}

func TestDispatcher_Execute_CreateTicketMapsSeverityToPriority(t *testing.T) {
	ticketing := newFakeTicketingAdapter("PROJ-42")
	store := &fakeStore{integrations: []*domain.Integration{{
		ID:       "int-jira",
		Type:     domain.ToolTypeTicketing,
		Platform: "jira",
		Status:   domain.IntegrationStatusConnected,
	}}}
	resolver := &fakeResolver{adapters: map[string]adapter.Adapter{"int-jira": ticketing}}

	d := New(resolver, store, nil, nil, nil, logger.NewNoop())
	threat := &domain.UnifiedThreat{ID: "threat-1", Title: "fused threat", Severity: domain.SeverityCritical}
	err := d.Execute(context.Background(), domain.Action{Type: domain.ActionCreateTicket}, threat)

	require.NoError(t, err)
	require.NotNil(t, store.ticket)
	assert.Equal(t, "Highest", store.ticket.Priority)
	assert.Equal(t, "PROJ-42", store.ticket.ExternalID)
	require.NotNil(t, store.mapping)
	assert.Equal(t, "threat-1", store.mapping.ThreatID)
	assert.Equal(t, "int-jira", store.mapping.IntegrationID)
}

func TestDispatcher_Execute_CreateTicketNoTicketingIntegrationIsRecoverable(t *testing.T) {
	store := &fakeStore{integrations: []*domain.Integration{{
		ID:     "int-siem",
		Type:   domain.ToolTypeSIEM,
		Status: domain.IntegrationStatusConnected,
	}}}
	d := New(&fakeResolver{}, store, nil, nil, nil, logger.NewNoop())

	err := d.Execute(context.Background(), domain.Action{Type: domain.ActionCreateTicket}, &domain.UnifiedThreat{ID: "threat-1"})

	assert.NoError(t, err, "missing ticketing integration must not fail the enclosing action")
	assert.Nil(t, store.ticket)
}

func TestDispatcher_Execute_CreateTicketExplicitIntegrationNotFoundErrors(t *testing.T) {
	store := &fakeStore{}
	d := New(&fakeResolver{}, store, nil, nil, nil, logger.NewNoop())

	err := d.Execute(context.Background(), domain.Action{
		Type:       domain.ActionCreateTicket,
		Parameters: map[string]any{"integrationId": "gone"},
	}, &domain.UnifiedThreat{ID: "threat-1"})

	assert.Error(t, err, "an explicitly named integration that is missing is surfaced, not swallowed")
}

func TestPriorityFor_CoversEverySeverity(t *testing.T) {
	expected := map[domain.Severity]string{
		domain.SeverityCritical: "Highest",
		domain.SeverityHigh:     "High",
		domain.SeverityMedium:   "Medium",
		domain.SeverityLow:      "Low",
		domain.SeverityInfo:     "Lowest",
	}
	for sev, want := range expected {
		assert.Equal(t, want, priorityFor(sev))
	}
	assert.Equal(t, "Medium", priorityFor(domain.Severity("unknown")))
}

func TestDispatcher_Execute_UnknownActionTypeErrors(t *testing.T) {
	d := New(nil, nil, nil, nil, nil, logger.NewNoop())
	err := d.Execute(context.Background(), domain.Action{Type: "bogus"}, &domain.UnifiedThreat{})
	assert.Error(t, err)
}

func TestDispatcher_Execute_CreateThreatIsNoOp(t *testing.T) {
	d := New(nil, nil, nil, nil, nil, logger.NewNoop())
	err := d.Execute(context.Background(), domain.Action{Type: domain.ActionCreateThreat}, &domain.UnifiedThreat{CorrelationID: "rule-1-123"})
	assert.NoError(t, err)
}

func TestDispatcher_Execute_UpdateThreatWithoutIDErrors(t *testing.T) {
	d := New(nil, nil, nil, nil, nil, logger.NewNoop())
	err := d.Execute(context.Background(), domain.Action{Type: domain.ActionUpdateThreat}, &domain.UnifiedThreat{})
	assert.Error(t, err)
}

func TestDispatcher_Execute_SendAlertWithoutSinkLogsOnly(t *testing.T) {
	d := New(nil, nil, nil, nil, nil, logger.NewNoop())
	err := d.Execute(context.Background(), domain.Action{Type: domain.ActionSendAlert}, &domain.UnifiedThreat{Title: "test"})
	assert.NoError(t, err)
}

func TestDispatcher_Execute_SendAlertDelegatesToSink(t *testing.T) {
	sink := &fakeAlertSink{}
	d := New(nil, nil, sink, nil, nil, logger.NewNoop())
	threat := &domain.UnifiedThreat{Title: "test"}
	err := d.Execute(context.Background(), domain.Action{Type: domain.ActionSendAlert, Parameters: map[string]any{"channel": "#soc"}}, threat)
	require.NoError(t, err)
	assert.True(t, sink.called)
	assert.Equal(t, threat, sink.threat)
}

func TestDispatcher_Execute_ExecutePlaybookWithoutInvokerErrors(t *testing.T) {
	d := New(nil, nil, nil, nil, nil, logger.NewNoop())
	err := d.Execute(context.Background(), domain.Action{Type: domain.ActionExecutePlaybook, Parameters: map[string]any{"playbookId": "pb-1"}}, &domain.UnifiedThreat{})
	assert.Error(t, err)
}

func TestDispatcher_Execute_ExecutePlaybookRequiresPlaybookID(t *testing.T) {
	invoker := &fakePlaybookInvoker{}
	d := New(nil, nil, nil, invoker, nil, logger.NewNoop())
	err := d.Execute(context.Background(), domain.Action{Type: domain.ActionExecutePlaybook}, &domain.UnifiedThreat{})
	assert.Error(t, err)
	assert.False(t, invoker.called)
}

func TestDispatcher_Execute_ExecutePlaybookDelegatesToInvoker(t *testing.T) {
	invoker := &fakePlaybookInvoker{}
	d := New(nil, nil, nil, invoker, nil, logger.NewNoop())
	err := d.Execute(context.Background(), domain.Action{Type: domain.ActionExecutePlaybook, Parameters: map[string]any{"playbookId": "pb-1"}}, &domain.UnifiedThreat{})
	require.NoError(t, err)
	assert.True(t, invoker.called)
	assert.Equal(t, "pb-1", invoker.playbookID)
}

func TestJWTPlaybookInvoker_Invoke_SignsAndPosts(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	invoker := NewJWTPlaybookInvoker(srv.URL, []byte("test-secret"), 5*time.Minute)
	threat := &domain.UnifiedThreat{CorrelationID: "rule-1-123"}
	err := invoker.Invoke(context.Background(), "pb-1", threat, map[string]any{"notify": "soc"})

	require.NoError(t, err)
	assert.Contains(t, gotAuth, "Bearer ")
}

func TestJWTPlaybookInvoker_Invoke_NonSuccessStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	invoker := NewJWTPlaybookInvoker(srv.URL, []byte("test-secret"), 5*time.Minute)
	err := invoker.Invoke(context.Background(), "pb-1", &domain.UnifiedThreat{}, nil)
	assert.Error(t, err)
}
