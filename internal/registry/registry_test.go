package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/internal/eventbus"
)

type fakeAdapter struct {
	reachable bool
	events    chan domain.Event
}

func newFakeAdapter(reachable bool) *fakeAdapter {
	return &fakeAdapter{reachable: reachable, events: make(chan domain.Event, 1)}
}

func (f *fakeAdapter) Connect(ctx context.Context) error { return nil }
func (f *fakeAdapter) TestConnection(ctx context.Context) bool { return f.reachable }
func (f *fakeAdapter) Sync(ctx context.Context, filter map[string]any) error { return nil }
func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }
func (f *fakeAdapter) GetStatus() adapter.Status { return adapter.StatusConnected }
func (f *fakeAdapter) Events() <-chan domain.Event { return f.events }

func testIntegration() *domain.Integration {
	return &domain.Integration{
		Name:     "test-splunk",
		Type:     domain.ToolTypeSIEM,
		Platform: "splunk",
		ConnectionConfig: domain.ConnectionConfig{
			Endpoint:    "https://splunk.example.com",
			AuthType:    domain.AuthTypeAPIKey,
			Credentials: map[string]string{"apiKey": "secret"},
		},
	}
}

func TestRegistry_TestConnection_ReturnsTrueWhenReachable(t *testing.T) {
	r := New(nil, nil, nil, nil)
	r.RegisterFactory(domain.ToolTypeSIEM, "splunk", func(id string, in *domain.Integration) (adapter.Adapter, error) {
		return newFakeAdapter(true), nil
	})

	assert.True(t, r.TestConnection(context.Background(), testIntegration()))
}

func TestRegistry_TestConnection_ReturnsFalseWhenUnreachable(t *testing.T) {
	r := New(nil, nil, nil, nil)
	r.RegisterFactory(domain.ToolTypeSIEM, "splunk", func(id string, in *domain.Integration) (adapter.Adapter, error) {
		return newFakeAdapter(false), nil
	})

	assert.False(t, r.TestConnection(context.Background(), testIntegration()))
}

func TestRegistry_TestConnection_ReturnsFalseForUnregisteredPlatform(t *testing.T) {
	r := New(nil, nil, nil, nil)
	assert.False(t, r.TestConnection(context.Background(), testIntegration()))
}

func TestRegistry_FactoryFor_UnsupportedCombinationErrors(t *testing.T) {
	r := New(nil, nil, nil, nil)
	_, err := r.factoryFor(domain.ToolTypeSIEM, "splunk")
	require.Error(t, err)
	var unsupported *adapter.UnsupportedIntegrationError
	assert.ErrorAs(t, err, &unsupported)
}

func TestValidate_RequiresName(t *testing.T) {
	in := testIntegration()
	in.Name = ""
	err := validate(in)
	assert.Error(t, err)
}

func TestValidate_RequiresEndpoint(t *testing.T) {
	in := testIntegration()
	in.ConnectionConfig.Endpoint = ""
	err := validate(in)
	assert.Error(t, err)
}

func TestValidate_RequiresCredentials(t *testing.T) {
	in := testIntegration()
	in.ConnectionConfig.Credentials = nil
	err := validate(in)
	assert.Error(t, err)
}

func TestValidate_AcceptsWellFormedIntegration(t *testing.T) {
	assert.NoError(t, validate(testIntegration()))
}

type fakeScheduler struct {
	scheduled   map[string]int
	unscheduled map[string]bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: map[string]int{}, unscheduled: map[string]bool{}}
}

func (f *fakeScheduler) Schedule(ctx context.Context, integrationID string, intervalMinutes int) {
	f.scheduled[integrationID] = intervalMinutes
}

func (f *fakeScheduler) Unschedule(integrationID string) {
	f.unscheduled[integrationID] = true
}

func TestRegistry_ReconcileSchedule_SchedulesEnabledInboundPolicy(t *testing.T) {
	r := New(nil, nil, nil, nil)
	sched := newFakeScheduler()
	r.SetScheduler(context.Background(), sched)

	in := testIntegration()
	in.ID = "int-1"
	in.SyncPolicy = domain.SyncPolicy{Enabled: true, IntervalMinutes: 15, Direction: domain.SyncDirectionInbound}

	r.reconcileSchedule(in)

	assert.Equal(t, 15, sched.scheduled["int-1"])
	assert.False(t, sched.unscheduled["int-1"])
}

func TestRegistry_ReconcileSchedule_UnschedulesWhenDisabled(t *testing.T) {
	r := New(nil, nil, nil, nil)
	sched := newFakeScheduler()
	r.SetScheduler(context.Background(), sched)

	in := testIntegration()
	in.ID = "int-2"
	in.SyncPolicy = domain.SyncPolicy{Enabled: false}

	r.reconcileSchedule(in)

	assert.True(t, sched.unscheduled["int-2"])
	assert.Zero(t, sched.scheduled["int-2"])
}

func TestRegistry_ReconcileSchedule_UnschedulesOutboundDirection(t *testing.T) {
	r := New(nil, nil, nil, nil)
	sched := newFakeScheduler()
	r.SetScheduler(context.Background(), sched)

	in := testIntegration()
	in.ID = "int-3"
	in.SyncPolicy = domain.SyncPolicy{Enabled: true, IntervalMinutes: 10, Direction: domain.SyncDirectionOutbound}

	r.reconcileSchedule(in)

	assert.True(t, sched.unscheduled["int-3"])
}

func TestRegistry_ReconcileSchedule_NoopWithoutScheduler(t *testing.T) {
	r := New(nil, nil, nil, nil)
	in := testIntegration()
	in.SyncPolicy = domain.SyncPolicy{Enabled: true, IntervalMinutes: 10}
	assert.NotPanics(t, func() { r.reconcileSchedule(in) })
}

func TestRegistry_DeleteIntegration_UnschedulesBeforeRemovingFromMemory(t *testing.T) {
	r := New(nil, nil, eventbus.New(), nil)
	sched := newFakeScheduler()
	r.SetScheduler(context.Background(), sched)

	a := newFakeAdapter(true)
	r.mu.Lock()
	r.adapters["int-4"] = a
	r.mu.Unlock()

	// DeleteIntegration's final step deletes the persisted row, which
	// this test has no repo to satisfy; only the unschedule step, which
	// runs first, is under test here.
	func() {
		defer func() { recover() }()
		_ = r.DeleteIntegration(context.Background(), "int-4")
	}()

	assert.True(t, sched.unscheduled["int-4"])
}
