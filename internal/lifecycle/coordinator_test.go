package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/pkg/logger"
)

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []string
	drained   int32
}

func (f *fakeScheduler) Schedule(ctx context.Context, integrationID string, intervalMinutes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, integrationID)
}

func (f *fakeScheduler) Drain() {
	atomic.AddInt32(&f.drained, 1)
}

type fakeEngine struct {
	ran int32
}

func (f *fakeEngine) Run(ctx context.Context, interval time.Duration) {
	atomic.AddInt32(&f.ran, 1)
	<-ctx.Done()
}

type fakeShutdowner struct {
	called int32
}

func (f *fakeShutdowner) Shutdown(ctx context.Context) {
	atomic.AddInt32(&f.called, 1)
}

type fakeCloser struct {
	closed int32
	err    error
}

func (f *fakeCloser) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return f.err
}

func TestCoordinator_Start_SchedulesEnabledInboundIntegrations(t *testing.T) {
	sched := &fakeScheduler{}
	engine := &fakeEngine{}
	reg := &fakeShutdowner{}
	db := &fakeCloser{}
	redisC := &fakeCloser{}

	c := New(sched, engine, reg, db, redisC, logger.NewNoop())
	integrations := []*domain.Integration{
		{ID: "in-1", SyncPolicy: domain.SyncPolicy{Enabled: true, Direction: domain.SyncDirectionInbound, IntervalMinutes: 5}},
		{ID: "in-2", SyncPolicy: domain.SyncPolicy{Enabled: false, Direction: domain.SyncDirectionInbound, IntervalMinutes: 5}},
		{ID: "in-3", SyncPolicy: domain.SyncPolicy{Enabled: true, Direction: domain.SyncDirectionOutbound, IntervalMinutes: 5}},
	}

	c.Start(context.Background(), time.Minute, integrations)
	defer c.Shutdown(time.Second)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&engine.ran) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"in-1"}, sched.scheduled)
}

func TestCoordinator_Shutdown_DrainsAndClosesInOrder(t *testing.T) {
	sched := &fakeScheduler{}
	engine := &fakeEngine{}
	reg := &fakeShutdowner{}
	db := &fakeCloser{}
	redisC := &fakeCloser{}

	c := New(sched, engine, reg, db, redisC, logger.NewNoop())
	c.Start(context.Background(), time.Minute, nil)

	err := c.Shutdown(time.Second)

	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sched.drained))
	assert.Equal(t, int32(1), atomic.LoadInt32(&reg.called))
	assert.Equal(t, int32(1), atomic.LoadInt32(&db.closed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&redisC.closed))
}
