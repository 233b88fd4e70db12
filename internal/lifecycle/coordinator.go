// Package lifecycle sequences process-wide startup and shutdown: it
// starts the correlation engine's tick loop and every persisted
// integration's sync cadence, then on shutdown stops new work, drains
// the orchestrator, disconnects every adapter, and closes the
// persistent store and side store in the order that's safe given
// what's still in flight. Grounded on the graceful-shutdown sequence
// every cmd/*/main.go in this repo follows: stop accepting work first,
// let in-flight work finish, close dependencies last.
package lifecycle

import (
	"context"
	"time"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/pkg/logger"
)

// SyncScheduler is the subset of *orchestrator.Orchestrator the
// coordinator drives.
type SyncScheduler interface {
	Schedule(ctx context.Context, integrationID string, intervalMinutes int)
	Drain()
}

// TickRunner is the subset of *correlation.Engine the coordinator
// drives.
type TickRunner interface {
	Run(ctx context.Context, interval time.Duration)
}

// AdapterShutdowner is the subset of *registry.Registry the
// coordinator drives.
type AdapterShutdowner interface {
	Shutdown(ctx context.Context)
}

// Closer is satisfied by *database.DB and *pkg/redis.Client.
type Closer interface {
	Close() error
}

// Coordinator owns the correlation engine's run loop lifetime and the
// shutdown ordering for every long-lived collaborator.
type Coordinator struct {
	orchestrator SyncScheduler
	engine       TickRunner
	registry     AdapterShutdowner
	db           Closer
	redis        Closer
	log          logger.Logger

	ctx          context.Context
	cancelEngine context.CancelFunc
	engineDone   chan struct{}
}

// New builds a Coordinator.
func New(o SyncScheduler, engine TickRunner, reg AdapterShutdowner, db, redisClient Closer, log logger.Logger) *Coordinator {
	return &Coordinator{orchestrator: o, engine: engine, registry: reg, db: db, redis: redisClient, log: log}
}

// Start begins the correlation engine's tick loop and, for every
// persisted integration with sync enabled and a direction other than
// outbound, its sync cadence.
func (c *Coordinator) Start(parent context.Context, correlationInterval time.Duration, integrations []*domain.Integration) {
	ctx, cancel := context.WithCancel(parent)
	c.ctx = ctx
	c.cancelEngine = cancel
	c.engineDone = make(chan struct{})

	go func() {
		defer close(c.engineDone)
		c.engine.Run(ctx, correlationInterval)
	}()

	for _, in := range integrations {
		if in.SyncPolicy.Enabled && in.SyncPolicy.Direction != domain.SyncDirectionOutbound {
			c.orchestrator.Schedule(ctx, in.ID, in.SyncPolicy.IntervalMinutes)
		}
	}
}

// Context returns the cancellable context every boot-time sync
// schedule and the engine's tick loop run under. Valid only after
// Start; callers that register additional schedules after boot (e.g.
// the Integration Registry, for integrations created while the
// process is running) should pass schedules this same context so they
// stop together with everything else during Shutdown.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Shutdown stops the correlation engine's tick loop, drains the
// orchestrator's in-flight syncs, disconnects every adapter, and
// closes the persistent store and side store, bounding the whole
// sequence by timeout.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		defer close(done)

		if c.cancelEngine != nil {
			c.cancelEngine()
			<-c.engineDone
		}

		c.orchestrator.Drain()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		c.registry.Shutdown(shutdownCtx)

		if c.db != nil {
			if err := c.db.Close(); err != nil {
				c.log.Warn("database close failed during shutdown", "error", err)
			}
		}
		if c.redis != nil {
			if err := c.redis.Close(); err != nil {
				c.log.Warn("redis close failed during shutdown", "error", err)
			}
		}
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		c.log.Warn("shutdown exceeded its timeout, exiting anyway")
		return context.DeadlineExceeded
	}
}
