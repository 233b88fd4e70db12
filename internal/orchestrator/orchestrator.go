// Package orchestrator implements the Sync Orchestrator: a bounded
// worker pool that executes per-integration sync jobs, fed by explicit
// requests and a scheduling cadence backed by a distributed lease in
// the side store. Modeled on the worker goroutine + context-cancel
// shutdown idiom used by every cmd/*/main.go in this repo.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/domain"
	fusionerrors "github.com/iff-guardian/fusion/internal/errors"
	"github.com/iff-guardian/fusion/pkg/database"
	"github.com/iff-guardian/fusion/pkg/logger"
	"github.com/iff-guardian/fusion/pkg/metrics"
	"github.com/iff-guardian/fusion/pkg/redis"
)

// AdapterSource resolves the live adapter for an integration, lazily
// reconstructing it if needed. Implemented by *registry.Registry; kept
// as an interface here so the orchestrator can be tested against a
// fake without constructing a real registry.
type AdapterSource interface {
	GetAdapter(ctx context.Context, integrationID string) (adapter.Adapter, error)
}

// Job is one unit of sync work.
type Job struct {
	IntegrationID string
	ToolType      string
	Filter        map[string]any
}

// Orchestrator owns the bounded worker pool.
type Orchestrator struct {
	adapters AdapterSource
	repo     *database.Repository
	redis    *redis.Client
	metrics  *metrics.Collector
	log      logger.Logger

	queue    chan Job
	inFlight sync.Map // integrationID -> struct{}

	// closeMu serializes queue sends against Drain's close: every
	// producer holds the read lock for the duration of its send, so no
	// send can land on o.queue once closed flips under the write lock.
	closeMu sync.RWMutex
	closed  bool

	schedulesMu sync.Mutex
	schedules   map[string]*time.Ticker

	wg sync.WaitGroup
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithQueueDepth overrides the default bounded queue size.
func WithQueueDepth(n int) Option {
	return func(o *Orchestrator) { o.queue = make(chan Job, n) }
}

// New builds an Orchestrator with concurrency workers pulling from a
// bounded queue (default depth 100).
func New(adapters AdapterSource, repo *database.Repository, redisClient *redis.Client, m *metrics.Collector, log logger.Logger, concurrency int, opts ...Option) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 3
	}
	o := &Orchestrator{
		adapters:  adapters,
		repo:      repo,
		redis:     redisClient,
		metrics:   m,
		log:       log,
		queue:     make(chan Job, 100),
		schedules: make(map[string]*time.Ticker),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.startWorkers(concurrency)
	return o
}

func (o *Orchestrator) startWorkers(n int) {
	for i := 0; i < n; i++ {
		o.wg.Add(1)
		go o.worker()
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for job := range o.queue {
		o.runJob(job)
	}
}

// trySend offers job to the queue without blocking. sent reports a
// successful handoff; draining reports the orchestrator has already
// closed the queue. Holding closeMu for the send is what makes Drain's
// close safe: a send case in a select panics on a closed channel even
// with a default branch present, so closure must be mutually excluded
// from every send, not just made unlikely.
func (o *Orchestrator) trySend(job Job) (sent, draining bool) {
	o.closeMu.RLock()
	defer o.closeMu.RUnlock()
	if o.closed {
		return false, true
	}
	select {
	case o.queue <- job:
		return true, false
	default:
		return false, false
	}
}

// Enqueue submits an explicit sync request. Returns SyncQueueFull if
// the bounded queue has no room or the orchestrator is draining.
func (o *Orchestrator) Enqueue(job Job) error {
	if _, running := o.inFlight.Load(job.IntegrationID); running {
		return nil
	}
	sent, draining := o.trySend(job)
	if draining {
		return fusionerrors.New(fusionerrors.KindSyncQueueFull, "orchestrator is draining").
			WithIntegration(job.IntegrationID, job.ToolType, "")
	}
	if !sent {
		return fusionerrors.New(fusionerrors.KindSyncQueueFull, "sync queue full").
			WithIntegration(job.IntegrationID, job.ToolType, "")
	}
	if o.metrics != nil {
		o.metrics.SetSyncQueueDepth(len(o.queue))
	}
	return nil
}

// enqueueScheduledTick is the cadence path; unlike Enqueue it drops
// silently on a saturated pool instead of surfacing SyncQueueFull,
// since the next tick will retry. A tick that loses the race with
// Drain (its lease acquired in flight while shutdown began) is
// likewise dropped.
func (o *Orchestrator) enqueueScheduledTick(job Job) {
	if _, running := o.inFlight.Load(job.IntegrationID); running {
		return
	}
	sent, draining := o.trySend(job)
	if draining || sent {
		return
	}
	o.log.Warn("scheduled sync dropped, queue saturated", "integrationId", job.IntegrationID)
}

func (o *Orchestrator) runJob(job Job) {
	if _, alreadyRunning := o.inFlight.LoadOrStore(job.IntegrationID, struct{}{}); alreadyRunning {
		return
	}
	defer o.inFlight.Delete(job.IntegrationID)

	start := time.Now()
	ctx := context.Background()

	a, err := o.adapters.GetAdapter(ctx, job.IntegrationID)
	if err != nil {
		o.log.Error("sync failed to resolve adapter", "integrationId", job.IntegrationID, "error", err)
		o.finish(ctx, job, start, false)
		return
	}

	err = a.Sync(ctx, job.Filter)
	o.finish(ctx, job, start, err == nil)
}

// finish records the job's outcome: metrics, lastSync, and the
// integration row's status — re-asserted connected on success, error
// on failure.
func (o *Orchestrator) finish(ctx context.Context, job Job, start time.Time, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	if o.metrics != nil {
		o.metrics.RecordSync(job.IntegrationID, job.ToolType, outcome, time.Since(start))
	}
	if o.repo != nil {
		if success {
			_ = o.repo.UpdateIntegrationLastSync(ctx, job.IntegrationID, time.Now())
			_ = o.repo.UpdateIntegrationStatus(ctx, job.IntegrationID, domain.IntegrationStatusConnected, nil)
		} else {
			_ = o.repo.UpdateIntegrationStatus(ctx, job.IntegrationID, domain.IntegrationStatusError, nil)
		}
	}
	if o.redis != nil {
		_ = o.redis.ReleaseSyncLease(ctx, job.IntegrationID)
	}
}

// Schedule starts a cadence for integrationID: every intervalMinutes,
// it tries to acquire the integration's sync-schedule lease and, on
// success, enqueues a tick job. The lease TTL equals the interval, so
// a worker that crashes mid-cycle doesn't permanently starve the
// integration of future ticks.
func (o *Orchestrator) Schedule(ctx context.Context, integrationID string, intervalMinutes int) {
	if intervalMinutes <= 0 {
		return
	}
	interval := time.Duration(intervalMinutes) * time.Minute

	o.schedulesMu.Lock()
	if existing, ok := o.schedules[integrationID]; ok {
		existing.Stop()
	}
	ticker := time.NewTicker(interval)
	o.schedules[integrationID] = ticker
	o.schedulesMu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				acquired, err := o.redis.AcquireSyncLease(ctx, integrationID, interval)
				if err != nil || !acquired {
					continue
				}
				o.enqueueScheduledTick(Job{IntegrationID: integrationID})
			}
		}
	}()
}

// Unschedule stops the cadence for integrationID, e.g. after delete.
func (o *Orchestrator) Unschedule(integrationID string) {
	o.schedulesMu.Lock()
	defer o.schedulesMu.Unlock()
	if t, ok := o.schedules[integrationID]; ok {
		t.Stop()
		delete(o.schedules, integrationID)
	}
}

// Drain stops accepting new work and blocks until in-flight jobs
// finish, for graceful shutdown. The write lock excludes every
// producer mid-send before the queue closes; late Enqueue calls get
// SyncQueueFull and late scheduled ticks are dropped.
func (o *Orchestrator) Drain() {
	o.closeMu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.closeMu.Unlock()
	o.wg.Wait()
}
