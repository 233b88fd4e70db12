package adapter

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"

	"github.com/iff-guardian/fusion/internal/domain"
	fusionerrors "github.com/iff-guardian/fusion/internal/errors"
)

// Base implements the lifecycle bookkeeping, event emission, and dual
// rate limiting every concrete vendor driver needs, so a driver only
// has to implement the vendor-specific wire calls. Concrete adapters
// embed *Base and call into it from their Connect/Sync/Disconnect.
//
// Two distinct limiters are held:
//   - opLimiters: a leaky-bucket limiter per operation key (e.g.
//     "search", "createTicket"), enforcing a minimum interval between
//     calls to that one vendor operation.
//   - rateLimiter: a single token-bucket gate over all outbound calls
//     to this integration, a coarser "don't exceed N rps to this
//     vendor at all" ceiling.
type Base struct {
	IntegrationID string
	ToolType      domain.ToolType
	Platform      string

	mu     sync.RWMutex
	state  State
	status Status
	events chan domain.Event

	opMu          sync.Mutex
	opLimiters    map[string]ratelimit.Limiter
	opMinInterval time.Duration

	rateLimiter *rate.Limiter

	retryAttempts int
	retryBaseDelay time.Duration
}

// NewBase builds adapter bookkeeping for one integration.
//
// opMinInterval is the minimum spacing enforced between calls sharing
// the same operation key (via go.uber.org/ratelimit). rps/burst
// configure the per-integration token-bucket ceiling (via
// golang.org/x/time/rate). retryAttempts/retryBaseDelay configure the
// adapter's own retry/backoff loop for transient vendor errors.
func NewBase(integrationID string, toolType domain.ToolType, platform string, opMinInterval time.Duration, rps float64, burst int, retryAttempts int, retryBaseDelay time.Duration) *Base {
	return &Base{
		IntegrationID:  integrationID,
		ToolType:       toolType,
		Platform:       platform,
		state:          StateIdle,
		status:         StatusDisconnected,
		events:         make(chan domain.Event, 64),
		opLimiters:     make(map[string]ratelimit.Limiter),
		opMinInterval:  opMinInterval,
		rateLimiter:    rate.NewLimiter(rate.Limit(rps), burst),
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
	}
}

// Events returns the channel this adapter publishes domain.Event onto.
func (b *Base) Events() <-chan domain.Event {
	return b.events
}

// Emit publishes an event, annotated with IntegrationID and the
// current time. Emit never blocks indefinitely: it drops the event if
// the channel is full, since a slow consumer must not stall adapter
// I/O.
func (b *Base) Emit(kind domain.EventKind, payload map[string]any) {
	ev := domain.Event{Kind: kind, IntegrationID: b.IntegrationID, At: time.Now(), Payload: payload}
	select {
	case b.events <- ev:
	default:
	}
}

// SetState transitions the internal lifecycle state.
func (b *Base) SetState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// GetState returns the internal lifecycle state.
func (b *Base) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// SetStatus sets the externally-visible status.
func (b *Base) SetStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// GetStatus reports the externally-visible status.
func (b *Base) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// WaitOperation blocks until the leaky-bucket limiter for opKey admits
// the next call, lazily creating the limiter on first use. Returns the
// time spent waiting, for callers that report it to metrics.
func (b *Base) WaitOperation(ctx context.Context, opKey string) time.Duration {
	if b.opMinInterval <= 0 {
		return 0
	}

	b.opMu.Lock()
	limiter, ok := b.opLimiters[opKey]
	if !ok {
		limiter = ratelimit.New(1, ratelimit.Per(b.opMinInterval))
		b.opLimiters[opKey] = limiter
	}
	b.opMu.Unlock()

	start := time.Now()
	limiter.Take()
	return time.Since(start)
}

// WaitIntegrationRate blocks on the per-integration token bucket,
// respecting ctx cancellation.
func (b *Base) WaitIntegrationRate(ctx context.Context) error {
	return b.rateLimiter.Wait(ctx)
}

// Retry runs fn, retrying with exponential backoff while classify(err)
// reports a retryable transport class, up to retryAttempts additional
// tries. classify should map the raw vendor error onto one of
// {connection-refused, timeout, 5xx, transient-network} or "" for
// non-retryable failures.
func (b *Base) Retry(ctx context.Context, classify func(error) string, fn func() error) error {
	var lastErr error
	delay := b.retryBaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	for attempt := 0; attempt <= b.retryAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !fusionerrors.IsRetryable(classify(err)) || attempt == b.retryAttempts {
			return lastErr
		}

		backoff := time.Duration(float64(delay) * math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}
