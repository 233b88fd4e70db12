package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// syncScheduleKey is the TTL lease the Sync Orchestrator uses to avoid
// scheduling two syncs for the same integration concurrently.
func syncScheduleKey(integrationID string) string {
	return fmt.Sprintf("sync-schedule:%s", integrationID)
}

// AcquireSyncLease tries to take the sync schedule lease for
// integrationID, returning false if another worker already holds it.
func (c *Client) AcquireSyncLease(ctx context.Context, integrationID string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, syncScheduleKey(integrationID), time.Now().Format(time.RFC3339), ttl)
}

// ReleaseSyncLease releases the sync schedule lease early, e.g. after a
// sync completes well before its TTL would expire.
func (c *Client) ReleaseSyncLease(ctx context.Context, integrationID string) error {
	return c.Delete(ctx, syncScheduleKey(integrationID))
}

// eventWindowKey is the correlation cache key for a buffered event
// window, used by the Event Buffer.
func eventWindowKey(start, end time.Time) string {
	return fmt.Sprintf("security-events:%d:%d", start.Unix(), end.Unix())
}

// CacheEventWindow stores a serialized event window for lookbackMinutes.
func (c *Client) CacheEventWindow(ctx context.Context, start, end time.Time, payload []byte, lookback time.Duration) error {
	return c.SetWithExpiry(ctx, eventWindowKey(start, end), payload, lookback)
}

// GetCachedEventWindow returns the cached serialized event window, if
// present.
func (c *Client) GetCachedEventWindow(ctx context.Context, start, end time.Time) (string, error) {
	return c.GetString(ctx, eventWindowKey(start, end))
}

// IncrementIntegrationMetric bumps a named counter scoped to one
// integration, used by the Posture Aggregator.
func (c *Client) IncrementIntegrationMetric(ctx context.Context, integrationID, metric string) (int64, error) {
	return c.Increment(ctx, fmt.Sprintf("integration-metrics:%s:%s", integrationID, metric))
}

// IncrementToolTypeMetric bumps a named counter scoped to one tool
// type.
func (c *Client) IncrementToolTypeMetric(ctx context.Context, toolType, metric string) (int64, error) {
	return c.Increment(ctx, fmt.Sprintf("tool-metrics:%s:%s", toolType, metric))
}

// GetIntegrationMetric reads a named counter scoped to one
// integration, returning 0 if it was never set.
func (c *Client) GetIntegrationMetric(ctx context.Context, integrationID, metric string) (int64, error) {
	v, err := c.GetString(ctx, fmt.Sprintf("integration-metrics:%s:%s", integrationID, metric))
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	_, err = fmt.Sscanf(v, "%d", &n)
	return n, err
}
