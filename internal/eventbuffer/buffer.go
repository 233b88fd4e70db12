// Package eventbuffer implements the read-through window cache sitting
// in front of the persistent security-event store. Concurrent misses
// for the same window coalesce into one materialization query via
// singleflight, grounded on the same library jordigilh-kubernaut pulls
// in for its own read-through caching paths.
package eventbuffer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iff-guardian/fusion/internal/domain"
	fusionerrors "github.com/iff-guardian/fusion/internal/errors"
	"github.com/iff-guardian/fusion/pkg/database"
	"github.com/iff-guardian/fusion/pkg/redis"
)

// Buffer materializes normalized events for a window, preferring the
// side-store cache and falling back to the persistent store on miss.
type Buffer struct {
	repo  *database.Repository
	redis *redis.Client
	group singleflight.Group
}

// New builds a Buffer backed by repo and redisClient.
func New(repo *database.Repository, redisClient *redis.Client) *Buffer {
	return &Buffer{repo: repo, redis: redisClient}
}

// Window returns every normalized event with timestamp in [start, end),
// caching the materialized result with TTL equal to the window length.
// The buffer is a read-through view over the store: adapter writes
// never populate it directly, so it is always consistent with the
// store on restart.
func (b *Buffer) Window(ctx context.Context, start, end time.Time) ([]*domain.NormalizedEvent, error) {
	key := windowKey(start, end)

	if cached, err := b.redis.GetCachedEventWindow(ctx, start, end); err == nil && cached != "" {
		var events []*domain.NormalizedEvent
		if err := json.Unmarshal([]byte(cached), &events); err == nil {
			return events, nil
		}
	}

	result, err, _ := b.group.Do(key, func() (any, error) {
		events, err := b.repo.ListSecurityEventsInWindow(ctx, start, end)
		if err != nil {
			return nil, fusionerrors.Wrap(fusionerrors.KindDatabaseError, "materialize event window", err)
		}

		payload, mErr := json.Marshal(events)
		if mErr == nil {
			ttl := end.Sub(start)
			if ttl <= 0 {
				ttl = time.Minute
			}
			_ = b.redis.CacheEventWindow(ctx, start, end, payload, ttl)
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*domain.NormalizedEvent), nil
}

func windowKey(start, end time.Time) string {
	return fmt.Sprintf("%d:%d", start.Unix(), end.Unix())
}
