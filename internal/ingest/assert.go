package ingest

import (
	"github.com/iff-guardian/fusion/pkg/database"
	"github.com/iff-guardian/fusion/pkg/redis"
)

var (
	_ Store    = (*database.Repository)(nil)
	_ Counters = (*redis.Client)(nil)
)
