package lifecycle

import (
	"github.com/iff-guardian/fusion/internal/correlation"
	"github.com/iff-guardian/fusion/internal/orchestrator"
	"github.com/iff-guardian/fusion/internal/registry"
	"github.com/iff-guardian/fusion/pkg/database"
	"github.com/iff-guardian/fusion/pkg/redis"
)

var (
	_ SyncScheduler     = (*orchestrator.Orchestrator)(nil)
	_ TickRunner        = (*correlation.Engine)(nil)
	_ AdapterShutdowner = (*registry.Registry)(nil)
	_ Closer            = (*database.DB)(nil)
	_ Closer            = (*redis.Client)(nil)
)
