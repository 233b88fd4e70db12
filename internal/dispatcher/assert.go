package dispatcher

import (
	"github.com/iff-guardian/fusion/internal/registry"
	"github.com/iff-guardian/fusion/pkg/database"
)

var (
	_ AdapterResolver = (*registry.Registry)(nil)
	_ Store           = (*database.Repository)(nil)
)
