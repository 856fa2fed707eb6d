package sqlstore

import "github.com/goliatone/go-authcore/core"

var (
	_ core.LastRequestTelemetryCache = (*LastRequestTelemetryStore)(nil)
	_ core.LastRequestTelemetryCache = (*CachedLastRequestTelemetryStore)(nil)
	_ core.TelemetryCacheFactory     = (*RepositoryFactory)(nil)
)
