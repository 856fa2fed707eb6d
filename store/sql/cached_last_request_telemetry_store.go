package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-authcore/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const lastRequestTelemetryCacheKeyPrefix = "go-authcore::last_request_telemetry::v1"

type cachedLastRequestTelemetry struct {
	Telemetry core.LastRequestTelemetry
	Found     bool
}

// CachedLastRequestTelemetryStore serves reads from a go-repository-cache
// service and invalidates the entry on every save.
type CachedLastRequestTelemetryStore struct {
	base     core.LastRequestTelemetryCache
	cache    repositorycache.CacheService
	cacheKey string
}

func NewCachedLastRequestTelemetryStore(
	base core.LastRequestTelemetryCache,
	cacheService repositorycache.CacheService,
	installationKey string,
) (*CachedLastRequestTelemetryStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base last request telemetry store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: last request telemetry cache service is required")
	}
	return &CachedLastRequestTelemetryStore{
		base:     base,
		cache:    cacheService,
		cacheKey: LastRequestTelemetryCacheKey(installationKey),
	}, nil
}

// LastRequestTelemetryCacheKey returns go-authcore::last_request_telemetry::v1::<installation_key>
// with the installation key URL-path escaped.
func LastRequestTelemetryCacheKey(installationKey string) string {
	segment := url.PathEscape(normalizeInstallationKey(installationKey))
	return strings.Join([]string{lastRequestTelemetryCacheKeyPrefix, segment}, "::")
}

func (s *CachedLastRequestTelemetryStore) Load(ctx context.Context) (core.LastRequestTelemetry, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.LastRequestTelemetry{}, false, fmt.Errorf("sqlstore: cached last request telemetry store is not configured")
	}
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, s.cacheKey, func(ctx context.Context) (cachedLastRequestTelemetry, error) {
		telemetry, found, fetchErr := s.base.Load(ctx)
		if fetchErr != nil {
			return cachedLastRequestTelemetry{}, fetchErr
		}
		return cachedLastRequestTelemetry{Telemetry: telemetry.Clone(), Found: found}, nil
	})
	if err != nil {
		return core.LastRequestTelemetry{}, false, err
	}
	if !entry.Found {
		return core.LastRequestTelemetry{}, false, nil
	}
	return entry.Telemetry.Clone(), true, nil
}

func (s *CachedLastRequestTelemetryStore) Save(ctx context.Context, telemetry core.LastRequestTelemetry) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached last request telemetry store is not configured")
	}
	if err := s.base.Save(ctx, telemetry); err != nil {
		return err
	}
	return s.cache.Delete(ctx, s.cacheKey)
}
