package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-authcore/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type FactoryOption func(*RepositoryFactory)

// WithInstallationKey selects the telemetry row owned by this process.
func WithInstallationKey(key string) FactoryOption {
	return func(f *RepositoryFactory) {
		f.installationKey = normalizeInstallationKey(key)
	}
}

// WithCacheService wraps the telemetry store in a read-through cache.
func WithCacheService(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheService = cacheService
	}
}

type RepositoryFactory struct {
	db              *bun.DB
	installationKey string
	cacheService    repositorycache.CacheService

	telemetryStore *LastRequestTelemetryStore
	telemetryCache core.LastRequestTelemetryCache
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{installationKey: DefaultInstallationKey}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildTelemetryCache(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildTelemetryCache(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildTelemetryCache resolves a bun db from persistenceClient and returns
// the telemetry store, cached when a cache service was configured.
func (f *RepositoryFactory) BuildTelemetryCache(persistenceClient any) (core.LastRequestTelemetryCache, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.telemetryCache != nil {
		return f.telemetryCache, nil
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	store, err := NewLastRequestTelemetryStore(f.db, f.installationKey)
	if err != nil {
		return nil, err
	}
	f.telemetryStore = store
	f.telemetryCache = store
	if f.cacheService != nil {
		cached, err := NewCachedLastRequestTelemetryStore(store, f.cacheService, f.installationKey)
		if err != nil {
			return nil, err
		}
		f.telemetryCache = cached
	}
	return f.telemetryCache, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) LastRequestTelemetryStore() *LastRequestTelemetryStore {
	if f == nil {
		return nil
	}
	return f.telemetryStore
}

func (f *RepositoryFactory) TelemetryCache() core.LastRequestTelemetryCache {
	if f == nil {
		return nil
	}
	return f.telemetryCache
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
