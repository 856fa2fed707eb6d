package core

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type clientBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	telemetryCache    LastRequestTelemetryCache
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *clientBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *clientBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *clientBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory sets a factory that builds the last request
// telemetry cache from the persistence client. It must implement
// TelemetryCacheFactory or LastRequestTelemetryCache.
func WithRepositoryFactory(factory any) Option {
	return func(b *clientBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

func WithLastRequestTelemetryCache(cache LastRequestTelemetryCache) Option {
	return func(b *clientBuilder) {
		b.telemetryCache = cache
	}
}

func defaultClientBuilder(runtime Config) clientBuilder {
	loggerProvider, logger := glog.Resolve("authcore", nil, nil)
	return clientBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return authcoreErrorMapper(err)
}

// StaticConfigLoader serves a fixed raw config map, typically decoded from a
// file by the embedding application.
type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	return maps.Clone(l.Values), nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return buildConfig(raw, defaults)
}

// GoOptionsResolver layers defaults, loaded config and runtime config with
// go-options, later layers winning, then validates the merged result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(opts.NewScope("defaults", 0), configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults")),
		opts.NewLayer(opts.NewScope("config", 10), configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config")),
		opts.NewLayer(opts.NewScope("runtime", 20), configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime")),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	return buildConfig(merged.Value, defaults)
}

// buildConfig decodes raw over defaults with cfgx and validates the result.
func buildConfig(raw map[string]any, defaults Config) (Config, error) {
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// configToLayerMap flattens cfg into an options layer. Zero values are left
// out of non-default layers so they never mask a lower layer.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	dispatcher := map[string]any{}
	if includeZero || cfg.Dispatcher.SilentPoolSize > 0 {
		dispatcher["silent_pool_size"] = cfg.Dispatcher.SilentPoolSize
	}
	if includeZero || cfg.Dispatcher.InFlightShards > 0 {
		dispatcher["in_flight_shards"] = cfg.Dispatcher.InFlightShards
	}
	if len(dispatcher) > 0 {
		layer["dispatcher"] = dispatcher
	}

	telemetry := map[string]any{}
	if includeZero || cfg.Telemetry.Disabled {
		telemetry["disabled"] = cfg.Telemetry.Disabled
	}
	if includeZero || strings.TrimSpace(cfg.Telemetry.SchemaVersion) != "" {
		telemetry["schema_version"] = cfg.Telemetry.SchemaVersion
	}
	if includeZero || cfg.Telemetry.HeaderByteBudget > 0 {
		telemetry["header_byte_budget"] = cfg.Telemetry.HeaderByteBudget
	}
	if len(telemetry) > 0 {
		layer["telemetry"] = telemetry
	}
	return layer
}
