package core

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var ErrClientNotConfigured = errors.New("core: client is not configured")

// Client owns one dispatcher and one telemetry ledger. Applications create
// it once per installation and share it between callers.
type Client struct {
	config            Config
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
	ledger            *TelemetryLedger
	dispatcher        *Dispatcher
}

type ClientDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	TelemetryCache    LastRequestTelemetryCache
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("authcore", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("authcore"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.telemetryCache == nil && builder.repositoryFactory != nil {
		switch factory := builder.repositoryFactory.(type) {
		case TelemetryCacheFactory:
			cache, buildErr := factory.BuildTelemetryCache(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.telemetryCache = cache
		case LastRequestTelemetryCache:
			builder.telemetryCache = factory
		}
	}
	if builder.telemetryCache == nil {
		builder.telemetryCache = NewMemoryLastRequestTelemetryCache()
	}

	ledger := NewTelemetryLedger(
		builder.telemetryCache,
		finalConfig.ledgerConfig(),
		logger,
		builder.metricsRecorder,
	)
	dispatcher := NewDispatcher(
		ledger,
		finalConfig.dispatcherConfig(),
		logger,
		builder.metricsRecorder,
	)

	return &Client{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		telemetryCache:    builder.telemetryCache,
		ledger:            ledger,
		dispatcher:        dispatcher,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Client, error) {
	return NewClient(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Client) Dependencies() ClientDependencies {
	if c == nil {
		return ClientDependencies{}
	}
	return ClientDependencies{
		Logger:            c.logger,
		LoggerProvider:    c.loggerProvider,
		MetricsRecorder:   c.metricsRecorder,
		ErrorFactory:      c.errorFactory,
		ErrorMapper:       c.errorMapper,
		PersistenceClient: c.persistenceClient,
		RepositoryFactory: c.repositoryFactory,
		ConfigProvider:    c.configProvider,
		OptionsResolver:   c.optionsResolver,
		TelemetryCache:    c.telemetryCache,
	}
}

func (c *Client) Dispatcher() *Dispatcher {
	if c == nil {
		return nil
	}
	return c.dispatcher
}

func (c *Client) Ledger() *TelemetryLedger {
	if c == nil {
		return nil
	}
	return c.ledger
}

func (c *Client) Submit(ctx context.Context, cmd Command) *ResultFuture {
	if c == nil || c.dispatcher == nil {
		return failedFuture(cmd, ErrClientNotConfigured)
	}
	return c.dispatcher.Submit(ctx, c.prepare(cmd))
}

func (c *Client) SubmitWithCallback(ctx context.Context, cmd Command, callback CommandCallback) *ResultFuture {
	if c == nil || c.dispatcher == nil {
		future := failedFuture(cmd, ErrClientNotConfigured)
		future.OnComplete(func(result CommandResult, _ error) { callback.deliver(result) })
		return future
	}
	return c.dispatcher.SubmitWithCallback(ctx, c.prepare(cmd), callback)
}

func (c *Client) Execute(ctx context.Context, cmd Command) CommandResult {
	if c == nil || c.dispatcher == nil {
		return ErrorResult(cmd.CorrelationID, mapBuildError(defaultErrorMapper, ErrClientNotConfigured))
	}
	return c.dispatcher.Execute(ctx, c.prepare(cmd))
}

func (c *Client) OutstandingCommandCount() int {
	if c == nil {
		return 0
	}
	return c.dispatcher.OutstandingCommandCount()
}

// TelemetryHeaders returns the telemetry headers for the command running in
// ctx. Protocol code calls it right before each token endpoint request.
func (c *Client) TelemetryHeaders(ctx context.Context) map[string]string {
	if c == nil || c.ledger == nil {
		return map[string]string{}
	}
	return c.ledger.Headers(ctx)
}

func (c *Client) LastRequestTelemetry(ctx context.Context) (LastRequestTelemetry, bool) {
	if c == nil || c.ledger == nil {
		return LastRequestTelemetry{}, false
	}
	return c.ledger.LastRequestTelemetry(ctx)
}

func (c *Client) Emit(ctx context.Context, key string, value string) {
	if c == nil {
		return
	}
	c.ledger.Emit(ctx, key, value)
}

func (c *Client) EmitAll(ctx context.Context, values map[string]string) {
	if c == nil {
		return
	}
	c.ledger.EmitAll(ctx, values)
}

func (c *Client) EmitAPIID(ctx context.Context, apiID string) {
	if c == nil {
		return
	}
	c.ledger.EmitAPIID(ctx, apiID)
}

func (c *Client) EmitForceRefresh(ctx context.Context, forceRefresh bool) {
	if c == nil {
		return
	}
	c.ledger.EmitForceRefresh(ctx, forceRefresh)
}

func (c *Client) prepare(cmd Command) Command {
	if c.config.Telemetry.Disabled {
		cmd.TelemetryEligible = false
	}
	return cmd
}

func failedFuture(cmd Command, err error) *ResultFuture {
	future := NewFuture[CommandResult]()
	future.Complete(ErrorResult(cmd.CorrelationID, mapBuildError(defaultErrorMapper, err)))
	return future
}
