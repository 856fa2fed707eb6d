package authcore

import "github.com/goliatone/go-authcore/core"

type Config = core.Config

type Option = core.Option

type Client = core.Client

type ClientDependencies = core.ClientDependencies

type Command = core.Command
type CommandType = core.CommandType
type CommandResult = core.CommandResult
type CommandCallback = core.CommandCallback
type ResultFuture = core.ResultFuture
type Controller = core.Controller
type ControllerFunc = core.ControllerFunc

type LastRequestTelemetry = core.LastRequestTelemetry
type LastRequestTelemetryCache = core.LastRequestTelemetryCache
type FailedRequest = core.FailedRequest

var (
	WithLogger                    = core.WithLogger
	WithLoggerProvider            = core.WithLoggerProvider
	WithMetricsRecorder           = core.WithMetricsRecorder
	WithErrorFactory              = core.WithErrorFactory
	WithErrorMapper               = core.WithErrorMapper
	WithPersistenceClient         = core.WithPersistenceClient
	WithRepositoryFactory         = core.WithRepositoryFactory
	WithConfigProvider            = core.WithConfigProvider
	WithOptionsResolver           = core.WithOptionsResolver
	WithLastRequestTelemetryCache = core.WithLastRequestTelemetryCache
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	return core.NewClient(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Client, error) {
	return core.Setup(cfg, opts...)
}
