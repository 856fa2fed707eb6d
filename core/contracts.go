package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// TelemetryCacheFactory builds a persistent LastRequestTelemetryCache from a
// persistence client, for example a *bun.DB.
type TelemetryCacheFactory interface {
	BuildTelemetryCache(persistenceClient any) (LastRequestTelemetryCache, error)
}

// CommandClient is the caller facing surface of the dispatch core.
type CommandClient interface {
	Submit(ctx context.Context, cmd Command) *ResultFuture
	SubmitWithCallback(ctx context.Context, cmd Command, callback CommandCallback) *ResultFuture
	Execute(ctx context.Context, cmd Command) CommandResult
	OutstandingCommandCount() int
	TelemetryHeaders(ctx context.Context) map[string]string
	LastRequestTelemetry(ctx context.Context) (LastRequestTelemetry, bool)
}

// HeaderSource provides telemetry headers for outbound protocol requests.
type HeaderSource interface {
	TelemetryHeaders(ctx context.Context) map[string]string
}

// HTTPDoer is the outbound HTTP surface used by controllers.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CommandResolver turns a queued job message into a command. ok is false
// when the message is not a command this resolver knows.
type CommandResolver interface {
	ResolveCommand(ctx context.Context, msg *JobExecutionMessage) (cmd Command, ok bool, err error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

// JobAttemptsReader is implemented by deliveries whose backend counts
// delivery attempts.
type JobAttemptsReader interface {
	Attempts() int
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
