package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-authcore/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

// Job ids for the command types that may run in the background. Interactive
// commands are never queued.
var (
	JobIDAcquireTokenSilent  = JobID(core.CommandTypeAcquireTokenSilent)
	JobIDGetAccounts         = JobID(core.CommandTypeGetAccounts)
	JobIDRemoveAccount       = JobID(core.CommandTypeRemoveAccount)
	JobIDDeviceCodeFlowToken = JobID(core.CommandTypeDeviceCodeFlowToken)
)

// JobID returns the queue job id for a command type.
func JobID(commandType core.CommandType) string {
	return core.JobIDCommandPrefix + strings.TrimSpace(string(commandType))
}

// RetryPolicy bounds how often a failed command job goes back on the queue.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func (p RetryPolicy) exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Apply clamps the nack delay and decides between requeue, dead letter and
// failure. Once attempts are exhausted a job is never requeued; it is dead
// lettered when DeadLetterOnMax is set and marked failed otherwise.
func (p RetryPolicy) Apply(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := core.JobNackOptions{
		Delay:      max(opts.Delay, 0),
		Reason:     strings.TrimSpace(opts.Reason),
		DeadLetter: opts.DeadLetter,
		Requeue:    opts.Requeue && !opts.DeadLetter,
	}
	if p.MaxDelay > 0 {
		out.Delay = min(out.Delay, p.MaxDelay)
	}
	switch {
	case p.exhausted(attempt):
		out.Requeue = false
		out.DeadLetter = out.DeadLetter || p.DeadLetterOnMax
	case !out.Requeue && !out.DeadLetter:
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage converts a core job message for go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage converts a go-job message for the command runner.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func toQueueNack(opts core.JobNackOptions) queue.NackOptions {
	disposition := queue.NackDispositionFailed
	switch {
	case opts.DeadLetter:
		disposition = queue.NackDispositionDeadLetter
	case opts.Requeue:
		disposition = queue.NackDispositionRetry
	}
	return queue.NackOptions{
		Disposition: disposition,
		Delay:       opts.Delay,
		Reason:      opts.Reason,
	}
}

// EnqueuerAdapter publishes command jobs on a go-job queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	return err
}

// EnqueueCommand queues a background command and returns its correlation id.
func (a *EnqueuerAdapter) EnqueueCommand(ctx context.Context, commandType core.CommandType, apiID string, params map[string]any) (string, error) {
	if commandType == core.CommandTypeAcquireTokenInteractive {
		return "", fmt.Errorf("gojob: interactive commands cannot be queued")
	}
	msg := core.NewCommandJobMessage(commandType, core.UnsetCorrelationID, apiID, params)
	if err := a.Enqueue(ctx, msg); err != nil {
		return "", err
	}
	correlationID, _ := msg.Parameters[core.JobParamCorrelationID].(string)
	return correlationID, nil
}

// DeliveryAdapter exposes a go-job delivery to the command runner.
type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) configured() error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return nil
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d.configured() != nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if err := d.configured(); err != nil {
		return err
	}
	return d.delivery.Ack(ctx)
}

// Attempts reports the backend's delivery count when it keeps one and the
// attempt job parameter otherwise.
func (d *DeliveryAdapter) Attempts() int {
	if attempts, ok := d.backendAttempts(); ok {
		return attempts
	}
	return core.JobAttempt(d.Message())
}

func (d *DeliveryAdapter) backendAttempts() (int, bool) {
	if d.configured() != nil {
		return 0, false
	}
	reader, ok := d.delivery.(core.JobAttemptsReader)
	if !ok {
		return 0, false
	}
	attempts := reader.Attempts()
	return attempts, attempts > 0
}

// Nack applies the retry policy to the current attempt.
func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, d.Attempts())
}

// NackForAttempt applies the retry policy for attempt. When the backend does
// not count deliveries, a requeued message carries attempt+1 so the policy
// sees the next delivery.
func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if err := d.configured(); err != nil {
		return err
	}
	applied := d.policy.Apply(opts, attempt)
	if _, counted := d.backendAttempts(); applied.Requeue && !counted {
		if msg := d.delivery.Message(); msg != nil {
			if msg.Parameters == nil {
				msg.Parameters = map[string]any{}
			}
			msg.Parameters[core.JobParamAttempt] = max(attempt, 1) + 1
		}
	}
	return d.delivery.Nack(ctx, toQueueNack(applied))
}

// DequeuerAdapter pulls go-job deliveries for the command runner.
type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

// Dequeue returns nil, nil when the queue is empty.
func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// RunnerConfig wires a go-job dequeuer into a background command runner.
type RunnerConfig struct {
	Client      core.CommandClient
	Controllers map[core.CommandType]core.Controller
	Dequeuer    queue.Dequeuer
	Policy      RetryPolicy
	Backoff     core.RetryBackoffScheduler
	Hook        core.JobWorkerHook
}

// NewBackgroundRunner builds a core runner that consumes go-job deliveries.
func NewBackgroundRunner(cfg RunnerConfig) (*core.BackgroundCommandRunner, error) {
	if cfg.Dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	if len(cfg.Controllers) == 0 {
		return nil, fmt.Errorf("gojob: at least one controller is required")
	}
	return core.NewBackgroundCommandRunner(
		cfg.Client,
		core.NewControllerCommandResolver(cfg.Controllers),
		NewDequeuerAdapter(cfg.Dequeuer, cfg.Policy),
		cfg.Backoff,
		cfg.Hook,
	)
}

// WorkerHookAdapter forwards go-job worker events to a core hook.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnStart)
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnSuccess)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnFailure)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnRetry)
}

func (a *WorkerHookAdapter) forward(
	ctx context.Context,
	event worker.Event,
	phase func(core.JobWorkerHook, context.Context, core.JobWorkerEvent),
) {
	if a == nil || a.hook == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	phase(a.hook, ctx, core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	})
}

func cloneParameters(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	return maps.Clone(in)
}

var (
	_ core.JobEnqueuer       = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery       = (*DeliveryAdapter)(nil)
	_ core.JobAttemptsReader = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer       = (*DequeuerAdapter)(nil)
	_ worker.Hook            = (*WorkerHookAdapter)(nil)
)
