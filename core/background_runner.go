package core

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	JobIDCommandPrefix = "authcore.command."

	JobParamCommandType   = "command_type"
	JobParamCorrelationID = "correlation_id"
	JobParamAPIID         = "api_id"
	JobParamAttempt       = "attempt"

	JobDedupPolicyDrop = "drop"

	defaultRetryInitialBackoff = 500 * time.Millisecond
	defaultRetryMaxBackoff     = 30 * time.Second
)

// NewCommandJobMessage builds the queue message that runs a silent command
// in the background. The correlation id doubles as the idempotency key.
func NewCommandJobMessage(
	commandType CommandType,
	correlationID string,
	apiID string,
	parameters map[string]any,
) *JobExecutionMessage {
	if !hasCorrelationID(correlationID) {
		correlationID = NewCorrelationID()
	}
	params := make(map[string]any, len(parameters)+3)
	for key, value := range parameters {
		params[key] = value
	}
	params[JobParamCommandType] = string(commandType)
	params[JobParamCorrelationID] = correlationID
	if apiID = strings.TrimSpace(apiID); apiID != "" {
		params[JobParamAPIID] = apiID
	}
	return &JobExecutionMessage{
		JobID:          JobIDCommandPrefix + string(commandType),
		ScriptPath:     JobIDCommandPrefix + string(commandType),
		Parameters:     params,
		IdempotencyKey: correlationID,
		DedupPolicy:    JobDedupPolicyDrop,
	}
}

type RetryBackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRetryInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRetryMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// ControllerCommandResolver maps queued messages to commands by the
// command_type parameter. Remaining parameters become the command
// parameters.
type ControllerCommandResolver struct {
	controllers map[CommandType]Controller
}

func NewControllerCommandResolver(controllers map[CommandType]Controller) *ControllerCommandResolver {
	copied := make(map[CommandType]Controller, len(controllers))
	for commandType, controller := range controllers {
		if controller != nil {
			copied[commandType] = controller
		}
	}
	return &ControllerCommandResolver{controllers: copied}
}

func (r *ControllerCommandResolver) ResolveCommand(_ context.Context, msg *JobExecutionMessage) (Command, bool, error) {
	if r == nil || msg == nil {
		return Command{}, false, nil
	}
	rawType, _ := msg.Parameters[JobParamCommandType].(string)
	commandType := CommandType(strings.TrimSpace(rawType))
	if commandType == "" && strings.HasPrefix(msg.JobID, JobIDCommandPrefix) {
		commandType = CommandType(strings.TrimPrefix(msg.JobID, JobIDCommandPrefix))
	}
	controller, ok := r.controllers[commandType]
	if !ok {
		return Command{}, false, nil
	}

	parameters := make(map[string]any, len(msg.Parameters))
	for key, value := range msg.Parameters {
		switch key {
		case JobParamCommandType, JobParamCorrelationID, JobParamAPIID, JobParamAttempt:
			continue
		}
		parameters[key] = value
	}
	cmd := NewCommand(commandType, controller, parameters)
	if correlationID, _ := msg.Parameters[JobParamCorrelationID].(string); hasCorrelationID(correlationID) {
		cmd.CorrelationID = correlationID
	}
	if apiID, _ := msg.Parameters[JobParamAPIID].(string); apiID != "" {
		cmd = cmd.WithAPIID(apiID)
	}
	return cmd, true, nil
}

type BackgroundRunResult struct {
	Message *JobExecutionMessage
	Result  CommandResult
	Acked   bool
	Retried bool
}

// BackgroundCommandRunner drains queued silent commands through the
// dispatcher, so queued work shares de-duplication and telemetry with
// foreground calls.
type BackgroundCommandRunner struct {
	client   CommandClient
	resolver CommandResolver
	dequeuer JobDequeuer
	backoff  RetryBackoffScheduler
	hook     JobWorkerHook
	now      func() time.Time
}

func NewBackgroundCommandRunner(
	client CommandClient,
	resolver CommandResolver,
	dequeuer JobDequeuer,
	backoff RetryBackoffScheduler,
	hook JobWorkerHook,
) (*BackgroundCommandRunner, error) {
	if client == nil {
		return nil, fmt.Errorf("core: command client is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("core: command resolver is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("core: job dequeuer is required")
	}
	if backoff == nil {
		backoff = ExponentialBackoffScheduler{}
	}
	return &BackgroundCommandRunner{
		client:   client,
		resolver: resolver,
		dequeuer: dequeuer,
		backoff:  backoff,
		hook:     hook,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// RunOnce dequeues one message and executes it. Transient service failures
// are requeued with backoff; anything else is dead-lettered.
func (r *BackgroundCommandRunner) RunOnce(ctx context.Context) (BackgroundRunResult, error) {
	if r == nil {
		return BackgroundRunResult{}, fmt.Errorf("core: background runner is not configured")
	}
	delivery, err := r.dequeuer.Dequeue(ctx)
	if err != nil {
		return BackgroundRunResult{}, err
	}
	if delivery == nil {
		return BackgroundRunResult{}, nil
	}
	msg := delivery.Message()
	out := BackgroundRunResult{Message: msg}
	if msg == nil {
		return out, delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "empty job message"})
	}

	cmd, ok, err := r.resolver.ResolveCommand(ctx, msg)
	if err != nil {
		return out, delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()})
	}
	if !ok {
		return out, delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "unknown command job " + msg.JobID})
	}
	cmd.Interactive = false

	attempt := DeliveryAttempt(delivery)
	startedAt := r.now()
	event := JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: startedAt}
	r.notify(ctx, "start", event)

	out.Result = r.client.Execute(ctx, cmd)
	event.Duration = r.now().Sub(startedAt)

	switch out.Result.Status {
	case ResultCompleted, ResultCancel:
		out.Acked = true
		r.notify(ctx, "success", event)
		return out, delivery.Ack(ctx)
	}

	event.Err = out.Result.Err
	if retryableFault(out.Result.Err) {
		event.Delay = r.backoff.NextDelay(attempt)
		out.Retried = true
		r.notify(ctx, "retry", event)
		return out, delivery.Nack(ctx, JobNackOptions{
			Delay:   event.Delay,
			Requeue: true,
			Reason:  FaultCode(out.Result.Err),
		})
	}
	r.notify(ctx, "failure", event)
	return out, delivery.Nack(ctx, JobNackOptions{
		DeadLetter: true,
		Reason:     FaultCode(out.Result.Err),
	})
}

func (r *BackgroundCommandRunner) notify(ctx context.Context, phase string, event JobWorkerEvent) {
	if r.hook == nil {
		return
	}
	switch phase {
	case "start":
		r.hook.OnStart(ctx, event)
	case "success":
		r.hook.OnSuccess(ctx, event)
	case "retry":
		r.hook.OnRetry(ctx, event)
	default:
		r.hook.OnFailure(ctx, event)
	}
}

// retryableFault reports service faults with no status, 429 or 5xx.
func retryableFault(err error) bool {
	status, ok := ServiceStatus(err)
	if !ok {
		return false
	}
	return status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// DeliveryAttempt returns the 1-based attempt of delivery. A count reported
// by the backend wins over the attempt job parameter.
func DeliveryAttempt(delivery JobDelivery) int {
	if delivery == nil {
		return 1
	}
	if reader, ok := delivery.(JobAttemptsReader); ok {
		if attempts := reader.Attempts(); attempts > 0 {
			return attempts
		}
	}
	return JobAttempt(delivery.Message())
}

// JobAttempt reads the 1-based delivery attempt from the job parameters.
func JobAttempt(msg *JobExecutionMessage) int {
	if msg == nil {
		return 1
	}
	switch value := msg.Parameters[JobParamAttempt].(type) {
	case int:
		if value > 0 {
			return value
		}
	case int64:
		if value > 0 {
			return int(value)
		}
	case float64:
		if value > 0 {
			return int(value)
		}
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 1
}
