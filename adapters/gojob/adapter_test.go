package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-authcore/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestMessageMapping_TrimsAndCopiesParameters(t *testing.T) {
	params := map[string]any{"scope": "user.read"}
	converted := ToExecutionMessage(&core.JobExecutionMessage{
		JobID:          " " + JobIDAcquireTokenSilent + " ",
		Parameters:     params,
		IdempotencyKey: "idem-1",
		DedupPolicy:    "drop",
	})
	if converted.JobID != JobIDAcquireTokenSilent || converted.DedupPolicy != job.DeduplicationPolicy("drop") {
		t.Fatalf("unexpected go-job message %+v", converted)
	}
	params["scope"] = "mutated"

	back := FromExecutionMessage(converted)
	if back.Parameters["scope"] != "user.read" || back.IdempotencyKey != "idem-1" {
		t.Fatalf("expected detached parameters, got %+v", back)
	}
	if ToExecutionMessage(nil) != nil || FromExecutionMessage(nil) != nil {
		t.Fatalf("expected nil messages to stay nil")
	}
	if JobID(core.CommandTypeRemoveAccount) != "authcore.command.remove_account" {
		t.Fatalf("unexpected job id %q", JobID(core.CommandTypeRemoveAccount))
	}
}

func TestEnqueueAndDequeueAdapters(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	enqueueAdapter := NewEnqueuerAdapter(enqueuer)

	msg := &core.JobExecutionMessage{
		JobID:          JobIDGetAccounts,
		ScriptPath:     JobIDGetAccounts,
		Parameters:     map[string]any{"home_account_id": "h1"},
		IdempotencyKey: "idem-accounts",
		DedupPolicy:    "merge",
	}
	if err := enqueueAdapter.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDGetAccounts {
		t.Fatalf("expected mapped go-job message")
	}

	dequeuer := &stubQueueDequeuer{delivery: &stubQueueDelivery{msg: enqueuer.last}}
	dequeueAdapter := NewDequeuerAdapter(dequeuer, RetryPolicy{})
	delivery, err := dequeueAdapter.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	got := delivery.Message()
	if got == nil || got.JobID != JobIDGetAccounts {
		t.Fatalf("expected mapped core message")
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !dequeuer.delivery.(*stubQueueDelivery).acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestRetryPolicyApply(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}
	cases := []struct {
		name    string
		policy  RetryPolicy
		opts    core.JobNackOptions
		attempt int
		want    core.JobNackOptions
	}{
		{
			name:    "delay is capped",
			policy:  policy,
			opts:    core.JobNackOptions{Delay: 30 * time.Second, Requeue: true, Reason: " transient "},
			attempt: 1,
			want:    core.JobNackOptions{Delay: 10 * time.Second, Requeue: true, Reason: "transient"},
		},
		{
			name:    "bare nack requeues",
			policy:  policy,
			opts:    core.JobNackOptions{Delay: -time.Second},
			attempt: 2,
			want:    core.JobNackOptions{Requeue: true},
		},
		{
			name:    "exhausted attempts dead letter",
			policy:  policy,
			opts:    core.JobNackOptions{Delay: time.Second, Requeue: true},
			attempt: 3,
			want:    core.JobNackOptions{Delay: time.Second, DeadLetter: true},
		},
		{
			name:    "exhausted attempts drop without dead letter",
			policy:  RetryPolicy{MaxAttempts: 2},
			opts:    core.JobNackOptions{Requeue: true},
			attempt: 2,
			want:    core.JobNackOptions{},
		},
		{
			name:    "explicit dead letter wins over requeue",
			policy:  RetryPolicy{},
			opts:    core.JobNackOptions{Requeue: true, DeadLetter: true, Reason: "invalid_grant"},
			attempt: 1,
			want:    core.JobNackOptions{DeadLetter: true, Reason: "invalid_grant"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.Apply(tc.opts, tc.attempt); got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestNackForAttempt_ForwardsPolicyOutcome(t *testing.T) {
	rawDelivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDRemoveAccount}}
	adapter := NewDeliveryAdapter(rawDelivery, RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true})

	if err := adapter.NackForAttempt(context.Background(), core.JobNackOptions{Delay: 30 * time.Second, Requeue: true}, 1); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if rawDelivery.nackOpts.Disposition != queue.NackDispositionRetry || rawDelivery.nackOpts.Delay != 10*time.Second {
		t.Fatalf("unexpected nack options %+v", rawDelivery.nackOpts)
	}

	var empty *DeliveryAdapter
	if err := empty.NackForAttempt(context.Background(), core.JobNackOptions{}, 1); err == nil {
		t.Fatalf("expected unconfigured delivery error")
	}
}

func TestNackUsesMessageAttempt(t *testing.T) {
	rawDelivery := &stubQueueDelivery{
		msg: &job.ExecutionMessage{
			JobID:      JobIDAcquireTokenSilent,
			Parameters: map[string]any{core.JobParamAttempt: 5},
		},
	}
	adapter := NewDeliveryAdapter(rawDelivery, RetryPolicy{MaxAttempts: 5, DeadLetterOnMax: true})
	if err := adapter.Nack(context.Background(), core.JobNackOptions{Requeue: true}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if rawDelivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %+v", rawDelivery.nackOpts)
	}

	rawDelivery.msg.Parameters[core.JobParamAttempt] = 1
	if err := adapter.Nack(context.Background(), core.JobNackOptions{Requeue: true}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if rawDelivery.nackOpts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected requeue on first attempt")
	}
	if got := rawDelivery.msg.Parameters[core.JobParamAttempt]; got != 2 {
		t.Fatalf("expected requeued message to carry attempt 2, got %v", got)
	}
}

func TestBackendAttemptsDriveRetryPolicy(t *testing.T) {
	rawDelivery := &countedQueueDelivery{
		stubQueueDelivery: stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDAcquireTokenSilent}},
		attempts:          3,
	}
	adapter := NewDeliveryAdapter(rawDelivery, RetryPolicy{MaxAttempts: 3})
	if got := adapter.Attempts(); got != 3 {
		t.Fatalf("expected backend attempt count, got %d", got)
	}
	if err := adapter.Nack(context.Background(), core.JobNackOptions{Requeue: true, Reason: "temporarily_unavailable"}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if rawDelivery.nackOpts.Disposition != queue.NackDispositionFailed {
		t.Fatalf("expected exhausted job to stop retrying, got %+v", rawDelivery.nackOpts)
	}
	if _, ok := rawDelivery.msg.Parameters[core.JobParamAttempt]; ok {
		t.Fatalf("backend counted attempts must not be written to the message")
	}
}

func TestNewBackgroundRunner_StopsRetryingAtMaxAttempts(t *testing.T) {
	client, err := core.NewClient(core.Config{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	controllers := map[core.CommandType]core.Controller{
		core.CommandTypeAcquireTokenSilent: core.ControllerFunc{Name: "silent", TokenEndpoint: true, Fn: func(context.Context, core.Command) (any, error) {
			return nil, core.NewServiceFault(503, "temporarily_unavailable", "")
		}},
	}
	msg := core.NewCommandJobMessage(core.CommandTypeAcquireTokenSilent, "corr-retry", "", nil)
	rawDelivery := &countedQueueDelivery{stubQueueDelivery: stubQueueDelivery{msg: ToExecutionMessage(msg)}, attempts: 4}
	hook := &capturingHook{}

	runner, err := NewBackgroundRunner(RunnerConfig{
		Client:      client,
		Controllers: controllers,
		Dequeuer:    &stubQueueDequeuer{delivery: rawDelivery},
		Policy:      RetryPolicy{MaxAttempts: 3, DeadLetterOnMax: true},
		Backoff:     core.ExponentialBackoffScheduler{Initial: time.Second, Max: time.Minute},
		Hook:        hook,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if _, err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if rawDelivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter past max attempts, got %+v", rawDelivery.nackOpts)
	}
	if hook.last.Attempt != 4 || hook.last.Delay != 8*time.Second {
		t.Fatalf("expected backoff from backend attempt 4, got attempt=%d delay=%s", hook.last.Attempt, hook.last.Delay)
	}
}

func TestEnqueueCommand(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	adapter := NewEnqueuerAdapter(enqueuer)

	correlationID, err := adapter.EnqueueCommand(context.Background(), core.CommandTypeGetAccounts, "84", map[string]any{"home_account_id": "h1"})
	if err != nil {
		t.Fatalf("enqueue command: %v", err)
	}
	if correlationID == "" || enqueuer.last == nil {
		t.Fatalf("expected queued message with correlation id")
	}
	if enqueuer.last.JobID != JobIDGetAccounts || enqueuer.last.IdempotencyKey != correlationID {
		t.Fatalf("unexpected queued message %+v", enqueuer.last)
	}
	if enqueuer.last.Parameters[core.JobParamAPIID] != "84" {
		t.Fatalf("expected api id parameter, got %v", enqueuer.last.Parameters)
	}

	if _, err := adapter.EnqueueCommand(context.Background(), core.CommandTypeAcquireTokenInteractive, "", nil); err == nil {
		t.Fatalf("expected interactive commands to be rejected")
	}
}

func TestNewBackgroundRunner_ExecutesQueuedCommand(t *testing.T) {
	client, err := core.NewClient(core.Config{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var seen core.Command
	controllers := map[core.CommandType]core.Controller{
		core.CommandTypeGetAccounts: core.ControllerFunc{Name: "accounts", Fn: func(_ context.Context, cmd core.Command) (any, error) {
			seen = cmd
			return []string{"a1"}, nil
		}},
	}
	msg := core.NewCommandJobMessage(core.CommandTypeGetAccounts, "corr-q", "", map[string]any{"home_account_id": "h1"})
	rawDelivery := &stubQueueDelivery{msg: ToExecutionMessage(msg)}
	hook := &capturingHook{}

	runner, err := NewBackgroundRunner(RunnerConfig{
		Client:      client,
		Controllers: controllers,
		Dequeuer:    &stubQueueDequeuer{delivery: rawDelivery},
		Policy:      RetryPolicy{MaxAttempts: 3},
		Hook:        hook,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	out, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !out.Acked || !rawDelivery.acked {
		t.Fatalf("expected acked delivery, got %+v", out)
	}
	if seen.CorrelationID != "corr-q" || seen.Type != core.CommandTypeGetAccounts {
		t.Fatalf("unexpected command %+v", seen)
	}
	if hook.successes != 1 {
		t.Fatalf("expected success hook, got %d", hook.successes)
	}
}

func TestNewBackgroundRunner_RequiresDequeuerAndControllers(t *testing.T) {
	if _, err := NewBackgroundRunner(RunnerConfig{}); err == nil {
		t.Fatalf("expected missing dequeuer error")
	}
	if _, err := NewBackgroundRunner(RunnerConfig{Dequeuer: &stubQueueDequeuer{}}); err == nil {
		t.Fatalf("expected missing controllers error")
	}
}

func TestDequeuerAdapter_EmptyQueue(t *testing.T) {
	adapter := NewDequeuerAdapter(&stubQueueDequeuer{}, RetryPolicy{})
	delivery, err := adapter.Dequeue(context.Background())
	if err != nil || delivery != nil {
		t.Fatalf("expected empty dequeue, got %v err=%v", delivery, err)
	}
}

func TestWorkerHookAdapterEventMapping(t *testing.T) {
	now := time.Now().UTC().Add(-time.Second)
	coreHook := &capturingHook{}
	adapter := NewWorkerHookAdapter(coreHook)

	evt := worker.Event{
		Message: &job.ExecutionMessage{
			JobID:          JobIDDeviceCodeFlowToken,
			ScriptPath:     JobIDDeviceCodeFlowToken,
			IdempotencyKey: "idem-device",
		},
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: now,
		Duration:  250 * time.Millisecond,
	}

	adapter.OnRetry(context.Background(), evt)
	if coreHook.last.Message == nil {
		t.Fatalf("expected worker message mapping")
	}
	if coreHook.last.Message.JobID != JobIDDeviceCodeFlowToken {
		t.Fatalf("expected job id mapping, got %q", coreHook.last.Message.JobID)
	}
	if coreHook.last.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", coreHook.last.Attempt)
	}
	if coreHook.last.Delay != 5*time.Second {
		t.Fatalf("expected delay 5s, got %s", coreHook.last.Delay)
	}
	if coreHook.last.Duration != 250*time.Millisecond {
		t.Fatalf("expected duration mapping")
	}
	if coreHook.last.StartedAt.IsZero() {
		t.Fatalf("expected started_at mapping")
	}
	if coreHook.last.Err == nil || coreHook.last.Err.Error() != "retry" {
		t.Fatalf("expected error mapping")
	}
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	s.last = msg
	return queue.EnqueueReceipt{DispatchID: "dispatch-1"}, nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	last      core.JobWorkerEvent
	successes int
}

func (h *capturingHook) OnStart(context.Context, core.JobWorkerEvent) {}
func (h *capturingHook) OnSuccess(context.Context, core.JobWorkerEvent) {
	h.successes++
}
func (h *capturingHook) OnFailure(context.Context, core.JobWorkerEvent) {}
func (h *capturingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.last = event
}

type countedQueueDelivery struct {
	stubQueueDelivery
	attempts int
}

func (d *countedQueueDelivery) Attempts() int { return d.attempts }
