package core

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const defaultSilentPoolSize = 5

type DispatcherConfig struct {
	SilentPoolSize int
	InFlightShards int
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		SilentPoolSize: defaultSilentPoolSize,
		InFlightShards: defaultShardCount,
	}
}

// Dispatcher executes commands exactly once per equivalent in-flight
// request. Silent commands share a bounded pool and are de-duplicated by
// their dedup key. Interactive commands run one at a time; a second
// interactive submission is rejected while one is active.
type Dispatcher struct {
	config      DispatcherConfig
	ledger      *TelemetryLedger
	silent      *semaphore.Weighted
	interactive atomic.Bool
	inflight    *inflightTable
	outstanding atomic.Int64
	obs         observer
}

func NewDispatcher(
	ledger *TelemetryLedger,
	config DispatcherConfig,
	logger Logger,
	metrics MetricsRecorder,
) *Dispatcher {
	if config.SilentPoolSize <= 0 {
		config.SilentPoolSize = DefaultDispatcherConfig().SilentPoolSize
	}
	if config.InFlightShards <= 0 {
		config.InFlightShards = DefaultDispatcherConfig().InFlightShards
	}
	if ledger == nil {
		ledger = NewTelemetryLedger(nil, DefaultTelemetryLedgerConfig(), logger, metrics)
	}
	return &Dispatcher{
		config:   config,
		ledger:   ledger,
		silent:   semaphore.NewWeighted(int64(config.SilentPoolSize)),
		inflight: newInflightTable(config.InFlightShards),
		obs:      newObserver(logger, metrics),
	}
}

func (d *Dispatcher) Ledger() *TelemetryLedger {
	if d == nil {
		return nil
	}
	return d.ledger
}

// Submit schedules cmd and returns the future its result is delivered to.
// Cancelling ctx never cancels the execution; it only stops the caller's own
// wait when the caller uses ctx with Future.Get.
func (d *Dispatcher) Submit(ctx context.Context, cmd Command) *ResultFuture {
	_, future := d.submit(ctx, cmd)
	return future
}

// SubmitWithCallback schedules cmd and delivers its result to exactly one
// handler of callback.
func (d *Dispatcher) SubmitWithCallback(ctx context.Context, cmd Command, callback CommandCallback) *ResultFuture {
	future := d.Submit(ctx, cmd)
	future.OnComplete(func(result CommandResult, _ error) {
		callback.deliver(result)
	})
	return future
}

// Execute submits cmd and waits for its result or for ctx to end.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) CommandResult {
	if ctx == nil {
		ctx = context.Background()
	}
	normalized, future := d.submit(ctx, cmd)
	result, err := future.Get(ctx)
	if err == nil {
		return result
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorResult(normalized.CorrelationID, NewLocalFault(FaultCodeTimeout, err.Error()))
	}
	return resultFromOutcome(normalized.CorrelationID, nil, err)
}

// OutstandingCommandCount is the number of executions scheduled and not yet
// finished. The count drops after telemetry is flushed and before waiters
// are notified, so a callback that submits follow-up work sees its own
// execution already excluded.
func (d *Dispatcher) OutstandingCommandCount() int {
	if d == nil {
		return 0
	}
	return int(d.outstanding.Load())
}

func (d *Dispatcher) submit(ctx context.Context, cmd Command) (Command, *ResultFuture) {
	if ctx == nil {
		ctx = context.Background()
	}
	future := NewFuture[CommandResult]()
	if !hasCorrelationID(cmd.CorrelationID) {
		cmd.CorrelationID = NewCorrelationID()
	}
	if err := cmd.Validate(); err != nil {
		future.Complete(ErrorResult(cmd.CorrelationID, err))
		return cmd, future
	}

	if cmd.Interactive {
		d.submitInteractive(ctx, cmd, future)
		return cmd, future
	}
	d.submitSilent(ctx, cmd, future)
	return cmd, future
}

func (d *Dispatcher) submitInteractive(ctx context.Context, cmd Command, future *ResultFuture) {
	if !d.interactive.CompareAndSwap(false, true) {
		d.obs.recordCounter(ctx, MetricInteractiveRejections, 1, map[string]string{"command_type": string(cmd.Type)})
		d.obs.logWarn(ctx, "interactive command rejected", map[string]any{
			"correlation_id": cmd.CorrelationID,
			"command_type":   string(cmd.Type),
		})
		future.Complete(ErrorResult(cmd.CorrelationID, newInteractiveInProgressFault()))
		return
	}
	d.beginTelemetry(cmd)

	entry, _ := d.inflight.attachOrCreate(uniqueKey("interactive"), future)
	d.trackScheduled(ctx)
	go d.run(ctx, cmd, entry, func() {
		d.interactive.Store(false)
	})
}

func (d *Dispatcher) submitSilent(ctx context.Context, cmd Command, future *ResultFuture) {
	opened := d.beginTelemetry(cmd)

	key, err := DedupKey(cmd)
	if err != nil {
		d.obs.logWarn(ctx, "command dedup key unavailable, running without dedup", map[string]any{
			"correlation_id": cmd.CorrelationID,
			"command_type":   string(cmd.Type),
			"error":          err.Error(),
		})
		key = uniqueKey("silent")
	}

	entry, created := d.inflight.attachOrCreate(key, future)
	if !created {
		// The running execution flushes under its own correlation id. A
		// resubmission carrying that id shares the open entry, so only an
		// entry this submission opened is dropped.
		if opened {
			d.ledger.Discard(cmd.CorrelationID)
		}
		d.obs.recordCounter(ctx, MetricDeduplicatedCommands, 1, map[string]string{"command_type": string(cmd.Type)})
		return
	}
	d.trackScheduled(ctx)
	go func() {
		// Background acquire cannot fail.
		_ = d.silent.Acquire(context.Background(), 1)
		d.run(ctx, cmd, entry, func() {
			d.silent.Release(1)
		})
	}()
}

// beginTelemetry opens the ledger entry for cmd and reports whether this
// call opened it.
func (d *Dispatcher) beginTelemetry(cmd Command) bool {
	if !cmd.TelemetryEligible || !d.ledger.Init(cmd) {
		return false
	}
	if apiID := strings.TrimSpace(cmd.APIID); apiID != "" {
		d.ledger.emitFor(cmd.CorrelationID, map[string]string{TelemetryKeyAPIID: apiID})
	}
	return true
}

// run executes cmd once, flushes telemetry, then delivers the same result to
// every waiter attached to entry. release frees the pool slot before
// delivery so observers may submit follow-up work.
func (d *Dispatcher) run(ctx context.Context, cmd Command, entry *inflightEntry, release func()) {
	startedAt := time.Now()
	execCtx := d.executionContext(ctx, cmd)
	result := d.execute(execCtx, cmd)

	if cmd.TelemetryEligible {
		d.ledger.Flush(execCtx, cmd, result)
	}
	waiters := d.inflight.complete(entry)
	release()
	remaining := d.outstanding.Add(-1)
	d.obs.recordGauge(execCtx, MetricCommandsOutstanding, float64(remaining), nil)

	for _, waiter := range waiters {
		waiter.Complete(result)
	}

	var runErr error
	if result.Status == ResultError {
		runErr = result.Err
	}
	d.obs.observeOperation(execCtx, startedAt, "command."+string(cmd.Type), string(result.Status), runErr, map[string]any{
		"correlation_id": cmd.CorrelationID,
		"command_type":   string(cmd.Type),
		"controller_id":  cmd.ControllerID(),
		"error_code":     result.ErrorCode(),
		"waiters":        len(waiters),
	})
}

func (d *Dispatcher) execute(ctx context.Context, cmd Command) (result CommandResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = ErrorResult(cmd.CorrelationID, panicFault(recovered))
		}
	}()
	value, err := cmd.Controller.Execute(ctx, cmd)
	return resultFromOutcome(cmd.CorrelationID, value, err)
}

// executionContext detaches the execution from the submitter's cancellation
// and carries the correlation id and ledger for emission.
func (d *Dispatcher) executionContext(ctx context.Context, cmd Command) context.Context {
	execCtx := context.WithoutCancel(ctx)
	execCtx = WithCorrelationID(execCtx, cmd.CorrelationID)
	return ContextWithLedger(execCtx, d.ledger)
}

func (d *Dispatcher) trackScheduled(ctx context.Context) {
	outstanding := d.outstanding.Add(1)
	d.obs.recordGauge(ctx, MetricCommandsOutstanding, float64(outstanding), nil)
}
