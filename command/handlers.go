package command

import (
	"context"

	"github.com/goliatone/go-authcore/core"
	gocmd "github.com/goliatone/go-command"
)

type Executor interface {
	Execute(ctx context.Context, cmd core.Command) core.CommandResult
}

type Submitter interface {
	SubmitWithCallback(ctx context.Context, cmd core.Command, callback core.CommandCallback) *core.ResultFuture
}

type TelemetryEmitter interface {
	EmitAll(ctx context.Context, values map[string]string)
}

// ExecuteCommand blocks until the command finishes. The full result is stored
// in the go-command result collector; an error result is also returned.
type ExecuteCommand struct {
	executor Executor
}

func NewExecuteCommand(executor Executor) *ExecuteCommand {
	return &ExecuteCommand{executor: executor}
}

func (c *ExecuteCommand) Execute(ctx context.Context, msg ExecuteMessage) error {
	if c == nil || c.executor == nil {
		return commandDependencyError("command: command executor is required")
	}
	result := c.executor.Execute(ctx, msg.Command)
	storeResult(ctx, result)
	if result.Status == core.ResultError {
		return result.Err
	}
	return nil
}

// SubmitCommand schedules the command and stores its future.
type SubmitCommand struct {
	submitter Submitter
}

func NewSubmitCommand(submitter Submitter) *SubmitCommand {
	return &SubmitCommand{submitter: submitter}
}

func (c *SubmitCommand) Execute(ctx context.Context, msg SubmitMessage) error {
	if c == nil || c.submitter == nil {
		return commandDependencyError("command: command submitter is required")
	}
	future := c.submitter.SubmitWithCallback(ctx, msg.Command, msg.Callback)
	storeResult(ctx, future)
	return nil
}

type EmitTelemetryCommand struct {
	emitter TelemetryEmitter
}

func NewEmitTelemetryCommand(emitter TelemetryEmitter) *EmitTelemetryCommand {
	return &EmitTelemetryCommand{emitter: emitter}
}

func (c *EmitTelemetryCommand) Execute(ctx context.Context, msg EmitTelemetryMessage) error {
	if c == nil || c.emitter == nil {
		return commandDependencyError("command: telemetry emitter is required")
	}
	c.emitter.EmitAll(ctx, msg.Values)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
