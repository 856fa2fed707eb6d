package command

import (
	"strings"

	"github.com/goliatone/go-authcore/core"
)

const (
	TypeExecute       = "authcore.command.execute"
	TypeSubmit        = "authcore.command.submit"
	TypeEmitTelemetry = "authcore.command.telemetry.emit"
)

// ExecuteMessage runs a command and waits for its result.
type ExecuteMessage struct {
	Command core.Command
}

func (ExecuteMessage) Type() string { return TypeExecute }

func (m ExecuteMessage) Validate() error {
	return validateCommand(m.Command)
}

// SubmitMessage schedules a command without waiting. Callback is optional.
type SubmitMessage struct {
	Command  core.Command
	Callback core.CommandCallback
}

func (SubmitMessage) Type() string { return TypeSubmit }

func (m SubmitMessage) Validate() error {
	return validateCommand(m.Command)
}

// EmitTelemetryMessage records platform telemetry for the command running in
// the dispatch context.
type EmitTelemetryMessage struct {
	Values map[string]string
}

func (EmitTelemetryMessage) Type() string { return TypeEmitTelemetry }

func (m EmitTelemetryMessage) Validate() error {
	if len(m.Values) == 0 {
		return commandValidationError("values", "at least one telemetry value is required")
	}
	for key := range m.Values {
		if strings.TrimSpace(key) == "" {
			return commandValidationError("values", "telemetry keys must not be empty")
		}
	}
	return nil
}

func validateCommand(cmd core.Command) error {
	return commandWrapValidation(cmd.Validate(), "command: invalid command")
}
