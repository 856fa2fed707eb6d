package command

import (
	"github.com/goliatone/go-authcore/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[ExecuteMessage]       = (*ExecuteCommand)(nil)
	_ gocmd.Commander[SubmitMessage]        = (*SubmitCommand)(nil)
	_ gocmd.Commander[EmitTelemetryMessage] = (*EmitTelemetryCommand)(nil)

	_ Executor         = (*core.Client)(nil)
	_ Submitter        = (*core.Client)(nil)
	_ TelemetryEmitter = (*core.Client)(nil)
)
