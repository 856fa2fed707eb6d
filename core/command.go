package core

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type CommandType string

const (
	CommandTypeGeneric                 CommandType = "generic"
	CommandTypeAcquireTokenInteractive CommandType = "acquire_token_interactive"
	CommandTypeAcquireTokenSilent      CommandType = "acquire_token_silent"
	CommandTypeGetAccounts             CommandType = "get_accounts"
	CommandTypeRemoveAccount           CommandType = "remove_account"
	CommandTypeGetCurrentAccount       CommandType = "get_current_account"
	CommandTypeRemoveCurrentAccount    CommandType = "remove_current_account"
	CommandTypeGetDeviceMode           CommandType = "get_device_mode"
	CommandTypeDeviceCodeFlowAuth      CommandType = "device_code_flow_auth"
	CommandTypeDeviceCodeFlowToken     CommandType = "device_code_flow_token"
)

// UnsetCorrelationID is the placeholder some callers send before a real
// correlation id has been assigned. The ledger treats it as absent.
const UnsetCorrelationID = "UNSET"

type CommandDefaults struct {
	Interactive       bool
	TelemetryEligible bool
}

var commandCatalog = map[CommandType]CommandDefaults{
	CommandTypeGeneric:                 {},
	CommandTypeAcquireTokenInteractive: {Interactive: true, TelemetryEligible: true},
	CommandTypeAcquireTokenSilent:      {TelemetryEligible: true},
	CommandTypeGetAccounts:             {TelemetryEligible: true},
	CommandTypeRemoveAccount:           {TelemetryEligible: true},
	CommandTypeGetCurrentAccount:       {TelemetryEligible: true},
	CommandTypeRemoveCurrentAccount:    {TelemetryEligible: true},
	CommandTypeGetDeviceMode:           {},
	CommandTypeDeviceCodeFlowAuth:      {Interactive: true, TelemetryEligible: true},
	CommandTypeDeviceCodeFlowToken:     {TelemetryEligible: true},
}

// DefaultsFor returns the scheduling and telemetry defaults for a command
// type. Unknown types get the generic defaults.
func DefaultsFor(commandType CommandType) CommandDefaults {
	return commandCatalog[commandType]
}

// Controller executes a command against the identity service or local
// caches. It must honor ctx cancellation cooperatively.
type Controller interface {
	ID() string
	Execute(ctx context.Context, cmd Command) (any, error)
	ReachesTokenEndpoint() bool
}

type ControllerFunc struct {
	Name          string
	TokenEndpoint bool
	Fn            func(ctx context.Context, cmd Command) (any, error)
}

func (c ControllerFunc) ID() string {
	return c.Name
}

func (c ControllerFunc) Execute(ctx context.Context, cmd Command) (any, error) {
	if c.Fn == nil {
		return nil, NewLocalFault(FaultCodeUnknown, "controller has no execute function")
	}
	return c.Fn(ctx, cmd)
}

func (c ControllerFunc) ReachesTokenEndpoint() bool {
	return c.TokenEndpoint
}

// Command is one request submitted to the dispatcher. Parameters must be
// treated as immutable once the command is submitted.
type Command struct {
	Type              CommandType
	CorrelationID     string
	APIID             string
	Parameters        any
	Controller        Controller
	Interactive       bool
	TelemetryEligible bool
}

// NewCommand builds a command with the catalog defaults for commandType and
// a fresh correlation id.
func NewCommand(commandType CommandType, controller Controller, parameters any) Command {
	defaults := DefaultsFor(commandType)
	return Command{
		Type:              commandType,
		CorrelationID:     NewCorrelationID(),
		Parameters:        parameters,
		Controller:        controller,
		Interactive:       defaults.Interactive,
		TelemetryEligible: defaults.TelemetryEligible,
	}
}

func NewCorrelationID() string {
	return uuid.NewString()
}

func (c Command) WithAPIID(apiID string) Command {
	c.APIID = strings.TrimSpace(apiID)
	return c
}

func (c Command) WithCorrelationID(correlationID string) Command {
	c.CorrelationID = strings.TrimSpace(correlationID)
	return c
}

func (c Command) ControllerID() string {
	if c.Controller == nil {
		return ""
	}
	return c.Controller.ID()
}

func (c Command) ReachesTokenEndpoint() bool {
	if c.Controller == nil {
		return false
	}
	return c.Controller.ReachesTokenEndpoint()
}

func (c Command) Validate() error {
	if c.Controller == nil {
		return NewInvalidCommand("controller", "controller is required")
	}
	if strings.TrimSpace(string(c.Type)) == "" {
		return NewInvalidCommand("type", "command type is required")
	}
	return nil
}

func hasCorrelationID(correlationID string) bool {
	correlationID = strings.TrimSpace(correlationID)
	return correlationID != "" && correlationID != UnsetCorrelationID
}
