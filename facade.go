package authcore

import (
	"fmt"

	authcommand "github.com/goliatone/go-authcore/command"
	authquery "github.com/goliatone/go-authcore/query"
)

// CommandQueryClient is the client surface the facade handlers delegate to.
type CommandQueryClient interface {
	authcommand.Executor
	authcommand.Submitter
	authcommand.TelemetryEmitter
	authquery.OutstandingCounter
	authquery.TelemetryHeaderReader
	authquery.LastRequestTelemetryReader
}

type Commands struct {
	Execute       *authcommand.ExecuteCommand
	Submit        *authcommand.SubmitCommand
	EmitTelemetry *authcommand.EmitTelemetryCommand
}

type Queries struct {
	OutstandingCount     *authquery.OutstandingCountQuery
	TelemetryHeaders     *authquery.TelemetryHeadersQuery
	LastRequestTelemetry *authquery.LastRequestTelemetryQuery
}

type Facade struct {
	client   CommandQueryClient
	commands Commands
	queries  Queries
}

func NewFacade(client CommandQueryClient) (*Facade, error) {
	if client == nil {
		return nil, fmt.Errorf("authcore: command/query client is required")
	}
	return &Facade{
		client: client,
		commands: Commands{
			Execute:       authcommand.NewExecuteCommand(client),
			Submit:        authcommand.NewSubmitCommand(client),
			EmitTelemetry: authcommand.NewEmitTelemetryCommand(client),
		},
		queries: Queries{
			OutstandingCount:     authquery.NewOutstandingCountQuery(client),
			TelemetryHeaders:     authquery.NewTelemetryHeadersQuery(client),
			LastRequestTelemetry: authquery.NewLastRequestTelemetryQuery(client),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Client() CommandQueryClient {
	if f == nil {
		return nil
	}
	return f.client
}

var _ CommandQueryClient = (*Client)(nil)
