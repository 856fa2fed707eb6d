package authcore

import (
	"context"
	"testing"

	authcommand "github.com/goliatone/go-authcore/command"
	"github.com/goliatone/go-authcore/core"
	authquery "github.com/goliatone/go-authcore/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	client, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	facade, err := NewFacade(client)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.Execute == nil || commands.Submit == nil || commands.EmitTelemetry == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.OutstandingCount == nil || queries.TelemetryHeaders == nil || queries.LastRequestTelemetry == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Client() != client {
		t.Fatalf("expected facade to keep its client")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	client, err := NewClient(Config{}, WithLastRequestTelemetryCache(core.NewMemoryLastRequestTelemetryCache()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	facade, err := NewFacade(client)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	var headers map[string]string
	controller := ControllerFunc{Name: "silent", TokenEndpoint: true, Fn: func(ctx context.Context, cmd Command) (any, error) {
		if err := facade.Commands().EmitTelemetry.Execute(ctx, authcommand.EmitTelemetryMessage{
			Values: map[string]string{core.TelemetryKeyBrokerAppUsed: "true"},
		}); err != nil {
			t.Errorf("emit telemetry: %v", err)
		}
		var queryErr error
		headers, queryErr = facade.Queries().TelemetryHeaders.Query(ctx, authquery.TelemetryHeadersMessage{})
		if queryErr != nil {
			t.Errorf("query headers: %v", queryErr)
		}
		return nil, core.NewServiceFault(400, "invalid_grant", "")
	}}

	cmd := core.NewCommand(core.CommandTypeAcquireTokenSilent, controller, map[string]any{"scope": "user.read"}).WithAPIID("84")
	if err := facade.Commands().Execute.Execute(context.Background(), authcommand.ExecuteMessage{Command: cmd}); err == nil {
		t.Fatalf("expected invalid_grant fault")
	}
	if headers[core.CurrentTelemetryHeaderName] != "2|84,0|1,,," {
		t.Fatalf("unexpected current header %q", headers[core.CurrentTelemetryHeaderName])
	}

	view, err := facade.Queries().LastRequestTelemetry.Query(context.Background(), authquery.LastRequestTelemetryMessage{})
	if err != nil {
		t.Fatalf("query last request telemetry: %v", err)
	}
	if !view.Found || len(view.Telemetry.FailedRequests) != 1 {
		t.Fatalf("expected one failed request, got %+v", view)
	}

	count, err := facade.Queries().OutstandingCount.Query(context.Background(), authquery.OutstandingCountMessage{})
	if err != nil {
		t.Fatalf("query outstanding count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no outstanding commands, got %d", count)
	}
}

func TestNewFacade_RequiresClient(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil client error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

func TestGetMigrationsFS_ContainsBothDialects(t *testing.T) {
	fsys := GetMigrationsFS()
	for _, path := range []string{
		"data/sql/migrations/00001_authcore_last_request_telemetry.up.sql",
		"data/sql/migrations/sqlite/00001_authcore_last_request_telemetry.up.sql",
	} {
		file, err := fsys.Open(path)
		if err != nil {
			t.Fatalf("open %s: %v", path, err)
		}
		_ = file.Close()
	}
}
