package sqlstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-authcore/core"
	persistence "github.com/goliatone/go-persistence-bun"
)

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:authcore-test-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	client, err := OpenSQLite(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLastRequestTelemetryStore_SaveLoadRoundTrip(t *testing.T) {
	client := newSQLiteClient(t)
	store, err := NewLastRequestTelemetryStore(client.DB(), "device-1")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}

	telemetry := core.NewLastRequestTelemetry("")
	telemetry.SilentSuccessCount = 3
	telemetry.FailedRequests = []core.FailedRequest{{APIID: "84", CorrelationID: "c1", ErrorCode: "invalid_grant"}}
	telemetry.Platform = map[string]string{"broker_app_used": "true"}
	if err := store.Save(ctx, telemetry); err != nil {
		t.Fatalf("first save: %v", err)
	}

	telemetry.SilentSuccessCount = 4
	telemetry.FailedRequests = append(telemetry.FailedRequests, core.FailedRequest{APIID: "85", CorrelationID: "c2", ErrorCode: "network_error"})
	if err := store.Save(ctx, telemetry); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.SilentSuccessCount != 4 || len(loaded.FailedRequests) != 2 {
		t.Fatalf("expected updated row, got %+v", loaded)
	}
	if loaded.FailedRequests[1].CorrelationID != "c2" || loaded.Platform["broker_app_used"] != "true" {
		t.Fatalf("unexpected decoded telemetry %+v", loaded)
	}
	if loaded.SchemaVersion != core.TelemetrySchemaVersion {
		t.Fatalf("expected schema version, got %q", loaded.SchemaVersion)
	}

	var rows int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM authcore_last_request_telemetry").Scan(ctx, &rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one row per installation, got %d", rows)
	}
}

func TestLastRequestTelemetryStore_IsolatesInstallations(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()
	first, err := NewLastRequestTelemetryStore(client.DB(), "device-1")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	second, err := NewLastRequestTelemetryStore(client.DB(), "device-2")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	telemetry := core.NewLastRequestTelemetry("")
	telemetry.SilentSuccessCount = 7
	if err := first.Save(ctx, telemetry); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok, err := second.Load(ctx); err != nil || ok {
		t.Fatalf("expected second installation to be empty, ok=%v err=%v", ok, err)
	}
	if second.InstallationKey() != "device-2" {
		t.Fatalf("unexpected installation key %q", second.InstallationKey())
	}
}

func TestRepositoryFactory_ClientPersistsThroughSQL(t *testing.T) {
	client := newSQLiteClient(t)
	factory := NewRepositoryFactory(
		WithInstallationKey("device-1"),
		WithCacheService(newTestTelemetryCacheService(t)),
	)

	authClient, err := core.NewClient(core.Config{},
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, ok := factory.TelemetryCache().(*CachedLastRequestTelemetryStore); !ok {
		t.Fatalf("expected cached telemetry store, got %T", factory.TelemetryCache())
	}

	controller := core.ControllerFunc{Name: "silent", TokenEndpoint: true, Fn: func(context.Context, core.Command) (any, error) {
		return nil, core.NewServiceFault(400, "invalid_grant", "")
	}}
	cmd := core.NewCommand(core.CommandTypeAcquireTokenSilent, controller, map[string]any{"scope": "user.read"}).WithAPIID("84")
	result := authClient.Execute(context.Background(), cmd)
	if result.Status != core.ResultError {
		t.Fatalf("expected error result, got %+v", result)
	}

	stored, ok, err := factory.LastRequestTelemetryStore().Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load from sql: ok=%v err=%v", ok, err)
	}
	if len(stored.FailedRequests) != 1 || stored.FailedRequests[0].CorrelationID != result.CorrelationID {
		t.Fatalf("expected failed request persisted in sql, got %+v", stored)
	}
}

func TestRepositoryFactory_RejectsUnknownClient(t *testing.T) {
	if _, err := NewRepositoryFactory().BuildTelemetryCache(struct{}{}); err == nil {
		t.Fatalf("expected unsupported client error")
	}
	if _, err := NewRepositoryFactory().BuildTelemetryCache(nil); err == nil {
		t.Fatalf("expected missing client error")
	}
}

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), " "); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func TestLastRequestTelemetryRecordID_IsStable(t *testing.T) {
	if lastRequestTelemetryRecordID("device-1") != lastRequestTelemetryRecordID("device-1") {
		t.Fatalf("expected deterministic record id")
	}
	if lastRequestTelemetryRecordID("device-1") == lastRequestTelemetryRecordID("device-2") {
		t.Fatalf("expected distinct record ids per installation")
	}
}
