package core

import (
	"context"
	"strings"
)

type correlationIDKey struct{}

type ledgerKey struct{}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey{}, strings.TrimSpace(correlationID))
}

// CorrelationIDFromContext returns the ambient correlation id. ok is false
// when none is set or the id is the UNSET placeholder.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	correlationID, _ := ctx.Value(correlationIDKey{}).(string)
	if !hasCorrelationID(correlationID) {
		return "", false
	}
	return correlationID, true
}

func ContextWithLedger(ctx context.Context, ledger *TelemetryLedger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ledgerKey{}, ledger)
}

func LedgerFromContext(ctx context.Context) *TelemetryLedger {
	if ctx == nil {
		return nil
	}
	ledger, _ := ctx.Value(ledgerKey{}).(*TelemetryLedger)
	return ledger
}

// Emit records a platform telemetry field for the command running in ctx.
// It is a no-op outside a dispatched command.
func Emit(ctx context.Context, key string, value string) {
	if ledger := LedgerFromContext(ctx); ledger != nil {
		ledger.Emit(ctx, key, value)
	}
}

func EmitBool(ctx context.Context, key string, value bool) {
	Emit(ctx, key, telemetryBool(value))
}

func EmitForceRefresh(ctx context.Context, forceRefresh bool) {
	if ledger := LedgerFromContext(ctx); ledger != nil {
		ledger.EmitForceRefresh(ctx, forceRefresh)
	}
}
