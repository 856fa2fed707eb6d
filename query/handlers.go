package query

import (
	"context"

	"github.com/goliatone/go-authcore/core"
)

type OutstandingCounter interface {
	OutstandingCommandCount() int
}

type TelemetryHeaderReader interface {
	TelemetryHeaders(ctx context.Context) map[string]string
}

type LastRequestTelemetryReader interface {
	LastRequestTelemetry(ctx context.Context) (core.LastRequestTelemetry, bool)
}

// LastRequestTelemetryView reports the persisted last request telemetry.
// Found is false when nothing has been persisted yet.
type LastRequestTelemetryView struct {
	Telemetry core.LastRequestTelemetry
	Found     bool
}

type OutstandingCountQuery struct {
	counter OutstandingCounter
}

func NewOutstandingCountQuery(counter OutstandingCounter) *OutstandingCountQuery {
	return &OutstandingCountQuery{counter: counter}
}

func (q *OutstandingCountQuery) Query(_ context.Context, _ OutstandingCountMessage) (int, error) {
	if q == nil || q.counter == nil {
		return 0, queryDependencyError("query: outstanding counter is required")
	}
	return q.counter.OutstandingCommandCount(), nil
}

type TelemetryHeadersQuery struct {
	reader TelemetryHeaderReader
}

func NewTelemetryHeadersQuery(reader TelemetryHeaderReader) *TelemetryHeadersQuery {
	return &TelemetryHeadersQuery{reader: reader}
}

func (q *TelemetryHeadersQuery) Query(ctx context.Context, msg TelemetryHeadersMessage) (map[string]string, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: telemetry header reader is required")
	}
	if msg.CorrelationID != "" {
		ctx = core.WithCorrelationID(ctx, msg.CorrelationID)
	}
	return q.reader.TelemetryHeaders(ctx), nil
}

type LastRequestTelemetryQuery struct {
	reader LastRequestTelemetryReader
}

func NewLastRequestTelemetryQuery(reader LastRequestTelemetryReader) *LastRequestTelemetryQuery {
	return &LastRequestTelemetryQuery{reader: reader}
}

func (q *LastRequestTelemetryQuery) Query(
	ctx context.Context,
	_ LastRequestTelemetryMessage,
) (LastRequestTelemetryView, error) {
	if q == nil || q.reader == nil {
		return LastRequestTelemetryView{}, queryDependencyError("query: last request telemetry reader is required")
	}
	telemetry, found := q.reader.LastRequestTelemetry(ctx)
	return LastRequestTelemetryView{Telemetry: telemetry, Found: found}, nil
}
