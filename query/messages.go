package query

import "strings"

const (
	TypeOutstandingCount     = "authcore.query.commands.outstanding"
	TypeTelemetryHeaders     = "authcore.query.telemetry.headers"
	TypeLastRequestTelemetry = "authcore.query.telemetry.last"
)

type OutstandingCountMessage struct{}

func (OutstandingCountMessage) Type() string { return TypeOutstandingCount }

// TelemetryHeadersMessage asks for the outbound headers of a running
// command. CorrelationID overrides the correlation id carried by ctx.
type TelemetryHeadersMessage struct {
	CorrelationID string
}

func (TelemetryHeadersMessage) Type() string { return TypeTelemetryHeaders }

func (m TelemetryHeadersMessage) Validate() error {
	if m.CorrelationID != "" && strings.TrimSpace(m.CorrelationID) == "" {
		return queryValidationError("correlation_id", "correlation id must not be blank")
	}
	return nil
}

type LastRequestTelemetryMessage struct{}

func (LastRequestTelemetryMessage) Type() string { return TypeLastRequestTelemetry }
