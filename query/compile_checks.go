package query

import (
	"github.com/goliatone/go-authcore/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[OutstandingCountMessage, int]                          = (*OutstandingCountQuery)(nil)
	_ gocmd.Querier[TelemetryHeadersMessage, map[string]string]            = (*TelemetryHeadersQuery)(nil)
	_ gocmd.Querier[LastRequestTelemetryMessage, LastRequestTelemetryView] = (*LastRequestTelemetryQuery)(nil)

	_ OutstandingCounter         = (*core.Client)(nil)
	_ TelemetryHeaderReader      = (*core.Client)(nil)
	_ LastRequestTelemetryReader = (*core.Client)(nil)
)
