package core

import "context"

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
	SetGauge(ctx context.Context, name string, value float64, tags map[string]string)
}

const (
	MetricCommandsOutstanding   = "authcore.dispatcher.outstanding"
	MetricDeduplicatedCommands  = "authcore.dispatcher.deduplicated.total"
	MetricInteractiveRejections = "authcore.dispatcher.interactive_rejected.total"
	MetricTelemetryPersistError = "authcore.telemetry.persist_failed.total"
	MetricTelemetryWithheld     = "authcore.telemetry.withheld.total"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (NopMetricsRecorder) SetGauge(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
