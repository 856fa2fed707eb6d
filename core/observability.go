package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type logLevel uint8

const (
	levelDebug logLevel = iota
	levelWarn
	levelError
)

// tag keys lifted from operation fields onto metric tags.
var operationTagKeys = []string{"command_type", "controller_id", "error_code"}

// observer bundles the logger and metrics recorder shared by the dispatcher
// and the telemetry ledger.
type observer struct {
	logger  Logger
	metrics MetricsRecorder
}

func newObserver(logger Logger, metrics MetricsRecorder) observer {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return observer{logger: glog.Ensure(logger), metrics: metrics}
}

// observeOperation emits the authcore.<operation>.total counter and the
// duration histogram, then logs the outcome. An empty status is derived
// from err.
func (o observer) observeOperation(ctx context.Context, startedAt time.Time, operation, status string, err error, fields map[string]any) {
	operation = orDefault(normalizeOperation(operation), "unknown")
	if status == "" {
		status = "success"
		if err != nil {
			status = "failure"
		}
	}
	elapsed := time.Since(startedAt).Milliseconds()

	entry := cloneFields(fields)
	entry["event_type"] = operation
	entry["status"] = status
	entry["duration_ms"] = elapsed
	if err != nil {
		entry["error"] = err.Error()
	}

	tags := map[string]string{"operation": operation, "status": status}
	for _, key := range operationTagKeys {
		if value, ok := entry[key]; ok && value != nil {
			if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
				tags[key] = text
			}
		}
	}
	o.recordCounter(ctx, "authcore."+operation+".total", 1, tags)
	o.recordHistogram(ctx, "authcore."+operation+".duration_ms", float64(elapsed), tags)

	if err != nil {
		o.log(ctx, levelError, operation+" failed", entry)
		return
	}
	o.log(ctx, levelDebug, operation+" "+status, entry)
}

func (o observer) logWarn(ctx context.Context, message string, fields map[string]any) {
	o.log(ctx, levelWarn, message, fields)
}

func (o observer) log(ctx context.Context, level logLevel, message string, fields map[string]any) {
	if o.logger == nil {
		return
	}
	logger := o.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if withFields, ok := logger.(FieldsLogger); ok {
		logger = withFields.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case levelError:
		logger.Error(message, args...)
	case levelWarn:
		logger.Warn(message, args...)
	default:
		logger.Debug(message, args...)
	}
}

func (o observer) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if o.metrics != nil {
		o.metrics.IncCounter(ctx, name, value, cloneTags(tags))
	}
}

func (o observer) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if o.metrics != nil {
		o.metrics.ObserveHistogram(ctx, name, value, cloneTags(tags))
	}
}

func (o observer) recordGauge(ctx context.Context, name string, value float64, tags map[string]string) {
	if o.metrics != nil {
		o.metrics.SetGauge(ctx, name, value, cloneTags(tags))
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	return maps.Clone(fields)
}

// flattenFields renders fields as sorted key/value pairs for loggers that
// take variadic args.
func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
