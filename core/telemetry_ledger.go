package core

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

type TelemetryLedgerConfig struct {
	SchemaVersion string
	ByteBudget    int
	Shards        int
}

func DefaultTelemetryLedgerConfig() TelemetryLedgerConfig {
	return TelemetryLedgerConfig{
		SchemaVersion: TelemetrySchemaVersion,
		ByteBudget:    DefaultTelemetryByteBudget,
		Shards:        defaultShardCount,
	}
}

// TelemetryLedger accumulates per-command telemetry keyed by correlation id
// and maintains the persisted last-request history. Every operation is best
// effort: failures are logged and never reach the command.
type TelemetryLedger struct {
	config  TelemetryLedgerConfig
	cache   LastRequestTelemetryCache
	current *shardedMap[*CurrentRequestTelemetry]
	sent    *shardedMap[map[FailedRequest]struct{}]
	obs     observer

	// lastMu serializes load, mutate and save of the persisted history.
	lastMu sync.Mutex
}

func NewTelemetryLedger(
	cache LastRequestTelemetryCache,
	config TelemetryLedgerConfig,
	logger Logger,
	metrics MetricsRecorder,
) *TelemetryLedger {
	defaults := DefaultTelemetryLedgerConfig()
	if strings.TrimSpace(config.SchemaVersion) == "" {
		config.SchemaVersion = defaults.SchemaVersion
	}
	if config.ByteBudget <= 0 {
		config.ByteBudget = defaults.ByteBudget
	}
	if config.Shards <= 0 {
		config.Shards = defaults.Shards
	}
	if cache == nil {
		cache = NewMemoryLastRequestTelemetryCache()
	}
	return &TelemetryLedger{
		config:  config,
		cache:   cache,
		current: newShardedMap[*CurrentRequestTelemetry](config.Shards),
		sent:    newShardedMap[map[FailedRequest]struct{}](config.Shards),
		obs:     newObserver(logger, metrics),
	}
}

// Init opens a current-telemetry entry for a telemetry eligible command. An
// entry that is already open for the correlation id is left untouched and
// Init reports false.
func (l *TelemetryLedger) Init(cmd Command) bool {
	if l == nil || !cmd.TelemetryEligible || !hasCorrelationID(cmd.CorrelationID) {
		return false
	}
	if !l.current.storeIfAbsent(cmd.CorrelationID, newCurrentRequestTelemetry(l.config.SchemaVersion)) {
		return false
	}
	l.sent.store(cmd.CorrelationID, map[FailedRequest]struct{}{})
	return true
}

// Discard drops the per-command state of a command that will never be
// flushed, such as a duplicate attached to another execution.
func (l *TelemetryLedger) Discard(correlationID string) {
	if l == nil {
		return
	}
	l.current.remove(correlationID)
	l.sent.remove(correlationID)
}

func (l *TelemetryLedger) Emit(ctx context.Context, key string, value string) {
	if l == nil {
		return
	}
	correlationID, ok := CorrelationIDFromContext(ctx)
	if !ok {
		return
	}
	l.emitFor(correlationID, map[string]string{key: value})
}

// EmitAll records several fields at once for the command running in ctx.
func (l *TelemetryLedger) EmitAll(ctx context.Context, values map[string]string) {
	if l == nil || len(values) == 0 {
		return
	}
	correlationID, ok := CorrelationIDFromContext(ctx)
	if !ok {
		return
	}
	l.emitFor(correlationID, values)
}

func (l *TelemetryLedger) EmitAPIID(ctx context.Context, apiID string) {
	l.Emit(ctx, TelemetryKeyAPIID, apiID)
}

func (l *TelemetryLedger) EmitForceRefresh(ctx context.Context, forceRefresh bool) {
	l.Emit(ctx, TelemetryKeyForceRefresh, telemetryBool(forceRefresh))
}

func (l *TelemetryLedger) emitFor(correlationID string, values map[string]string) {
	l.current.with(correlationID, func(items map[string]*CurrentRequestTelemetry) {
		entry, ok := items[correlationID]
		if !ok {
			return
		}
		for key, value := range values {
			entry.put(strings.TrimSpace(key), SanitizeTelemetryValue(value))
		}
	})
}

// Current returns a snapshot of the current entry for correlationID.
func (l *TelemetryLedger) Current(correlationID string) (CurrentRequestTelemetry, bool) {
	if l == nil {
		return CurrentRequestTelemetry{}, false
	}
	var (
		snapshot CurrentRequestTelemetry
		found    bool
	)
	l.current.with(correlationID, func(items map[string]*CurrentRequestTelemetry) {
		if entry, ok := items[correlationID]; ok {
			snapshot = entry.clone()
			found = true
		}
	})
	return snapshot, found
}

// HeaderStrings renders the current and last telemetry headers for the
// command running in ctx. Both are empty when the command has no open
// entry, since nothing would record the failed requests as sent. Failed
// requests appended to last are recorded as sent for that command.
// allDataSent is false when any persisted failed request did not fit the
// byte budget.
func (l *TelemetryLedger) HeaderStrings(ctx context.Context) (current string, last string, allDataSent bool) {
	if l == nil {
		return "", "", true
	}
	correlationID, ok := CorrelationIDFromContext(ctx)
	if !ok {
		return "", "", true
	}
	currentEntry, hasCurrent := l.Current(correlationID)
	if !hasCurrent {
		return "", "", true
	}
	current = currentEntry.HeaderString()

	l.lastMu.Lock()
	defer l.lastMu.Unlock()

	persisted, found := l.loadLast(ctx)
	if !found {
		synthesized := NewLastRequestTelemetry(currentEntry.SchemaVersion)
		synthesized.deriveFrom(currentEntry)
		synthesized.Platform[TelemetryKeyAllTelemetryDataSent] = telemetryTrue
		return current, l.fitBudget(synthesized.HeaderString()), true
	}

	header := persisted.copySharedValues()
	header.Platform[TelemetryKeyAllTelemetryDataSent] = telemetryTrue
	if len(header.HeaderString()) > l.config.ByteBudget {
		return current, "", false
	}

	appended := make([]FailedRequest, 0, len(persisted.FailedRequests))
	allDataSent = true
	for _, failed := range persisted.FailedRequests {
		header.appendFailedRequest(failed)
		if len(header.HeaderString()) > l.config.ByteBudget {
			header.FailedRequests = header.FailedRequests[:len(header.FailedRequests)-1]
			allDataSent = false
			continue
		}
		appended = append(appended, failed)
	}
	header.Platform[TelemetryKeyAllTelemetryDataSent] = telemetryBool(allDataSent)

	l.sent.with(correlationID, func(items map[string]map[FailedRequest]struct{}) {
		sentSet, ok := items[correlationID]
		if !ok {
			return
		}
		for _, failed := range appended {
			sentSet[failed] = struct{}{}
		}
	})
	if !allDataSent {
		l.obs.recordCounter(ctx, MetricTelemetryWithheld, int64(len(persisted.FailedRequests)-len(appended)), nil)
	}
	return current, header.HeaderString(), allDataSent
}

// Headers returns the outbound telemetry headers for the command running in
// ctx. Headers with no content are omitted.
func (l *TelemetryLedger) Headers(ctx context.Context) map[string]string {
	current, last, _ := l.HeaderStrings(ctx)
	headers := make(map[string]string, 2)
	if current != "" {
		headers[CurrentTelemetryHeaderName] = current
	}
	if last != "" {
		headers[LastTelemetryHeaderName] = last
	}
	return headers
}

// ApplyHeaders sets the telemetry headers on req using req's context.
func (l *TelemetryLedger) ApplyHeaders(req *http.Request) {
	if l == nil || req == nil {
		return
	}
	for name, value := range l.Headers(req.Context()) {
		req.Header.Set(name, value)
	}
}

// Flush folds the result of cmd into the persisted history and drops the
// command's current entry.
func (l *TelemetryLedger) Flush(ctx context.Context, cmd Command, result CommandResult) {
	if l == nil || !hasCorrelationID(cmd.CorrelationID) {
		return
	}
	startedAt := time.Now()
	correlationID := cmd.CorrelationID
	currentEntry, ok := l.Current(correlationID)
	if !ok {
		return
	}

	l.lastMu.Lock()
	defer l.lastMu.Unlock()

	last, found := l.loadLast(ctx)
	if !found {
		last = NewLastRequestTelemetry(currentEntry.SchemaVersion)
		last.deriveFrom(currentEntry)
	}

	if telemetryLoggedByServer(cmd, result) {
		last.SilentSuccessCount = 0
		sentSet, _ := l.sent.load(correlationID)
		last.removeFailedRequests(sentSet)
	}

	if errorCode := result.ErrorCode(); errorCode != "" {
		last.appendFailedRequest(FailedRequest{
			APIID:         currentEntry.APIID,
			CorrelationID: correlationID,
			ErrorCode:     SanitizeTelemetryValue(errorCode),
		})
	} else if result.ServicedFromCache() {
		last.SilentSuccessCount++
	}

	l.current.remove(correlationID)
	l.sent.remove(correlationID)

	fields := map[string]any{
		"correlation_id":  correlationID,
		"command_type":    string(cmd.Type),
		"result_status":   string(result.Status),
		"failed_requests": len(last.FailedRequests),
	}
	err := l.cache.Save(ctx, last)
	if err != nil {
		l.obs.recordCounter(ctx, MetricTelemetryPersistError, 1, nil)
		l.obs.logWarn(ctx, "last request telemetry save failed", mergeFields(fields, map[string]any{"error": err.Error()}))
		return
	}
	l.obs.observeOperation(ctx, startedAt, "telemetry_flush", "", nil, fields)
}

// LastRequestTelemetry returns the persisted history, if any.
func (l *TelemetryLedger) LastRequestTelemetry(ctx context.Context) (LastRequestTelemetry, bool) {
	if l == nil {
		return LastRequestTelemetry{}, false
	}
	l.lastMu.Lock()
	defer l.lastMu.Unlock()
	return l.loadLast(ctx)
}

func (l *TelemetryLedger) pending() int {
	return l.current.size()
}

func (l *TelemetryLedger) loadLast(ctx context.Context) (LastRequestTelemetry, bool) {
	telemetry, ok, err := l.cache.Load(ctx)
	if err != nil {
		l.obs.logWarn(ctx, "last request telemetry load failed", map[string]any{"error": err.Error()})
		return LastRequestTelemetry{}, false
	}
	if !ok {
		return LastRequestTelemetry{}, false
	}
	if telemetry.Platform == nil {
		telemetry.Platform = map[string]string{}
	}
	if strings.TrimSpace(telemetry.SchemaVersion) == "" {
		telemetry.SchemaVersion = l.config.SchemaVersion
	}
	return telemetry, true
}

func (l *TelemetryLedger) fitBudget(header string) string {
	if len(header) > l.config.ByteBudget {
		return ""
	}
	return header
}

// telemetryLoggedByServer reports whether the identity service received and
// logged the telemetry headers sent by cmd.
func telemetryLoggedByServer(cmd Command, result CommandResult) bool {
	if !cmd.ReachesTokenEndpoint() {
		return false
	}
	switch result.Status {
	case ResultCancel:
		return false
	case ResultError:
		status, ok := ServiceStatus(result.Err)
		if !ok {
			return false
		}
		return !(status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError)
	case ResultCompleted:
		if !result.IsLocalResult() {
			return false
		}
		return !result.ServicedFromCache()
	default:
		return false
	}
}

func mergeFields(base map[string]any, extra map[string]any) map[string]any {
	merged := cloneFields(base)
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}
