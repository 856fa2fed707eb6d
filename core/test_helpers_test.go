package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
	gauges     map[string]float64
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) SetGauge(_ context.Context, name string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gauges == nil {
		m.gauges = map[string]float64{}
	}
	m.gauges[name] = value
}

func (m *captureMetricsRecorder) hasCounter(name string, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, counter := range m.counters {
		if counter.name != name {
			continue
		}
		if status == "" || counter.tags["status"] == status {
			return true
		}
	}
	return false
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func hasLog(records []capturedLog, level string, msg string) bool {
	for _, record := range records {
		if record.level == level && record.msg == msg {
			return true
		}
	}
	return false
}

// localResult is a Completed payload that knows whether it came from cache.
type localResult struct {
	token     string
	fromCache bool
}

func (r localResult) ServicedFromCache() bool {
	return r.fromCache
}

type tokenParams struct {
	Scopes    []string
	Authority string
	Claims    map[string]string
}

// blockingController counts executions and blocks each one until released.
type blockingController struct {
	id       string
	token    bool
	release  chan struct{}
	started  chan struct{}
	calls    atomic.Int32
	active   atomic.Int32
	peak     atomic.Int32
	outcome  func(ctx context.Context, cmd Command) (any, error)
	startOne sync.Once
}

func newBlockingController(id string) *blockingController {
	return &blockingController{
		id:      id,
		token:   true,
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (c *blockingController) ID() string { return c.id }

func (c *blockingController) ReachesTokenEndpoint() bool { return c.token }

func (c *blockingController) Execute(ctx context.Context, cmd Command) (any, error) {
	c.calls.Add(1)
	active := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		peak := c.peak.Load()
		if active <= peak || c.peak.CompareAndSwap(peak, active) {
			break
		}
	}
	c.startOne.Do(func() { close(c.started) })
	<-c.release
	if c.outcome != nil {
		return c.outcome(ctx, cmd)
	}
	return localResult{token: "token-" + cmd.CorrelationID}, nil
}

type failingTelemetryCache struct {
	loadErr error
	saveErr error
	saves   atomic.Int32
}

func (c *failingTelemetryCache) Load(context.Context) (LastRequestTelemetry, bool, error) {
	if c.loadErr != nil {
		return LastRequestTelemetry{}, false, c.loadErr
	}
	return LastRequestTelemetry{}, false, nil
}

func (c *failingTelemetryCache) Save(context.Context, LastRequestTelemetry) error {
	c.saves.Add(1)
	return c.saveErr
}

var errCacheUnavailable = errors.New("cache unavailable")

func waitForOutstanding(t *testing.T, dispatcher *Dispatcher, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if dispatcher.OutstandingCommandCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d outstanding commands, got %d", want, dispatcher.OutstandingCommandCount())
}

func awaitResult(t *testing.T, future *ResultFuture) CommandResult {
	t.Helper()
	result, err := future.GetTimeout(2 * time.Second)
	if err != nil {
		t.Fatalf("await result: %v", err)
	}
	return result
}

func newTestLedger(cache LastRequestTelemetryCache) *TelemetryLedger {
	return NewTelemetryLedger(cache, DefaultTelemetryLedgerConfig(), stubLogger{}, nil)
}

func newTestDispatcher(ledger *TelemetryLedger) *Dispatcher {
	return NewDispatcher(ledger, DefaultDispatcherConfig(), stubLogger{}, nil)
}
