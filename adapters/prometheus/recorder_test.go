package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-authcore/core"
	"github.com/prometheus/client_golang/prometheus"
)

func gatherValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := true
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					matched = false
				}
			}
			if !matched {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue(), true
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue(), true
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount()), true
			}
		}
	}
	return 0, false
}

func TestRecorder_CountersGaugesAndHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(registry, WithNamespace("test"))
	ctx := context.Background()

	recorder.IncCounter(ctx, core.MetricDeduplicatedCommands, 2, map[string]string{"command_type": "acquire_token_silent"})
	recorder.IncCounter(ctx, core.MetricDeduplicatedCommands, 1, map[string]string{"command_type": "acquire_token_silent"})
	recorder.SetGauge(ctx, core.MetricCommandsOutstanding, 3, nil)
	recorder.ObserveHistogram(ctx, "authcore.command_run.duration_ms", 12, map[string]string{"status": "success", "unknown": "dropped"})

	if got, ok := gatherValue(t, registry, "test_authcore_dispatcher_deduplicated_total", map[string]string{"command_type": "acquire_token_silent"}); !ok || got != 3 {
		t.Fatalf("expected counter 3, got %v (found=%v)", got, ok)
	}
	if got, ok := gatherValue(t, registry, "test_authcore_dispatcher_outstanding", nil); !ok || got != 3 {
		t.Fatalf("expected gauge 3, got %v (found=%v)", got, ok)
	}
	if got, ok := gatherValue(t, registry, "test_authcore_command_run_duration_ms", map[string]string{"status": "success"}); !ok || got != 1 {
		t.Fatalf("expected one histogram sample, got %v (found=%v)", got, ok)
	}
	if errs := recorder.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected registration errors %v", errs)
	}
}

func TestRecorder_ReusesCollectorsAcrossRecorders(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewRecorder(registry)
	second := NewRecorder(registry)

	first.IncCounter(context.Background(), "authcore.telemetry.withheld.total", 1, nil)
	second.IncCounter(context.Background(), "authcore.telemetry.withheld.total", 1, nil)

	if got, ok := gatherValue(t, registry, "authcore_telemetry_withheld_total", nil); !ok || got != 2 {
		t.Fatalf("expected shared counter 2, got %v (found=%v)", got, ok)
	}
	if len(second.Errors()) != 0 {
		t.Fatalf("expected already registered collectors to be reused")
	}
}

func TestRecorder_RecordsRegistrationConflicts(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewRecorder(registry).IncCounter(context.Background(), "authcore.conflict", 1, nil)

	other := NewRecorder(registry, WithLabels("status"))
	other.IncCounter(context.Background(), "authcore.conflict", 1, map[string]string{"status": "x"})
	if len(other.Errors()) != 1 {
		t.Fatalf("expected one registration error, got %v", other.Errors())
	}
}

func TestRecorder_WiredIntoClient(t *testing.T) {
	registry := prometheus.NewRegistry()
	client, err := core.NewClient(core.Config{}, core.WithMetricsRecorder(NewRecorder(registry)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	controller := core.ControllerFunc{Name: "accounts", Fn: func(context.Context, core.Command) (any, error) {
		return nil, nil
	}}
	future := client.Submit(context.Background(), core.NewCommand(core.CommandTypeGetAccounts, controller, nil))
	if _, err := future.GetTimeout(time.Second); err != nil {
		t.Fatalf("await result: %v", err)
	}

	if got, ok := gatherValue(t, registry, "authcore_dispatcher_outstanding", nil); !ok || got != 0 {
		t.Fatalf("expected outstanding gauge back at 0, got %v (found=%v)", got, ok)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"authcore.dispatcher.outstanding": "authcore_dispatcher_outstanding",
		" 9lives-x ":                      "_9lives_x",
		"":                                "",
	}
	for input, want := range cases {
		if got := sanitizeName(input); got != want {
			t.Fatalf("sanitize %q: expected %q, got %q", input, want, got)
		}
	}
}
