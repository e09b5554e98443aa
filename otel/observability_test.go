package otel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jilio/laco"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// errorMeterProvider wraps a real MeterProvider and returns an errorMeter
type errorMeterProvider struct {
	metric.MeterProvider
	base   metric.MeterProvider
	failOn string
}

func (e *errorMeterProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	baseMeter := e.base.Meter(name, opts...)
	return &errorMeter{
		Meter:  baseMeter,
		base:   baseMeter,
		failOn: e.failOn,
	}
}

// errorMeter wraps a real Meter and returns errors for specific metric names
type errorMeter struct {
	metric.Meter
	base   metric.Meter
	failOn string
}

func (e *errorMeter) Int64Counter(name string, options ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	if name == e.failOn {
		return nil, fmt.Errorf("failed to create counter: %s", name)
	}
	return e.base.Int64Counter(name, options...)
}

func (e *errorMeter) Int64UpDownCounter(name string, options ...metric.Int64UpDownCounterOption) (metric.Int64UpDownCounter, error) {
	return e.base.Int64UpDownCounter(name, options...)
}

func (e *errorMeter) Int64Histogram(name string, options ...metric.Int64HistogramOption) (metric.Int64Histogram, error) {
	return e.base.Int64Histogram(name, options...)
}

func (e *errorMeter) Int64Gauge(name string, options ...metric.Int64GaugeOption) (metric.Int64Gauge, error) {
	return e.base.Int64Gauge(name, options...)
}

func (e *errorMeter) Int64ObservableCounter(name string, options ...metric.Int64ObservableCounterOption) (metric.Int64ObservableCounter, error) {
	return e.base.Int64ObservableCounter(name, options...)
}

func (e *errorMeter) Int64ObservableUpDownCounter(name string, options ...metric.Int64ObservableUpDownCounterOption) (metric.Int64ObservableUpDownCounter, error) {
	return e.base.Int64ObservableUpDownCounter(name, options...)
}

func (e *errorMeter) Int64ObservableGauge(name string, options ...metric.Int64ObservableGaugeOption) (metric.Int64ObservableGauge, error) {
	return e.base.Int64ObservableGauge(name, options...)
}

func (e *errorMeter) Float64Counter(name string, options ...metric.Float64CounterOption) (metric.Float64Counter, error) {
	return e.base.Float64Counter(name, options...)
}

func (e *errorMeter) Float64UpDownCounter(name string, options ...metric.Float64UpDownCounterOption) (metric.Float64UpDownCounter, error) {
	return e.base.Float64UpDownCounter(name, options...)
}

func (e *errorMeter) Float64Histogram(name string, options ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	if name == e.failOn {
		return nil, fmt.Errorf("failed to create histogram: %s", name)
	}
	return e.base.Float64Histogram(name, options...)
}

func (e *errorMeter) Float64Gauge(name string, options ...metric.Float64GaugeOption) (metric.Float64Gauge, error) {
	return e.base.Float64Gauge(name, options...)
}

func (e *errorMeter) Float64ObservableCounter(name string, options ...metric.Float64ObservableCounterOption) (metric.Float64ObservableCounter, error) {
	return e.base.Float64ObservableCounter(name, options...)
}

func (e *errorMeter) Float64ObservableUpDownCounter(name string, options ...metric.Float64ObservableUpDownCounterOption) (metric.Float64ObservableUpDownCounter, error) {
	return e.base.Float64ObservableUpDownCounter(name, options...)
}

func (e *errorMeter) Float64ObservableGauge(name string, options ...metric.Float64ObservableGaugeOption) (metric.Float64ObservableGauge, error) {
	return e.base.Float64ObservableGauge(name, options...)
}

func (e *errorMeter) RegisterCallback(callback metric.Callback, instruments ...metric.Observable) (metric.Registration, error) {
	return e.base.RegisterCallback(callback, instruments...)
}

func TestNew(t *testing.T) {
	t.Run("default_providers", func(t *testing.T) {
		obs, err := New()
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		if obs == nil {
			t.Fatal("New() returned nil")
		}
	})

	t.Run("custom_providers", func(t *testing.T) {
		obs, err := New(
			WithTracerProvider(sdktrace.NewTracerProvider()),
			WithMeterProvider(sdkmetric.NewMeterProvider()),
		)
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		if obs.tracer == nil || obs.meter == nil {
			t.Fatal("providers not set")
		}
	})

	for _, name := range []string{
		"laco.transition.count",
		"laco.transition.duration",
		"laco.transition.vetoes",
		"laco.listener.notified",
	} {
		t.Run("metric_creation_error_"+name, func(t *testing.T) {
			base := sdkmetric.NewMeterProvider()
			mp := &errorMeterProvider{
				MeterProvider: base,
				base:          base,
				failOn:        name,
			}
			obs, err := New(WithMeterProvider(mp))
			if err == nil {
				t.Fatalf("expected error when creating %s", name)
			}
			if obs != nil {
				t.Fatal("expected nil observability on error")
			}
		})
	}
}

func TestObservabilityInterface(t *testing.T) {
	var _ laco.Observability = (*Observability)(nil)
}

func spanAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTransitionTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	obs, err := New(WithTracerProvider(tp))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	tr := laco.Transition{StoreID: 3, StoreName: "Counter", Op: laco.OpSet, Label: "Increment"}

	t.Run("committed", func(t *testing.T) {
		exporter.Reset()

		ctx := obs.OnTransitionStart(context.Background(), tr)
		obs.OnTransitionComplete(ctx, tr, laco.Outcome{
			Committed: true,
			Changes:   laco.Changes{"count"},
			Notified:  2,
		}, time.Millisecond)

		spans := exporter.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("expected 1 span, got %d", len(spans))
		}

		span := spans[0]
		if span.Name != "laco.transition: set" {
			t.Errorf("expected span name 'laco.transition: set', got %q", span.Name)
		}
		if v, ok := spanAttr(span.Attributes, "laco.label"); !ok || v.AsString() != "Increment" {
			t.Error("span missing laco.label attribute")
		}
		if v, ok := spanAttr(span.Attributes, "laco.store.id"); !ok || v.AsInt64() != 3 {
			t.Error("span missing laco.store.id attribute")
		}
		if v, ok := spanAttr(span.Attributes, "laco.changes"); !ok || len(v.AsStringSlice()) != 1 {
			t.Error("span missing laco.changes attribute")
		}
		if span.Status.Code != codes.Ok {
			t.Errorf("expected ok status, got %v", span.Status.Code)
		}
	})

	t.Run("vetoed", func(t *testing.T) {
		exporter.Reset()

		ctx := obs.OnTransitionStart(context.Background(), tr)
		obs.OnTransitionComplete(ctx, tr, laco.Outcome{Vetoed: true}, time.Millisecond)

		spans := exporter.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("expected 1 span, got %d", len(spans))
		}
		if len(spans[0].Events) != 1 || spans[0].Events[0].Name != "vetoed" {
			t.Errorf("expected a vetoed event, got %v", spans[0].Events)
		}
		if v, _ := spanAttr(spans[0].Attributes, "laco.committed"); v.AsBool() {
			t.Error("vetoed transition marked committed")
		}
	})
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	metrics := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s is %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestIntegrationWithStore(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	obs, err := New(WithTracerProvider(tp), WithMeterProvider(mp))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	type counter struct {
		Count int `json:"count"`
	}

	reg := laco.NewRegistry(laco.WithObservability(obs))
	store := laco.New(counter{}, laco.WithRegistry(reg), laco.WithName("Counter"))
	store.AddMiddleware(laco.Guard(func(c counter, _ string) bool { return c.Count >= 0 }))

	var listenerCalled bool
	store.Subscribe(func(counter, counter, laco.Changes) { listenerCalled = true })

	store.Set(func(c *counter) { c.Count++ }, "Increment")
	store.Set(func(c *counter) { c.Count -= 5 }, "Drop")
	store.Replace(func(counter) counter { return counter{Count: 7} }, "Seven")

	if !listenerCalled {
		t.Error("listener was not called")
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[2].Name != "laco.transition: replace" {
		t.Errorf("unexpected span name %q", spans[2].Name)
	}

	metrics := collect(t, reader)
	for _, name := range []string{"laco.transition.count", "laco.transition.duration", "laco.transition.vetoes", "laco.listener.notified"} {
		if _, ok := metrics[name]; !ok {
			t.Errorf("missing metric: %s", name)
		}
	}
	if got := sumOf(t, metrics["laco.transition.count"]); got != 3 {
		t.Errorf("transition count = %d, want 3", got)
	}
	if got := sumOf(t, metrics["laco.transition.vetoes"]); got != 1 {
		t.Errorf("vetoes = %d, want 1", got)
	}
	if got := sumOf(t, metrics["laco.listener.notified"]); got != 2 {
		t.Errorf("notified = %d, want 2", got)
	}
}

func TestDurationAttributes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	obs, err := New(WithMeterProvider(mp))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	tr := laco.Transition{StoreID: 1, StoreName: "Todo", Op: laco.OpReset}
	ctx := obs.OnTransitionStart(context.Background(), tr)
	obs.OnTransitionComplete(ctx, tr, laco.Outcome{Committed: true}, 10*time.Millisecond)

	m, ok := collect(t, reader)["laco.transition.duration"]
	if !ok {
		t.Fatal("missing laco.transition.duration")
	}
	histo, ok := m.Data.(metricdata.Histogram[float64])
	if !ok || len(histo.DataPoints) != 1 {
		t.Fatalf("unexpected histogram data %T", m.Data)
	}

	dp := histo.DataPoints[0]
	if dp.Sum != 10 {
		t.Errorf("duration sum = %v, want 10", dp.Sum)
	}
	if v, ok := dp.Attributes.Value("laco.op"); !ok || v.AsString() != "reset" {
		t.Error("histogram missing laco.op attribute")
	}
	if v, ok := dp.Attributes.Value("laco.store.name"); !ok || v.AsString() != "Todo" {
		t.Error("histogram missing laco.store.name attribute")
	}
}
