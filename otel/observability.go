package otel

import (
	"context"
	"time"

	"github.com/jilio/laco"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/jilio/laco"
)

// Observability implements laco.Observability using OpenTelemetry
type Observability struct {
	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	transitionCounter  metric.Int64Counter
	transitionDuration metric.Float64Histogram
	vetoCounter        metric.Int64Counter
	notifiedCounter    metric.Int64Counter
}

// Option configures the Observability
type Option func(*Observability)

// WithTracerProvider sets a custom tracer provider
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *Observability) {
		o.tracer = provider.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets a custom meter provider
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *Observability) {
		o.meter = provider.Meter(instrumentationName)
	}
}

// New creates a new OpenTelemetry observability implementation
func New(opts ...Option) (*Observability, error) {
	obs := &Observability{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(obs)
	}

	var err error

	obs.transitionCounter, err = obs.meter.Int64Counter(
		"laco.transition.count",
		metric.WithDescription("Number of store transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	obs.transitionDuration, err = obs.meter.Float64Histogram(
		"laco.transition.duration",
		metric.WithDescription("Transition duration including listener notification"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.vetoCounter, err = obs.meter.Int64Counter(
		"laco.transition.vetoes",
		metric.WithDescription("Number of transitions vetoed by middleware"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	obs.notifiedCounter, err = obs.meter.Int64Counter(
		"laco.listener.notified",
		metric.WithDescription("Number of listener invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	return obs, nil
}

func transitionAttributes(tr laco.Transition) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("laco.store.id", tr.StoreID),
		attribute.String("laco.store.name", tr.StoreName),
		attribute.String("laco.op", string(tr.Op)),
	}
}

// OnTransitionStart starts a span for the transition
func (o *Observability) OnTransitionStart(ctx context.Context, tr laco.Transition) context.Context {
	attrs := append(transitionAttributes(tr), attribute.String("laco.label", tr.Label))
	ctx, _ = o.tracer.Start(ctx, "laco.transition: "+string(tr.Op),
		trace.WithAttributes(attrs...),
	)
	return ctx
}

// OnTransitionComplete records the outcome and ends the span
func (o *Observability) OnTransitionComplete(ctx context.Context, tr laco.Transition, outcome laco.Outcome, duration time.Duration) {
	span := trace.SpanFromContext(ctx)

	attrs := transitionAttributes(tr)
	o.transitionCounter.Add(ctx, 1, metric.WithAttributes(
		append(attrs, attribute.Bool("laco.committed", outcome.Committed))...,
	))
	o.transitionDuration.Record(ctx, float64(duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	if outcome.Notified > 0 {
		o.notifiedCounter.Add(ctx, int64(outcome.Notified), metric.WithAttributes(attrs...))
	}

	span.SetAttributes(
		attribute.Bool("laco.committed", outcome.Committed),
		attribute.Bool("laco.vetoed", outcome.Vetoed),
		attribute.StringSlice("laco.changes", outcome.Changes),
		attribute.Int("laco.notified", outcome.Notified),
	)

	if outcome.Vetoed {
		o.vetoCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		span.AddEvent("vetoed")
	}
	span.SetStatus(codes.Ok, "")
	span.End()
}
