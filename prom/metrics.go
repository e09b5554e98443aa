// Package prom exports laco transition metrics to Prometheus.
//
// Register a Metrics value as the registry's observability hook:
//
//	m, err := prom.New(prometheus.DefaultRegisterer)
//	if err != nil {
//	    return err
//	}
//	reg := laco.NewRegistry(laco.WithObservability(m))
//
// All metrics are labeled by store. Named stores use their name, unnamed
// stores their numeric id.
package prom

import (
	"context"
	"strconv"
	"time"

	"github.com/jilio/laco"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "laco"

// Transition results used as the result label.
const (
	ResultCommitted = "committed"
	ResultVetoed    = "vetoed"
	// ResultForced is a reset that a middleware vetoed but was committed
	// anyway.
	ResultForced = "forced"
)

// Metrics implements laco.Observability with Prometheus collectors.
type Metrics struct {
	// TransitionsTotal counts transitions.
	// Labels: store, op, result
	TransitionsTotal *prometheus.CounterVec

	// TransitionDuration measures transitions including notification.
	// Labels: store, op
	TransitionDuration *prometheus.HistogramVec

	// ListenerCallsTotal counts listener invocations.
	// Labels: store
	ListenerCallsTotal *prometheus.CounterVec

	// FieldChangesTotal counts committed changes per top-level field.
	// Labels: store, field
	FieldChangesTotal *prometheus.CounterVec
}

// Option configures Metrics.
type Option func(*options)

type options struct {
	buckets []float64
}

// WithBuckets overrides the duration histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(o *options) {
		o.buckets = buckets
	}
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, opts ...Option) (*Metrics, error) {
	o := options{buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1}}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Store transitions by operation and result",
		}, []string{"store", "op", "result"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_duration_seconds",
			Help:      "Transition duration including listener notification",
			Buckets:   o.buckets,
		}, []string{"store", "op"}),
		ListenerCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_calls_total",
			Help:      "Listener invocations",
		}, []string{"store"}),
		FieldChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_changes_total",
			Help:      "Committed changes per top-level field",
		}, []string{"store", "field"}),
	}

	for _, c := range []prometheus.Collector{
		m.TransitionsTotal,
		m.TransitionDuration,
		m.ListenerCallsTotal,
		m.FieldChangesTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// OnTransitionStart implements laco.Observability.
func (m *Metrics) OnTransitionStart(ctx context.Context, _ laco.Transition) context.Context {
	return ctx
}

// OnTransitionComplete implements laco.Observability.
func (m *Metrics) OnTransitionComplete(_ context.Context, tr laco.Transition, outcome laco.Outcome, duration time.Duration) {
	store := storeLabel(tr)
	op := string(tr.Op)

	m.TransitionsTotal.WithLabelValues(store, op, result(outcome)).Inc()
	m.TransitionDuration.WithLabelValues(store, op).Observe(duration.Seconds())
	if outcome.Notified > 0 {
		m.ListenerCallsTotal.WithLabelValues(store).Add(float64(outcome.Notified))
	}
	if outcome.Committed {
		for _, field := range outcome.Changes {
			m.FieldChangesTotal.WithLabelValues(store, field).Inc()
		}
	}
}

func storeLabel(tr laco.Transition) string {
	if tr.StoreName != "" {
		return tr.StoreName
	}
	return strconv.Itoa(tr.StoreID)
}

func result(o laco.Outcome) string {
	switch {
	case o.Committed && o.Vetoed:
		return ResultForced
	case o.Committed:
		return ResultCommitted
	default:
		return ResultVetoed
	}
}
