package prom

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jilio/laco"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Count int `json:"count"`
	Other int `json:"other"`
}

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	return m, reg
}

func TestNewRegistersCollectors(t *testing.T) {
	_, reg := newTestMetrics(t)

	_, err := New(reg)
	require.Error(t, err, "registering twice should fail")
}

func TestMetricsWithStore(t *testing.T) {
	m, _ := newTestMetrics(t)

	registry := laco.NewRegistry(laco.WithObservability(m))
	store := laco.New(counter{}, laco.WithRegistry(registry), laco.WithName("Counter"))
	store.AddMiddleware(laco.Guard(func(c counter, _ string) bool { return c.Count >= 0 }))
	store.Subscribe(func(counter, counter, laco.Changes) {}, "count")

	store.Set(func(c *counter) { c.Count++ }, "Increment")
	store.Set(func(c *counter) { c.Count-- }, "Decrement")
	store.Set(func(c *counter) { c.Count-- }, "Decrement")
	store.Set(func(c *counter) { c.Other = 1 }, "Other")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("Counter", "set", ResultCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("Counter", "set", ResultVetoed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ListenerCallsTotal.WithLabelValues("Counter")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FieldChangesTotal.WithLabelValues("Counter", "count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldChangesTotal.WithLabelValues("Counter", "other")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TransitionDuration))
}

func TestForcedReset(t *testing.T) {
	m, _ := newTestMetrics(t)

	registry := laco.NewRegistry(laco.WithObservability(m))
	store := laco.New(counter{Count: 5}, laco.WithRegistry(registry))
	store.Set(func(c *counter) { c.Count = 9 })
	store.AddMiddleware(laco.Guard(func(c counter, action string) bool { return action != laco.ResetAction }))

	assert.False(t, store.Reset())
	assert.True(t, store.Reset(true))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("0", "reset", ResultVetoed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("0", "reset", ResultForced)))
}

func TestDurationExposition(t *testing.T) {
	m, reg := newTestMetrics(t)

	tr := laco.Transition{StoreName: "Todo", Op: laco.OpReplace}
	m.OnTransitionComplete(m.OnTransitionStart(context.Background(), tr), tr, laco.Outcome{Committed: true}, 2*time.Millisecond)

	expected := `
# HELP laco_transitions_total Store transitions by operation and result
# TYPE laco_transitions_total counter
laco_transitions_total{op="replace",result="committed",store="Todo"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "laco_transitions_total"))
}

func TestWithBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg, WithBuckets([]float64{1}))
	require.NoError(t, err)

	tr := laco.Transition{StoreName: "Todo", Op: laco.OpSet}
	m.OnTransitionComplete(context.Background(), tr, laco.Outcome{}, time.Second)

	expected := `
# HELP laco_transition_duration_seconds Transition duration including listener notification
# TYPE laco_transition_duration_seconds histogram
laco_transition_duration_seconds_bucket{op="set",store="Todo",le="1"} 1
laco_transition_duration_seconds_bucket{op="set",store="Todo",le="+Inf"} 1
laco_transition_duration_seconds_sum{op="set",store="Todo"} 1
laco_transition_duration_seconds_count{op="set",store="Todo"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "laco_transition_duration_seconds"))
}
