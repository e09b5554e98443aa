package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

// monitorMetrics implements devtools.ServerObserver.
type monitorMetrics struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	actionsTotal   prometheus.Counter
	jumpsTotal     prometheus.Counter
}

func newMonitorMetrics(reg prometheus.Registerer) (*monitorMetrics, error) {
	m := &monitorMetrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "laco_monitor",
			Name:      "sessions_active",
			Help:      "Connected client sessions",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "laco_monitor",
			Name:      "sessions_total",
			Help:      "Client sessions opened",
		}),
		actionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "laco_monitor",
			Name:      "actions_total",
			Help:      "Actions received from clients",
		}),
		jumpsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "laco_monitor",
			Name:      "jumps_total",
			Help:      "Jump requests sent to clients",
		}),
	}
	for _, c := range []prometheus.Collector{m.sessionsActive, m.sessionsTotal, m.actionsTotal, m.jumpsTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *monitorMetrics) OnSessionOpen(string) {
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

func (m *monitorMetrics) OnSessionClose(string) {
	m.sessionsActive.Dec()
}

func (m *monitorMetrics) OnAction(string, string) {
	m.actionsTotal.Inc()
}

func (m *monitorMetrics) OnJump(string) {
	m.jumpsTotal.Inc()
}
