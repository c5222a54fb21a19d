package metrics

import (
	"modwarden/internal/handler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics records handler load and dispatch outcomes. It satisfies
// handler.Observer. A nil *Metrics ignores every call.
type Metrics struct {
	Dispatches   *prometheus.CounterVec
	Loads        *prometheus.CounterVec
	RegistrySize *prometheus.GaugeVec
	Moderation   *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modwarden",
				Name:      "dispatch_total",
				Help:      "Routed notifications by handler kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		Loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modwarden",
				Name:      "load_total",
				Help:      "Handler definitions processed by load cycles, by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		RegistrySize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "modwarden",
				Name:      "registry_size",
				Help:      "Handlers registered after the last load cycle.",
			},
			[]string{"kind"},
		),
		Moderation: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modwarden",
				Name:      "moderation_actions_total",
				Help:      "Automatic moderation actions taken, by action.",
			},
			[]string{"action"},
		),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Dispatches,
		m.Loads,
		m.RegistrySize,
		m.Moderation,
	}
}

// Registry builds a registry holding the bot's collectors and the Go runtime
// collector.
func (m *Metrics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if m != nil {
		reg.MustRegister(m.Collectors()...)
	}
	return reg
}

func (m *Metrics) Loaded(kind handler.Kind, report handler.LoadReport) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(kind.String(), "loaded").Add(float64(report.LoadedCount))
	m.Loads.WithLabelValues(kind.String(), "failed").Add(float64(report.FailedCount))
	m.RegistrySize.WithLabelValues(kind.String()).Set(float64(report.LoadedCount))
}

func (m *Metrics) Dispatched(kind handler.Kind, outcome string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(kind.String(), outcome).Inc()
}

// Action counts one automatic moderation action such as a link removal.
func (m *Metrics) Action(action string) {
	if m == nil {
		return
	}
	m.Moderation.WithLabelValues(action).Inc()
}
