package sched

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	schedPrometheusMetrics sync.Once

	schedTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minikern",
			Subsystem: "sched",
			Name:      "ticks_total",
			Help:      "Logical ticks processed by the scheduler",
		})
	schedIdleTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minikern",
			Subsystem: "sched",
			Name:      "idle_ticks_total",
			Help:      "Ticks spent with no current process",
		})
	schedContextSwitches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minikern",
			Subsystem: "sched",
			Name:      "context_switches_total",
			Help:      "Dispatch decisions that installed a process on the CPU",
		})
	schedPreemptions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minikern",
			Subsystem: "sched",
			Name:      "preemptions_total",
			Help:      "Quantum-expiry preemptions",
		})
	schedAgingBoosts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minikern",
			Subsystem: "sched",
			Name:      "aging_boosts_total",
			Help:      "Priority boosts applied by the aging pass",
		})
)

func registerMetrics() {
	schedPrometheusMetrics.Do(func() {
		prometheus.MustRegister(schedTicks)
		prometheus.MustRegister(schedIdleTicks)
		prometheus.MustRegister(schedContextSwitches)
		prometheus.MustRegister(schedPreemptions)
		prometheus.MustRegister(schedAgingBoosts)
	})
}
