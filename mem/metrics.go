package mem

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	memPrometheusMetrics sync.Once

	memAllocations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minikern",
			Subsystem: "mem",
			Name:      "heap_allocations_total",
			Help:      "Number of heap blocks handed out by the first-fit allocator",
		})
	memReleases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minikern",
			Subsystem: "mem",
			Name:      "heap_releases_total",
			Help:      "Number of heap blocks returned to the free list",
		})
	memCoalesceMerges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minikern",
			Subsystem: "mem",
			Name:      "heap_coalesce_merges_total",
			Help:      "Number of adjacent free descriptors merged by coalesce passes",
		})
	memFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minikern",
			Subsystem: "mem",
			Name:      "failures_total",
			Help:      "Out-of-memory, bad-pointer, double-free and stack exhaustion events",
		})
)

func registerMetrics() {
	memPrometheusMetrics.Do(func() {
		prometheus.MustRegister(memAllocations)
		prometheus.MustRegister(memReleases)
		prometheus.MustRegister(memCoalesceMerges)
		prometheus.MustRegister(memFailures)
	})
}
