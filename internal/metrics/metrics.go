// Package metrics – Prometheus metrics for the crawl daemon.
//
// # Overview
//
// Registry tracks operational counters and gauges for the Poll Loop. All
// fields are updated atomically so they can be read concurrently from an
// HTTP handler without holding any additional lock.
//
// # Prometheus text format
//
// Handler returns an [net/http.Handler] that serves the registered metrics
// in the standard Prometheus text exposition format on every GET request.
// Wire it into your HTTP mux at /metrics (or any other path you prefer):
//
//	m := metrics.NewRegistry()
//	http.Handle("/metrics", m.Handler())
//
// # Metric catalogue
//
//	cephgeorep_cycles_total               – counter: poll cycles completed
//	cephgeorep_cycles_with_change_total    – counter: cycles whose walk found at least one new file
//	cephgeorep_files_synced_total          – counter: files handed to the Syncer (dry runs not counted)
//	cephgeorep_bytes_synced_total          – counter: bytes handed to the Syncer (dry runs not counted)
//	cephgeorep_sync_failures_total         – counter: cycles where the Syncer reported failure
//	cephgeorep_last_cycle_duration_seconds – gauge:   wall time of the most recently completed cycle
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// Registry holds all Prometheus counters and gauges for the Poll Loop. The
// zero value is ready to use; all counters start at zero.
type Registry struct {
	CyclesTotal           atomic.Int64
	CyclesWithChangeTotal atomic.Int64
	FilesSyncedTotal       atomic.Int64
	BytesSyncedTotal       atomic.Int64
	SyncFailuresTotal      atomic.Int64

	// LastCycleDurationMillis is a gauge holding the most recently
	// completed cycle's wall-clock duration, in milliseconds (atomic.Int64
	// has no floating-point variant; Handler divides by 1000 on render).
	LastCycleDurationMillis atomic.Int64
}

// NewRegistry allocates a new [Registry] value with all counters at zero.
func NewRegistry() *Registry {
	return &Registry{}
}

// metricLine is a single Prometheus metric family descriptor plus its
// current value.
type metricLine struct {
	help  string
	kind  string // "counter" or "gauge"
	name  string
	value float64
}

// snapshot captures the current values of all metrics in a consistent order.
func (r *Registry) snapshot() []metricLine {
	return []metricLine{
		{
			help:  "Total number of poll cycles completed.",
			kind:  "counter",
			name:  "cephgeorep_cycles_total",
			value: float64(r.CyclesTotal.Load()),
		},
		{
			help:  "Total number of poll cycles whose walk found at least one new file.",
			kind:  "counter",
			name:  "cephgeorep_cycles_with_change_total",
			value: float64(r.CyclesWithChangeTotal.Load()),
		},
		{
			help:  "Total number of files handed to the Syncer.",
			kind:  "counter",
			name:  "cephgeorep_files_synced_total",
			value: float64(r.FilesSyncedTotal.Load()),
		},
		{
			help:  "Total number of bytes handed to the Syncer.",
			kind:  "counter",
			name:  "cephgeorep_bytes_synced_total",
			value: float64(r.BytesSyncedTotal.Load()),
		},
		{
			help:  "Total number of cycles where the Syncer reported failure.",
			kind:  "counter",
			name:  "cephgeorep_sync_failures_total",
			value: float64(r.SyncFailuresTotal.Load()),
		},
		{
			help:  "Wall-clock duration of the most recently completed poll cycle, in seconds.",
			kind:  "gauge",
			name:  "cephgeorep_last_cycle_duration_seconds",
			value: float64(r.LastCycleDurationMillis.Load()) / 1000,
		},
	}
}

// Handler returns an [http.Handler] that writes all cycle metrics in the
// Prometheus text exposition format on every GET request.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		writeMetrics(w, r.snapshot())
	})
}

// writeMetrics serialises lines into Prometheus text exposition format.
func writeMetrics(w io.Writer, lines []metricLine) {
	for _, l := range lines {
		fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.kind)
		fmt.Fprintf(w, "%s %g\n", l.name, l.value)
	}
}
