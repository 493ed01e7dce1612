package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics are the daemon's Prometheus collectors, registered on a private
// registry so tests and multiple Apps in one process never collide.
type Metrics struct {
	Registry *prometheus.Registry

	Recorded          prometheus.Counter
	Suppressed        prometheus.Counter
	Scans             *prometheus.CounterVec
	PartitionFailures prometheus.Counter
	ScanInProgress    prometheus.GaugeFunc
}

// Scan result labels.
const (
	scanOK       = "ok"
	scanRejected = "rejected"
	scanFailed   = "failed"
)

// NewMetrics creates and registers all collectors. scanning backs the
// in-progress gauge.
func NewMetrics(scanning func() bool) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Recorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thoughts_recorded_total",
			Help: "Phrase occurrences recorded from live messages and manual adds.",
		}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thoughts_ingest_suppressed_total",
			Help: "Live phrase occurrences dropped because a scan was running.",
		}),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thoughts_scans_total",
			Help: "Rescan requests by result.",
		}, []string{"result"}),
		PartitionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thoughts_scan_partition_failures_total",
			Help: "Corpus partitions skipped during rescans.",
		}),
		ScanInProgress: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "thoughts_scan_in_progress",
			Help: "1 while a rescan is running.",
		}, func() float64 {
			if scanning() {
				return 1
			}
			return 0
		}),
	}
	m.Registry.MustRegister(
		m.Recorded,
		m.Suppressed,
		m.Scans,
		m.PartitionFailures,
		m.ScanInProgress,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// Pre-create label values so they show up at zero.
	for _, r := range []string{scanOK, scanRejected, scanFailed} {
		m.Scans.WithLabelValues(r)
	}
	return m
}
