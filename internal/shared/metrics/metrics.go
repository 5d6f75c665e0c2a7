// Package metrics holds the prometheus collectors updated by the evaluation pipeline.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "proxyrank"

// Stage labels.
const (
	StagePrescreen = "prescreen"
	StageBenchmark = "benchmark"
)

type Collector struct {
	registry *prometheus.Registry

	probes          *prometheus.CounterVec
	inFlight        *prometheus.GaugeVec
	benchLatency    prometheus.Histogram
	benchThroughput prometheus.Histogram
	selected        prometheus.Gauge
	shortfall       prometheus.Gauge
	historySize     prometheus.Gauge
	relayBytes      *prometheus.CounterVec
}

// New creates a Collector registered on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Probes executed, by stage and result.",
		}, []string{"stage", "result"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probes_in_flight",
			Help:      "Probes currently holding an admission slot.",
		}, []string{"stage"}),
		benchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "benchmark_latency_seconds",
			Help:      "Elapsed time of successful throughput probes.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		benchThroughput: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "benchmark_throughput_mbps",
			Help:      "Throughput of successful probes in MiB/s.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50},
		}),
		selected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selected_endpoints",
			Help:      "Endpoints that passed the quality filter in the last run.",
		}),
		shortfall: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selection_shortfall",
			Help:      "How many endpoints the last run was short of the configured minimum.",
		}),
		historySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_addresses",
			Help:      "Addresses tracked by the history store.",
		}),
		relayBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_bytes_total",
			Help:      "Bytes exchanged with relays on the wire, by stage and direction.",
		}, []string{"stage", "direction"}),
	}
	c.registry.MustRegister(c.probes, c.inFlight, c.benchLatency, c.benchThroughput,
		c.selected, c.shortfall, c.historySize, c.relayBytes)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ProbeStarted and ProbeFinished bracket a probe that holds an admission slot.
func (c *Collector) ProbeStarted(stage string) {
	if c == nil {
		return
	}
	c.inFlight.WithLabelValues(stage).Inc()
}

func (c *Collector) ProbeFinished(stage string, ok bool) {
	if c == nil {
		return
	}
	c.inFlight.WithLabelValues(stage).Dec()
	result := "fail"
	if ok {
		result = "ok"
	}
	c.probes.WithLabelValues(stage, result).Inc()
}

func (c *Collector) ObserveBenchmark(latencySeconds, throughputMBps float64) {
	if c == nil {
		return
	}
	c.benchLatency.Observe(latencySeconds)
	c.benchThroughput.Observe(throughputMBps)
}

func (c *Collector) AddRelayBytes(stage string, up, down uint64) {
	if c == nil {
		return
	}
	c.relayBytes.WithLabelValues(stage, "up").Add(float64(up))
	c.relayBytes.WithLabelValues(stage, "down").Add(float64(down))
}

func (c *Collector) SetSelection(selected, shortfall int) {
	if c == nil {
		return
	}
	c.selected.Set(float64(selected))
	c.shortfall.Set(float64(shortfall))
}

func (c *Collector) SetHistorySize(n int) {
	if c == nil {
		return
	}
	c.historySize.Set(float64(n))
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
