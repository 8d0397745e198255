package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is anything that can report per-endpoint counters.
type StatsSource interface {
	Statistics() map[string]Stats
}

// Collector exports rotator counters as Prometheus metrics. The source is
// read on every scrape, so it must be safe for concurrent use (see Locked).
type Collector struct {
	source   StatsSource
	usage    *prometheus.Desc
	failures *prometheus.Desc
}

// NewCollector returns a collector over source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		usage: prometheus.NewDesc(
			"browserforge_proxy_usage_total",
			"Number of times the proxy was handed out by the rotator.",
			[]string{"endpoint"}, nil,
		),
		failures: prometheus.NewDesc(
			"browserforge_proxy_failures",
			"Consecutive failures reported for the proxy.",
			[]string{"endpoint"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.usage
	ch <- c.failures
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for key, s := range c.source.Statistics() {
		ch <- prometheus.MustNewConstMetric(c.usage, prometheus.CounterValue, float64(s.Usage), key)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(s.Failures), key)
	}
}
