// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is what the scheduler and HTTP middleware record into.
type MetricsCollector interface {
	RecordCycle(duration time.Duration, failed bool)
	RecordItems(succeeded, failed int)
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	cycles        prometheus.Counter
	cyclesFailed  prometheus.Counter
	cycleDuration prometheus.Histogram
	itemsOK       prometheus.Counter
	itemsFailed   prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  prometheus.Histogram
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wbtrack_scheduler_cycles_total",
			Help: "Completed scheduler refresh cycles.",
		}),
		cyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wbtrack_scheduler_cycles_failed_total",
			Help: "Scheduler cycles that ended in a cycle-level failure.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wbtrack_scheduler_cycle_duration_seconds",
			Help:    "Duration of scheduler refresh cycles.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		itemsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wbtrack_scheduler_items_succeeded_total",
			Help: "Products refreshed with a new snapshot.",
		}),
		itemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wbtrack_scheduler_items_failed_total",
			Help: "Products whose refresh failed.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wbtrack_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status_code"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wbtrack_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.cycles,
		c.cyclesFailed,
		c.cycleDuration,
		c.itemsOK,
		c.itemsFailed,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordCycle records one finished scheduler cycle.
func (c *Collector) RecordCycle(duration time.Duration, failed bool) {
	c.cycles.Inc()
	if failed {
		c.cyclesFailed.Inc()
	}
	c.cycleDuration.Observe(duration.Seconds())
}

// RecordItems records per-item outcomes of a batch.
func (c *Collector) RecordItems(succeeded, failed int) {
	c.itemsOK.Add(float64(succeeded))
	c.itemsFailed.Add(float64(failed))
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.Observe(duration.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

var _ MetricsCollector = Nop{}

func (Nop) RecordCycle(time.Duration, bool) {}
func (Nop) RecordItems(int, int) {}
func (Nop) RecordHTTPRequest(string, int, time.Duration) {}
