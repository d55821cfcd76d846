// Package metrics provides Prometheus metrics integration for vqueue.
//
// A Collector satisfies the metrics interfaces of both the queue and the
// consumer packages and is itself a prometheus.Collector, so one instance
// per queue can be registered and shared by the producer and all consumers
// of that queue.
//
// Usage:
//
//	import (
//	    "github.com/prometheus/client_golang/prometheus"
//	    "github.com/vnykmshr/vqueue/internal/metrics"
//	)
//
//	collector := metrics.NewCollector("orders")
//	prometheus.MustRegister(collector)
//
//	opts := queue.DefaultOptions()
//	opts.MetricsCollector = collector
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vqueue"

var durationBuckets = []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1}

// Collector tracks queue and consumer metrics for one queue.
type Collector struct {
	queueName string

	// Producer side
	pushTotal     prometheus.Counter
	pushBytes     prometheus.Counter
	pushBatches   prometheus.Counter
	pushErrors    prometheus.Counter
	pushDuration  prometheus.Histogram
	countPushed   prometheus.Gauge
	endPosition   prometheus.Gauge
	segmentsGauge prometheus.Gauge

	// Consumer side, labeled by consumer
	popTotal     *prometheus.CounterVec
	popBytes     *prometheus.CounterVec
	popErrors    *prometheus.CounterVec
	popDuration  *prometheus.HistogramVec
	commitTotal  *prometheus.CounterVec
	commitErrors *prometheus.CounterVec
	backlog      *prometheus.GaugeVec
}

// NewCollector creates a new metrics collector for a queue.
func NewCollector(queueName string) *Collector {
	labels := prometheus.Labels{"queue": queueName}
	consumer := []string{"consumer"}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: labels,
		})
	}
	counterVec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: labels,
		}, consumer)
	}

	return &Collector{
		queueName:   queueName,
		pushTotal:   counter("push_total", "Total number of records pushed"),
		pushBytes:   counter("push_bytes_total", "Total record body bytes pushed"),
		pushBatches: counter("push_batches_total", "Total number of batch pushes"),
		pushErrors:  counter("push_errors_total", "Total number of failed pushes"),
		pushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "push_duration_seconds",
			Help:        "Time to durably append a record or batch in seconds",
			ConstLabels: labels,
			Buckets:     durationBuckets,
		}),
		countPushed:   gauge("count_pushed", "Number of complete records in the log"),
		endPosition:   gauge("end_position_bytes", "Logical end position of the log"),
		segmentsGauge: gauge("segments", "Number of segment files"),

		popTotal:  counterVec("pop_total", "Total number of record bodies read"),
		popBytes:  counterVec("pop_bytes_total", "Total record body bytes read"),
		popErrors: counterVec("pop_errors_total", "Total number of fatal read errors"),
		popDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "pop_duration_seconds",
			Help:        "Time to read a record body in seconds",
			ConstLabels: labels,
			Buckets:     durationBuckets,
		}, consumer),
		commitTotal:  counterVec("commit_total", "Total number of committed records"),
		commitErrors: counterVec("commit_errors_total", "Total number of failed cursor persists"),
		backlog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "consumer_backlog_records",
			Help:        "Complete records between a consumer's position and the log end",
			ConstLabels: labels,
		}, consumer),
	}
}

// QueueName returns the queue this collector is labeled with.
func (c *Collector) QueueName() string {
	return c.queueName
}

// RecordPush records a successful push.
func (c *Collector) RecordPush(payloadSize int, duration time.Duration) {
	c.pushTotal.Inc()
	c.pushBytes.Add(float64(payloadSize))
	c.pushDuration.Observe(duration.Seconds())
}

// RecordPushBatch records a successful batch push.
func (c *Collector) RecordPushBatch(count, totalPayloadSize int, duration time.Duration) {
	c.pushBatches.Inc()
	c.pushTotal.Add(float64(count))
	c.pushBytes.Add(float64(totalPayloadSize))
	c.pushDuration.Observe(duration.Seconds())
}

// RecordPushError records a push failure.
func (c *Collector) RecordPushError() {
	c.pushErrors.Inc()
}

// UpdateQueueState updates log state gauges.
func (c *Collector) UpdateQueueState(countPushed, endPosition uint64, segments int) {
	c.countPushed.Set(float64(countPushed))
	c.endPosition.Set(float64(endPosition))
	c.segmentsGauge.Set(float64(segments))
}

// RecordPop records a record body read by a consumer.
func (c *Collector) RecordPop(consumer string, payloadSize int, duration time.Duration) {
	c.popTotal.WithLabelValues(consumer).Inc()
	c.popBytes.WithLabelValues(consumer).Add(float64(payloadSize))
	c.popDuration.WithLabelValues(consumer).Observe(duration.Seconds())
}

// RecordPopError records a fatal read error.
func (c *Collector) RecordPopError(consumer string) {
	c.popErrors.WithLabelValues(consumer).Inc()
}

// RecordCommit records a committed record.
func (c *Collector) RecordCommit(consumer string) {
	c.commitTotal.WithLabelValues(consumer).Inc()
}

// RecordCommitError records a failed cursor persist.
func (c *Collector) RecordCommitError(consumer string) {
	c.commitErrors.WithLabelValues(consumer).Inc()
}

// UpdateBacklog sets the number of records a consumer has not committed yet.
func (c *Collector) UpdateBacklog(consumer string, records uint64) {
	c.backlog.WithLabelValues(consumer).Set(float64(records))
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.pushTotal, c.pushBytes, c.pushBatches, c.pushErrors, c.pushDuration,
		c.countPushed, c.endPosition, c.segmentsGauge,
		c.popTotal, c.popBytes, c.popErrors, c.popDuration,
		c.commitTotal, c.commitErrors, c.backlog,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.collectors() {
		m.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.collectors() {
		m.Collect(ch)
	}
}

// NoopCollector is a metrics collector that does nothing.
// Useful when metrics are disabled.
type NoopCollector struct{}

func (NoopCollector) RecordPush(int, time.Duration) {}
func (NoopCollector) RecordPushBatch(int, int, time.Duration) {}
func (NoopCollector) RecordPushError() {}
func (NoopCollector) UpdateQueueState(uint64, uint64, int) {}
func (NoopCollector) RecordPop(string, int, time.Duration) {}
func (NoopCollector) RecordPopError(string) {}
func (NoopCollector) RecordCommit(string) {}
func (NoopCollector) RecordCommitError(string) {}
func (NoopCollector) UpdateBacklog(string, uint64) {}
