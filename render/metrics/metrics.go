// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package metrics wraps the Prometheus collectors of the render service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.formrender.dev/render/interop"
)

// Recorder receives lifecycle measurements. The manager calls it on every
// operation; a nil Recorder is replaced by NoOp.
type Recorder interface {
	RecordOperation(op interop.Operation, code interop.ResultCode, elapsed time.Duration)
	RecordRecords(count int)
	RecordCritical(critical bool)
	RecordConfigurationApplied()
	RecordRecycleTimeout()
}

// NoOp discards every measurement.
type NoOp struct{}

func (NoOp) RecordOperation(interop.Operation, interop.ResultCode, time.Duration) {}
func (NoOp) RecordRecords(int)                                                    {}
func (NoOp) RecordCritical(bool)                                                  {}
func (NoOp) RecordConfigurationApplied()                                          {}
func (NoOp) RecordRecycleTimeout()                                                {}

// Collector records into its own Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	records          prometheus.Gauge
	critical         prometheus.Gauge
	configApplied    prometheus.Counter
	recycleTimeouts  prometheus.Counter
}

// NewCollector creates a collector. An empty namespace defaults to "formrender".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "formrender"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of lifecycle operations by result",
		},
		[]string{"op", "result"},
	)

	c.operationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time taken to answer a lifecycle operation",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"op"},
	)

	c.records = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Current number of clients with rendered forms",
		},
	)

	c.critical = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "critical",
			Help:      "1 while the service reports itself as actively rendering",
		},
	)

	c.configApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "configuration",
			Name:      "applied_total",
			Help:      "Total number of configurations propagated to the records",
		},
	)

	c.recycleTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recycle",
			Name:      "timeouts_total",
			Help:      "Total number of recycles that did not complete in time",
		},
	)

	c.registry.MustRegister(
		c.operations,
		c.operationLatency,
		c.records,
		c.critical,
		c.configApplied,
		c.recycleTimeouts,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordOperation(op interop.Operation, code interop.ResultCode, elapsed time.Duration) {
	c.operations.WithLabelValues(op.String(), code.String()).Inc()
	c.operationLatency.WithLabelValues(op.String()).Observe(elapsed.Seconds())
}

func (c *Collector) RecordRecords(count int) {
	c.records.Set(float64(count))
}

func (c *Collector) RecordCritical(critical bool) {
	if critical {
		c.critical.Set(1)
		return
	}
	c.critical.Set(0)
}

func (c *Collector) RecordConfigurationApplied() {
	c.configApplied.Inc()
}

func (c *Collector) RecordRecycleTimeout() {
	c.recycleTimeouts.Inc()
}
