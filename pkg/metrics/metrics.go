// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

// Package metrics exports validation counters to Prometheus
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
	"github.com/opiproject/opi-vtn-coordinator/pkg/validator"
)

const namespace = "vtn"

// Collector counts validation outcomes per resource type and method.
// It implements validator.Observer.
type Collector struct {
	registry   *prometheus.Registry
	validation *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rejected   *prometheus.CounterVec
}

// NewCollector creates a Collector with its own registry, which also carries
// the Go runtime and process collectors
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		validation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_total",
			Help:      "Number of validated requests by resource, method and outcome.",
		}, []string{"resource", "method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Time spent validating a request.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}, []string{"resource"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_fields_total",
			Help:      "Number of rejections by resource and offending field.",
		}, []string{"resource", "field"}),
	}
	c.registry.MustRegister(
		c.validation,
		c.duration,
		c.rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Observe records one validation
func (c *Collector) Observe(resourceType string, method schema.Method, result validator.Result, elapsed time.Duration) {
	c.validation.WithLabelValues(resourceType, string(method), result.Outcome()).Inc()
	c.duration.WithLabelValues(resourceType).Observe(elapsed.Seconds())
	if !result.Valid && result.InvalidField != "" {
		c.rejected.WithLabelValues(resourceType, result.InvalidField).Inc()
	}
}

// Registry exposes the underlying registry, e.g. for tests
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
