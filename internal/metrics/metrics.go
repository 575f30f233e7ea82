// Package metrics holds the Prometheus collectors of the editing engine.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all engine metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Reconciles  *prometheus.CounterVec
	Writes      *prometheus.CounterVec
	Proposals   *prometheus.CounterVec
	Elements    prometheus.Gauge
	HTTPRequest *prometheus.CounterVec
}

// New creates a collector registered on its own registry
func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Reconciles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_cycles_total",
				Help:      "Reconciliation cycles by result",
			},
			[]string{"result"},
		),
		Writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_writes_total",
				Help:      "Backend writes by operation and result",
			},
			[]string{"op", "result"},
		),
		Proposals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edge_proposals_total",
				Help:      "Proximity edge proposals by outcome",
			},
			[]string{"outcome"},
		),
		Elements: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rendered_elements",
				Help:      "Elements on the most recently rebuilt canvas",
			},
		),
		HTTPRequest: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
	}

	registry.MustRegister(
		c.Reconciles,
		c.Writes,
		c.Proposals,
		c.Elements,
		c.HTTPRequest,
	)

	return c
}

// Registry returns the registry backing the collector
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ReconcileDone records one finished reconciliation cycle
func (c *Collector) ReconcileDone(result string, elements int) {
	if c == nil {
		return
	}
	c.Reconciles.WithLabelValues(result).Inc()
	if result == "ok" {
		c.Elements.Set(float64(elements))
	}
}

// WriteDone records one backend write
func (c *Collector) WriteDone(op string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Writes.WithLabelValues(op, result).Inc()
}

// Proposal records the outcome of one edge proposal
func (c *Collector) Proposal(outcome string) {
	if c == nil {
		return
	}
	c.Proposals.WithLabelValues(outcome).Inc()
}

// HTTPDone records one served request. route is the matched pattern.
func (c *Collector) HTTPDone(method, route string, status int) {
	if c == nil {
		return
	}
	c.HTTPRequest.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
