// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus collectors artefacta updates
// while it runs. A CLI invocation is short-lived, so nothing is served
// over HTTP; the collectors are written to a node_exporter textfile at
// exit when configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a set of collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	TransferredBytes  *prometheus.CounterVec
	Steps             *prometheus.CounterVec
	IntegrityFailures prometheus.Counter
	PlanCost          prometheus.Gauge
	PlanSteps         prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		TransferredBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artefacta_transferred_bytes_total",
			Help: "Stored object bytes moved between stores.",
		}, []string{"store", "direction"}),
		Steps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artefacta_plan_steps_total",
			Help: "Plan steps executed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		IntegrityFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "artefacta_integrity_failures_total",
			Help: "Objects or reconstructions rejected by hash, codec, or patch checks.",
		}),
		PlanCost: factory.NewGauge(prometheus.GaugeOpts{
			Name: "artefacta_last_plan_cost_bytes",
			Help: "Transfer cost of the most recently resolved plan.",
		}),
		PlanSteps: factory.NewGauge(prometheus.GaugeOpts{
			Name: "artefacta_last_plan_steps",
			Help: "Number of steps in the most recently resolved plan.",
		}),
	}
}

// ObserveTransfer records size bytes moved from or to a store.
// Direction is "download" or "upload".
func (m *Metrics) ObserveTransfer(store, direction string, size int64) {
	if m == nil || size <= 0 {
		return
	}
	m.TransferredBytes.WithLabelValues(store, direction).Add(float64(size))
}

// ObserveStep records the outcome of one plan step.
func (m *Metrics) ObserveStep(kind, outcome string) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(kind, outcome).Inc()
}

// ObserveIntegrityFailure counts one rejected object.
func (m *Metrics) ObserveIntegrityFailure() {
	if m == nil {
		return
	}
	m.IntegrityFailures.Inc()
}

// ObservePlan records the shape of a resolved plan.
func (m *Metrics) ObservePlan(cost int64, steps int) {
	if m == nil {
		return
	}
	m.PlanCost.Set(float64(cost))
	m.PlanSteps.Set(float64(steps))
}

// WriteTextfile writes every collector to path in the text exposition
// format, atomically, for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
