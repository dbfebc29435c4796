// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package metrics exposes the bridge's Prometheus instrumentation: swap
// outcomes by terminal status, adapter call latency by chain and
// operation, event-pipeline lag, and risk-gate degraded-mode state. A
// Registry wraps a dedicated prometheus.Registry rather than the global
// default so tests can construct disposable instances.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quantumbridge/bridge/common"
)

// Registry holds every metric the bridge emits, registered against its
// own prometheus.Registry.
type Registry struct {
	registry *prometheus.Registry

	swapsTotal       *prometheus.CounterVec
	swapDuration     *prometheus.HistogramVec
	adapterCalls     *prometheus.CounterVec
	adapterLatency   *prometheus.HistogramVec
	adapterRetries   *prometheus.CounterVec
	pipelineLag      *prometheus.GaugeVec
	pipelineReorgs   *prometheus.CounterVec
	riskDegraded     prometheus.Gauge
	riskDecisions    *prometheus.CounterVec
	reviewQueueDepth prometheus.Gauge
	quantumKeysTotal *prometheus.CounterVec
	securityAlerts   *prometheus.CounterVec
}

// New builds a Registry and registers every metric against a fresh
// prometheus.Registry.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		swapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_swaps_total",
			Help: "Total number of swaps that reached a terminal status, by status and chain pair.",
		}, []string{"status", "from_chain", "to_chain"}),

		swapDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_swap_duration_seconds",
			Help:    "Wall-clock time from init_swap to a terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"status"}),

		adapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_adapter_calls_total",
			Help: "Total chain adapter calls, by chain, operation, and outcome.",
		}, []string{"chain", "operation", "outcome"}),

		adapterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_adapter_call_duration_seconds",
			Help:    "Chain adapter call latency, by chain and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain", "operation"}),

		adapterRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_adapter_retries_total",
			Help: "Total retry attempts against a chain adapter, by chain and operation.",
		}, []string{"chain", "operation"}),

		pipelineLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_event_pipeline_lag_blocks",
			Help: "Blocks between chain head and the last block the event pipeline has confirmed, by chain.",
		}, []string{"chain"}),

		pipelineReorgs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_event_pipeline_reorgs_total",
			Help: "Total reorgs detected by the event pipeline, by chain.",
		}, []string{"chain"}),

		riskDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_risk_gate_degraded",
			Help: "1 when the risk gate is running in degraded mode (a factor source is unavailable), 0 otherwise.",
		}),

		riskDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_risk_decisions_total",
			Help: "Total risk gate decisions, by outcome.",
		}, []string{"outcome"}),

		reviewQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_review_queue_depth",
			Help: "Current number of swaps awaiting manual review.",
		}),

		quantumKeysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_quantum_keys_generated_total",
			Help: "Total quantum-resistant keypairs generated, by usage category.",
		}, []string{"category"}),

		securityAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_security_alerts_total",
			Help: "Total security alerts emitted, by reason.",
		}, []string{"reason"}),
	}

	r.registry.MustRegister(
		r.swapsTotal,
		r.swapDuration,
		r.adapterCalls,
		r.adapterLatency,
		r.adapterRetries,
		r.pipelineLag,
		r.pipelineReorgs,
		r.riskDegraded,
		r.riskDecisions,
		r.reviewQueueDepth,
		r.quantumKeysTotal,
		r.securityAlerts,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Registry for an HTTP
// /metrics handler to scrape.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveSwapTerminal records a swap reaching a terminal status.
func (r *Registry) ObserveSwapTerminal(status common.Status, fromChain, toChain common.Chain, createdAt time.Time) {
	r.swapsTotal.WithLabelValues(string(status), string(fromChain), string(toChain)).Inc()
	r.swapDuration.WithLabelValues(string(status)).Observe(time.Since(createdAt).Seconds())
}

// ObserveAdapterCall records one chain adapter call.
func (r *Registry) ObserveAdapterCall(chain common.Chain, operation string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.adapterCalls.WithLabelValues(string(chain), operation, outcome).Inc()
	r.adapterLatency.WithLabelValues(string(chain), operation).Observe(duration.Seconds())
}

// ObserveAdapterRetry records one retry attempt against a chain adapter.
func (r *Registry) ObserveAdapterRetry(chain common.Chain, operation string) {
	r.adapterRetries.WithLabelValues(string(chain), operation).Inc()
}

// SetPipelineLag records how many blocks behind chain head the event
// pipeline's confirmed cursor is.
func (r *Registry) SetPipelineLag(chain common.Chain, lagBlocks int64) {
	r.pipelineLag.WithLabelValues(string(chain)).Set(float64(lagBlocks))
}

// ObserveReorg records a detected reorg on chain.
func (r *Registry) ObserveReorg(chain common.Chain) {
	r.pipelineReorgs.WithLabelValues(string(chain)).Inc()
}

// SetRiskDegraded records whether the risk gate is currently running in
// degraded mode.
func (r *Registry) SetRiskDegraded(degraded bool) {
	if degraded {
		r.riskDegraded.Set(1)
		return
	}
	r.riskDegraded.Set(0)
}

// ObserveRiskDecision records one risk gate decision.
func (r *Registry) ObserveRiskDecision(outcome string) {
	r.riskDecisions.WithLabelValues(outcome).Inc()
}

// SetReviewQueueDepth records the current manual-review backlog size.
func (r *Registry) SetReviewQueueDepth(depth int) {
	r.reviewQueueDepth.Set(float64(depth))
}

// ObserveQuantumKeyGenerated records one new keypair, by usage category.
func (r *Registry) ObserveQuantumKeyGenerated(category string) {
	r.quantumKeysTotal.WithLabelValues(category).Inc()
}

// ObserveSecurityAlert records one emitted security alert, by reason.
func (r *Registry) ObserveSecurityAlert(reason string) {
	r.securityAlerts.WithLabelValues(reason).Inc()
}
