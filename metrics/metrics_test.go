// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/common"
)

func TestObserveSwapTerminalIncrementsByStatusAndChainPair(t *testing.T) {
	r := New()
	r.ObserveSwapTerminal(common.StatusCompleted, common.ChainA, common.ChainB, time.Now().Add(-time.Minute))
	r.ObserveSwapTerminal(common.StatusFailed, common.ChainA, common.ChainB, time.Now())

	require.Equal(t, float64(1), testutil.ToFloat64(r.swapsTotal.WithLabelValues("completed", "chain-a", "chain-b")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.swapsTotal.WithLabelValues("failed", "chain-a", "chain-b")))
	require.Equal(t, float64(0), testutil.ToFloat64(r.swapsTotal.WithLabelValues("completed", "chain-b", "chain-a")))
}

func TestObserveAdapterCallLabelsOutcomeByError(t *testing.T) {
	r := New()
	r.ObserveAdapterCall(common.ChainA, "lock", nil, 10*time.Millisecond)
	r.ObserveAdapterCall(common.ChainA, "lock", errors.New("boom"), 5*time.Millisecond)

	require.Equal(t, float64(1), testutil.ToFloat64(r.adapterCalls.WithLabelValues("chain-a", "lock", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.adapterCalls.WithLabelValues("chain-a", "lock", "failure")))
}

func TestSetPipelineLagOverwritesRatherThanAccumulates(t *testing.T) {
	r := New()
	r.SetPipelineLag(common.ChainB, 3)
	r.SetPipelineLag(common.ChainB, 1)
	require.Equal(t, float64(1), testutil.ToFloat64(r.pipelineLag.WithLabelValues("chain-b")))
}

func TestSetRiskDegradedTogglesGauge(t *testing.T) {
	r := New()
	r.SetRiskDegraded(true)
	require.Equal(t, float64(1), testutil.ToFloat64(r.riskDegraded))
	r.SetRiskDegraded(false)
	require.Equal(t, float64(0), testutil.ToFloat64(r.riskDegraded))
}

func TestObserveSecurityAlertCountsByReason(t *testing.T) {
	r := New()
	r.ObserveSecurityAlert("quantum_hash_mismatch")
	r.ObserveSecurityAlert("quantum_hash_mismatch")
	r.ObserveSecurityAlert("rollback_exhausted")

	require.Equal(t, float64(2), testutil.ToFloat64(r.securityAlerts.WithLabelValues("quantum_hash_mismatch")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.securityAlerts.WithLabelValues("rollback_exhausted")))
}

func TestGathererReturnsRegisteredMetricFamilies(t *testing.T) {
	r := New()
	r.ObserveRiskDecision("allow")

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
