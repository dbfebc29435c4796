// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package risk implements the synchronous pre-execution risk gate: a call
// to an external risk scorer, a threshold decision, and a manual-review
// queue for borderline operations.
package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/config"
)

// SwapContext is everything the scorer needs to evaluate one operation.
type SwapContext struct {
	SwapID       uuid.UUID
	UserID       uuid.UUID
	FromChain    common.Chain
	ToChain      common.Chain
	FromToken    string
	ToToken      string
	AmountIn     string // decimal string, not a float
	Recipient    string
}

// Decision is the gate's verdict, one of Allow, ManualReview, or Block.
type Decision struct {
	Outcome  Outcome
	Score    float64
	Reason   string
	Degraded bool // true if this decision came from the fail-open/fail-closed fallback, not a live scorer response
}

// Outcome enumerates the three possible risk gate verdicts.
type Outcome string

const (
	Allow        Outcome = "allow"
	ManualReview Outcome = "manual_review"
	Block        Outcome = "block"
)

// scorerResponse is the external scorer's wire response.
type scorerResponse struct {
	Score   float64         `json:"score"`
	Factors json.RawMessage `json:"factors"`
}

// Gate wraps an HTTP call to an external risk scorer with a circuit
// breaker and the fail-open/fail-closed policy from config.
type Gate struct {
	endpoint   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cfg        *config.Holder
}

// NewGate constructs a Gate calling endpoint for scores, with the given
// holder supplying live threshold/failure-policy configuration.
func NewGate(endpoint string, cfg *config.Holder) *Gate {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "risk-scorer",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Gate{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		breaker:    breaker,
		cfg:        cfg,
	}
}

// Score evaluates swapCtx and returns a Decision. On scorer unavailability
// (network error, timeout, or open circuit) it falls back per
// config.Bridge.RiskGate.FailurePolicy, which has no default -- an
// unconfigured policy is a configuration error, not a silent fail-open.
func (g *Gate) Score(ctx context.Context, swapCtx SwapContext) (Decision, error) {
	cfg := g.cfg.Get()
	gateCfg := cfg.RiskGate

	callCtx, cancel := context.WithTimeout(ctx, gateCfg.CallTimeout)
	defer cancel()

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.callScorer(callCtx, swapCtx)
	})
	if err != nil {
		return g.fallback(gateCfg, err)
	}

	resp := result.(scorerResponse)
	return classify(resp.Score, gateCfg), nil
}

func (g *Gate) callScorer(ctx context.Context, swapCtx SwapContext) (scorerResponse, error) {
	body, err := json.Marshal(swapCtx)
	if err != nil {
		return scorerResponse{}, fmt.Errorf("%w: encode swap context: %s", common.ErrValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return scorerResponse{}, fmt.Errorf("%w: %s", common.ErrRiskScorerUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := g.httpClient.Do(req)
	if err != nil {
		return scorerResponse{}, fmt.Errorf("%w: %s", common.ErrRiskScorerUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return scorerResponse{}, fmt.Errorf("%w: scorer returned status %d", common.ErrRiskScorerUnavailable, httpResp.StatusCode)
	}

	var resp scorerResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return scorerResponse{}, fmt.Errorf("%w: decode scorer response: %s", common.ErrRiskScorerUnavailable, err)
	}
	return resp, nil
}

func (g *Gate) fallback(gateCfg config.RiskGate, cause error) (Decision, error) {
	switch gateCfg.FailurePolicy {
	case config.FailOpen:
		return Decision{Outcome: Allow, Score: 0.5, Reason: "risk scorer unavailable, failing open", Degraded: true}, nil
	case config.FailClosed:
		return Decision{}, fmt.Errorf("%w: %s", common.ErrRiskScorerUnavailable, cause)
	default:
		return Decision{}, fmt.Errorf("%w: risk gate failure policy is not configured", common.ErrRiskScorerUnavailable)
	}
}

func classify(score float64, gateCfg config.RiskGate) Decision {
	switch {
	case score >= gateCfg.AutoBlockThreshold:
		return Decision{Outcome: Block, Score: score, Reason: "score at or above auto-block threshold"}
	case score >= gateCfg.ManualReviewThreshold:
		return Decision{Outcome: ManualReview, Score: score, Reason: "score requires manual review"}
	default:
		return Decision{Outcome: Allow, Score: score}
	}
}

// OverrideBlock lets an authorized operator allow a swap the gate blocked,
// when config.RiskGate.AllowAdminOverride is set.
func (g *Gate) OverrideBlock(reason string) (Decision, error) {
	cfg := g.cfg.Get()
	if !cfg.RiskGate.AllowAdminOverride {
		return Decision{}, fmt.Errorf("%w: admin override of blocked swaps is disabled", common.ErrValidation)
	}
	return Decision{Outcome: Allow, Score: 0, Reason: "admin override: " + reason}, nil
}
