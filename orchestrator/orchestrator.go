// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package orchestrator drives one swap from init_swap through a terminal
// status, dispatching to the chain adapters, the risk gate, the pricing
// engine, and the quantum module, and serializing every transition through
// the swap store's conditional update.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	logging "github.com/ipfs/go-log"

	"github.com/google/uuid"

	"github.com/quantumbridge/bridge/chainadapter"
	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/config"
	"github.com/quantumbridge/bridge/crypto/auth"
	"github.com/quantumbridge/bridge/crypto/quantum"
	"github.com/quantumbridge/bridge/events"
	"github.com/quantumbridge/bridge/pricing"
	"github.com/quantumbridge/bridge/risk"
	"github.com/quantumbridge/bridge/swap"
)

var log = logging.Logger("orchestrator")

// QuantumKeyer is the subset of quantum.Module the orchestrator depends
// on: enough to mint a fresh key and derive the bridge-tx quantum hash for
// a swap, without depending on the module's storage layer.
type QuantumKeyer interface {
	GenerateKeypair(userID uuid.UUID, category quantum.UsageCategory) (uuid.UUID, error)
	PublicKey(keyID uuid.UUID) ([]byte, error)
	Encapsulate(publicKeyBytes []byte) (ciphertext, sharedSecret []byte, err error)
	DeriveSubkey(sharedSecret []byte, label quantum.Label, context []byte, category quantum.UsageCategory) ([]byte, error)
}

// RiskScorer is the subset of risk.Gate the orchestrator depends on.
type RiskScorer interface {
	Score(ctx context.Context, swapCtx risk.SwapContext) (risk.Decision, error)
	OverrideBlock(reason string) (risk.Decision, error)
}

// PricingEngine is the subset of pricing.Engine the orchestrator depends on.
type PricingEngine interface {
	Quote(ctx context.Context, fromChain, toChain common.Chain, fromToken, toToken string, amountIn *apd.Decimal) (*pricing.Quote, error)
}

// AlertSink is where emitted SecurityAlert messages are published. A real
// deployment wires this to an operator-facing channel; tests can capture
// messages in a slice.
type AlertSink interface {
	Publish(ctx context.Context, msg *auth.AuthMessage) error
}

// Params is init_swap's input.
type Params struct {
	UserID    uuid.UUID
	FromChain common.Chain
	ToChain   common.Chain
	FromToken string
	ToToken   string
	AmountIn  *apd.Decimal
	Recipient string
}

// InitResponse is init_swap's return value.
type InitResponse struct {
	SwapID        uuid.UUID
	Status        common.Status
	EstimatedTime time.Duration
}

// Result is execute_swap's return value.
type Result struct {
	SwapID            uuid.UUID
	SourceTxHash      *common.Hash32
	DestinationTxHash *common.Hash32
	Status            common.Status
	QuantumKeyID      *uuid.UUID
}

// Orchestrator is the bridge's central coordinator.
type Orchestrator struct {
	store    swap.Store
	adapters map[common.Chain]chainadapter.Adapter
	quantum  QuantumKeyer
	pricing  PricingEngine
	risk     RiskScorer
	reviews  risk.ReviewQueue
	cfg      *config.Holder

	authenticator   *auth.Authenticator
	operatorPubKey  []byte
	alerts          AlertSink

	timeouts *TimeoutManager
}

// New constructs an Orchestrator. The returned value's timeout manager is
// not yet running -- call Recover to resume in-flight swaps and schedule
// their timeouts after construction.
func New(
	store swap.Store,
	adapters map[common.Chain]chainadapter.Adapter,
	quantumModule QuantumKeyer,
	pricingEngine PricingEngine,
	riskGate RiskScorer,
	reviews risk.ReviewQueue,
	cfg *config.Holder,
	authenticator *auth.Authenticator,
	operatorPubKey []byte,
	alerts AlertSink,
) *Orchestrator {
	o := &Orchestrator{
		store:          store,
		adapters:       adapters,
		quantum:        quantumModule,
		pricing:        pricingEngine,
		risk:           riskGate,
		reviews:        reviews,
		cfg:            cfg,
		authenticator:  authenticator,
		operatorPubKey: operatorPubKey,
		alerts:         alerts,
	}
	o.timeouts = NewTimeoutManager(store, o.OnTimeout)
	return o
}

func validateParams(p Params) error {
	if p.AmountIn == nil || p.AmountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amount_in must be positive", common.ErrValidation)
	}
	if !p.FromChain.Valid() || !p.ToChain.Valid() || p.FromChain == p.ToChain {
		return fmt.Errorf("%w: unsupported chain pair %s -> %s", common.ErrValidation, p.FromChain, p.ToChain)
	}
	if p.FromToken == "" || p.ToToken == "" {
		return fmt.Errorf("%w: from_token and to_token are required", common.ErrValidation)
	}
	if p.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", common.ErrValidation)
	}
	return nil
}

// InitSwap validates params, obtains a quote, runs the risk gate, persists
// the new row, and schedules its timeout.
func (o *Orchestrator) InitSwap(ctx context.Context, params Params) (*InitResponse, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	cfg := o.cfg.Get()
	quote, err := o.pricing.Quote(ctx, params.FromChain, params.ToChain, params.FromToken, params.ToToken, params.AmountIn)
	if err != nil {
		return nil, err
	}

	swapID := uuid.New()
	expiry := cfg.SwapDefaultExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	now := time.Now()
	expiresAt := now.Add(expiry)
	if expiresAt.Before(now) {
		return nil, fmt.Errorf("%w: swap already expired at init", common.ErrValidation)
	}

	riskCtx := risk.SwapContext{
		SwapID:    swapID,
		UserID:    params.UserID,
		FromChain: params.FromChain,
		ToChain:   params.ToChain,
		FromToken: params.FromToken,
		ToToken:   params.ToToken,
		AmountIn:  params.AmountIn.Text('f'),
		Recipient: params.Recipient,
	}
	decision, err := o.risk.Score(ctx, riskCtx)
	if err != nil {
		return nil, err
	}

	status := common.StatusInitialized
	var riskScore *float64
	switch decision.Outcome {
	case risk.Block:
		status = common.StatusRiskRejected
		riskScore = &decision.Score
	case risk.ManualReview:
		status = common.StatusPendingReview
		riskScore = &decision.Score
	}

	row := &swap.Operation{
		SwapID:    swapID,
		UserID:    params.UserID,
		FromChain: params.FromChain,
		ToChain:   params.ToChain,
		FromToken: params.FromToken,
		ToToken:   params.ToToken,

		AmountIn:          params.AmountIn,
		ExpectedAmountOut: quote.ExpectedAmountOut,
		FeeBreakdown: swap.FeeBreakdown{
			BaseFee:               quote.Fees.BaseFee,
			GasFee:                quote.Fees.GasFee,
			ProtocolFee:           quote.Fees.ProtocolFee,
			SlippageProtectionFee: quote.Fees.SlippageProtectionFee,
		},
		ExchangeRate:    quote.FinalRate,
		QuoteID:         quote.QuoteID,
		QuoteValidUntil: quote.ValidUntil,

		Recipient: params.Recipient,
		Status:    status,
		RiskScore: riskScore,

		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}

	if err := o.store.InsertSwap(ctx, row); err != nil {
		return nil, err
	}

	if decision.Outcome == risk.ManualReview {
		if err := o.reviews.Enqueue(ctx, risk.ReviewRecord{
			SwapID:          swapID,
			UserID:          params.UserID,
			RiskScore:       decision.Score,
			Priority:        decision.Score,
			Reason:          decision.Reason,
			ContextSnapshot: risk.Snapshot(riskCtx, decision),
		}); err != nil {
			log.Warnf("orchestrator: failed to enqueue review for swap %s: %s", swapID, err)
		}
	}

	if !status.IsTerminal() {
		o.timeouts.Schedule(swapID, expiresAt)
	}

	return &InitResponse{
		SwapID:        swapID,
		Status:        status,
		EstimatedTime: expiry,
	}, nil
}

// LoadSwap returns a swap's current persisted state without attempting to
// advance it.
func (o *Orchestrator) LoadSwap(ctx context.Context, swapID uuid.UUID) (*swap.Operation, error) {
	return o.store.LoadSwap(ctx, swapID)
}

// ObserveEvent is the event pipeline's single dispatch point: it looks up
// the swap targeted by evt's quantum hash and re-drives it immediately
// rather than waiting for the next poll cycle. A hash with no matching
// non-terminal swap is not an error -- it's an event for a swap this
// orchestrator instance didn't originate, already completed, or that
// belongs to a different deployment sharing the same chains.
func (o *Orchestrator) ObserveEvent(ctx context.Context, evt events.BridgeEvent) error {
	row, err := o.store.LoadSwapByQuantumHash(ctx, evt.QuantumHash)
	if err != nil {
		if errors.Is(err, common.ErrSwapNotFound) {
			log.Debugf("orchestrator: no swap matches quantum hash from %s event on %s, ignoring", evt.Kind, evt.Chain)
			return nil
		}
		return err
	}

	log.Infof("orchestrator: observed %s event on %s for swap %s, re-driving", evt.Kind, evt.Chain, row.SwapID)
	if _, err := o.ExecuteSwap(ctx, row.SwapID); err != nil {
		return fmt.Errorf("orchestrator: re-drive of swap %s after %s event failed: %w", row.SwapID, evt.Kind, err)
	}
	return nil
}

// ResolveReview applies an external review decision to a swap currently in
// PendingReview: Allow returns it to Initialized so a later ExecuteSwap
// call proceeds; Block cancels it.
func (o *Orchestrator) ResolveReview(ctx context.Context, swapID uuid.UUID, allow bool) error {
	row, err := o.store.LoadSwap(ctx, swapID)
	if err != nil {
		return err
	}
	if row.Status != common.StatusPendingReview {
		return fmt.Errorf("%w: swap %s is not pending review (status=%s)", common.ErrInvalidStateTransition, swapID, row.Status)
	}

	target := common.StatusCancelled
	if allow {
		target = common.StatusInitialized
	}
	ok, err := o.store.ConditionalUpdate(ctx, swapID, common.StatusPendingReview, target, swap.UpdateFields{}, "manual review resolved", "reviewer", nil)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrConcurrentUpdate
	}
	if target.IsTerminal() {
		o.timeouts.Cancel(swapID)
	}
	return o.reviews.MarkDecided(ctx, swapID)
}

// canonicalQuantumContext is the deterministic byte encoding of
// (swap_id, from_chain, to_chain) used as HKDF info for the bridge-tx
// subkey.
func canonicalQuantumContext(swapID uuid.UUID, fromChain, toChain common.Chain) []byte {
	data, _ := json.Marshal(struct {
		SwapID    uuid.UUID    `json:"swap_id"`
		FromChain common.Chain `json:"from_chain"`
		ToChain   common.Chain `json:"to_chain"`
	}{swapID, fromChain, toChain})
	return data
}

func (o *Orchestrator) emitSecurityAlert(ctx context.Context, swapID uuid.UUID, reason string) {
	if o.authenticator == nil || o.alerts == nil {
		log.Warnf("orchestrator: security alert for swap %s not delivered (no alert sink configured): %s", swapID, reason)
		return
	}
	payload, _ := json.Marshal(struct {
		SwapID uuid.UUID `json:"swap_id"`
		Reason string    `json:"reason"`
	}{swapID, reason})

	msg, err := o.authenticator.Create(o.operatorPubKey, swapID[:], auth.SecurityAlert, payload, nil, 0)
	if err != nil {
		log.Warnf("orchestrator: failed to sign security alert for swap %s: %s", swapID, err)
		return
	}
	if err := o.alerts.Publish(ctx, msg); err != nil {
		log.Warnf("orchestrator: failed to publish security alert for swap %s: %s", swapID, err)
	}
}
